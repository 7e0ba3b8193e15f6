package handler

import (
	"errors"
	"net/http"

	"gallery-go/internal/dto"
	"gallery-go/internal/service"
	"gallery-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GenerationHandler 图生图处理器
type GenerationHandler struct {
	generationService *service.GenerationService
	logger            logrus.FieldLogger
}

// NewGenerationHandler 创建图生图处理器
func NewGenerationHandler(generationService *service.GenerationService, logger logrus.FieldLogger) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		logger:            logger,
	}
}

// ImageToImage 提交图生图任务。生成失败也返回200，通过 success 字段区分
func (h *GenerationHandler) ImageToImage(c *gin.Context) {
	var req dto.ImageToImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ImageToImageResponse{
			Results: []dto.GeneratedImage{},
			Message: "请求格式错误",
			Error:   "invalid request body",
		})
		return
	}

	resp, err := h.generationService.Generate(c.Request.Context(), &req)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, dto.ImageToImageResponse{
				Results: []dto.GeneratedImage{},
				Message: "参数校验失败",
				Error:   ve.Error(),
			})
			return
		}
		// 内部错误只记录日志，不把原始错误返回给调用方
		h.logger.WithError(err).Error("[ImageToImage] 处理失败")
		c.JSON(http.StatusInternalServerError, dto.ImageToImageResponse{
			Results: []dto.GeneratedImage{},
			Message: "服务器内部错误",
			Error:   "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetTask 任务详情
func (h *GenerationHandler) GetTask(c *gin.Context) {
	task, err := h.generationService.GetTask(c.Param("task_id"))
	if errors.Is(err, service.ErrTaskNotFound) {
		utils.NotFound(c, err.Error())
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("[GetTask] 查询失败")
		utils.InternalError(c, "查询任务失败")
		return
	}
	utils.SuccessResponse(c, task)
}

// GetProgress 任务进度
func (h *GenerationHandler) GetProgress(c *gin.Context) {
	progress, err := h.generationService.GetProgress(c.Request.Context(), c.Param("task_id"))
	if errors.Is(err, service.ErrTaskNotFound) {
		utils.NotFound(c, err.Error())
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("[GetProgress] 查询失败")
		utils.InternalError(c, "查询进度失败")
		return
	}
	utils.SuccessResponse(c, progress)
}

// ListResults 最近的生成结果
func (h *GenerationHandler) ListResults(c *gin.Context) {
	results, err := h.generationService.ListRecentResults()
	if err != nil {
		h.logger.WithError(err).Error("[ListResults] 查询失败")
		utils.InternalError(c, "查询生成结果失败")
		return
	}
	utils.SuccessResponse(c, results)
}
