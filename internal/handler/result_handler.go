package handler

import (
	"gallery-go/internal/dto"
	"gallery-go/internal/service"
	"gallery-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ResultHandler 生成结果入库与删除
type ResultHandler struct {
	resultService *service.ResultService
	logger        logrus.FieldLogger
}

// NewResultHandler 创建生成结果处理器
func NewResultHandler(resultService *service.ResultService, logger logrus.FieldLogger) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
		logger:        logger,
	}
}

// SaveResult 将生成结果保存到图库
func (h *ResultHandler) SaveResult(c *gin.Context) {
	id, ok := parseID(c, "result_id")
	if !ok {
		return
	}
	var req dto.SaveResultRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequest(c, "请求格式错误")
			return
		}
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	photo, err := h.resultService.SaveResult(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err, "保存图片失败")
		return
	}
	utils.SuccessWithMessage(c, "保存成功", photo)
}

// DeleteResult 删除生成结果及其图片
func (h *ResultHandler) DeleteResult(c *gin.Context) {
	id, ok := parseID(c, "result_id")
	if !ok {
		return
	}
	if err := h.resultService.DeleteResult(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "删除生成结果失败")
		return
	}
	utils.SuccessWithMessage(c, "删除成功", nil)
}

// ImportImage 从URL导入图片
func (h *ResultHandler) ImportImage(c *gin.Context) {
	var req dto.ImportImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "缺少必要参数image_url")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	photo, err := h.resultService.ImportImage(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err, "保存图片时出错")
		return
	}
	utils.SuccessWithMessage(c, "保存成功", photo)
}
