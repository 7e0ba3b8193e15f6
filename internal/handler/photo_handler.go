package handler

import (
	"errors"
	"io"
	"strconv"

	"gallery-go/internal/dto"
	"gallery-go/internal/models"
	"gallery-go/internal/repository"
	"gallery-go/internal/service"
	"gallery-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PhotoHandler 图库处理器
type PhotoHandler struct {
	photoService *service.PhotoService
	logger       logrus.FieldLogger
}

// NewPhotoHandler 创建图库处理器
func NewPhotoHandler(photoService *service.PhotoService, logger logrus.FieldLogger) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
		logger:       logger,
	}
}

// parseID 解析路径中的正整数ID
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.BadRequest(c, "无效的"+name)
		return 0, false
	}
	return uint(id), true
}

// respondError 将服务层错误转换为响应
func respondError(c *gin.Context, logger logrus.FieldLogger, err error, message string) {
	switch {
	case errors.Is(err, service.ErrPhotoNotFound),
		errors.Is(err, service.ErrTagNotFound),
		errors.Is(err, service.ErrResultNotFound),
		errors.Is(err, repository.ErrTagNotOnPhoto):
		utils.NotFound(c, err.Error())
	case errors.Is(err, service.ErrDuplicatePhoto),
		errors.Is(err, service.ErrResultAlreadySaved):
		utils.Conflict(c, err.Error())
	case errors.Is(err, service.ErrFileTooLarge),
		errors.Is(err, service.ErrFileTypeNotAllowed),
		errors.Is(err, service.ErrDownloadFailed):
		utils.BadRequest(c, err.Error())
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error(message)
		utils.InternalError(c, message)
	}
}

// ListPhotos 公开图片列表，支持 tag_id（别名 tag）和 search 筛选
func (h *PhotoHandler) ListPhotos(c *gin.Context) {
	raw := c.Query("tag_id")
	if raw == "" {
		raw = c.Query("tag")
	}
	var tagID uint64
	if raw != "" {
		var err error
		if tagID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			utils.BadRequest(c, "无效的tag_id")
			return
		}
	}

	photos, err := h.photoService.ListPublic(uint(tagID), c.Query("search"))
	if err != nil {
		respondError(c, h.logger, err, "查询图片失败")
		return
	}
	utils.SuccessResponse(c, photos)
}

// GetPhoto 图片详情
func (h *PhotoHandler) GetPhoto(c *gin.Context) {
	id, ok := parseID(c, "photo_id")
	if !ok {
		return
	}
	photo, err := h.photoService.GetPhoto(id)
	if err != nil {
		respondError(c, h.logger, err, "查询图片失败")
		return
	}
	utils.SuccessResponse(c, photo)
}

// UpdatePhoto 更新图片信息
func (h *PhotoHandler) UpdatePhoto(c *gin.Context) {
	id, ok := parseID(c, "photo_id")
	if !ok {
		return
	}
	var req dto.UpdatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "请求格式错误")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	photo, err := h.photoService.UpdatePhoto(id, &req)
	if err != nil {
		respondError(c, h.logger, err, "更新图片失败")
		return
	}
	utils.SuccessWithMessage(c, "更新成功", photo)
}

// DeletePhoto 删除图片
func (h *PhotoHandler) DeletePhoto(c *gin.Context) {
	id, ok := parseID(c, "photo_id")
	if !ok {
		return
	}
	if err := h.photoService.DeletePhoto(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "删除图片失败")
		return
	}
	utils.SuccessWithMessage(c, "图片删除成功", nil)
}

// Upload 批量上传，单个文件失败不影响其他文件
func (h *PhotoHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequest(c, "没有选择文件")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		utils.BadRequest(c, "没有选择文件")
		return
	}

	resp := dto.UploadResponse{Photos: []models.Photo{}, Errors: []string{}}
	for _, file := range files {
		if file.Filename == "" {
			continue
		}
		src, err := file.Open()
		if err != nil {
			resp.Errors = append(resp.Errors, file.Filename+": 打开文件失败")
			continue
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			resp.Errors = append(resp.Errors, file.Filename+": 读取文件失败")
			continue
		}

		photo, err := h.photoService.UploadFile(c.Request.Context(), file, content)
		if err != nil {
			if !isClientError(err) {
				h.logger.WithError(err).WithField("filename", file.Filename).Error("[Upload] 上传失败")
				err = errors.New("上传失败")
			}
			resp.Errors = append(resp.Errors, file.Filename+": "+err.Error())
			continue
		}
		resp.Photos = append(resp.Photos, *photo)
	}
	resp.Count = len(resp.Photos)
	resp.Success = resp.Count > 0

	utils.SuccessResponse(c, resp)
}

func isClientError(err error) bool {
	return errors.Is(err, service.ErrDuplicatePhoto) ||
		errors.Is(err, service.ErrFileTooLarge) ||
		errors.Is(err, service.ErrFileTypeNotAllowed)
}

// AddTags 添加标签
func (h *PhotoHandler) AddTags(c *gin.Context) {
	id, ok := parseID(c, "photo_id")
	if !ok {
		return
	}
	var req dto.AddTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "标签必须是数组格式")
		return
	}

	resp, err := h.photoService.AddTags(id, req.Tags)
	if err != nil {
		respondError(c, h.logger, err, "添加标签失败")
		return
	}
	utils.SuccessResponse(c, resp)
}

// RemoveTag 移除标签
func (h *PhotoHandler) RemoveTag(c *gin.Context) {
	photoID, ok := parseID(c, "photo_id")
	if !ok {
		return
	}
	tagID, ok := parseID(c, "tag_id")
	if !ok {
		return
	}
	if err := h.photoService.RemoveTag(photoID, tagID); err != nil {
		respondError(c, h.logger, err, "移除标签失败")
		return
	}
	utils.SuccessWithMessage(c, "标签移除成功", nil)
}

// ListTags 热门标签
func (h *PhotoHandler) ListTags(c *gin.Context) {
	tags, err := h.photoService.ListTags()
	if err != nil {
		respondError(c, h.logger, err, "查询标签失败")
		return
	}
	utils.SuccessResponse(c, tags)
}
