package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"gallery-go/internal/config"
	"gallery-go/internal/dto"
	"gallery-go/internal/models"
	"gallery-go/internal/repository"
	"gallery-go/internal/utils"
	"gallery-go/pkg/blobstore"
	"gallery-go/pkg/imageinfo"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 图库错误
var (
	ErrPhotoNotFound      = errors.New("图片不存在")
	ErrTagNotFound        = errors.New("标签不存在")
	ErrDuplicatePhoto     = errors.New("文件已存在")
	ErrFileTooLarge       = errors.New("文件大小超过限制")
	ErrFileTypeNotAllowed = errors.New("不支持的文件类型")
)

const (
	publicPhotoLimit = 20
	popularTagLimit  = 50
)

// PhotoService 图库服务：上传、查询、更新、删除图片以及标签管理
type PhotoService struct {
	photoRepo *repository.PhotoRepository
	tagRepo   *repository.TagRepository
	store     blobstore.Store
	uploadCfg config.UploadConfig
	logger    logrus.FieldLogger
}

// NewPhotoService 创建图库服务
func NewPhotoService(
	photoRepo *repository.PhotoRepository,
	tagRepo *repository.TagRepository,
	store blobstore.Store,
	uploadCfg config.UploadConfig,
	logger logrus.FieldLogger,
) *PhotoService {
	if uploadCfg.ThumbnailSize <= 0 {
		uploadCfg.ThumbnailSize = imageinfo.DefaultThumbnailSize
	}
	return &PhotoService{
		photoRepo: photoRepo,
		tagRepo:   tagRepo,
		store:     store,
		uploadCfg: uploadCfg,
		logger:    logger,
	}
}

// photoInput 入库一张图片所需的信息
type photoInput struct {
	Content          []byte
	OriginalFilename string
	ContentType      string
	Title            string
	Description      string
	AIGenerated      bool
}

// UploadFile 上传单个文件
func (s *PhotoService) UploadFile(ctx context.Context, header *multipart.FileHeader, content []byte) (*models.Photo, error) {
	if limit := s.uploadCfg.GetMaxFileSize(); limit > 0 && int64(len(content)) > limit {
		return nil, ErrFileTooLarge
	}
	if len(s.uploadCfg.AllowedExtensions) > 0 && !utils.IsAllowedFile(header.Filename, s.uploadCfg.AllowedExtensions) {
		return nil, ErrFileTypeNotAllowed
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = utils.DetectContentType(content)
	}
	return s.storePhoto(ctx, &photoInput{
		Content:          content,
		OriginalFilename: header.Filename,
		ContentType:      contentType,
		Title:            utils.TitleFromFilename(header.Filename),
	})
}

// storePhoto 去重、上传原图和缩略图、写入数据库。数据库写入失败时删除已上传的对象
func (s *PhotoService) storePhoto(ctx context.Context, in *photoInput) (*models.Photo, error) {
	hash := utils.CalculateFileHash(in.Content)
	exists, err := s.photoRepo.ExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("检查重复文件失败: %w", err)
	}
	if exists {
		return nil, ErrDuplicatePhoto
	}

	filename := utils.GenerateFilename(in.OriginalFilename)
	tosURL, err := s.store.PutPhoto(ctx, filename, in.Content, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("上传文件失败: %w", err)
	}

	logger := s.logger.WithField("filename", filename)

	var thumbnailURL string
	if thumb, err := imageinfo.Thumbnail(in.Content, s.uploadCfg.ThumbnailSize, s.uploadCfg.ThumbnailSize); err != nil {
		logger.WithError(err).Warn("[Photo] 生成缩略图失败")
	} else if thumbnailURL, err = s.store.PutThumbnail(ctx, filename, thumb); err != nil {
		logger.WithError(err).Warn("[Photo] 上传缩略图失败")
	}

	info, err := imageinfo.Inspect(in.Content)
	if err != nil {
		logger.WithError(err).Warn("[Photo] 读取图片信息失败")
	}

	title := in.Title
	if title == "" {
		title = utils.TitleFromFilename(in.OriginalFilename)
	}
	photo := &models.Photo{
		Title:            title,
		Description:      in.Description,
		Filename:         filename,
		OriginalFilename: in.OriginalFilename,
		TosURL:           tosURL,
		ThumbnailURL:     thumbnailURL,
		FileSize:         int64(len(in.Content)),
		Width:            info.Width,
		Height:           info.Height,
		MimeType:         in.ContentType,
		HashValue:        hash,
		IsPublic:         true,
		IsAIGenerated:    in.AIGenerated,
	}
	if err := s.photoRepo.Create(photo); err != nil {
		if delErr := s.store.DeleteFiles(ctx, filename); delErr != nil {
			logger.WithError(delErr).Error("[Photo] 清理已上传文件失败")
		}
		return nil, fmt.Errorf("保存图片记录失败: %w", err)
	}
	photo.Tags = []models.Tag{}

	logger.WithFields(logrus.Fields{
		"photo_id":     photo.ID,
		"size":         photo.FileSize,
		"ai_generated": photo.IsAIGenerated,
	}).Info("[Photo] 图片入库成功")
	return photo, nil
}

// ListPublic 公开图片，按标签和关键字筛选
func (s *PhotoService) ListPublic(tagID uint, search string) ([]models.Photo, error) {
	filter := repository.PhotoFilter{TagID: tagID, Search: strings.TrimSpace(search)}
	photos, err := s.photoRepo.ListPublic(filter, publicPhotoLimit)
	if err != nil {
		return nil, fmt.Errorf("查询图片失败: %w", err)
	}
	return photos, nil
}

// GetPhoto 图片详情，浏览次数加一
func (s *PhotoService) GetPhoto(id uint) (*models.Photo, error) {
	photo, err := s.getPhoto(id)
	if err != nil {
		return nil, err
	}
	if err := s.photoRepo.IncrementViewCount(id); err != nil {
		return nil, fmt.Errorf("更新浏览次数失败: %w", err)
	}
	photo.ViewCount++
	return photo, nil
}

func (s *PhotoService) getPhoto(id uint) (*models.Photo, error) {
	photo, err := s.photoRepo.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询图片失败: %w", err)
	}
	return photo, nil
}

// UpdatePhoto 更新标题、描述、公开状态
func (s *PhotoService) UpdatePhoto(id uint, req *dto.UpdatePhotoRequest) (*models.Photo, error) {
	if _, err := s.getPhoto(id); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Title != nil {
		fields["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.IsPublic != nil {
		fields["is_public"] = *req.IsPublic
	}
	if err := s.photoRepo.UpdateFields(id, fields); err != nil {
		return nil, fmt.Errorf("更新图片失败: %w", err)
	}
	return s.getPhoto(id)
}

// DeletePhoto 删除图片记录，提交后删除对象存储中的原图和缩略图
func (s *PhotoService) DeletePhoto(ctx context.Context, id uint) error {
	photo, err := s.getPhoto(id)
	if err != nil {
		return err
	}
	if err := s.photoRepo.Delete(photo); err != nil {
		return fmt.Errorf("删除图片失败: %w", err)
	}
	s.deleteBlobs(ctx, photo)
	return nil
}

// deleteBlobs 删除对象失败只记日志，数据库记录已删除
func (s *PhotoService) deleteBlobs(ctx context.Context, photo *models.Photo) {
	if err := s.store.DeleteFiles(ctx, photo.Filename); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"photo_id": photo.ID,
			"filename": photo.Filename,
		}).Error("[Photo] 删除对象存储文件失败")
	}
}

// AddTags 添加标签
func (s *PhotoService) AddTags(photoID uint, names []string) (*dto.AddTagsResponse, error) {
	if _, err := s.getPhoto(photoID); err != nil {
		return nil, err
	}
	added, err := s.photoRepo.AddTags(photoID, names, utils.RandomTagColor)
	if err != nil {
		return nil, fmt.Errorf("添加标签失败: %w", err)
	}
	photo, err := s.getPhoto(photoID)
	if err != nil {
		return nil, err
	}
	if added == nil {
		added = []models.Tag{}
	}
	return &dto.AddTagsResponse{AddedTags: added, Photo: photo}, nil
}

// RemoveTag 移除标签
func (s *PhotoService) RemoveTag(photoID, tagID uint) error {
	if _, err := s.getPhoto(photoID); err != nil {
		return err
	}
	_, err := s.tagRepo.GetByID(tagID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTagNotFound
	}
	if err != nil {
		return fmt.Errorf("查询标签失败: %w", err)
	}
	return s.photoRepo.RemoveTag(photoID, tagID)
}

// ListTags 使用次数最多的标签
func (s *PhotoService) ListTags() ([]models.Tag, error) {
	tags, err := s.tagRepo.ListPopular(popularTagLimit)
	if err != nil {
		return nil, fmt.Errorf("查询标签失败: %w", err)
	}
	return tags, nil
}

// generatedFilename 生成图片的原始文件名
func generatedFilename(now time.Time, contentType string) string {
	ext := "jpg"
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("generated_%d.%s", now.Unix(), ext)
}
