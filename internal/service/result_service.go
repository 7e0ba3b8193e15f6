package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gallery-go/internal/dto"
	"gallery-go/internal/models"
	"gallery-go/internal/repository"
	"gallery-go/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 生成结果错误
var (
	ErrResultNotFound     = errors.New("生成结果不存在")
	ErrResultAlreadySaved = errors.New("生成结果已保存到图库")
	ErrDownloadFailed     = errors.New("下载图片失败")
)

// DefaultDownloadTimeout 下载生成图片的超时
const DefaultDownloadTimeout = 60 * time.Second

// ResultService 生成结果入库与删除
type ResultService struct {
	genRepo *repository.GenerationRepository
	photos  *PhotoService
	client  *http.Client
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewResultService 创建生成结果服务
func NewResultService(genRepo *repository.GenerationRepository, photos *PhotoService, downloadTimeout time.Duration, logger logrus.FieldLogger) *ResultService {
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	return &ResultService{
		genRepo: genRepo,
		photos:  photos,
		client:  &http.Client{Timeout: downloadTimeout},
		logger:  logger,
		now:     time.Now,
	}
}

// SaveResult 下载生成结果并保存为AI生成的图片，关联到结果行
func (s *ResultService) SaveResult(ctx context.Context, resultID uint, req *dto.SaveResultRequest) (*models.Photo, error) {
	result, err := s.genRepo.GetResult(resultID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询生成结果失败: %w", err)
	}
	if result.GeneratedImageID != nil {
		return nil, ErrResultAlreadySaved
	}

	photo, err := s.importURL(ctx, result.GeneratedImageURL, req.Title, req.Description)
	if err != nil {
		return nil, err
	}
	if err := s.genRepo.LinkResultPhoto(result.ID, photo.ID, photo.MimeType, photo.FileSize); err != nil {
		return nil, fmt.Errorf("关联生成结果失败: %w", err)
	}
	return photo, nil
}

// ImportImage 从任意图片URL导入
func (s *ResultService) ImportImage(ctx context.Context, req *dto.ImportImageRequest) (*models.Photo, error) {
	return s.importURL(ctx, req.ImageURL, req.Title, req.Description)
}

func (s *ResultService) importURL(ctx context.Context, imageURL, title, description string) (*models.Photo, error) {
	content, contentType, err := s.download(ctx, imageURL)
	if err != nil {
		s.logger.WithError(err).WithField("image_url", imageURL).Warn("[Result] 下载图片失败")
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	now := s.now()
	if title == "" {
		title = fmt.Sprintf("Generated Image %d", now.Unix())
	}
	return s.photos.storePhoto(ctx, &photoInput{
		Content:          content,
		OriginalFilename: generatedFilename(now, contentType),
		ContentType:      contentType,
		Title:            title,
		Description:      description,
		AIGenerated:      true,
	})
}

// download 下载图片，大小受上传上限约束
func (s *ResultService) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	limit := s.photos.uploadCfg.GetMaxFileSize()
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("读取响应失败: %w", err)
	}
	if limit > 0 && int64(len(content)) > limit {
		return nil, "", ErrFileTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = utils.DetectContentType(content)
	}
	return content, contentType, nil
}

// DeleteResult 删除生成结果及其图片，提交后删除对象存储文件
func (s *ResultService) DeleteResult(ctx context.Context, resultID uint) error {
	photo, err := s.genRepo.DeleteResult(resultID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResultNotFound
	}
	if err != nil {
		return fmt.Errorf("删除生成结果失败: %w", err)
	}
	if photo != nil {
		s.photos.deleteBlobs(ctx, photo)
	}
	s.logger.WithField("result_id", resultID).Info("[Result] 生成结果已删除")
	return nil
}
