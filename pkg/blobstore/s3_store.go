package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 对象key前缀
const (
	PhotoPrefix     = "photos/"
	ThumbnailPrefix = "thumbnails/"
)

// Store 图片对象存储
type Store interface {
	// PutPhoto 上传原图，返回可访问的URL
	PutPhoto(ctx context.Context, filename string, content []byte, contentType string) (string, error)
	// PutThumbnail 上传缩略图（JPEG），返回可访问的URL
	PutThumbnail(ctx context.Context, filename string, content []byte) (string, error)
	// DeleteFiles 删除原图和缩略图
	DeleteFiles(ctx context.Context, filename string) error
}

// S3Config S3兼容存储配置（火山引擎TOS等）
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	CDNDomain string
}

// S3Store 基于 minio-go 的 Store 实现
type S3Store struct {
	client     *minio.Client
	bucketName string
	urls       URLFormatter
}

// NewS3Store 创建S3存储客户端。只在启动时调用一次，由调用方注入到各服务
func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := stripScheme(strings.TrimSpace(cfg.Endpoint))
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client:     client,
		bucketName: bucket,
		urls: URLFormatter{
			Bucket:    bucket,
			Endpoint:  endpoint,
			CDNDomain: cfg.CDNDomain,
		},
	}, nil
}

// PutPhoto 上传原图到 photos/
func (s *S3Store) PutPhoto(ctx context.Context, filename string, content []byte, contentType string) (string, error) {
	return s.put(ctx, PhotoPrefix+filename, content, contentType)
}

// PutThumbnail 上传缩略图到 thumbnails/
func (s *S3Store) PutThumbnail(ctx context.Context, filename string, content []byte) (string, error) {
	return s.put(ctx, ThumbnailPrefix+filename, content, "image/jpeg")
}

func (s *S3Store) put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传对象失败 %s: %w", key, err)
	}
	return s.urls.URL(key), nil
}

// DeleteFiles 删除原图和缩略图，两次删除互不影响
func (s *S3Store) DeleteFiles(ctx context.Context, filename string) error {
	var errs []error
	for _, key := range []string{PhotoPrefix + filename, ThumbnailPrefix + filename} {
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("删除对象失败 %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// URLFormatter 拼接对象的公开访问地址
type URLFormatter struct {
	Bucket    string
	Endpoint  string
	CDNDomain string
}

// URL 配置了CDN时使用CDN域名，否则使用 bucket.endpoint 虚拟主机格式
func (f URLFormatter) URL(key string) string {
	key = strings.TrimLeft(key, "/")
	if cdn := stripScheme(strings.TrimSpace(f.CDNDomain)); cdn != "" {
		return "https://" + strings.TrimRight(cdn, "/") + "/" + key
	}
	return "https://" + f.Bucket + "." + strings.TrimRight(stripScheme(f.Endpoint), "/") + "/" + key
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
