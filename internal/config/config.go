package config

import (
	"fmt"
	"time"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis_service"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Generation GenerationConfig `mapstructure:"generation"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ProductionMode bool   `mapstructure:"production_mode"`
}

// GetAddress 获取服务器地址
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig Redis配置，未启用时使用进程内限流且不记录进度
type RedisConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	DB                    int    `mapstructure:"db"`
	Password              string `mapstructure:"password"`
	MaxWaitTime           int    `mapstructure:"max_wait_time"`
	DefaultMaxConcurrency int    `mapstructure:"default_max_concurrency"`
}

// GetAddress 获取Redis地址
func (r *RedisConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GetMaxWaitDuration 获取最大等待时间
func (r *RedisConfig) GetMaxWaitDuration() time.Duration {
	return time.Duration(r.MaxWaitTime) * time.Second
}

// CORSConfig CORS配置
type CORSConfig struct {
	Origins          []string `mapstructure:"origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
}

// StorageConfig 对象存储配置（S3兼容，默认火山引擎TOS）
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	CDNDomain string `mapstructure:"cdn_domain"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// 生成后端
const (
	BackendArk    = "ark"
	BackendVisual = "visual"
)

// GenerationConfig 图生图配置
type GenerationConfig struct {
	Backend          string       `mapstructure:"backend"` // ark | visual
	DefaultModel     string       `mapstructure:"default_model"`
	AllowedModels    []string     `mapstructure:"allowed_models"`
	DefaultSize      string       `mapstructure:"default_size"`
	MaxImagesPerTask int          `mapstructure:"max_images_per_task"`
	URLCheckTimeout  int          `mapstructure:"url_check_timeout"`
	DownloadTimeout  int          `mapstructure:"download_timeout"`
	Ark              ArkConfig    `mapstructure:"ark"`
	Visual           VisualConfig `mapstructure:"visual"`
}

// GetURLCheckTimeout 源图片检查超时
func (g *GenerationConfig) GetURLCheckTimeout() time.Duration {
	return time.Duration(g.URLCheckTimeout) * time.Second
}

// GetDownloadTimeout 下载生成图片超时
func (g *GenerationConfig) GetDownloadTimeout() time.Duration {
	return time.Duration(g.DownloadTimeout) * time.Second
}

// ArkConfig Bearer Token 协议配置
type ArkConfig struct {
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"`
}

// GetTimeout 请求超时
func (a *ArkConfig) GetTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// VisualConfig 签名协议配置
type VisualConfig struct {
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Host         string `mapstructure:"host"`
	Region       string `mapstructure:"region"`
	Service      string `mapstructure:"service"`
	Endpoint     string `mapstructure:"endpoint"`
	Timeout      int    `mapstructure:"timeout"`
	PollInterval int    `mapstructure:"poll_interval"`
	MaxRetries   int    `mapstructure:"max_retries"`
}

// GetTimeout 单次请求超时
func (v *VisualConfig) GetTimeout() time.Duration {
	return time.Duration(v.Timeout) * time.Second
}

// GetPollInterval 轮询间隔
func (v *VisualConfig) GetPollInterval() time.Duration {
	return time.Duration(v.PollInterval) * time.Second
}

// UploadConfig 上传配置
type UploadConfig struct {
	MaxFileSizeMB     int      `mapstructure:"max_file_size_mb"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	ThumbnailSize     int      `mapstructure:"thumbnail_size"`
}

// GetMaxFileSize 单文件大小上限（字节）
func (u *UploadConfig) GetMaxFileSize() int64 {
	return int64(u.MaxFileSizeMB) << 20
}

// LogConfig 日志配置，File 为空时只输出到标准输出
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}
