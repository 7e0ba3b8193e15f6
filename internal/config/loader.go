package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	globalConfig *Config
	once         sync.Once
	loadErr      error
)

// 密钥类配置只从环境变量读取
var envBindings = map[string]string{
	"database.path":                "DATABASE_PATH",
	"generation.ark.api_key":       "ARK_API_KEY",
	"generation.visual.access_key": "VOLC_ACCESS_KEY",
	"generation.visual.secret_key": "VOLC_SECRET_KEY",
	"storage.access_key":           "TOS_ACCESS_KEY",
	"storage.secret_key":           "TOS_SECRET_KEY",
	"redis_service.password":       "REDIS_PASSWORD",
}

// DefaultModel 默认图生图模型
const DefaultModel = "doubao-seedream-4-0-250828"

// LoadConfig 加载配置文件，进程内只加载一次
func LoadConfig(configFile string) (*Config, error) {
	once.Do(func() {
		loadDotEnv(".env")
		globalConfig, loadErr = loadConfigFromFile(configFile)
	})
	return globalConfig, loadErr
}

// loadDotEnv 加载存在的 .env 文件，已存在的环境变量不会被覆盖
func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// loadConfigFromFile 从文件加载配置
func loadConfigFromFile(configFile string) (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// 读取环境变量，generation.ark.timeout -> GENERATION_ARK_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量失败 %s: %w", env, err)
		}
	}

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 设置默认值
	setDefaults(&cfg)

	// 验证配置
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./database/gallery.db"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379 // 标准 Redis 端口
	}
	if cfg.Redis.MaxWaitTime == 0 {
		cfg.Redis.MaxWaitTime = 300
	}
	if cfg.Redis.DefaultMaxConcurrency == 0 {
		cfg.Redis.DefaultMaxConcurrency = 4
	}
	if cfg.CORS.AllowMethods == nil {
		cfg.CORS.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if cfg.CORS.AllowHeaders == nil {
		cfg.CORS.AllowHeaders = []string{"*"}
	}

	g := &cfg.Generation
	if g.Backend == "" {
		g.Backend = BackendArk
	}
	if g.DefaultModel == "" {
		g.DefaultModel = DefaultModel
	}
	if len(g.AllowedModels) == 0 {
		g.AllowedModels = []string{g.DefaultModel}
	}
	if g.DefaultSize == "" {
		g.DefaultSize = "2K"
	}
	if g.MaxImagesPerTask == 0 {
		g.MaxImagesPerTask = 10
	}
	if g.URLCheckTimeout == 0 {
		g.URLCheckTimeout = 10
	}
	if g.DownloadTimeout == 0 {
		g.DownloadTimeout = 60
	}
	if g.Ark.Timeout == 0 {
		g.Ark.Timeout = 120 // 图生图耗时较长
	}
	if g.Visual.Timeout == 0 {
		g.Visual.Timeout = 30
	}
	if g.Visual.PollInterval == 0 {
		g.Visual.PollInterval = 5
	}
	if g.Visual.MaxRetries == 0 {
		g.Visual.MaxRetries = 30
	}

	if cfg.Upload.MaxFileSizeMB == 0 {
		cfg.Upload.MaxFileSizeMB = 100
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "webp"}
	}
	if cfg.Upload.ThumbnailSize == 0 {
		cfg.Upload.ThumbnailSize = 400
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
}

// validateConfig 验证配置
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("无效的服务器端口: %d", cfg.Server.Port)
	}

	g := &cfg.Generation
	switch g.Backend {
	case BackendArk:
		if g.Ark.APIKey == "" {
			return errors.New("ark 后端需要设置 ARK_API_KEY")
		}
	case BackendVisual:
		if g.Visual.AccessKey == "" || g.Visual.SecretKey == "" {
			return errors.New("visual 后端需要设置 VOLC_ACCESS_KEY 和 VOLC_SECRET_KEY")
		}
	default:
		return fmt.Errorf("未知的生成后端: %s", g.Backend)
	}

	allowed := false
	for _, m := range g.AllowedModels {
		if m == g.DefaultModel {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("默认模型 %s 不在允许列表中", g.DefaultModel)
	}
	if g.MaxImagesPerTask < 1 {
		return fmt.Errorf("max_images_per_task 必须大于0: %d", g.MaxImagesPerTask)
	}

	if cfg.Storage.Endpoint == "" || cfg.Storage.Bucket == "" {
		return errors.New("对象存储 endpoint 和 bucket 不能为空")
	}

	// 检查数据库目录是否存在
	dbDir := filepath.Dir(cfg.Database.Path)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	return nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}
