package main

import (
	"context"
	"log"
	"time"

	"gallery-go/internal/config"
	"gallery-go/internal/logging"
	"gallery-go/internal/models"
	"gallery-go/internal/router"
	"gallery-go/internal/service"
	"gallery-go/pkg/blobstore"
	"gallery-go/pkg/imagegen"
	"gallery-go/pkg/redis_limiter"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func main() {
	// 加载配置（从项目根目录读取）
	cfg, err := config.LoadConfig("./config/config.yaml")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger, closer, err := logging.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer closer.Close()

	// 初始化数据库
	db, err := models.InitDB(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("初始化数据库失败")
	}

	// 初始化Redis，未启用时使用进程内限流
	var redisClient *redis.Client
	var limiter service.Limiter
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddress(),
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("连接Redis失败")
		}
		cancel()
		defer redisClient.Close()

		limiter = redis_limiter.NewRedisLimiter(redisClient, redis_limiter.Options{
			MaxConcurrent: cfg.Redis.DefaultMaxConcurrency,
			MaxWait:       cfg.Redis.GetMaxWaitDuration(),
			Logger:        logger,
		})
	} else {
		limiter = imagegen.NewConcurrencyLimiter(cfg.Redis.DefaultMaxConcurrency)
	}

	// 初始化对象存储
	store, err := blobstore.NewS3Store(blobstore.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
		CDNDomain: cfg.Storage.CDNDomain,
	})
	if err != nil {
		logger.WithError(err).Fatal("初始化对象存储失败")
	}

	// 初始化生成后端
	checker := imagegen.NewURLChecker(imagegen.URLCheckerOptions{
		Timeout: cfg.Generation.GetURLCheckTimeout(),
		Logger:  logger,
	})
	backend := newBackend(cfg, logger)

	// 设置路由
	r := router.SetupRouter(cfg, logger, &router.Dependencies{
		DB:          db,
		RedisClient: redisClient,
		Store:       store,
		Backend:     backend,
		Checker:     checker,
		Limiter:     limiter,
	})

	// 启动服务器
	addr := cfg.Server.GetAddress()
	logger.WithFields(logrus.Fields{
		"addr":    addr,
		"backend": backend.Name(),
		"redis":   cfg.Redis.Enabled,
	}).Info("服务器启动")

	if err := r.Run(addr); err != nil {
		logger.WithError(err).Fatal("启动服务器失败")
	}
}

// newBackend 根据配置选择生成后端
func newBackend(cfg *config.Config, logger logrus.FieldLogger) imagegen.Backend {
	gen := cfg.Generation
	if gen.Backend == config.BackendVisual {
		return imagegen.NewVisualClient(imagegen.VisualOptions{
			AccessKey: gen.Visual.AccessKey,
			SecretKey: gen.Visual.SecretKey,
			Host:      gen.Visual.Host,
			Region:    gen.Visual.Region,
			Service:   gen.Visual.Service,
			Endpoint:  gen.Visual.Endpoint,
			Timeout:   gen.Visual.GetTimeout(),
			Poller:    imagegen.NewPoller(gen.Visual.MaxRetries, gen.Visual.GetPollInterval(), logger),
		})
	}
	return imagegen.NewArkClient(imagegen.ArkOptions{
		APIURL:  gen.Ark.APIURL,
		APIKey:  gen.Ark.APIKey,
		Timeout: gen.Ark.GetTimeout(),
	})
}
