package router

import (
	"net/http"

	"gallery-go/internal/config"
	"gallery-go/internal/handler"
	"gallery-go/internal/middleware"
	"gallery-go/internal/repository"
	"gallery-go/internal/service"
	"gallery-go/pkg/blobstore"
	"gallery-go/pkg/imagegen"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies 由 main 创建并注入的外部依赖
type Dependencies struct {
	DB          *gorm.DB
	RedisClient *redis.Client // 可为 nil
	Store       blobstore.Store
	Backend     imagegen.Backend
	Checker     service.SourceChecker // 可为 nil
	Limiter     service.Limiter
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, logger *logrus.Logger, deps *Dependencies) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.GetMaxFileSize()

	// 全局中间件
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(&cfg.CORS))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"backend": deps.Backend.Name(),
		})
	})

	// 初始化Repository
	generationRepo := repository.NewGenerationRepository(deps.DB)
	photoRepo := repository.NewPhotoRepository(deps.DB)
	tagRepo := repository.NewTagRepository(deps.DB)

	// 初始化Service
	validator := service.NewGenerationValidator(&cfg.Generation, deps.Backend)
	progress := service.NewProgressTracker(deps.RedisClient, logger)
	generationService := service.NewGenerationService(generationRepo, deps.Backend, validator, deps.Checker, deps.Limiter, progress, logger)
	photoService := service.NewPhotoService(photoRepo, tagRepo, deps.Store, cfg.Upload, logger)
	resultService := service.NewResultService(generationRepo, photoService, cfg.Generation.GetDownloadTimeout(), logger)

	// 初始化Handler
	generationHandler := handler.NewGenerationHandler(generationService, logger)
	photoHandler := handler.NewPhotoHandler(photoService, logger)
	resultHandler := handler.NewResultHandler(resultService, logger)

	// API路由组
	api := r.Group("/api")
	{
		// 图生图
		api.POST("/image-to-image", generationHandler.ImageToImage)
		api.GET("/image-to-image/tasks/:task_id", generationHandler.GetTask)
		api.GET("/image-to-image/tasks/:task_id/progress", generationHandler.GetProgress)

		// 生成结果
		api.GET("/generated-images", generationHandler.ListResults)
		api.POST("/generated-images/:result_id/save", resultHandler.SaveResult)
		api.DELETE("/generated-images/:result_id", resultHandler.DeleteResult)
		api.POST("/generate-image", resultHandler.ImportImage)

		// 图库
		api.GET("/photos", photoHandler.ListPhotos)
		api.GET("/photos/:photo_id", photoHandler.GetPhoto)
		api.PUT("/photos/:photo_id", photoHandler.UpdatePhoto)
		api.DELETE("/photos/:photo_id", photoHandler.DeletePhoto)
		api.POST("/upload", photoHandler.Upload)

		// 标签
		api.POST("/photos/:photo_id/tags", photoHandler.AddTags)
		api.DELETE("/photos/:photo_id/tags/:tag_id", photoHandler.RemoveTag)
		api.GET("/tags", photoHandler.ListTags)
	}

	return r
}
