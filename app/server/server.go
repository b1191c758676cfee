package server

import (
	"context"
	"net/http"

	"pic-fusion/app/config"
	"pic-fusion/app/database"
	"pic-fusion/app/filewatcher"
	"pic-fusion/app/handler"
	"pic-fusion/app/logger"
	"pic-fusion/app/middleware"
	"pic-fusion/app/service"
	"pic-fusion/app/utils/repoclient"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	repoClient         *repoclient.Client
	batchService       *service.BatchService
	hashCacheService   *service.HashCacheService
	uploadService      *service.UploadService
	analysisService    *service.AnalysisService
	quotaMonitor       *service.QuotaMonitor
	maintenanceService *service.MaintenanceService
	ingestWatcher      *filewatcher.IngestWatcher
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	router := gin.Default()

	db := database.GetDB()
	repoClient := repoclient.New(cfg.Repo, log)

	batchService := service.NewBatchService(cfg, log)
	hashCacheService, err := service.NewHashCacheService(db, cfg.Upload.HashCacheCapacity, cfg.Upload.HashCacheTTL(), log)
	if err != nil {
		return nil, err
	}
	uploadService := service.NewUploadService(cfg, batchService, hashCacheService, repoClient, db, log)
	analysisService := service.NewAnalysisService(cfg, batchService, log)
	quotaMonitor := service.NewQuotaMonitor(repoClient, log)
	maintenanceService := service.NewMaintenanceService(cfg, db, hashCacheService, log)

	ingestWatcher, err := filewatcher.NewIngestWatcher(cfg, batchService, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:             cfg,
		Logger:             log,
		repoClient:         repoClient,
		batchService:       batchService,
		hashCacheService:   hashCacheService,
		uploadService:      uploadService,
		analysisService:    analysisService,
		quotaMonitor:       quotaMonitor,
		maintenanceService: maintenanceService,
		ingestWatcher:      ingestWatcher,
	}

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	s.quotaMonitor.Start()
	if err := s.maintenanceService.Start(); err != nil {
		return err
	}
	if err := s.ingestWatcher.Start(); err != nil {
		return err
	}

	return s.http.ListenAndServe()
}

// Shutdown 按启动相反的顺序停止各项服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.ingestWatcher.Stop(); err != nil {
		s.Logger.Errorf("停止投递目录监控失败: %v", err)
	}
	s.maintenanceService.Stop()
	s.quotaMonitor.Stop()

	// 最后一次落盘哈希缓存
	if err := s.hashCacheService.Close(); err != nil {
		s.Logger.Errorf("哈希缓存落盘失败: %v", err)
	}

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.Config)
	batchHandler := handler.NewBatchHandler(s.Config, s.batchService, s.Logger)
	uploadHandler := handler.NewUploadHandler(s.uploadService, s.quotaMonitor, s.repoClient, s.Logger)
	analyzeHandler := handler.NewAnalyzeHandler(s.analysisService, s.Logger)
	hashCacheHandler := handler.NewHashCacheHandler(s.hashCacheService, s.Logger)
	historyHandler := handler.NewHistoryHandler(database.GetDB(), s.Logger)

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	// 没有注册接口：操作员账户由配置文件在启动时初始化
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 批次管理
		batch := protected.Group("/batch")
		{
			batch.POST("/files", batchHandler.AddFiles)
			batch.GET("/files", batchHandler.List)
			batch.DELETE("/files/:id", batchHandler.Remove)
			batch.POST("/files/remove", batchHandler.RemoveMany)
			batch.DELETE("/files", batchHandler.Clear)
			batch.POST("/clear-success", batchHandler.ClearSuccess)

			batch.PUT("/files/:id/target", batchHandler.UpdateTarget)
			batch.PUT("/targets", batchHandler.UpdateTargets)
			batch.POST("/files/:id/apply-ai", batchHandler.ApplyAIRecommendation)
			batch.POST("/apply-ai", batchHandler.ApplyAllAIRecommendations)
		}

		// 批量上传
		upload := protected.Group("/upload")
		{
			upload.POST("/all", uploadHandler.UploadAll)
			upload.POST("/retry", uploadHandler.RetryFailed)
			upload.GET("/status", uploadHandler.Status)
			upload.GET("/exists", uploadHandler.CheckExists)
		}

		// AI 分析
		analyze := protected.Group("/analyze")
		{
			analyze.POST("/pending", analyzeHandler.AnalyzePending)
			analyze.GET("/status", analyzeHandler.Status)
		}

		// 哈希缓存管理
		hashCache := protected.Group("/hash-cache")
		{
			hashCache.GET("/stats", hashCacheHandler.Stats)
			hashCache.GET("/:digest", hashCacheHandler.Lookup)
			hashCache.POST("/purge", hashCacheHandler.PurgeExpired)
			hashCache.DELETE("/", hashCacheHandler.Clear)
		}

		// 上传历史
		protected.GET("/history", historyHandler.List)
	}
}
