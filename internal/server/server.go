package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"storyforge/internal/ai"
	"storyforge/internal/config"
	"storyforge/internal/handler"
	pipelineHandler "storyforge/internal/handler/pipeline"
	"storyforge/internal/pkg/browser"
	"storyforge/internal/pkg/cache"
	"storyforge/internal/pkg/ffmpeg"
	"storyforge/internal/pkg/locker"
	"storyforge/internal/pkg/mongodb"
	"storyforge/internal/pkg/storage"
	"storyforge/internal/pkg/storagefactory"
	"storyforge/internal/pkg/t2i"
	"storyforge/internal/pkg/tts"
	runRepo "storyforge/internal/repository/run"
	"storyforge/internal/server/middleware"
	pipelineSvc "storyforge/internal/service/pipeline"
)

// Server HTTP 服务器
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	mongo    *mongodb.Client
	redis    *cache.RedisCache
	pipeline *pipelineSvc.Service
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB (可选，未配置时断点存内存)
	var mongoClient *mongodb.Client
	var repo runRepo.Repository
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, falling back to in-memory checkpoints")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			// 创建索引
			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
			repo = runRepo.NewMongoRepo(mongoClient.Database())
		}
	}
	if repo == nil {
		log.Warn().Msg("MongoDB not configured, checkpoints will not survive a restart")
		repo = runRepo.NewMemoryRepo()
	}

	// 初始化 Redis (可选，用于进度快照)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	pipeline, err := buildPipelineService(cfg, repo, redisCache)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		engine:   engine,
		mongo:    mongoClient,
		redis:    redisCache,
		pipeline: pipeline,
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// buildPipelineService 组装流水线服务及其全部阶段依赖
func buildPipelineService(cfg *config.Config, repo runRepo.Repository, redisCache *cache.RedisCache) (*pipelineSvc.Service, error) {
	scriptSvc, err := buildScriptService(cfg)
	if err != nil {
		return nil, err
	}

	// 直连 TTS 客户端
	ttsClient, err := tts.NewClient(tts.Config{
		APIURL:      cfg.TTS.APIURL,
		AccessToken: cfg.TTS.AccessToken,
		AppID:       cfg.TTS.AppID,
		Cluster:     cfg.TTS.Cluster,
		VoiceType:   cfg.TTS.VoiceType,
		SampleRate:  cfg.TTS.SampleRate,
	})
	if err != nil {
		log.Warn().Err(err).Msg("TTS client not available, direct narration strategy will fail")
	}

	// 文生图提供方
	provider, err := buildImageProvider(&cfg.Image)
	if err != nil {
		return nil, err
	}

	// 对象存储 (可选)
	var store storage.Storage
	if cfg.Storage.Type != "" {
		st, err := storagefactory.NewStorage(context.Background(), &cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("storage not available, merged videos stay on local disk only")
		} else {
			store = st
			log.Info().Str("type", st.GetStorageType()).Msg("storage initialized")
		}
	}

	browserCfg := browser.Config{
		DebugURL:         cfg.Browser.DebugURL,
		ProfileDir:       cfg.Browser.ProfileDir,
		AutomationDir:    cfg.Browser.AutomationDir,
		DownloadDir:      cfg.Browser.DownloadDir,
		PollInterval:     cfg.Browser.PollInterval,
		CompletionWindow: cfg.Browser.CompletionWindow,
		DownloadTimeout:  cfg.Browser.DownloadTimeout,
	}

	// 浏览器是独占资源，旁白和视觉的自动化路径共用一把锁
	browserLock := locker.New(
		filepath.Join(cfg.Pipeline.WorkDir, "browser.lock"),
		cfg.Pipeline.LockStaleAfter,
	)

	ffmpegClient := ffmpeg.NewClient()
	if !ffmpegClient.Installed() {
		log.Warn().Msg("ffmpeg not found in PATH, visual and assembly stages will fail")
	}

	narrationSvc := pipelineSvc.NewNarrationService(
		ttsClient, &cfg.TTS, browserCfg, cfg.Browser.VoiceStudioURL,
		browserLock, cfg.Pipeline.LockMaxWait,
	)
	visualSvc := pipelineSvc.NewVisualService(
		provider, ffmpegClient, browserCfg, cfg.Browser.VideoToolURL,
		browserLock, cfg.Pipeline.LockMaxWait, cfg.Pipeline.FPS,
	)
	validationSvc := pipelineSvc.NewValidationService(ffmpegClient)
	assemblySvc := pipelineSvc.NewAssemblyService(ffmpegClient, store, cfg.Pipeline.WatermarkText, cfg.Pipeline.FPS)

	return pipelineSvc.NewService(
		&cfg.Pipeline, repo, redisCache,
		scriptSvc, narrationSvc, visualSvc, validationSvc, assemblySvc,
	), nil
}

// buildScriptService 创建脚本服务，无 API Key 时退回离线生成
func buildScriptService(cfg *config.Config) (*pipelineSvc.ScriptService, error) {
	if cfg.AI.APIKey == "" {
		log.Warn().Msg("AI api_key not configured, script stage uses the offline generator")
		return pipelineSvc.NewScriptService(nil), nil
	}

	chatModel, err := ai.NewChatModel(context.Background(), &cfg.AI)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("chat model initialized")
	return pipelineSvc.NewScriptService(chatModel), nil
}

// buildImageProvider 按配置选择文生图提供方
func buildImageProvider(cfg *config.ImageConfig) (t2i.Provider, error) {
	switch cfg.Provider {
	case "volcengine":
		if cfg.Volcengine == nil {
			return nil, errors.New("image provider volcengine requires image.volcengine config")
		}
		return t2i.NewVolcClient(&t2i.VolcConfig{
			AccessKey: cfg.Volcengine.AccessKey,
			SecretKey: cfg.Volcengine.SecretKey,
			ReqKey:    cfg.Volcengine.ReqKey,
			APIURL:    cfg.Volcengine.APIURL,
			Region:    cfg.Volcengine.Region,
		})
	default:
		var baseURL, model string
		if cfg.Pollinations != nil {
			baseURL = cfg.Pollinations.BaseURL
			model = cfg.Pollinations.Model
		}
		return t2i.NewPollinationsClient(baseURL, model), nil
	}
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		pipelineHdl := pipelineHandler.NewHandler(s.pipeline)

		runs := v1.Group("/pipeline/runs")
		{
			runs.POST("", pipelineHdl.CreateRun)
			runs.GET("", pipelineHdl.ListRuns)
			runs.GET("/:id", pipelineHdl.GetRun)
			runs.GET("/:id/stream", pipelineHdl.StreamProgress)
			runs.POST("/:id/pause", pipelineHdl.PauseRun)
			runs.POST("/:id/resume", pipelineHdl.ResumeRun)
			runs.POST("/:id/scenes/:scene_id/regenerate", pipelineHdl.RegenerateScene)
		}

		v1.POST("/pipeline/validate", pipelineHdl.ValidateRun)
		v1.POST("/pipeline/merge", pipelineHdl.MergeRun)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // SSE 需要 0（不限时）
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 先停掉编排协程，再关外部连接
		s.pipeline.Shutdown()

		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
