package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hr-agent-go/internal/agent"
	"hr-agent-go/internal/api/handler"
	"hr-agent-go/internal/api/router"
	"hr-agent-go/internal/config"
	"hr-agent-go/internal/logger"
	"hr-agent-go/internal/parser"
	"hr-agent-go/internal/processor"
	"hr-agent-go/internal/storage"
	"hr-agent-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

// @title           HR Agent API
// @version         1.0
// @description     Employee record ingestion and deduplication API
// @BasePath  /api/v1
func main() {
	configPath := pflag.String("config", "", "配置文件路径 (默认按常见位置搜索)")
	initConfigPath := pflag.String("init-config", "", "生成示例配置文件到指定路径后退出")
	pflag.Parse()

	if *initConfigPath != "" {
		if err := config.CreateSampleConfig(*initConfigPath); err != nil {
			log.Fatalf("生成示例配置文件失败: %v", err)
		}
		log.Printf("示例配置文件已生成: %s", *initConfigPath)
		return
	}

	// 1. 加载配置文件
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 2. 初始化日志系统
	initLogger(cfg)

	// 3. 初始化链路追踪 (端点来自 OTEL_EXPORTER_OTLP_ENDPOINT，未配置时为no-op)
	ctx := context.Background()
	shutdownTracing, err := tracing.InitProvider(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("关闭链路追踪失败")
		}
	}()

	// 4. 初始化存储管理器
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	// 5. 组装入库管道
	orchestrator, err := buildIngestPipeline(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("组装入库管道失败")
	}
	logger.Info().
		Float64("duplicate_threshold", cfg.Ingest.DuplicateThreshold).
		Bool("archive_originals", cfg.Ingest.ArchiveOriginals).
		Msg("入库管道初始化成功")

	resumeHandler := handler.NewResumeHandler(cfg, storageManager, orchestrator)

	// 6. 创建HTTP服务器并注册路由（服务端span由obs-opentelemetry中间件生成）
	serverTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
		serverTracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	router.RegisterRoutes(h, resumeHandler)

	// 7. 启动HTTP服务器
	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器已启动")

	// 8. 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	// 9. 优雅关闭HTTP服务器
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("服务器关闭失败")
	}

	logger.Info().Msg("优雅退出完成")
}

// 初始化日志系统
func initLogger(cfg *config.Config) {
	isProduction := os.Getenv("ENV") == "production"

	logConfig := logger.Config{
		Level:        "debug",
		Format:       "pretty",
		TimeFormat:   time.RFC3339,
		ReportCaller: true,
	}

	if cfg != nil && cfg.Logger.Level != "" {
		logConfig.Level = cfg.Logger.Level
		logConfig.Format = cfg.Logger.Format
		logConfig.TimeFormat = cfg.Logger.TimeFormat
		logConfig.ReportCaller = cfg.Logger.ReportCaller
	} else if isProduction {
		logConfig.Level = "info"
		logConfig.Format = "json"
		logConfig.ReportCaller = false
	}

	logger.Init(logConfig)

	logger.Logger = logger.Logger.With().
		Str("app", "hr-agent-go").
		Str("version", "1.0.0").
		Logger()

	// Hertz框架日志走同一个zerolog输出
	hlog.SetLogger(hertzzerolog.From(logger.Logger))
}

// buildIngestPipeline 按配置组装文本提取→记录提取→摘要→查重→入库的完整管道
func buildIngestPipeline(ctx context.Context, cfg *config.Config, storageManager *storage.Storage) (*processor.IngestOrchestrator, error) {
	pipelineLogger := log.New(os.Stderr, "[Ingest] ", log.LstdFlags)

	// PDF文本提取器
	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(pipelineLogger))
	if err != nil {
		return nil, err
	}

	// LLM模型：记录提取与摘要共用同一个客户端
	chatModel, err := agent.NewAliyunQwenChatModel(
		cfg.Aliyun.APIKey,
		cfg.Aliyun.Model,
		cfg.Aliyun.APIURL,
	)
	if err != nil {
		return nil, err
	}
	recExtractor := parser.NewLLMEmployeeExtractor(chatModel, pipelineLogger)
	summarizer := parser.NewLLMSummaryGenerator(chatModel, pipelineLogger)

	// 嵌入器与查重器
	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		return nil, err
	}
	detector := processor.NewDuplicateDetector(embedder, storageManager.Qdrant, pipelineLogger)

	// 编排器：可选组件按配置注入
	opts := []processor.IngestOption{
		processor.WithDuplicateThreshold(cfg.Ingest.DuplicateThreshold),
		processor.WithIngestLogger(pipelineLogger),
	}
	if storageManager.Redis != nil {
		opts = append(opts, processor.WithFingerprintGuard(storageManager.Redis))
	}
	if storageManager.MinIO != nil && cfg.Ingest.ArchiveOriginals {
		opts = append(opts, processor.WithArchiveStore(storageManager.MinIO))
	}
	if storageManager.RabbitMQ != nil {
		opts = append(opts, processor.WithEventPublisher(storageManager.RabbitMQ))
	}

	return processor.NewIngestOrchestrator(
		pdfExtractor,
		recExtractor,
		summarizer,
		detector,
		storageManager.Qdrant,
		storage.NewMySQLMetadataStore(storageManager.MySQL),
		opts...,
	)
}
