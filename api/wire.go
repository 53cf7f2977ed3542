package api

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"processhub/api/handlers/notifications"
	"processhub/api/handlers/tasks"
	"processhub/api/handlers/workflows"
	"processhub/internal/auth"
	"processhub/internal/config"
	"processhub/internal/infra"
	"processhub/internal/infra/queue"
	"processhub/internal/logger"
	middlewarepkg "processhub/internal/middleware"
	"processhub/internal/notification"
	tenantSvc "processhub/internal/tenant"
	"processhub/internal/worker"
	workflowSvc "processhub/internal/workflow"
	"processhub/internal/workflow/engine"
	"processhub/internal/workflow/events"
	"processhub/internal/workflow/state"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用容器，集中管理所有服务依赖
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient
	QueueClient queue.Client

	// 认证
	JWTService *auth.JWTService

	// 流程
	Directory       *tenantSvc.Directory
	EventBus        *events.Bus
	WorkflowService *workflowSvc.WorkflowService
	Engine          *engine.Engine
	ActionLimiter   *middlewarepkg.RateLimiter

	// 通知
	WSHub         *notification.WebSocketHub
	MultiNotifier *notification.MultiNotifier
	Deliverer     *notification.Deliverer
	Dispatcher    *notification.Dispatcher

	// Worker（Redis 不可用时为 nil）
	WorkerServer *worker.Server

	cancelDispatch context.CancelFunc
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Workflow     *workflows.WorkflowHandler
	Task         *tasks.TaskHandler
	Notification *notifications.WebSocketHandler
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	container := &AppContainer{
		DB:     db,
		Config: cfg,
	}

	container.initRedis(cfg)

	if err := container.initAuth(cfg); err != nil {
		return nil, err
	}

	container.initNotification(cfg)
	container.initWorkflow(cfg)
	container.initWorker(cfg)

	return container, nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Workflow:     workflows.NewWorkflowHandler(c.WorkflowService),
		Task:         tasks.NewTaskHandler(c.Engine),
		Notification: notifications.NewWebSocketHandler(c.WSHub),
	}
}

// initRedis Redis 可选，不可用时锁、缓存与队列全部退化为进程内实现
func (c *AppContainer) initRedis(cfg *config.Config) {
	redisCfg := normalizeRedisConfig(cfg.Redis)
	cfg.Redis = redisCfg
	if !redisCfg.Enabled {
		logger.Info("Redis 未启用，任务锁、显示名缓存与异步通知队列均已关闭")
		return
	}

	client, err := infra.InitRedis(&redisCfg)
	if err != nil {
		logger.Warn("Redis 不可用，退回进程内实现", zap.Error(err))
		return
	}
	c.RedisClient = client
	c.QueueClient = queue.NewClient(redisCfg, cfg.Worker)
}

func (c *AppContainer) initAuth(cfg *config.Config) error {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}

	secret := strings.TrimSpace(cfg.JWT.Secret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	}
	if secret == "" {
		if strings.EqualFold(cfg.Server.Mode, "release") || strings.EqualFold(appEnv, "prod") || strings.EqualFold(appEnv, "production") {
			return fmt.Errorf("JWT_SECRET_KEY 未配置，生产环境禁止使用默认密钥")
		}
		secret = "default_jwt_secret_key_change_in_production"
		logger.Warn("JWT_SECRET_KEY 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}

	c.JWTService = auth.NewJWTService(secret, cfg.JWT.Issuer, c.RedisClient)
	return nil
}

func (c *AppContainer) initNotification(cfg *config.Config) {
	log := logger.Get()

	var offlineStore notification.OfflineStore = notification.NewMemoryOfflineStore(100)
	if c.RedisClient != nil {
		offlineStore = notification.NewRedisOfflineStore(c.RedisClient, 200, 24*time.Hour)
	}

	if cfg.Notification.WebSocket {
		c.WSHub = notification.NewWebSocketHub(
			notification.WithOfflineStore(offlineStore),
			notification.WithHubLogger(log),
		)
	}

	var webhook *notification.WebhookNotifier
	if url := strings.TrimSpace(cfg.Notification.WebhookURL); url != "" {
		webhook = notification.NewWebhookNotifier(notification.WebhookConfig{
			URL:             url,
			Secret:          cfg.Notification.WebhookSecret,
			Timeout:         cfg.Notification.Timeout,
			MaxRetries:      cfg.Notification.MaxRetries,
			RetryBaseDelay:  cfg.Notification.RetryBaseDelay,
			BreakerFailures: cfg.Notification.BreakerFailures,
			BreakerTimeout:  cfg.Notification.BreakerTimeout,
		}, log)
	}

	c.MultiNotifier = notification.NewMultiNotifier(webhook, c.WSHub)
	c.Deliverer = notification.NewDeliverer(c.MultiNotifier, log)
	c.Dispatcher = notification.NewDispatcher(c.Deliverer, c.QueueClient, log)
	logger.Info("通知通道已就绪", zap.Strings("channels", c.MultiNotifier.Channels()))
}

func (c *AppContainer) initWorkflow(cfg *config.Config) {
	log := logger.Get()

	dirOpts := []tenantSvc.DirectoryOption{tenantSvc.WithDirectoryLogger(log)}
	if c.RedisClient != nil && cfg.Engine.UserCacheTTL > 0 {
		dirOpts = append(dirOpts, tenantSvc.WithDisplayNameCache(c.RedisClient, cfg.Engine.UserCacheTTL))
	}
	c.Directory = tenantSvc.NewDirectory(c.DB, dirOpts...)

	c.EventBus = events.NewBus(&events.Config{BufferSize: 256})

	c.WorkflowService = workflowSvc.NewWorkflowService(c.DB,
		workflowSvc.WithUserDirectory(c.Directory),
		workflowSvc.WithServiceLogger(log),
	)

	engineOpts := []engine.Option{
		engine.WithUserDirectory(c.Directory),
		engine.WithPublisher(c.EventBus),
		engine.WithLogger(log),
	}
	if c.RedisClient != nil && cfg.Engine.TaskLockEnabled {
		engineOpts = append(engineOpts, engine.WithLocker(state.NewRedisTaskLocker(c.RedisClient, cfg.Engine.TaskLockTTL)))
	}
	c.Engine = engine.New(c.DB, engineOpts...)

	c.ActionLimiter = middlewarepkg.NewRateLimiter(middlewarepkg.RateLimiterConfig{
		RequestsPerSecond: cfg.Engine.ActionRatePerSecond,
		BurstSize:         cfg.Engine.ActionBurst,
	})
}

func (c *AppContainer) initWorker(cfg *config.Config) {
	if c.RedisClient == nil || !cfg.Worker.Enabled {
		logger.Info("异步通知 Worker 未启动，通知将由分发器直接投递")
		return
	}
	c.WorkerServer = worker.NewServer(cfg.Redis, cfg.Worker, c.Deliverer, logger.Get())
}

// Start 启动后台组件：事件分发与 Worker
func (c *AppContainer) Start(ctx context.Context) error {
	dispatchCtx, cancel := context.WithCancel(ctx)
	c.cancelDispatch = cancel
	go c.Dispatcher.Run(dispatchCtx, c.EventBus)

	if c.WorkerServer != nil {
		if err := c.WorkerServer.Start(); err != nil {
			return fmt.Errorf("启动 Worker 失败: %w", err)
		}
	}
	return nil
}

// Close 释放后台组件
func (c *AppContainer) Close() {
	if c.cancelDispatch != nil {
		c.cancelDispatch()
	}
	if c.WorkerServer != nil {
		c.WorkerServer.Shutdown()
	}
	if c.ActionLimiter != nil {
		c.ActionLimiter.Stop()
	}
	if c.WSHub != nil {
		c.WSHub.Close()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warn("关闭队列客户端失败", zap.Error(err))
		}
	}
	if c.RedisClient != nil {
		if err := infra.CloseRedis(); err != nil {
			logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
}
