package worker

import (
	"context"

	"processhub/internal/config"
	"processhub/internal/infra"
	"processhub/internal/worker/handlers"
	"processhub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	redisCfg config.RedisConfig,
	workerCfg config.WorkerConfig,
	deliverer handlers.NotificationDeliverer,
	logger *zap.Logger,
) *Server {
	concurrency := workerCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		infra.AsynqRedisOpt(redisCfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				tasks.QueueCritical:     6, // 紧急待办优先
				tasks.QueueNotification: 3,
				tasks.QueueDefault:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	notificationHandler := handlers.NewNotificationHandler(deliverer, logger)
	mux.HandleFunc(tasks.TypeDeliverNotification, notificationHandler.HandleDeliverNotification)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
