package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/food-orders/foodorders/internal/jobs"
)

// WorkerConfig collects the dependencies of the worker process.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Mailer      Mailer
	Storage     ObjectDeleter
	Metrics     *jobmetrics.Metrics
}

// Worker runs the asynq server over the task handlers of this package.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker constructs a Worker. Concurrency defaults to 5.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Storage == nil {
		return nil, errors.New("jobs: worker needs object storage")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	logger := logOrDefault(cfg.Logger)
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          Queues,
		ShutdownTimeout: 10 * time.Second,
		Logger:          asynqLogger{logger: logger.With(slog.String("component", "asynq"))},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			limit, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				slog.String("task", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", limit),
				slog.Any("error", err))
		}),
	})
	return &Worker{server: srv, mux: NewServeMux(cfg), logger: logger}, nil
}

// NewServeMux routes every task type of this package to its handler.
func NewServeMux(cfg WorkerConfig) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSendEmail, (&SendEmailJob{Mailer: cfg.Mailer, Logger: cfg.Logger, Metrics: cfg.Metrics}).Handle)
	mux.HandleFunc(TaskTypeDeleteObject, (&DeleteObjectJob{Storage: cfg.Storage, Logger: cfg.Logger, Metrics: cfg.Metrics}).Handle)
	return mux
}

// Run processes tasks until ctx is cancelled or the server fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start worker: %w", err)
	}
	w.logger.Info("worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
