package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/food-orders/foodorders/internal/jobs"
)

// Queues served by the worker.
const (
	QueueMail    = "mail"
	QueueCleanup = "cleanup"
)

// Queues lists every queue with its priority weight.
var Queues = map[string]int{QueueMail: 6, QueueCleanup: 1}

const (
	// TaskTypeSendEmail delivers a transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeDeleteObject removes a stored blob that is no longer referenced.
	TaskTypeDeleteObject = "storage:delete"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// DeleteObjectPayload names a stored blob to remove.
type DeleteObjectPayload struct {
	Path string `json:"path"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("jobs: email recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

// NewDeleteObjectTask constructs an Asynq task.
func NewDeleteObjectTask(payload DeleteObjectPayload) (*asynq.Task, error) {
	if payload.Path == "" {
		return nil, errors.New("jobs: object path required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeleteObject, data, asynq.Queue(QueueCleanup), asynq.MaxRetry(10), asynq.Timeout(30*time.Second)), nil
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ObjectDeleter removes a stored blob.
type ObjectDeleter interface {
	Delete(ctx context.Context, objectPath string) error
}

// SendEmailJob processes TaskTypeSendEmail tasks.
type SendEmailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle delivers the email in the task payload.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeSendEmail, err, asynq.SkipRetry)
	}
	run := j.Metrics.Begin(TaskTypeSendEmail)
	defer func() { err = run.Finish(err) }()

	logger := logOrDefault(j.Logger).With(slog.String("job", TaskTypeSendEmail), slog.String("to", payload.To))
	if j.Mailer == nil {
		logger.Warn("mailer not configured, dropping email", slog.String("subject", payload.Subject))
		return nil
	}
	if err := j.Mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		logger.Error("send email", slog.Any("error", err))
		return err
	}
	logger.Info("email sent")
	return nil
}

// DeleteObjectJob processes TaskTypeDeleteObject tasks.
type DeleteObjectJob struct {
	Storage ObjectDeleter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle removes the blob named in the task payload.
func (j *DeleteObjectJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var payload DeleteObjectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Path == "" {
		return fmt.Errorf("decode %s payload: %w", TaskTypeDeleteObject, asynq.SkipRetry)
	}
	if j.Storage == nil {
		return errors.New("delete object: storage not configured")
	}
	run := j.Metrics.Begin(TaskTypeDeleteObject)
	defer func() { err = run.Finish(err) }()

	if err := j.Storage.Delete(ctx, payload.Path); err != nil {
		logOrDefault(j.Logger).Error("delete object", slog.String("path", payload.Path), slog.Any("error", err))
		return err
	}
	return nil
}

func logOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
