package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client enqueues the tasks of this package from the web process.
type Client struct {
	enqueuer Enqueuer
	close    func() error
}

// NewClient connects an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	c := asynq.NewClient(redisOpts)
	return &Client{enqueuer: c, close: c.Close}, nil
}

// NewClientWith wraps e.
func NewClientWith(e Enqueuer) *Client {
	return &Client{enqueuer: e}
}

// EnqueueSendEmail queues payload for delivery.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task)
}

// EnqueueDeleteObject queues removal of the blob at objectPath.
func (c *Client) EnqueueDeleteObject(ctx context.Context, objectPath string) (*asynq.TaskInfo, error) {
	task, err := NewDeleteObjectTask(DeleteObjectPayload{Path: objectPath})
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task)
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
