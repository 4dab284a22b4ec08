package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client  *asynq.Client
	queue   string
	retries int
	timeout time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client:  asynq.NewClient(redisOpt),
		queue:   queueName,
		retries: 3,
		timeout: 2 * time.Minute,
	}
}

func (c *Client) EnqueueDecayImage(ctx context.Context, payload DecayImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewDecayImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(c.retries),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
