package queue

import (
	"context"
	"fmt"

	"fileswift/config"

	"github.com/hibiken/asynq"
)

// Client wraps the asynq producer side. The job gateway enqueues through it
// and never waits for processing to finish.
type Client struct {
	client *asynq.Client
	cfg    *config.QueueConfig
}

func NewClient(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}
	return &Client{client: asynq.NewClient(redisOpt), cfg: queueCfg}
}

func (c *Client) EnqueueProcess(ctx context.Context, payload ProcessPayload) error {
	body, err := payload.Marshal()
	if err != nil {
		return fmt.Errorf("marshal process payload: %w", err)
	}

	task := asynq.NewTask(TypeToolProcess, body)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.cfg.QueueName),
		asynq.MaxRetry(c.cfg.MaxRetries),
	)
	if err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
