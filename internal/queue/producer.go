package queue

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	TaskPrewarm = "prewarm"
	TaskSweep   = "sweep"
)

// Task is the payload carried by one stream entry. Every field is flattened
// into a string value so XADD accepts it without extra encoding.
type Task struct {
	Type    string `json:"type"`
	ImageID string `json:"imageId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Since   int64  `json:"since,string,omitempty"`
}

func (t Task) values() map[string]any {
	values := map[string]any{"type": t.Type}
	if t.ImageID != "" {
		values["imageId"] = t.ImageID
	}
	if t.UserID != "" {
		values["userId"] = t.UserID
	}
	if t.Since != 0 {
		values["since"] = strconv.FormatInt(t.Since, 10)
	}
	return values
}

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) error {
	if p == nil || p.client == nil {
		return nil
	}
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Result()
	return err
}
