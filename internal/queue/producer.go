package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskDiagnose = "diagnose"
	TaskCleanup  = "cleanup"
)

// Producer appends tasks to a stream.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, values map[string]any) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %v on %s: %w", values["type"], p.stream, err)
	}
	return id, nil
}

func DiagnoseTask(diagnosticID string) map[string]any {
	return map[string]any{"type": TaskDiagnose, "diagnosticId": diagnosticID}
}

func CleanupTask() map[string]any {
	return map[string]any{"type": TaskCleanup}
}
