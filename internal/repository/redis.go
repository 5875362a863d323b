package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	redislib "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisDataSource stores each task as a JSON string under "task:<id>" and
// tracks ids in the "tasks" set.
type RedisDataSource struct {
	client *redislib.Client
	prefix string
	index  string
}

// NewRedisDataSource connects to the server at redisURL.
func NewRedisDataSource(ctx context.Context, redisURL string) (*RedisDataSource, error) {
	opts, err := redislib.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redislib.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisDataSource{client: client, prefix: "task:", index: "tasks"}, nil
}

func (s *RedisDataSource) GetTasks(ctx context.Context) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "RedisDataSource.GetTasks")
	defer span.End()

	ids, err := s.client.SMembers(ctx, s.index).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]*model.Task, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Key expired or removed between SMEMBERS and MGET.
			continue
		}
		task, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

func (s *RedisDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "RedisDataSource.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			span.SetAttributes(attribute.Bool("task.found", false))
			return nil, model.ErrTaskNotFound
		}
		return nil, err
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return decodeTask([]byte(raw))
}

func (s *RedisDataSource) SaveTask(ctx context.Context, task *model.Task) error {
	ctx, span := tracer.Start(ctx, "RedisDataSource.SaveTask",
		trace.WithAttributes(attribute.String("task.id", task.ID())),
	)
	defer span.End()

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Set(ctx, s.key(task.ID()), payload, 0)
		pipe.SAdd(ctx, s.index, task.ID())
		return nil
	})
	return err
}

func (s *RedisDataSource) CompleteTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, true)
}

func (s *RedisDataSource) ActivateTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, false)
}

func (s *RedisDataSource) setCompleted(ctx context.Context, id string, completed bool) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	task.SetCompleted(completed)
	return s.SaveTask(ctx, task)
}

func (s *RedisDataSource) ClearCompletedTasks(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "RedisDataSource.ClearCompletedTasks")
	defer span.End()

	tasks, err := s.GetTasks(ctx)
	if err != nil {
		return err
	}
	removed := 0
	for _, task := range tasks {
		if !task.IsCompleted() {
			continue
		}
		if err := s.remove(ctx, task.ID()); err != nil {
			return err
		}
		removed++
	}
	span.SetAttributes(attribute.Int("task.removed", removed))
	return nil
}

func (s *RedisDataSource) DeleteAllTasks(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "RedisDataSource.DeleteAllTasks")
	defer span.End()

	ids, err := s.client.SMembers(ctx, s.index).Result()
	if err != nil {
		return err
	}
	keys := []string{s.index}
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisDataSource) DeleteTask(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "RedisDataSource.DeleteTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrTaskNotFound
	}
	return s.remove(ctx, id)
}

// Close closes the client.
func (s *RedisDataSource) Close() error {
	return s.client.Close()
}

func (s *RedisDataSource) remove(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.index, id)
		return nil
	})
	return err
}

func (s *RedisDataSource) key(id string) string {
	return s.prefix + id
}
