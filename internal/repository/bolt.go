package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBucket = "tasks"

// BoltDataSource persists tasks in a local BoltDB file, one JSON value per id.
type BoltDataSource struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBoltDataSource opens (or creates) the database file and ensures the
// bucket exists.
func OpenBoltDataSource(path string) (*BoltDataSource, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	bucket := []byte(defaultBucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltDataSource{db: db, bucket: bucket}, nil
}

func (s *BoltDataSource) GetTasks(ctx context.Context) ([]*model.Task, error) {
	_, span := tracer.Start(ctx, "BoltDataSource.GetTasks")
	defer span.End()

	var tasks []*model.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, v []byte) error {
			task, err := decodeTask(v)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

func (s *BoltDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	_, span := tracer.Start(ctx, "BoltDataSource.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var task *model.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(id))
		if v == nil {
			return model.ErrTaskNotFound
		}
		var err error
		task, err = decodeTask(v)
		return err
	})
	span.SetAttributes(attribute.Bool("task.found", task != nil))
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *BoltDataSource) SaveTask(ctx context.Context, task *model.Task) error {
	_, span := tracer.Start(ctx, "BoltDataSource.SaveTask",
		trace.WithAttributes(attribute.String("task.id", task.ID())),
	)
	defer span.End()

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(task.ID()), payload)
	})
}

func (s *BoltDataSource) CompleteTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, true)
}

func (s *BoltDataSource) ActivateTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, false)
}

func (s *BoltDataSource) setCompleted(ctx context.Context, id string, completed bool) error {
	_, span := tracer.Start(ctx, "BoltDataSource.SetCompleted",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Bool("task.completed", completed),
		),
	)
	defer span.End()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		v := b.Get([]byte(id))
		if v == nil {
			return model.ErrTaskNotFound
		}
		task, err := decodeTask(v)
		if err != nil {
			return err
		}
		task.SetCompleted(completed)
		payload, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), payload)
	})
}

func (s *BoltDataSource) ClearCompletedTasks(ctx context.Context) error {
	_, span := tracer.Start(ctx, "BoltDataSource.ClearCompletedTasks")
	defer span.End()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		// Collect first; deleting while iterating a cursor skips keys.
		var completed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			task, err := decodeTask(v)
			if err != nil {
				return err
			}
			if task.IsCompleted() {
				completed = append(completed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range completed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		span.SetAttributes(attribute.Int("task.removed", len(completed)))
		return nil
	})
}

func (s *BoltDataSource) DeleteAllTasks(ctx context.Context) error {
	_, span := tracer.Start(ctx, "BoltDataSource.DeleteAllTasks")
	defer span.End()

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

func (s *BoltDataSource) DeleteTask(ctx context.Context, id string) error {
	_, span := tracer.Start(ctx, "BoltDataSource.DeleteTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(id)) == nil {
			return model.ErrTaskNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Count returns the number of stored tasks, or 0 if the database cannot be read.
func (s *BoltDataSource) Count() int64 {
	var n int
	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return int64(n)
}

// Close closes the Bolt database.
func (s *BoltDataSource) Close() error {
	return s.db.Close()
}

func decodeTask(data []byte) (*model.Task, error) {
	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}
