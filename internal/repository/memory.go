package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MemoryDataSource provides an in-memory storage for tasks.
type MemoryDataSource struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

// NewMemoryDataSource creates a new MemoryDataSource.
func NewMemoryDataSource() *MemoryDataSource {
	return &MemoryDataSource{
		tasks: make(map[string]*model.Task),
	}
}

// GetTasks returns all tasks ordered by id.
func (s *MemoryDataSource) GetTasks(ctx context.Context) ([]*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryDataSource.GetTasks")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*model.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID() < tasks[j].ID() })

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// GetTask retrieves a task by its ID.
func (s *MemoryDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryDataSource.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return task.Clone(), nil
}

// SaveTask inserts or replaces a task.
func (s *MemoryDataSource) SaveTask(ctx context.Context, task *model.Task) error {
	_, span := tracer.Start(ctx, "MemoryDataSource.SaveTask",
		trace.WithAttributes(attribute.String("task.id", task.ID())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID()] = task.Clone()
	return nil
}

func (s *MemoryDataSource) CompleteTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, true)
}

func (s *MemoryDataSource) ActivateTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, false)
}

func (s *MemoryDataSource) setCompleted(ctx context.Context, id string, completed bool) error {
	_, span := tracer.Start(ctx, "MemoryDataSource.SetCompleted",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Bool("task.completed", completed),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.ErrTaskNotFound
	}

	task.SetCompleted(completed)
	span.SetAttributes(attribute.Bool("task.found", true))
	return nil
}

// ClearCompletedTasks removes every completed task.
func (s *MemoryDataSource) ClearCompletedTasks(ctx context.Context) error {
	_, span := tracer.Start(ctx, "MemoryDataSource.ClearCompletedTasks")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, task := range s.tasks {
		if task.IsCompleted() {
			delete(s.tasks, id)
			removed++
		}
	}

	span.SetAttributes(attribute.Int("task.removed", removed))
	return nil
}

func (s *MemoryDataSource) DeleteAllTasks(ctx context.Context) error {
	_, span := tracer.Start(ctx, "MemoryDataSource.DeleteAllTasks")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*model.Task)
	return nil
}

// DeleteTask removes a task from the store.
func (s *MemoryDataSource) DeleteTask(ctx context.Context, id string) error {
	_, span := tracer.Start(ctx, "MemoryDataSource.DeleteTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.ErrTaskNotFound
	}

	delete(s.tasks, id)
	span.SetAttributes(attribute.Bool("task.found", true))
	return nil
}

// Count returns the current number of tasks.
func (s *MemoryDataSource) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.tasks))
}
