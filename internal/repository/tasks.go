package repository

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GetTaskCallback receives the outcome of TasksRepository.GetTask. Exactly one
// method is called, possibly on another goroutine.
type GetTaskCallback interface {
	OnTaskLoaded(task *model.Task)
	OnDataNotAvailable()
}

// LoadTasksCallback receives the outcome of TasksRepository.GetTasks.
type LoadTasksCallback interface {
	OnTasksLoaded(tasks []*model.Task)
	OnDataNotAvailable()
}

// TasksRepository keeps an in-memory cache in front of a local and an
// optional remote data source.
//
// Reads prefer the cache, then local, then remote. Writes go to remote, then
// local, then the cache. Tasks handed to callers are copies of the cached ones.
// A load only fills the cache if no write happened while it was running.
type TasksRepository struct {
	local  TasksDataSource
	remote TasksDataSource
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*model.Task

	// complete is set once the cache holds every task.
	complete bool
	dirty    bool

	// gen counts writes; loads compare it before caching their result.
	gen uint64

	inflight sync.WaitGroup
}

// NewTasksRepository creates a repository. remote may be nil.
func NewTasksRepository(local, remote TasksDataSource, logger *slog.Logger) *TasksRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TasksRepository{
		local:  local,
		remote: remote,
		logger: logger,
	}
}

// GetTasks loads all tasks. A clean cache answers inline; otherwise loading
// happens on a new goroutine.
func (r *TasksRepository) GetTasks(ctx context.Context, cb LoadTasksCallback) {
	if tasks, ok := r.cachedTasks(); ok {
		cb.OnTasksLoaded(tasks)
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		tasks, err := r.loadTasks(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "tasks not available", slog.Any("error", err))
			cb.OnDataNotAvailable()
			return
		}
		cb.OnTasksLoaded(tasks)
	}()
}

func (r *TasksRepository) loadTasks(ctx context.Context) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TasksRepository.GetTasks")
	defer span.End()

	r.mu.RLock()
	dirty, gen := r.dirty, r.gen
	r.mu.RUnlock()

	if !dirty || r.remote == nil {
		tasks, err := r.local.GetTasks(ctx)
		if err == nil && (len(tasks) > 0 || r.remote == nil) {
			r.refreshCache(gen, tasks)
			span.SetAttributes(attribute.String("tasks.source", "local"))
			return r.copyAll(tasks), nil
		}
		if err != nil && r.remote == nil {
			return nil, err
		}
	}

	tasks, err := r.remote.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	if r.refreshCache(gen, tasks) {
		r.refreshLocal(ctx, tasks)
	}
	span.SetAttributes(attribute.String("tasks.source", "remote"))
	return r.copyAll(tasks), nil
}

// GetTask loads one task. A cache hit answers inline; otherwise local and then
// remote are queried on a new goroutine.
func (r *TasksRepository) GetTask(ctx context.Context, id string, cb GetTaskCallback) {
	if task, ok := r.cachedTask(id); ok {
		cb.OnTaskLoaded(task)
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		task, err := r.loadTask(ctx, id)
		if err != nil {
			r.logger.WarnContext(ctx, "task not available", slog.String("id", id), slog.Any("error", err))
			cb.OnDataNotAvailable()
			return
		}
		cb.OnTaskLoaded(task)
	}()
}

func (r *TasksRepository) loadTask(ctx context.Context, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TasksRepository.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	gen := r.generation()
	task, err := r.local.GetTask(ctx, id)
	if err == nil {
		r.cacheLoaded(gen, task)
		span.SetAttributes(attribute.String("task.source", "local"))
		return task.Clone(), nil
	}
	if r.remote == nil {
		return nil, err
	}

	task, err = r.remote.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.cacheLoaded(gen, task) {
		if err := r.local.SaveTask(ctx, task); err != nil {
			r.logger.WarnContext(ctx, "failed to store remote task locally", slog.String("id", id), slog.Any("error", err))
		}
	}
	span.SetAttributes(attribute.String("task.source", "remote"))
	return task.Clone(), nil
}

// SaveTask stores the task in every source. The cache is updated even when a
// source fails; the joined source errors are returned.
func (r *TasksRepository) SaveTask(ctx context.Context, task *model.Task) error {
	err := r.each(func(s TasksDataSource) error { return s.SaveTask(ctx, task) })
	r.cacheTask(task)
	return err
}

// CompleteTask marks the task completed in every source.
func (r *TasksRepository) CompleteTask(ctx context.Context, task *model.Task) error {
	return r.setCompleted(ctx, task, true)
}

// ActivateTask marks the task active in every source.
func (r *TasksRepository) ActivateTask(ctx context.Context, task *model.Task) error {
	return r.setCompleted(ctx, task, false)
}

func (r *TasksRepository) setCompleted(ctx context.Context, task *model.Task, completed bool) error {
	updated := task.Clone()
	updated.SetCompleted(completed)

	err := r.each(func(s TasksDataSource) error {
		var err error
		if completed {
			err = s.CompleteTask(ctx, task.ID())
		} else {
			err = s.ActivateTask(ctx, task.ID())
		}
		if errors.Is(err, model.ErrTaskNotFound) {
			return s.SaveTask(ctx, updated)
		}
		return err
	})
	r.cacheTask(updated)
	return err
}

// ClearCompletedTasks removes completed tasks everywhere.
func (r *TasksRepository) ClearCompletedTasks(ctx context.Context) error {
	err := r.each(func(s TasksDataSource) error { return s.ClearCompletedTasks(ctx) })

	r.mu.Lock()
	r.gen++
	for id, task := range r.cache {
		if task.IsCompleted() {
			delete(r.cache, id)
		}
	}
	r.mu.Unlock()
	return err
}

// DeleteAllTasks removes every task everywhere.
func (r *TasksRepository) DeleteAllTasks(ctx context.Context) error {
	err := r.each(func(s TasksDataSource) error { return s.DeleteAllTasks(ctx) })

	r.mu.Lock()
	r.gen++
	r.cache = make(map[string]*model.Task)
	r.complete = true
	r.mu.Unlock()
	return err
}

// DeleteTask removes the task everywhere. Deleting a missing task is not an error.
func (r *TasksRepository) DeleteTask(ctx context.Context, id string) error {
	err := r.each(func(s TasksDataSource) error {
		if err := s.DeleteTask(ctx, id); err != nil && !errors.Is(err, model.ErrTaskNotFound) {
			return err
		}
		return nil
	})

	r.mu.Lock()
	r.gen++
	delete(r.cache, id)
	r.mu.Unlock()
	return err
}

// RefreshTasks marks the cache dirty so the next GetTasks reloads from remote.
func (r *TasksRepository) RefreshTasks() {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// Count returns the number of cached tasks.
func (r *TasksRepository) Count() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.cache))
}

// Wait blocks until every in-flight load has delivered its callback.
func (r *TasksRepository) Wait() {
	r.inflight.Wait()
}

func (r *TasksRepository) each(fn func(TasksDataSource) error) error {
	var errs []error
	if r.remote != nil {
		if err := fn(r.remote); err != nil {
			errs = append(errs, err)
		}
	}
	if err := fn(r.local); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *TasksRepository) cachedTasks() ([]*model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.complete || r.dirty {
		return nil, false
	}
	tasks := make([]*model.Task, 0, len(r.cache))
	for _, task := range r.cache {
		tasks = append(tasks, task.Clone())
	}
	sortTasks(tasks)
	return tasks, true
}

func (r *TasksRepository) cachedTask(id string) (*model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.cache[id]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

func (r *TasksRepository) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// cacheTask records a written task.
func (r *TasksRepository) cacheTask(task *model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	if r.cache == nil {
		r.cache = make(map[string]*model.Task)
	}
	r.cache[task.ID()] = task.Clone()
}

// cacheLoaded records a task read at generation gen. It reports false and
// leaves the cache alone when a write has happened since.
func (r *TasksRepository) cacheLoaded(gen uint64, task *model.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		return false
	}
	if r.cache == nil {
		r.cache = make(map[string]*model.Task)
	}
	r.cache[task.ID()] = task.Clone()
	return true
}

// refreshCache replaces the cache with a full listing read at generation gen,
// unless a write has happened since.
func (r *TasksRepository) refreshCache(gen uint64, tasks []*model.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		return false
	}
	r.cache = make(map[string]*model.Task, len(tasks))
	for _, task := range tasks {
		r.cache[task.ID()] = task.Clone()
	}
	r.complete = true
	r.dirty = false
	return true
}

func (r *TasksRepository) refreshLocal(ctx context.Context, tasks []*model.Task) {
	if err := r.local.DeleteAllTasks(ctx); err != nil {
		r.logger.WarnContext(ctx, "failed to reset local tasks", slog.Any("error", err))
		return
	}
	for _, task := range tasks {
		if err := r.local.SaveTask(ctx, task); err != nil {
			r.logger.WarnContext(ctx, "failed to store task locally", slog.String("id", task.ID()), slog.Any("error", err))
		}
	}
}

func (r *TasksRepository) copyAll(tasks []*model.Task) []*model.Task {
	out := make([]*model.Task, len(tasks))
	for i, task := range tasks {
		out[i] = task.Clone()
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []*model.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID() < tasks[j].ID() })
}
