package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/repository"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/taskdetail"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/telemetry"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/view"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/go-todo-mvp/internal/handler")

// TaskHandler handles HTTP requests for tasks. Single-task routes go through a
// task detail presenter with a per-request view.
type TaskHandler struct {
	repo    *repository.TasksRepository
	logger  *slog.Logger
	metrics *telemetry.Metrics
	timeout time.Duration
}

// NewTaskHandler creates a new TaskHandler. timeout bounds how long a request
// waits for the repository.
func NewTaskHandler(repo *repository.TasksRepository, logger *slog.Logger, metrics *telemetry.Metrics, timeout time.Duration) *TaskHandler {
	return &TaskHandler{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
	}
}

// Routes returns the chi router with task routes.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/refresh", h.Refresh)
	r.Delete("/completed", h.ClearCompleted)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/activate", h.Activate)
	r.Delete("/{id}", h.Delete)

	return r
}

type listResult struct {
	tasks []*model.Task
	ok    bool
}

type listCallback chan listResult

func (c listCallback) OnTasksLoaded(tasks []*model.Task) { c <- listResult{tasks: tasks, ok: true} }
func (c listCallback) OnDataNotAvailable()               { c <- listResult{} }

// List returns all tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "TaskHandler.List")
	defer span.End()

	h.logger.InfoContext(ctx, "listing all tasks")

	results := make(listCallback, 1)
	h.repo.GetTasks(ctx, results)

	var res listResult
	select {
	case res = <-results:
	case <-ctx.Done():
	}
	if !res.ok {
		if err := ctx.Err(); err != nil {
			h.logger.ErrorContext(ctx, "timed out listing tasks", slog.Any("error", err))
		} else {
			h.logger.ErrorContext(ctx, "tasks not available from any store")
		}
		h.respondError(w, http.StatusServiceUnavailable, "tasks not available")
		h.recordMetrics(ctx, "GET", "/api/v1/tasks", http.StatusServiceUnavailable, start)
		return
	}

	tasks := res.tasks
	if tasks == nil {
		tasks = []*model.Task{}
	}
	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	h.logger.InfoContext(ctx, "tasks listed", slog.Int("count", len(tasks)))

	h.respondJSON(w, http.StatusOK, tasks)
	h.recordMetrics(ctx, "GET", "/api/v1/tasks", http.StatusOK, start)
}

// Create adds a new task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.Create")
	defer span.End()

	var req model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.recordMetrics(ctx, "POST", "/api/v1/tasks", http.StatusBadRequest, start)
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.recordMetrics(ctx, "POST", "/api/v1/tasks", http.StatusBadRequest, start)
		return
	}

	task := req.NewTask()
	h.logger.InfoContext(ctx, "creating task", slog.String("id", task.ID()), slog.String("title", task.Title()))

	if err := h.repo.SaveTask(ctx, task); err != nil {
		h.logger.ErrorContext(ctx, "failed to create task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to create task")
		h.recordMetrics(ctx, "POST", "/api/v1/tasks", http.StatusInternalServerError, start)
		return
	}

	span.SetAttributes(attribute.String("task.id", task.ID()))
	h.logger.InfoContext(ctx, "task created", slog.String("id", task.ID()))

	h.respondJSON(w, http.StatusCreated, task)
	h.recordMetrics(ctx, "POST", "/api/v1/tasks", http.StatusCreated, start)
}

// GetByID returns a task by ID.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "TaskHandler.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "getting task", slog.String("id", id))

	_, v, task, ok := h.openTask(ctx, w, "GET", "/api/v1/tasks/{id}", id, start)
	if !ok {
		return
	}
	defer v.Close()

	h.logger.InfoContext(ctx, "task retrieved", slog.String("id", id))

	h.respondJSON(w, http.StatusOK, task)
	h.recordMetrics(ctx, "GET", "/api/v1/tasks/{id}", http.StatusOK, start)
}

// Update edits the title and description of a task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var req model.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.recordMetrics(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusBadRequest, start)
		return
	}

	h.logger.InfoContext(ctx, "updating task", slog.String("id", id))

	p, v, task, ok := h.openTask(ctx, w, "PUT", "/api/v1/tasks/{id}", id, start)
	if !ok {
		return
	}
	defer v.Close()

	title, description := req.Apply(task)
	if title == "" && description == "" {
		h.respondError(w, http.StatusBadRequest, model.ErrEmptyTask.Error())
		h.recordMetrics(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusBadRequest, start)
		return
	}
	if err := p.ChangeTask(ctx, title, description); err != nil {
		h.logger.ErrorContext(ctx, "failed to update task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to update task")
		h.recordMetrics(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusInternalServerError, start)
		return
	}

	h.logger.InfoContext(ctx, "task updated", slog.String("id", id))

	h.respondJSON(w, http.StatusOK, p.Task())
	h.recordMetrics(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusOK, start)
}

// Complete marks a task completed.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.completeChanged(w, r, true)
}

// Activate marks a task active.
func (h *TaskHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.completeChanged(w, r, false)
}

func (h *TaskHandler) completeChanged(w http.ResponseWriter, r *http.Request, checked bool) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	route, want := "/api/v1/tasks/{id}/activate", view.EventMarkedActive
	if checked {
		route, want = "/api/v1/tasks/{id}/complete", view.EventMarkedComplete
	}

	ctx, span := tracer.Start(ctx, "TaskHandler.CompleteChanged",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Bool("task.completed", checked),
		),
	)
	defer span.End()

	_, v, task, ok := h.openTask(ctx, w, "POST", route, id, start)
	if !ok {
		return
	}
	defer v.Close()

	v.Presenter().CompleteChanged(ctx, task, checked)
	ev, err := h.await(ctx, v)
	if err != nil || ev.Kind != want {
		h.logger.ErrorContext(ctx, "unexpected view update", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to update task")
		h.recordMetrics(ctx, "POST", route, http.StatusInternalServerError, start)
		return
	}

	h.logger.InfoContext(ctx, "task completion changed", slog.String("id", id), slog.Bool("completed", checked))

	h.respondJSON(w, http.StatusOK, task)
	h.recordMetrics(ctx, "POST", route, http.StatusOK, start)
}

// Delete removes a task. The deletion is confirmed without waiting for the
// stores, so the response is 204 even for unknown ids.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "TaskHandler.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "deleting task", slog.String("id", id))

	v := view.NewHTTP(ctx)
	defer v.Close()
	if _, err := taskdetail.NewPresenter(id, h.repo, v, h.logger); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.recordMetrics(ctx, "DELETE", "/api/v1/tasks/{id}", http.StatusBadRequest, start)
		return
	}

	// User intents reach the presenter through the view it registered with.
	v.Presenter().DeleteTask(ctx)
	if ev, err := h.await(ctx, v); err != nil || ev.Kind != view.EventDeleted {
		h.logger.ErrorContext(ctx, "unexpected view update", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to delete task")
		h.recordMetrics(ctx, "DELETE", "/api/v1/tasks/{id}", http.StatusInternalServerError, start)
		return
	}

	h.logger.InfoContext(ctx, "task deleted", slog.String("id", id))

	w.WriteHeader(http.StatusNoContent)
	h.recordMetrics(ctx, "DELETE", "/api/v1/tasks/{id}", http.StatusNoContent, start)
}

// ClearCompleted removes all completed tasks.
func (h *TaskHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.ClearCompleted")
	defer span.End()

	if err := h.repo.ClearCompletedTasks(ctx); err != nil {
		h.logger.ErrorContext(ctx, "failed to clear completed tasks", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to clear completed tasks")
		h.recordMetrics(ctx, "DELETE", "/api/v1/tasks/completed", http.StatusInternalServerError, start)
		return
	}

	h.logger.InfoContext(ctx, "completed tasks cleared")

	w.WriteHeader(http.StatusNoContent)
	h.recordMetrics(ctx, "DELETE", "/api/v1/tasks/completed", http.StatusNoContent, start)
}

// Refresh marks the task cache dirty so the next list reloads it.
func (h *TaskHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	h.repo.RefreshTasks()
	h.logger.InfoContext(r.Context(), "task cache marked dirty")

	w.WriteHeader(http.StatusAccepted)
	h.recordMetrics(r.Context(), "POST", "/api/v1/tasks/refresh", http.StatusAccepted, start)
}

// Health returns a health check response.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// openTask loads task id through a presenter bound to a fresh view. On failure
// it writes the response and returns ok=false.
func (h *TaskHandler) openTask(ctx context.Context, w http.ResponseWriter, method, route, id string, start time.Time) (*taskdetail.DetailPresenter, *view.HTTP, *model.Task, bool) {
	v := view.NewHTTP(ctx)
	p, err := taskdetail.NewPresenter(id, h.repo, v, h.logger)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.recordMetrics(ctx, method, route, http.StatusBadRequest, start)
		return nil, nil, nil, false
	}

	p.Start(ctx)
	ev, err := h.await(ctx, v)
	switch {
	case err != nil:
		v.Close()
		h.logger.ErrorContext(ctx, "timed out loading task", slog.String("id", id), slog.Any("error", err))
		h.respondError(w, http.StatusGatewayTimeout, "timed out loading task")
		h.recordMetrics(ctx, method, route, http.StatusGatewayTimeout, start)
		return nil, nil, nil, false
	case ev.Kind != view.EventTask:
		v.Close()
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.recordMetrics(ctx, method, route, http.StatusNotFound, start)
		return nil, nil, nil, false
	}
	return p, v, ev.Task, true
}

func (h *TaskHandler) await(ctx context.Context, v *view.HTTP) (view.Event, error) {
	ev, err := v.Await(ctx)
	if err != nil {
		return ev, err
	}
	h.metrics.ViewEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event.kind", string(ev.Kind))))
	return ev, nil
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *TaskHandler) recordMetrics(ctx context.Context, method, route string, status int, start time.Time) {
	duration := time.Since(start).Seconds()

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)

	h.metrics.RequestCounter.Add(ctx, 1, attrs)
	h.metrics.RequestDuration.Record(ctx, duration, attrs)
}
