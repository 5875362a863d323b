package taskdetail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/go-todo-mvp/internal/taskdetail")

// DetailPresenter listens to user actions from a View, loads the task from the
// repository and updates the view.
//
// Loads are tagged: when GetTask is called again before an earlier load has
// delivered, the earlier result is discarded.
//
// Completion changes are applied to the task before the repository is called,
// and are not rolled back when the repository fails.
type DetailPresenter struct {
	taskID string
	repo   Repository
	view   View
	logger *slog.Logger

	mu     sync.Mutex
	task   *model.Task
	latest uint64
}

// NewPresenter binds taskID to the repository and view, and registers the
// presenter with the view before returning.
func NewPresenter(taskID string, repo Repository, view View, logger *slog.Logger) (*DetailPresenter, error) {
	if taskID == "" {
		return nil, model.ErrTaskIDRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &DetailPresenter{
		taskID: taskID,
		repo:   repo,
		view:   view,
		logger: logger.With(slog.String("task_id", taskID)),
	}
	view.SetPresenter(p)
	return p, nil
}

// Start loads the task. Every call issues a new load.
func (p *DetailPresenter) Start(ctx context.Context) {
	p.GetTask(ctx)
}

// GetTask requests the task from the repository. The view is updated when the
// result arrives, if it is still active and no newer load has been issued.
func (p *DetailPresenter) GetTask(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "DetailPresenter.GetTask",
		trace.WithAttributes(attribute.String("task.id", p.taskID)),
	)
	defer span.End()

	p.mu.Lock()
	p.latest++
	seq := p.latest
	p.mu.Unlock()

	span.SetAttributes(attribute.Int64("request.seq", int64(seq)))
	p.repo.GetTask(ctx, p.taskID, &loadCallback{ctx: ctx, p: p, seq: seq})
}

// Task returns the last task delivered to the presenter, or nil.
func (p *DetailPresenter) Task() *model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task
}

// DeleteTask deletes the task and confirms the deletion to the view without
// waiting for the outcome.
func (p *DetailPresenter) DeleteTask(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "DetailPresenter.DeleteTask",
		trace.WithAttributes(attribute.String("task.id", p.taskID)),
	)
	defer span.End()

	if err := p.repo.DeleteTask(ctx, p.taskID); err != nil {
		p.logger.WarnContext(ctx, "failed to delete task", slog.Any("error", err))
	}
	p.view.ShowTaskDeleted()
}

// CompleteChanged sets the task's completion flag, then persists it and
// confirms to the view.
func (p *DetailPresenter) CompleteChanged(ctx context.Context, task *model.Task, checked bool) {
	ctx, span := tracer.Start(ctx, "DetailPresenter.CompleteChanged",
		trace.WithAttributes(
			attribute.String("task.id", task.ID()),
			attribute.Bool("task.completed", checked),
		),
	)
	defer span.End()

	task.SetCompleted(checked)
	if checked {
		if err := p.repo.CompleteTask(ctx, task); err != nil {
			p.logger.WarnContext(ctx, "failed to mark task complete", slog.Any("error", err))
		}
		p.view.ShowTaskMarkedComplete()
		return
	}
	if err := p.repo.ActivateTask(ctx, task); err != nil {
		p.logger.WarnContext(ctx, "failed to mark task active", slog.Any("error", err))
	}
	p.view.ShowTaskMarkedActive()
}

// ChangeTask edits the loaded task in place. Observers of the task see the
// changes; the view is not asked to show the task again.
func (p *DetailPresenter) ChangeTask(ctx context.Context, title, description string) error {
	ctx, span := tracer.Start(ctx, "DetailPresenter.ChangeTask",
		trace.WithAttributes(attribute.String("task.id", p.taskID)),
	)
	defer span.End()

	task := p.Task()
	if task == nil {
		return model.ErrTaskNotLoaded
	}

	task.SetDescription(description)
	task.SetTitle(title)

	if err := p.repo.SaveTask(ctx, task); err != nil {
		p.logger.WarnContext(ctx, "failed to save task", slog.Any("error", err))
	}
	return nil
}

// accept records task as the current one if seq is the latest load.
func (p *DetailPresenter) accept(seq uint64, task *model.Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq != p.latest {
		return false
	}
	p.task = task
	return true
}

func (p *DetailPresenter) isLatest(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return seq == p.latest
}

type loadCallback struct {
	ctx context.Context
	p   *DetailPresenter
	seq uint64
}

func (c *loadCallback) OnTaskLoaded(task *model.Task) {
	if !c.p.accept(c.seq, task) {
		c.p.logger.DebugContext(c.ctx, "discarding stale task result")
		return
	}
	// The view may not be able to handle updates anymore.
	if !c.p.view.IsActive() {
		return
	}
	if task == nil {
		c.p.view.ShowError()
		return
	}
	c.p.view.ShowTask(task)
}

func (c *loadCallback) OnDataNotAvailable() {
	if !c.p.isLatest(c.seq) {
		c.p.logger.DebugContext(c.ctx, "discarding stale not-available result")
		return
	}
	if !c.p.view.IsActive() {
		return
	}
	c.p.view.ShowError()
}
