// Package taskdetail connects the detail view of a single task to the tasks
// repository.
package taskdetail

import (
	"context"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/repository"
)

// View renders one task and reports whether it can still take updates.
type View interface {
	SetPresenter(p Presenter)
	// IsActive reports whether the view can still be updated. Results that
	// arrive for an inactive view are dropped.
	IsActive() bool
	ShowTask(task *model.Task)
	ShowError()
	ShowTaskDeleted()
	ShowTaskMarkedComplete()
	ShowTaskMarkedActive()
}

// Presenter is the set of user actions a View routes back.
type Presenter interface {
	Start(ctx context.Context)
	GetTask(ctx context.Context)
	DeleteTask(ctx context.Context)
	CompleteChanged(ctx context.Context, task *model.Task, checked bool)
	ChangeTask(ctx context.Context, title, description string) error
}

// Repository is the data access the presenter needs.
// *repository.TasksRepository satisfies it.
type Repository interface {
	GetTask(ctx context.Context, id string, cb repository.GetTaskCallback)
	SaveTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, task *model.Task) error
	ActivateTask(ctx context.Context, task *model.Task) error
}
