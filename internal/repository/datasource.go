package repository

import (
	"context"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/go-todo-mvp/internal/repository")

// TasksDataSource is a store of tasks. Implementations keep their own copies:
// a task passed in or returned is never shared with the store.
type TasksDataSource interface {
	GetTasks(ctx context.Context) ([]*model.Task, error)
	// GetTask returns model.ErrTaskNotFound when no task has the id.
	GetTask(ctx context.Context, id string) (*model.Task, error)
	SaveTask(ctx context.Context, task *model.Task) error
	CompleteTask(ctx context.Context, id string) error
	ActivateTask(ctx context.Context, id string) error
	ClearCompletedTasks(ctx context.Context) error
	DeleteAllTasks(ctx context.Context) error
	DeleteTask(ctx context.Context, id string) error
}
