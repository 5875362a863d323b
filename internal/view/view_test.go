package view

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/repository"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/taskdetail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ taskdetail.View = (*HTTP)(nil)
	_ taskdetail.View = (*Console)(nil)
)

func TestHTTP_ActiveFollowsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v := NewHTTP(ctx)

	assert.True(t, v.IsActive())
	cancel()
	assert.False(t, v.IsActive())
}

func TestHTTP_CloseDeactivates(t *testing.T) {
	v := NewHTTP(context.Background())

	v.Close()
	v.ShowError()

	assert.False(t, v.IsActive())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := v.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTP_AwaitReturnsEventsInOrder(t *testing.T) {
	v := NewHTTP(context.Background())
	task := model.NewTask("title", "desc")

	v.ShowTask(task)
	v.ShowTaskMarkedComplete()

	ev, err := v.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventTask, ev.Kind)
	assert.Same(t, task, ev.Task)

	ev, err = v.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventMarkedComplete, ev.Kind)
}

func TestHTTP_EmitDoesNotBlockWhenFull(t *testing.T) {
	v := NewHTTP(context.Background())

	for range 20 {
		v.ShowError()
	}

	assert.Len(t, v.events, cap(v.events))
}

func TestConsole_ShowTask(t *testing.T) {
	var buf bytes.Buffer
	v := NewConsole(&buf)

	v.ShowTask(model.NewTaskWithIDAndCompletion("groceries", "milk", "abc", true))

	assert.Equal(t, "[x] groceries\n    milk\n    id: abc\n", buf.String())
}

func TestConsole_RerendersOnChange(t *testing.T) {
	var buf bytes.Buffer
	v := NewConsole(&buf)
	task := model.NewTaskWithID("old", "", "abc")
	v.ShowTask(task)
	buf.Reset()

	task.SetTitle("new")

	assert.Equal(t, "(title changed)\n[ ] new\n    id: abc\n", buf.String())
}

func TestConsole_DetachStopsRendering(t *testing.T) {
	var buf bytes.Buffer
	v := NewConsole(&buf)
	task := model.NewTaskWithID("old", "", "abc")
	v.ShowTask(task)
	buf.Reset()

	v.Detach()
	task.SetTitle("new")

	assert.False(t, v.IsActive())
	assert.Empty(t, buf.String())
}

func TestConsole_ShowingAnotherTaskDropsOldBinding(t *testing.T) {
	var buf bytes.Buffer
	v := NewConsole(&buf)
	first := model.NewTaskWithID("first", "", "1")
	v.ShowTask(first)
	v.ShowTask(model.NewTaskWithID("second", "", "2"))
	buf.Reset()

	first.SetTitle("changed")

	assert.Empty(t, buf.String())
}

func TestConsole_Messages(t *testing.T) {
	var buf bytes.Buffer
	v := NewConsole(&buf)

	v.ShowError()
	v.ShowTaskDeleted()
	v.ShowTaskMarkedComplete()
	v.ShowTaskMarkedActive()

	assert.Equal(t, "No data\nTask deleted\nTask marked complete\nTask marked active\n", buf.String())
}

func TestRenderList(t *testing.T) {
	var buf bytes.Buffer

	RenderList(&buf, []*model.Task{
		model.NewTaskWithID("", "only description", "1"),
		model.NewTaskWithIDAndCompletion("title", "", "2", true),
	})

	assert.Equal(t, "[ ] only description  (1)\n[x] title  (2)\n", buf.String())

	buf.Reset()
	RenderList(&buf, nil)
	assert.Equal(t, "You have no tasks!\n", buf.String())
}

func TestViews_PresenterRoutesActions(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTasksRepository(repository.NewMemoryDataSource(), nil, slog.New(slog.DiscardHandler))
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithID("title", "", "abc")))

	var out bytes.Buffer
	console := NewConsole(&out)
	p, err := taskdetail.NewPresenter("abc", repo, console, nil)
	require.NoError(t, err)
	assert.Same(t, p, console.Presenter())

	console.Presenter().DeleteTask(ctx)
	assert.Equal(t, "Task deleted\n", out.String())

	v := NewHTTP(ctx)
	defer v.Close()
	p, err = taskdetail.NewPresenter("abc", repo, v, nil)
	require.NoError(t, err)
	assert.Same(t, p, v.Presenter())

	v.Presenter().DeleteTask(ctx)
	ev, err := v.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventDeleted, ev.Kind)
}
