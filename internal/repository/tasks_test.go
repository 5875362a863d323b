package repository

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskResult struct {
	task  *model.Task
	found bool
}

type taskRecorder struct {
	results chan taskResult
}

func newTaskRecorder() *taskRecorder {
	return &taskRecorder{results: make(chan taskResult, 1)}
}

func (r *taskRecorder) OnTaskLoaded(task *model.Task) { r.results <- taskResult{task: task, found: true} }
func (r *taskRecorder) OnDataNotAvailable()           { r.results <- taskResult{} }

type tasksRecorder struct {
	tasks chan []*model.Task
}

func newTasksRecorder() *tasksRecorder {
	return &tasksRecorder{tasks: make(chan []*model.Task, 1)}
}

func (r *tasksRecorder) OnTasksLoaded(tasks []*model.Task) { r.tasks <- tasks }
func (r *tasksRecorder) OnDataNotAvailable()               { r.tasks <- nil }

// countingDataSource counts reads and can be made to fail every call.
type countingDataSource struct {
	*MemoryDataSource
	gets int
	fail error
}

func (s *countingDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	s.gets++
	if s.fail != nil {
		return nil, s.fail
	}
	return s.MemoryDataSource.GetTask(ctx, id)
}

func (s *countingDataSource) SaveTask(ctx context.Context, task *model.Task) error {
	if s.fail != nil {
		return s.fail
	}
	return s.MemoryDataSource.SaveTask(ctx, task)
}

// blockingDataSource parks reads after they have hit the store until release
// is closed. read is signalled once the store has been read.
type blockingDataSource struct {
	*MemoryDataSource
	read    chan struct{}
	release chan struct{}
}

func newBlockingDataSource() *blockingDataSource {
	return &blockingDataSource{
		MemoryDataSource: NewMemoryDataSource(),
		read:             make(chan struct{}, 1),
		release:          make(chan struct{}),
	}
}

func (s *blockingDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.MemoryDataSource.GetTask(ctx, id)
	s.read <- struct{}{}
	<-s.release
	return task, err
}

func (s *blockingDataSource) GetTasks(ctx context.Context) ([]*model.Task, error) {
	tasks, err := s.MemoryDataSource.GetTasks(ctx)
	s.read <- struct{}{}
	<-s.release
	return tasks, err
}

func newRepo(local, remote TasksDataSource) *TasksRepository {
	return NewTasksRepository(local, remote, slog.New(slog.DiscardHandler))
}

func getTask(t *testing.T, repo *TasksRepository, id string) taskResult {
	t.Helper()
	rec := newTaskRecorder()
	repo.GetTask(context.Background(), id, rec)
	repo.Wait()
	return <-rec.results
}

func TestTasksRepository_GetTaskFromLocalThenCache(t *testing.T) {
	ctx := context.Background()
	local := &countingDataSource{MemoryDataSource: NewMemoryDataSource()}
	require.NoError(t, local.MemoryDataSource.SaveTask(ctx, model.NewTaskWithID("title", "desc", "abc")))
	repo := newRepo(local, nil)

	first := getTask(t, repo, "abc")
	require.True(t, first.found)
	assert.Equal(t, "title", first.task.Title())

	second := getTask(t, repo, "abc")
	require.True(t, second.found)
	assert.NotSame(t, first.task, second.task)
	assert.Equal(t, 1, local.gets)
	assert.Equal(t, int64(1), repo.Count())
}

func TestTasksRepository_GetTaskFallsBackToRemote(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	remote := NewMemoryDataSource()
	require.NoError(t, remote.SaveTask(ctx, model.NewTaskWithID("remote", "desc", "abc")))
	repo := newRepo(local, remote)

	res := getTask(t, repo, "abc")
	require.True(t, res.found)
	assert.Equal(t, "remote", res.task.Title())

	stored, err := local.GetTask(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "remote", stored.Title())
}

func TestTasksRepository_GetTaskNotAvailable(t *testing.T) {
	repo := newRepo(NewMemoryDataSource(), NewMemoryDataSource())

	res := getTask(t, repo, "missing")

	assert.False(t, res.found)
	assert.Nil(t, res.task)
}

func TestTasksRepository_MutatingLoadedTaskDoesNotTouchCache(t *testing.T) {
	repo := newRepo(NewMemoryDataSource(), nil)
	require.NoError(t, repo.SaveTask(context.Background(), model.NewTaskWithID("title", "desc", "abc")))

	res := getTask(t, repo, "abc")
	res.task.SetTitle("changed")

	again := getTask(t, repo, "abc")
	assert.Equal(t, "title", again.task.Title())
}

func TestTasksRepository_GetTasks(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	require.NoError(t, local.SaveTask(ctx, model.NewTaskWithID("a", "", "1")))
	require.NoError(t, local.SaveTask(ctx, model.NewTaskWithID("b", "", "2")))
	repo := newRepo(local, nil)

	rec := newTasksRecorder()
	repo.GetTasks(ctx, rec)
	repo.Wait()
	tasks := <-rec.tasks
	require.Len(t, tasks, 2)
	assert.Equal(t, "1", tasks[0].ID())

	// Second call is served inline from the cache.
	require.NoError(t, local.DeleteAllTasks(ctx))
	rec = newTasksRecorder()
	repo.GetTasks(ctx, rec)
	assert.Len(t, <-rec.tasks, 2)
}

func TestTasksRepository_GetTasksAfterSaveReadsLocal(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	require.NoError(t, local.SaveTask(ctx, model.NewTaskWithID("stored", "", "1")))
	repo := newRepo(local, nil)

	// A single cached task does not make the cache complete.
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithID("new", "", "2")))

	rec := newTasksRecorder()
	repo.GetTasks(ctx, rec)
	repo.Wait()
	assert.Len(t, <-rec.tasks, 2)
}

func TestTasksRepository_GetTasksEmptyLocalUsesRemote(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	remote := NewMemoryDataSource()
	require.NoError(t, remote.SaveTask(ctx, model.NewTaskWithID("a", "", "1")))
	repo := newRepo(local, remote)

	rec := newTasksRecorder()
	repo.GetTasks(ctx, rec)
	repo.Wait()

	assert.Len(t, <-rec.tasks, 1)
	assert.Equal(t, int64(1), local.Count())
}

func TestTasksRepository_RefreshReloadsFromRemote(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	remote := NewMemoryDataSource()
	require.NoError(t, local.SaveTask(ctx, model.NewTaskWithID("stale", "", "1")))
	require.NoError(t, remote.SaveTask(ctx, model.NewTaskWithID("fresh", "", "2")))
	repo := newRepo(local, remote)

	rec := newTasksRecorder()
	repo.GetTasks(ctx, rec)
	repo.Wait()
	tasks := <-rec.tasks
	require.Len(t, tasks, 1)
	assert.Equal(t, "stale", tasks[0].Title())

	repo.RefreshTasks()
	rec = newTasksRecorder()
	repo.GetTasks(ctx, rec)
	repo.Wait()
	tasks = <-rec.tasks
	require.Len(t, tasks, 1)
	assert.Equal(t, "fresh", tasks[0].Title())

	_, err := local.GetTask(ctx, "1")
	assert.ErrorIs(t, err, model.ErrTaskNotFound)
}

func TestTasksRepository_CompleteAndActivate(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	remote := NewMemoryDataSource()
	repo := newRepo(local, remote)
	task := model.NewTaskWithID("title", "desc", "abc")
	require.NoError(t, repo.SaveTask(ctx, task))

	require.NoError(t, repo.CompleteTask(ctx, task))
	for _, s := range []*MemoryDataSource{local, remote} {
		got, err := s.GetTask(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, got.IsCompleted())
	}
	assert.True(t, getTask(t, repo, "abc").task.IsCompleted())
	assert.False(t, task.IsCompleted(), "caller's task is not modified")

	require.NoError(t, repo.ActivateTask(ctx, task))
	assert.False(t, getTask(t, repo, "abc").task.IsCompleted())
}

func TestTasksRepository_CompleteUnknownTaskUpserts(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	repo := newRepo(local, nil)

	require.NoError(t, repo.CompleteTask(ctx, model.NewTaskWithID("title", "", "abc")))

	got, err := local.GetTask(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, got.IsCompleted())
}

func TestTasksRepository_DeleteTask(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(NewMemoryDataSource(), NewMemoryDataSource())
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithID("title", "", "abc")))

	require.NoError(t, repo.DeleteTask(ctx, "abc"))
	assert.NoError(t, repo.DeleteTask(ctx, "abc"))

	assert.False(t, getTask(t, repo, "abc").found)
	assert.Zero(t, repo.Count())
}

func TestTasksRepository_ClearCompletedTasks(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(NewMemoryDataSource(), nil)
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithIDAndCompletion("a", "", "1", true)))
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithID("b", "", "2")))

	require.NoError(t, repo.ClearCompletedTasks(ctx))

	assert.False(t, getTask(t, repo, "1").found)
	assert.True(t, getTask(t, repo, "2").found)
}

func TestTasksRepository_SaveReportsSourceErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	remote := &countingDataSource{MemoryDataSource: NewMemoryDataSource(), fail: boom}
	local := NewMemoryDataSource()
	repo := newRepo(local, remote)

	err := repo.SaveTask(ctx, model.NewTaskWithID("title", "", "abc"))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), local.Count())
	assert.Equal(t, int64(1), repo.Count())
}

func TestTasksRepository_DeleteAllTasks(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryDataSource()
	repo := newRepo(local, nil)
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithID("a", "", "1")))

	require.NoError(t, repo.DeleteAllTasks(ctx))

	assert.Zero(t, repo.Count())
	assert.Zero(t, local.Count())
}

func TestTasksRepository_DeleteDuringLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	local := newBlockingDataSource()
	require.NoError(t, local.MemoryDataSource.SaveTask(ctx, model.NewTaskWithID("title", "", "abc")))
	repo := newRepo(local, nil)

	rec := newTaskRecorder()
	repo.GetTask(ctx, "abc", rec)
	<-local.read
	require.NoError(t, repo.DeleteTask(ctx, "abc"))
	close(local.release)
	repo.Wait()
	assert.True(t, (<-rec.results).found)

	res := getTask(t, repo, "abc")
	assert.False(t, res.found)
	assert.Equal(t, int64(0), repo.Count())
}

func TestTasksRepository_SaveDuringListIsKept(t *testing.T) {
	ctx := context.Background()
	local := newBlockingDataSource()
	require.NoError(t, local.MemoryDataSource.SaveTask(ctx, model.NewTaskWithID("a", "", "1")))
	repo := newRepo(local, nil)

	rec := newTasksRecorder()
	repo.GetTasks(ctx, rec)
	<-local.read
	require.NoError(t, repo.SaveTask(ctx, model.NewTaskWithID("b", "", "2")))
	close(local.release)
	repo.Wait()
	assert.Len(t, <-rec.tasks, 1)

	rec = newTasksRecorder()
	repo.GetTasks(ctx, rec)
	<-local.read
	repo.Wait()
	assert.Len(t, <-rec.tasks, 2)
}
