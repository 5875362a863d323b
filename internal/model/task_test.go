package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask_Constructors(t *testing.T) {
	t1 := NewTask("pick up eggs", "from the store")
	assert.NotEmpty(t, t1.ID())
	assert.Equal(t, "pick up eggs", t1.Title())
	assert.Equal(t, "from the store", t1.Description())
	assert.False(t, t1.IsCompleted())

	t2 := NewTaskWithID("a", "b", "abc")
	assert.Equal(t, "abc", t2.ID())
	assert.False(t, t2.IsCompleted())

	t3 := NewCompletedTask("a", "b", true)
	assert.NotEmpty(t, t3.ID())
	assert.True(t, t3.IsCompleted())

	t4 := NewTaskWithIDAndCompletion("a", "b", "xyz", true)
	assert.Equal(t, "xyz", t4.ID())
	assert.True(t, t4.IsCompleted())
}

func TestNewTask_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		task := NewTask("x", "y")
		assert.False(t, seen[task.ID()])
		seen[task.ID()] = true

		completed := NewCompletedTask("x", "y", true)
		assert.False(t, seen[completed.ID()])
		seen[completed.ID()] = true
	}
}

func TestNewTask_EmptyIDGetsFreshID(t *testing.T) {
	withID := NewTaskWithID("a", "b", "")
	assert.NotEmpty(t, withID.ID())

	completed := NewTaskWithIDAndCompletion("a", "b", "", true)
	assert.NotEmpty(t, completed.ID())
	assert.NotEqual(t, withID.ID(), completed.ID())
}

func TestTask_TitleForList(t *testing.T) {
	tests := []struct {
		title, description, want string
	}{
		{"title", "desc", "title"},
		{"title", "", "title"},
		{"", "desc", "desc"},
		{"", "", ""},
	}
	for _, tt := range tests {
		task := NewTask(tt.title, tt.description)
		assert.Equal(t, tt.want, task.TitleForList(), "title=%q description=%q", tt.title, tt.description)
	}
}

func TestTask_IsEmpty(t *testing.T) {
	assert.True(t, NewTask("", "").IsEmpty())
	assert.False(t, NewTask("title", "").IsEmpty())
	assert.False(t, NewTask("", "desc").IsEmpty())
	assert.False(t, NewTask("title", "desc").IsEmpty())
}

func TestTask_IsActive(t *testing.T) {
	task := NewTask("a", "b")
	assert.True(t, task.IsActive())

	task.SetCompleted(true)
	assert.False(t, task.IsActive())
	assert.True(t, task.IsCompleted())
}

func TestTask_EqualIgnoresCompletion(t *testing.T) {
	active := NewTaskWithIDAndCompletion("a", "b", "id-1", false)
	done := NewTaskWithIDAndCompletion("a", "b", "id-1", true)

	assert.True(t, active.Equal(done))
	assert.Equal(t, active.Key(), done.Key())

	set := map[TaskKey]bool{active.Key(): true}
	assert.True(t, set[done.Key()])
}

func TestTask_EqualDiffers(t *testing.T) {
	base := NewTaskWithID("a", "b", "id-1")

	assert.False(t, base.Equal(NewTaskWithID("a", "b", "id-2")))
	assert.False(t, base.Equal(NewTaskWithID("x", "b", "id-1")))
	assert.False(t, base.Equal(NewTaskWithID("a", "x", "id-1")))
	assert.False(t, base.Equal(nil))
}

func TestTask_SetTitleNotifiesOnce(t *testing.T) {
	task := NewTask("old", "desc")

	var fields []Field
	task.Subscribe(func(got *Task, field Field) {
		assert.Same(t, task, got)
		fields = append(fields, field)
	})

	task.SetTitle("X")

	assert.Equal(t, "X", task.Title())
	assert.Equal(t, []Field{FieldTitle}, fields)
}

func TestTask_SetDescriptionNotifies(t *testing.T) {
	task := NewTask("title", "old")

	var fields []Field
	task.Subscribe(func(_ *Task, field Field) { fields = append(fields, field) })

	task.SetDescription("new")

	assert.Equal(t, "new", task.Description())
	assert.Equal(t, []Field{FieldDescription}, fields)
}

func TestTask_SetCompletedDoesNotNotify(t *testing.T) {
	task := NewTask("title", "desc")

	calls := 0
	task.Subscribe(func(*Task, Field) { calls++ })

	task.SetCompleted(true)

	assert.Zero(t, calls)
}

func TestTask_Unsubscribe(t *testing.T) {
	task := NewTask("title", "desc")

	var first, second int
	unsubscribe := task.Subscribe(func(*Task, Field) { first++ })
	task.Subscribe(func(*Task, Field) { second++ })

	task.SetTitle("one")
	unsubscribe()
	task.SetTitle("two")

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestTask_UnsubscribeDuringNotify(t *testing.T) {
	task := NewTask("title", "desc")

	calls := 0
	var unsubscribe func()
	unsubscribe = task.Subscribe(func(*Task, Field) {
		calls++
		unsubscribe()
	})

	task.SetTitle("one")
	task.SetTitle("two")

	assert.Equal(t, 1, calls)
}

func TestTask_CloneDropsObservers(t *testing.T) {
	task := NewTaskWithIDAndCompletion("a", "b", "id-1", true)
	calls := 0
	task.Subscribe(func(*Task, Field) { calls++ })

	clone := task.Clone()
	clone.SetTitle("changed")

	assert.Equal(t, "id-1", clone.ID())
	assert.True(t, clone.IsCompleted())
	assert.Equal(t, "a", task.Title())
	assert.Zero(t, calls)
}

func TestTask_JSON(t *testing.T) {
	task := NewTaskWithIDAndCompletion("a", "b", "id-1", true)

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id-1","title":"a","description":"b","completed":true}`, string(data))

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, task.Equal(&decoded))
	assert.True(t, decoded.IsCompleted())
}

func TestTask_JSONRequiresID(t *testing.T) {
	var decoded Task
	err := json.Unmarshal([]byte(`{"title":"a"}`), &decoded)
	assert.ErrorIs(t, err, ErrTaskIDRequired)
}

func TestTask_String(t *testing.T) {
	assert.Equal(t, "Task with title groceries", NewTask("groceries", "").String())
}

func TestCreateTaskRequest_Validate(t *testing.T) {
	assert.ErrorIs(t, (&CreateTaskRequest{}).Validate(), ErrEmptyTask)
	assert.NoError(t, (&CreateTaskRequest{Title: "a"}).Validate())
	assert.NoError(t, (&CreateTaskRequest{Description: "b"}).Validate())
}

func TestUpdateTaskRequest_Apply(t *testing.T) {
	task := NewTask("title", "desc")
	newTitle := "renamed"

	title, description := (&UpdateTaskRequest{Title: &newTitle}).Apply(task)

	assert.Equal(t, "renamed", title)
	assert.Equal(t, "desc", description)
}
