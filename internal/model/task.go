package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Task represents a todo item in the system.
//
// The id is fixed at construction. Title and description may be changed in
// place; each change is reported to the task's observers.
type Task struct {
	id          string
	title       string
	description string
	completed   bool

	observers changeRegistry
}

// NewTask creates a new active task with a fresh id.
func NewTask(title, description string) *Task {
	return NewTaskWithIDAndCompletion(title, description, uuid.New().String(), false)
}

// NewTaskWithID creates an active task that reuses an existing id, typically a
// copy of another task. An empty id is replaced by a fresh one.
func NewTaskWithID(title, description, id string) *Task {
	return NewTaskWithIDAndCompletion(title, description, id, false)
}

// NewCompletedTask creates a task with a fresh id and the given completion state.
func NewCompletedTask(title, description string, completed bool) *Task {
	return NewTaskWithIDAndCompletion(title, description, uuid.New().String(), completed)
}

// NewTaskWithIDAndCompletion creates a task with an existing id and the given
// completion state. An empty id is replaced by a fresh one.
func NewTaskWithIDAndCompletion(title, description, id string, completed bool) *Task {
	if id == "" {
		id = uuid.New().String()
	}
	return &Task{
		id:          id,
		title:       title,
		description: description,
		completed:   completed,
	}
}

func (t *Task) ID() string {
	return t.id
}

func (t *Task) Title() string {
	return t.title
}

func (t *Task) Description() string {
	return t.description
}

// SetTitle overwrites the title and notifies observers of FieldTitle.
func (t *Task) SetTitle(title string) {
	t.title = title
	t.observers.notify(t, FieldTitle)
}

// SetDescription overwrites the description and notifies observers of
// FieldDescription.
func (t *Task) SetDescription(description string) {
	t.description = description
	t.observers.notify(t, FieldDescription)
}

func (t *Task) IsCompleted() bool {
	return t.completed
}

// SetCompleted changes the completion flag. Unlike the text fields it does not
// notify observers.
func (t *Task) SetCompleted(completed bool) {
	t.completed = completed
}

func (t *Task) IsActive() bool {
	return !t.completed
}

// TitleForList returns the title, or the description when the title is empty.
func (t *Task) TitleForList() string {
	if t.title != "" {
		return t.title
	}
	return t.description
}

// IsEmpty reports whether both title and description are empty.
func (t *Task) IsEmpty() bool {
	return t.title == "" && t.description == ""
}

// Subscribe registers fn to be called after every title or description change.
// The returned func removes the registration.
func (t *Task) Subscribe(fn ChangeFunc) (unsubscribe func()) {
	return t.observers.add(fn)
}

// TaskKey is the comparable identity of a task: id, title and description.
// The completion flag is deliberately not part of it.
type TaskKey struct {
	ID          string
	Title       string
	Description string
}

// Key returns the value used for equality and map lookups.
func (t *Task) Key() TaskKey {
	return TaskKey{ID: t.id, Title: t.title, Description: t.description}
}

// Equal reports whether both tasks share id, title and description.
func (t *Task) Equal(other *Task) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return t.Key() == other.Key()
}

// Clone returns a copy with the same fields and no observers.
func (t *Task) Clone() *Task {
	return NewTaskWithIDAndCompletion(t.title, t.description, t.id, t.completed)
}

func (t *Task) String() string {
	return "Task with title " + t.title
}

type taskJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID:          t.id,
		Title:       t.title,
		Description: t.description,
		Completed:   t.completed,
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var v taskJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.ID == "" {
		return ErrTaskIDRequired
	}
	t.id = v.ID
	t.title = v.Title
	t.description = v.Description
	t.completed = v.Completed
	return nil
}
