package model

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed,omitempty"`
}

// UpdateTaskRequest represents the request body for editing a task.
// A nil field keeps the current value.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Validate checks if the CreateTaskRequest is valid.
func (r *CreateTaskRequest) Validate() error {
	if r.Title == "" && r.Description == "" {
		return ErrEmptyTask
	}
	return nil
}

// NewTask builds the task described by the request.
func (r *CreateTaskRequest) NewTask() *Task {
	return NewCompletedTask(r.Title, r.Description, r.Completed)
}

// Apply resolves the edited title and description against the task's current values.
func (r *UpdateTaskRequest) Apply(task *Task) (title, description string) {
	title, description = task.Title(), task.Description()
	if r.Title != nil {
		title = *r.Title
	}
	if r.Description != nil {
		description = *r.Description
	}
	return title, description
}

// TaskError represents a domain error for tasks.
type TaskError struct {
	Message string
}

func (e TaskError) Error() string {
	return e.Message
}

var (
	ErrTaskNotFound   = TaskError{Message: "task not found"}
	ErrEmptyTask      = TaskError{Message: "title or description is required"}
	ErrTaskIDRequired = TaskError{Message: "task id is required"}
	ErrTaskNotLoaded  = TaskError{Message: "task not loaded"}
)
