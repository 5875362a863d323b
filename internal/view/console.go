package view

import (
	"fmt"
	"io"
	"sync"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/taskdetail"
)

// Console renders the task detail as text. While a task is shown the view is
// bound to it: a title or description change re-renders the task.
type Console struct {
	mu          sync.Mutex
	w           io.Writer
	active      bool
	presenter   taskdetail.Presenter
	unsubscribe func()
}

// NewConsole returns an active view writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, active: true}
}

func (v *Console) SetPresenter(p taskdetail.Presenter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.presenter = p
}

// Presenter returns the presenter registered with the view.
func (v *Console) Presenter() taskdetail.Presenter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.presenter
}

func (v *Console) IsActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *Console) ShowTask(task *model.Task) {
	v.mu.Lock()
	if v.unsubscribe != nil {
		v.unsubscribe()
	}
	v.render(task)
	v.mu.Unlock()

	unsubscribe := task.Subscribe(func(t *model.Task, field model.Field) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if !v.active {
			return
		}
		fmt.Fprintf(v.w, "(%s changed)\n", field)
		v.render(t)
	})

	v.mu.Lock()
	v.unsubscribe = unsubscribe
	v.mu.Unlock()
}

func (v *Console) ShowError() {
	v.println("No data")
}

func (v *Console) ShowTaskDeleted() {
	v.println("Task deleted")
}

func (v *Console) ShowTaskMarkedComplete() {
	v.println("Task marked complete")
}

func (v *Console) ShowTaskMarkedActive() {
	v.println("Task marked active")
}

// Detach deactivates the view and stops following the shown task.
func (v *Console) Detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = false
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}

func (v *Console) println(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.w, msg)
}

// render must be called with mu held.
func (v *Console) render(task *model.Task) {
	fmt.Fprintf(v.w, "%s %s\n", checkbox(task), task.Title())
	if task.Description() != "" {
		fmt.Fprintf(v.w, "    %s\n", task.Description())
	}
	fmt.Fprintf(v.w, "    id: %s\n", task.ID())
}

// RenderList writes one line per task using its list title.
func RenderList(w io.Writer, tasks []*model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "You have no tasks!")
		return
	}
	for _, task := range tasks {
		fmt.Fprintf(w, "%s %s  (%s)\n", checkbox(task), task.TitleForList(), task.ID())
	}
}

func checkbox(task *model.Task) string {
	if task.IsCompleted() {
		return "[x]"
	}
	return "[ ]"
}
