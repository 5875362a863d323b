// Package view holds the task detail views: one per surface the service
// exposes.
package view

import (
	"context"
	"sync/atomic"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/taskdetail"
)

// EventKind names what the presenter asked the view to show.
type EventKind string

const (
	EventTask           EventKind = "task"
	EventError          EventKind = "error"
	EventDeleted        EventKind = "deleted"
	EventMarkedComplete EventKind = "marked_complete"
	EventMarkedActive   EventKind = "marked_active"
)

// Event is one update pushed by the presenter. Task is set for EventTask only.
type Event struct {
	Kind EventKind
	Task *model.Task
}

// HTTP is a view bound to one HTTP request. It is active while the request
// context is live and until Close is called. Updates are queued and read with
// Await.
type HTTP struct {
	ctx       context.Context
	events    chan Event
	closed    atomic.Bool
	presenter taskdetail.Presenter
}

// NewHTTP returns a view tied to the request context ctx.
func NewHTTP(ctx context.Context) *HTTP {
	return &HTTP{
		ctx:    ctx,
		events: make(chan Event, 8),
	}
}

func (v *HTTP) SetPresenter(p taskdetail.Presenter) {
	v.presenter = p
}

// Presenter returns the presenter registered with the view.
func (v *HTTP) Presenter() taskdetail.Presenter {
	return v.presenter
}

func (v *HTTP) IsActive() bool {
	return !v.closed.Load() && v.ctx.Err() == nil
}

func (v *HTTP) ShowTask(task *model.Task) { v.emit(Event{Kind: EventTask, Task: task}) }
func (v *HTTP) ShowError()                { v.emit(Event{Kind: EventError}) }
func (v *HTTP) ShowTaskDeleted()          { v.emit(Event{Kind: EventDeleted}) }
func (v *HTTP) ShowTaskMarkedComplete()   { v.emit(Event{Kind: EventMarkedComplete}) }
func (v *HTTP) ShowTaskMarkedActive()     { v.emit(Event{Kind: EventMarkedActive}) }

// Await returns the next update, or ctx's error if it ends first.
func (v *HTTP) Await(ctx context.Context) (Event, error) {
	select {
	case ev := <-v.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close deactivates the view. Results still in flight are dropped.
func (v *HTTP) Close() {
	v.closed.Store(true)
}

func (v *HTTP) emit(ev Event) {
	if v.closed.Load() {
		return
	}
	select {
	case v.events <- ev:
	default:
		// Nobody is reading; the response has already been decided.
	}
}
