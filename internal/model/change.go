package model

// Field identifies an observable task field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
)

// ChangeFunc is called with the task and the field that was overwritten.
type ChangeFunc func(task *Task, field Field)

type changeEntry struct {
	id uint64
	fn ChangeFunc
}

// changeRegistry keeps observers in subscription order. It has no locking;
// a task and its observers belong to a single goroutine.
type changeRegistry struct {
	next    uint64
	entries []changeEntry
}

func (r *changeRegistry) add(fn ChangeFunc) func() {
	r.next++
	id := r.next
	r.entries = append(r.entries, changeEntry{id: id, fn: fn})
	return func() { r.remove(id) }
}

func (r *changeRegistry) remove(id uint64) {
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *changeRegistry) notify(task *Task, field Field) {
	// Snapshot so an observer may unsubscribe while being notified.
	entries := append([]changeEntry(nil), r.entries...)
	for _, e := range entries {
		e.fn(task, field)
	}
}
