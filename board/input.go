package board

import (
	"slices"

	"github.com/fareidzulkifli/task-manager/domain"
)

// PointerAdapter feeds pointer gestures (press, hover, release) into a
// Coordinator.
type PointerAdapter struct {
	c    *Coordinator
	over string
}

// NewPointerAdapter wraps c.
func NewPointerAdapter(c *Coordinator) *PointerAdapter {
	return &PointerAdapter{c: c}
}

// Press starts dragging id. It reports false for ids that are not draggable.
func (a *PointerAdapter) Press(id string) bool {
	a.over = ""
	return a.c.DragStart(id)
}

// Hover records the drop target currently under the pointer. An empty id
// means the pointer is over nothing.
func (a *PointerAdapter) Hover(id string) {
	a.over = id
}

// Release drops the subject on the last hovered target.
func (a *PointerAdapter) Release() (Outcome, error) {
	_, subject := a.c.Dragging()
	ev := DragEvent{ActiveID: subject, OverID: a.over}
	a.over = ""
	return a.c.DragEnd(ev)
}

// Cancel abandons the gesture.
func (a *PointerAdapter) Cancel() {
	a.over = ""
	a.c.DragCancel()
}

// Key is a keyboard move command.
type Key string

const (
	KeyUp    Key = "ArrowUp"
	KeyDown  Key = "ArrowDown"
	KeyLeft  Key = "ArrowLeft"
	KeyRight Key = "ArrowRight"
)

// KeyboardAdapter turns arrow keys on a focused card or column into the same
// drop events a pointer would produce. Up and down move a task one slot in
// its column; left and right move a task to the neighbouring column, or a
// project one slot sideways.
type KeyboardAdapter struct {
	c *Coordinator
}

// NewKeyboardAdapter wraps c.
func NewKeyboardAdapter(c *Coordinator) *KeyboardAdapter {
	return &KeyboardAdapter{c: c}
}

// Target computes the drop event for pressing key with id focused. The event
// has an empty OverID when the key leads nowhere.
func (a *KeyboardAdapter) Target(id string, key Key) DragEvent {
	ev := DragEvent{ActiveID: id}
	st := a.c.State()
	projects := domain.ProjectIDs(st.Projects())
	if st.IsProject(id) {
		i := slices.Index(projects, id)
		ev.OverID = neighbour(projects, i, key, KeyLeft, KeyRight)
		return ev
	}
	t, ok := st.Task(id)
	if !ok {
		return ev
	}
	switch key {
	case KeyUp, KeyDown:
		column := domain.TaskIDs(st.TasksByProject(t.ProjectID))
		ev.OverID = neighbour(column, slices.Index(column, id), key, KeyUp, KeyDown)
	case KeyLeft, KeyRight:
		if p := neighbour(projects, slices.Index(projects, t.ProjectID), key, KeyLeft, KeyRight); p != "" {
			ev.OverID = ColumnID(p)
		}
	}
	return ev
}

// Press applies key to the focused id.
func (a *KeyboardAdapter) Press(id string, key Key) (Outcome, error) {
	return a.c.Drop(a.Target(id, key))
}

func neighbour(ids []string, i int, key, back, forward Key) string {
	if i < 0 {
		return ""
	}
	switch key {
	case back:
		i--
	case forward:
		i++
	default:
		return ""
	}
	if i < 0 || i >= len(ids) {
		return ""
	}
	return ids[i]
}
