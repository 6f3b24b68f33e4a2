package board

import (
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/fareidzulkifli/task-manager/domain"
)

// ColumnPrefix marks the drop target of a project's task list, used when
// the column has no task to drop onto.
const ColumnPrefix = "col:"

// ColumnID returns the column drop target id of a project.
func ColumnID(projectID string) string { return ColumnPrefix + projectID }

// SubjectKind is what a drag is carrying.
type SubjectKind int

const (
	SubjectNone SubjectKind = iota
	SubjectProject
	SubjectTask
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectProject:
		return "project"
	case SubjectTask:
		return "task"
	}
	return "none"
}

// Intent is the board operation a drop resolved to.
type Intent string

const (
	IntentNone            Intent = "none"
	IntentReorderProjects Intent = "reorder-projects"
	IntentReorderTasks    Intent = "reorder-tasks"
	IntentMoveTask        Intent = "move-task"
)

// DragEvent is the input-independent description of a drop. An empty
// OverID means the subject was released over nothing.
type DragEvent struct {
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId,omitempty"`
}

// Outcome reports what a drop did.
type Outcome struct {
	Intent  Intent
	Patches int
}

// Coordinator turns drag gestures into board mutations followed by PATCHes.
// It holds the drag state machine (idle, or dragging one subject) and must
// be used from the goroutine that owns its State.
type Coordinator struct {
	state   *State
	persist Persister
	log     *log.Logger

	kind    SubjectKind
	subject string
}

// NewCoordinator binds a coordinator to a state and a persister.
func NewCoordinator(state *State, persist Persister, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{state: state, persist: persist, log: logger}
}

// State returns the board the coordinator drives.
func (c *Coordinator) State() *State { return c.state }

// Dragging reports the current subject, or SubjectNone when idle.
func (c *Coordinator) Dragging() (SubjectKind, string) { return c.kind, c.subject }

// DragStart classifies id and enters the dragging state. Unknown ids keep
// the coordinator idle and return false.
func (c *Coordinator) DragStart(id string) bool {
	c.kind, c.subject = SubjectNone, ""
	switch {
	case c.state.IsProject(id):
		c.kind = SubjectProject
	case c.state.IsTask(id):
		c.kind = SubjectTask
	default:
		return false
	}
	c.subject = id
	return true
}

// DragCancel returns to idle without touching the board.
func (c *Coordinator) DragCancel() {
	c.kind, c.subject = SubjectNone, ""
}

// DragEnd applies a drop and returns to idle. A drop that cannot be
// resolved returns a *domain.ClassificationFailure and changes nothing;
// callers treat it as a cancelled drag. A drop on nothing or on the subject
// itself is a no-op.
func (c *Coordinator) DragEnd(ev DragEvent) (Outcome, error) {
	defer c.DragCancel()
	none := Outcome{Intent: IntentNone}
	if c.kind == SubjectNone || ev.ActiveID != c.subject {
		return none, &domain.ClassificationFailure{ActiveID: ev.ActiveID, OverID: ev.OverID}
	}
	if ev.OverID == "" || ev.OverID == ev.ActiveID {
		return none, nil
	}
	if c.state.IsProject(ev.ActiveID) {
		return c.reorderProjects(ev)
	}
	if !c.state.IsTask(ev.ActiveID) {
		return none, &domain.ClassificationFailure{ActiveID: ev.ActiveID, OverID: ev.OverID}
	}
	return c.dropTask(ev)
}

// Drop runs a full gesture: start on ev.ActiveID, then end with ev.
func (c *Coordinator) Drop(ev DragEvent) (Outcome, error) {
	if !c.DragStart(ev.ActiveID) {
		return Outcome{Intent: IntentNone}, &domain.ClassificationFailure{ActiveID: ev.ActiveID, OverID: ev.OverID}
	}
	return c.DragEnd(ev)
}

func (c *Coordinator) reorderProjects(ev DragEvent) (Outcome, error) {
	overProject, ok := c.containerOf(ev.OverID)
	if !ok {
		return Outcome{Intent: IntentNone}, &domain.ClassificationFailure{ActiveID: ev.ActiveID, OverID: ev.OverID}
	}
	ids := domain.ProjectIDs(c.state.Projects())
	from, to := slices.Index(ids, ev.ActiveID), slices.Index(ids, overProject)
	if from == to {
		return Outcome{Intent: IntentNone}, nil
	}
	next := domain.ArrayMove(ids, from, to)
	if err := c.state.ReorderProjects(next); err != nil {
		return Outcome{Intent: IntentNone}, err
	}
	for i, id := range next {
		c.persist.PatchProject(id, domain.ProjectOrderPatch(i))
	}
	c.log.WithFields(log.Fields{"project": ev.ActiveID, "from": from, "to": to}).Debug("projects reordered")
	return Outcome{Intent: IntentReorderProjects, Patches: len(next)}, nil
}

func (c *Coordinator) dropTask(ev DragEvent) (Outcome, error) {
	none := Outcome{Intent: IntentNone}
	active, _ := c.state.Task(ev.ActiveID)
	src := active.ProjectID
	dest, ok := c.containerOf(ev.OverID)
	if !ok {
		return none, &domain.ClassificationFailure{ActiveID: ev.ActiveID, OverID: ev.OverID}
	}

	if src != dest {
		if err := c.state.MoveTaskToProject(ev.ActiveID, dest); err != nil {
			return none, err
		}
		moved, _ := c.state.Task(ev.ActiveID)
		c.persist.PatchTask(moved.ID, domain.MovePatch(dest, moved.OrderIndex))
		c.log.WithFields(log.Fields{"task": moved.ID, "from": src, "to": dest}).Debug("task moved")
		return Outcome{Intent: IntentMoveTask, Patches: 1}, nil
	}

	ids := domain.TaskIDs(c.state.TasksByProject(src))
	from, to := slices.Index(ids, ev.ActiveID), slices.Index(ids, ev.OverID)
	if from < 0 || to < 0 || from == to {
		return none, nil
	}
	next := domain.ArrayMove(ids, from, to)
	if err := c.state.ReorderTasksWithinProject(src, next); err != nil {
		return none, err
	}
	for i, id := range next {
		c.persist.PatchTask(id, domain.OrderPatch(i))
	}
	c.log.WithFields(log.Fields{"task": ev.ActiveID, "project": src, "from": from, "to": to}).Debug("tasks reordered")
	return Outcome{Intent: IntentReorderTasks, Patches: len(next)}, nil
}

// containerOf resolves a drop target to a project id: a task resolves to
// its project, a project to itself and a column marker to the project it
// names.
func (c *Coordinator) containerOf(overID string) (string, bool) {
	if t, ok := c.state.Task(overID); ok {
		return t.ProjectID, true
	}
	if c.state.IsProject(overID) {
		return overID, true
	}
	if pid, ok := strings.CutPrefix(overID, ColumnPrefix); ok && c.state.IsProject(pid) {
		return pid, true
	}
	return "", false
}
