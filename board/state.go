package board

import (
	"slices"
	"time"

	"github.com/fareidzulkifli/task-manager/domain"
)

// ChangeKind identifies the local mutation behind a Change.
type ChangeKind string

const (
	ChangeTaskPatched       ChangeKind = "task-patched"
	ChangeTasksReordered    ChangeKind = "tasks-reordered"
	ChangeTaskMoved         ChangeKind = "task-moved"
	ChangeProjectsReordered ChangeKind = "projects-reordered"
	ChangeTaskAdded         ChangeKind = "task-added"
	ChangeTaskRemoved       ChangeKind = "task-removed"
	ChangeProjectAdded      ChangeKind = "project-added"
	ChangeProjectRemoved    ChangeKind = "project-removed"
	ChangeProjectPatched    ChangeKind = "project-patched"
	ChangeOrgPatched        ChangeKind = "org-patched"
)

// Change is published after every successful local mutation.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	OrgID      string     `json:"orgId"`
	ProjectIDs []string   `json:"projectIds,omitempty"`
	TaskIDs    []string   `json:"taskIds,omitempty"`
}

// State is the in-memory mirror of one organization's projects and tasks.
//
// State is not safe for concurrent use. All reads and mutations of a State
// happen on the goroutine that owns it (see Session). Mutations are
// synchronous and either apply completely or, on a ValidationError, not at
// all.
type State struct {
	org      domain.Organization
	projects []domain.Project
	tasks    []domain.Task
	changes  *broker[Change]
	now      func() time.Time
}

// NewState builds a State from freshly loaded records. Sibling groups are
// taken as given; their ascending order_index defines display order.
func NewState(org domain.Organization, projects []domain.Project, tasks []domain.Task) *State {
	return &State{
		org:      org,
		projects: domain.SortProjects(projects),
		tasks:    slices.Clone(tasks),
		changes:  newBroker[Change](),
		now:      time.Now,
	}
}

// Subscribe registers for change notifications. buffer bounds how many
// undelivered changes a slow subscriber may hold before missing some.
func (s *State) Subscribe(buffer int) *Subscription[Change] {
	return s.changes.subscribe(buffer)
}

func (s *State) notify(c Change) {
	c.OrgID = s.org.ID
	s.changes.publish(c)
}

// Organization returns the loaded organization.
func (s *State) Organization() domain.Organization { return s.org }

// Projects returns the projects in display order.
func (s *State) Projects() []domain.Project {
	return domain.SortProjects(s.projects)
}

// Tasks returns a copy of every loaded task.
func (s *State) Tasks() []domain.Task {
	return slices.Clone(s.tasks)
}

// Project looks up a project by id.
func (s *State) Project(id string) (domain.Project, bool) {
	if i := s.projectIndex(id); i >= 0 {
		return s.projects[i], true
	}
	return domain.Project{}, false
}

// Task looks up a task by id.
func (s *State) Task(id string) (domain.Task, bool) {
	if i := s.taskIndex(id); i >= 0 {
		return s.tasks[i], true
	}
	return domain.Task{}, false
}

// IsProject reports whether id names a loaded project.
func (s *State) IsProject(id string) bool { return s.projectIndex(id) >= 0 }

// IsTask reports whether id names a loaded task.
func (s *State) IsTask(id string) bool { return s.taskIndex(id) >= 0 }

// TasksByProject returns the project's tasks in display order.
func (s *State) TasksByProject(projectID string) []domain.Task {
	return domain.DefaultOrder(s.projectTasks(projectID))
}

// ActiveTasks returns the project's tasks that are not done, in display order.
func (s *State) ActiveTasks(projectID string) []domain.Task {
	out := s.TasksByProject(projectID)
	return slices.DeleteFunc(out, func(t domain.Task) bool { return t.Done() })
}

// DoneTasks returns the project's archived (done) tasks in display order.
func (s *State) DoneTasks(projectID string) []domain.Task {
	out := s.TasksByProject(projectID)
	return slices.DeleteFunc(out, func(t domain.Task) bool { return !t.Done() })
}

// IncompleteCounts returns the number of tasks not done per project.
func (s *State) IncompleteCounts() map[string]int {
	counts := make(map[string]int, len(s.projects))
	for _, t := range s.tasks {
		if !t.Done() {
			counts[t.ProjectID]++
		}
	}
	return counts
}

// PatchTask merges p into the task. Fields absent from p are kept. Moving
// or reordering a task goes through MoveTaskToProject and
// ReorderTasksWithinProject instead.
func (s *State) PatchTask(id string, p domain.TaskPatch) error {
	const op = "patch task"
	i := s.taskIndex(id)
	if i < 0 {
		return domain.Invalidf(op, "unknown task %q", id)
	}
	if p.ProjectID != nil || p.OrderIndex != nil {
		return domain.Invalidf(op, "project_id and order_index are changed by move and reorder")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.Apply(&s.tasks[i], s.now())
	s.notify(Change{Kind: ChangeTaskPatched, ProjectIDs: []string{s.tasks[i].ProjectID}, TaskIDs: []string{id}})
	return nil
}

// PatchProject merges p into the project. Reordering projects goes through
// ReorderProjects instead.
func (s *State) PatchProject(id string, p domain.ProjectPatch) error {
	const op = "patch project"
	i := s.projectIndex(id)
	if i < 0 {
		return domain.Invalidf(op, "unknown project %q", id)
	}
	if p.OrderIndex != nil {
		return domain.Invalidf(op, "order_index is changed by reorder")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.Apply(&s.projects[i])
	s.notify(Change{Kind: ChangeProjectPatched, ProjectIDs: []string{id}})
	return nil
}

// PatchOrganization merges p into the board's organization.
func (s *State) PatchOrganization(p domain.OrgPatch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Apply(&s.org)
	s.notify(Change{Kind: ChangeOrgPatched})
	return nil
}

// ReorderProjects assigns order_index 0..n-1 following ids, which must name
// every loaded project exactly once.
func (s *State) ReorderProjects(ids []string) error {
	if err := sameIDs("reorder projects", domain.ProjectIDs(s.projects), ids); err != nil {
		return err
	}
	pos := positions(ids)
	for i := range s.projects {
		s.projects[i].OrderIndex = pos[s.projects[i].ID]
	}
	s.projects = domain.SortProjects(s.projects)
	s.notify(Change{Kind: ChangeProjectsReordered, ProjectIDs: slices.Clone(ids)})
	return nil
}

// ReorderTasksWithinProject assigns order_index 0..n-1 to the project's
// tasks following ids, which must name every task of the project exactly
// once. Tasks of other projects are untouched.
func (s *State) ReorderTasksWithinProject(projectID string, ids []string) error {
	const op = "reorder tasks"
	if !s.IsProject(projectID) {
		return domain.Invalidf(op, "unknown project %q", projectID)
	}
	if err := sameIDs(op, domain.TaskIDs(s.projectTasks(projectID)), ids); err != nil {
		return err
	}
	pos := positions(ids)
	for i := range s.tasks {
		if s.tasks[i].ProjectID == projectID {
			s.tasks[i].OrderIndex = pos[s.tasks[i].ID]
		}
	}
	s.notify(Change{Kind: ChangeTasksReordered, ProjectIDs: []string{projectID}, TaskIDs: slices.Clone(ids)})
	return nil
}

// MoveTaskToProject reassigns the task to destProjectID and appends it at
// the tail of the destination. The tasks left behind in the source project
// are renumbered densely, keeping their relative order.
func (s *State) MoveTaskToProject(taskID, destProjectID string) error {
	const op = "move task"
	i := s.taskIndex(taskID)
	if i < 0 {
		return domain.Invalidf(op, "unknown task %q", taskID)
	}
	if !s.IsProject(destProjectID) {
		return domain.Invalidf(op, "unknown project %q", destProjectID)
	}
	src := s.tasks[i].ProjectID
	if src == destProjectID {
		return domain.Invalidf(op, "task %q already belongs to project %q", taskID, destProjectID)
	}
	tail := len(s.projectTasks(destProjectID))
	s.tasks[i].ProjectID = destProjectID
	s.tasks[i].OrderIndex = tail
	s.compact(src)
	s.notify(Change{Kind: ChangeTaskMoved, ProjectIDs: []string{src, destProjectID}, TaskIDs: []string{taskID}})
	return nil
}

// NextTaskIndex is the order_index a new task appended to the project gets.
func (s *State) NextTaskIndex(projectID string) int {
	return len(s.projectTasks(projectID))
}

// NextProjectIndex is the order_index a new project gets.
func (s *State) NextProjectIndex() int {
	return len(s.projects)
}

// AddTask inserts a task confirmed by the store.
func (s *State) AddTask(t domain.Task) error {
	const op = "add task"
	if s.IsTask(t.ID) {
		return domain.Invalidf(op, "duplicate task %q", t.ID)
	}
	if !s.IsProject(t.ProjectID) {
		return domain.Invalidf(op, "unknown project %q", t.ProjectID)
	}
	s.tasks = append(s.tasks, t)
	s.notify(Change{Kind: ChangeTaskAdded, ProjectIDs: []string{t.ProjectID}, TaskIDs: []string{t.ID}})
	return nil
}

// RemoveTask drops a task and renumbers its former siblings.
func (s *State) RemoveTask(id string) error {
	i := s.taskIndex(id)
	if i < 0 {
		return domain.Invalidf("remove task", "unknown task %q", id)
	}
	pid := s.tasks[i].ProjectID
	s.tasks = slices.Delete(s.tasks, i, i+1)
	s.compact(pid)
	s.notify(Change{Kind: ChangeTaskRemoved, ProjectIDs: []string{pid}, TaskIDs: []string{id}})
	return nil
}

// AddProject inserts a project confirmed by the store.
func (s *State) AddProject(p domain.Project) error {
	const op = "add project"
	if s.IsProject(p.ID) {
		return domain.Invalidf(op, "duplicate project %q", p.ID)
	}
	if p.OrgID != s.org.ID {
		return domain.Invalidf(op, "project %q belongs to organization %q", p.ID, p.OrgID)
	}
	s.projects = domain.SortProjects(append(s.projects, p))
	s.notify(Change{Kind: ChangeProjectAdded, ProjectIDs: []string{p.ID}})
	return nil
}

// RemoveProject drops a project together with its tasks and renumbers the
// remaining projects.
func (s *State) RemoveProject(id string) error {
	i := s.projectIndex(id)
	if i < 0 {
		return domain.Invalidf("remove project", "unknown project %q", id)
	}
	s.projects = slices.Delete(s.projects, i, i+1)
	for j := range s.projects {
		s.projects[j].OrderIndex = j
	}
	var removed []string
	s.tasks = slices.DeleteFunc(s.tasks, func(t domain.Task) bool {
		if t.ProjectID == id {
			removed = append(removed, t.ID)
			return true
		}
		return false
	})
	s.notify(Change{Kind: ChangeProjectRemoved, ProjectIDs: []string{id}, TaskIDs: removed})
	return nil
}

// compact renumbers a project's tasks 0..n-1 in their current display order.
func (s *State) compact(projectID string) {
	pos := positions(domain.TaskIDs(s.TasksByProject(projectID)))
	for i := range s.tasks {
		if s.tasks[i].ProjectID == projectID {
			s.tasks[i].OrderIndex = pos[s.tasks[i].ID]
		}
	}
}

func (s *State) projectTasks(projectID string) []domain.Task {
	var out []domain.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out
}

func (s *State) projectIndex(id string) int {
	return slices.IndexFunc(s.projects, func(p domain.Project) bool { return p.ID == id })
}

func (s *State) taskIndex(id string) int {
	return slices.IndexFunc(s.tasks, func(t domain.Task) bool { return t.ID == id })
}

func positions(ids []string) map[string]int {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	return pos
}

// sameIDs checks that got is a permutation of want.
func sameIDs(op string, want, got []string) error {
	if len(want) != len(got) {
		return domain.Invalidf(op, "expected %d ids, got %d", len(want), len(got))
	}
	seen := make(map[string]bool, len(want))
	for _, id := range want {
		seen[id] = false
	}
	for _, id := range got {
		used, ok := seen[id]
		if !ok {
			return domain.Invalidf(op, "unknown id %q", id)
		}
		if used {
			return domain.Invalidf(op, "duplicate id %q", id)
		}
		seen[id] = true
	}
	return nil
}
