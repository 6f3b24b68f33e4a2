package domain

import "time"

// Status is the workflow state of a task.
type Status string

const (
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
	StatusKIV        Status = "KIV"
)

// Valid reports whether s is one of the known task statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusDone, StatusKIV:
		return true
	}
	return false
}

// DateLayout is the wire format of task due dates.
const DateLayout = "2006-01-02"

// Organization is the top level grouping of projects.
type Organization struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OrderIndex int    `json:"order_index"`
}

// Project groups tasks inside an organization. Only OrgID and OrderIndex
// take part in board ordering; the remaining fields are carried through.
type Project struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	Name           string `json:"name"`
	OrderIndex     int    `json:"order_index"`
	Goal           string `json:"goal,omitempty"`
	Description    string `json:"description,omitempty"`
	Focus          string `json:"focus,omitempty"`
	AIInstructions string `json:"ai_instructions,omitempty"`
}

// Task is a single card on the board.
type Task struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Summary       string     `json:"summary"`
	NotesMarkdown string     `json:"notes_markdown,omitempty"`
	Status        Status     `json:"status"`
	Urgent        bool       `json:"urgent"`
	Important     bool       `json:"important"`
	DueDate       *string    `json:"due_date"`
	OrderIndex    int        `json:"order_index"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Done reports whether the task sits in the done partition.
func (t Task) Done() bool { return t.Status == StatusDone }

// NavProject is a project entry of the navigation tree.
type NavProject struct {
	Project
	IncompleteTasks int `json:"incomplete_tasks_count"`
}

// NavOrganization is an organization with its projects for navigation.
type NavOrganization struct {
	Organization
	Projects []NavProject `json:"projects"`
}
