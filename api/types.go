package api

import (
	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type column struct {
	domain.Project
	Tasks []domain.Task `json:"tasks"`
}

type boardResponse struct {
	Organization domain.Organization `json:"organization"`
	Columns      []column            `json:"columns"`
}

type keyboardRequest struct {
	ActiveID string    `json:"activeId"`
	Key      board.Key `json:"key"`
}

type outcomeResponse struct {
	Intent  board.Intent `json:"intent"`
	Patches int          `json:"patches"`
}

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type createProjectRequest struct {
	OrgID          string `json:"org_id"`
	Name           string `json:"name"`
	Goal           string `json:"goal"`
	Description    string `json:"description"`
	Focus          string `json:"focus"`
	AIInstructions string `json:"ai_instructions"`
}

type createTaskRequest struct {
	ProjectID     string        `json:"project_id"`
	Summary       string        `json:"summary"`
	NotesMarkdown string        `json:"notes_markdown"`
	Status        domain.Status `json:"status"`
	Urgent        bool          `json:"urgent"`
	Important     bool          `json:"important"`
	DueDate       *string       `json:"due_date"`
}

type errorResponse struct {
	Error string `json:"error"`
}
