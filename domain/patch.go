package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskPatch is a partial task update. Nil fields are left untouched.
// An empty DueDate clears the due date.
type TaskPatch struct {
	Summary       *string `json:"summary,omitempty"`
	NotesMarkdown *string `json:"notes_markdown,omitempty"`
	Status        *Status `json:"status,omitempty"`
	Urgent        *bool   `json:"urgent,omitempty"`
	Important     *bool   `json:"important,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`
	ProjectID     *string `json:"project_id,omitempty"`
	OrderIndex    *int    `json:"order_index,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p TaskPatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields lists the wire names of the fields present in the patch.
func (p TaskPatch) Fields() []string {
	var f []string
	if p.Summary != nil {
		f = append(f, "summary")
	}
	if p.NotesMarkdown != nil {
		f = append(f, "notes_markdown")
	}
	if p.Status != nil {
		f = append(f, "status")
	}
	if p.Urgent != nil {
		f = append(f, "urgent")
	}
	if p.Important != nil {
		f = append(f, "important")
	}
	if p.DueDate != nil {
		f = append(f, "due_date")
	}
	if p.ProjectID != nil {
		f = append(f, "project_id")
	}
	if p.OrderIndex != nil {
		f = append(f, "order_index")
	}
	return f
}

// Validate checks field values independent of any board state.
func (p TaskPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return Invalidf("patch task", "unknown status %q", *p.Status)
	}
	if p.DueDate != nil && *p.DueDate != "" {
		if _, err := time.Parse(DateLayout, *p.DueDate); err != nil {
			return Invalidf("patch task", "due date %q: %v", *p.DueDate, err)
		}
	}
	if p.OrderIndex != nil && *p.OrderIndex < 0 {
		return Invalidf("patch task", "negative order index %d", *p.OrderIndex)
	}
	return nil
}

// Apply merges the patch into t. completed_at is stamped with now when the
// status moves into Done and cleared when it moves anywhere else.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Summary != nil {
		t.Summary = *p.Summary
	}
	if p.NotesMarkdown != nil {
		t.NotesMarkdown = *p.NotesMarkdown
	}
	if p.Status != nil {
		wasDone := t.Done()
		t.Status = *p.Status
		switch {
		case t.Done() && !wasDone:
			ts := now.UTC()
			t.CompletedAt = &ts
		case !t.Done():
			t.CompletedAt = nil
		}
	}
	if p.Urgent != nil {
		t.Urgent = *p.Urgent
	}
	if p.Important != nil {
		t.Important = *p.Important
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			t.DueDate = nil
		} else {
			d := *p.DueDate
			t.DueDate = &d
		}
	}
	if p.ProjectID != nil {
		t.ProjectID = *p.ProjectID
	}
	if p.OrderIndex != nil {
		t.OrderIndex = *p.OrderIndex
	}
}

// ProjectPatch is a partial project update.
type ProjectPatch struct {
	Name           *string `json:"name,omitempty"`
	OrderIndex     *int    `json:"order_index,omitempty"`
	Goal           *string `json:"goal,omitempty"`
	Description    *string `json:"description,omitempty"`
	Focus          *string `json:"focus,omitempty"`
	AIInstructions *string `json:"ai_instructions,omitempty"`
}

// Fields lists the wire names of the fields present in the patch.
func (p ProjectPatch) Fields() []string {
	var f []string
	if p.Name != nil {
		f = append(f, "name")
	}
	if p.OrderIndex != nil {
		f = append(f, "order_index")
	}
	if p.Goal != nil {
		f = append(f, "goal")
	}
	if p.Description != nil {
		f = append(f, "description")
	}
	if p.Focus != nil {
		f = append(f, "focus")
	}
	if p.AIInstructions != nil {
		f = append(f, "ai_instructions")
	}
	return f
}

// Empty reports whether the patch carries no fields.
func (p ProjectPatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Validate checks field values independent of any board state.
func (p ProjectPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Invalidf("patch project", "name must not be blank")
	}
	if p.OrderIndex != nil && *p.OrderIndex < 0 {
		return Invalidf("patch project", "negative order index %d", *p.OrderIndex)
	}
	return nil
}

// Apply merges the patch into pr.
func (p ProjectPatch) Apply(pr *Project) {
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.OrderIndex != nil {
		pr.OrderIndex = *p.OrderIndex
	}
	if p.Goal != nil {
		pr.Goal = *p.Goal
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.Focus != nil {
		pr.Focus = *p.Focus
	}
	if p.AIInstructions != nil {
		pr.AIInstructions = *p.AIInstructions
	}
}

// OrgPatch is a partial organization update.
type OrgPatch struct {
	Name       *string `json:"name,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p OrgPatch) Empty() bool {
	return p.Name == nil && p.OrderIndex == nil
}

// Validate checks field values.
func (p OrgPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Invalidf("patch organization", "name must not be blank")
	}
	if p.OrderIndex != nil && *p.OrderIndex < 0 {
		return Invalidf("patch organization", "negative order index %d", *p.OrderIndex)
	}
	return nil
}

// Apply merges the patch into o.
func (p OrgPatch) Apply(o *Organization) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.OrderIndex != nil {
		o.OrderIndex = *p.OrderIndex
	}
}

// OrderPatch is the patch issued for a pure order_index change.
func OrderPatch(idx int) TaskPatch {
	return TaskPatch{OrderIndex: &idx}
}

// ProjectOrderPatch is the project counterpart of OrderPatch.
func ProjectOrderPatch(idx int) ProjectPatch {
	return ProjectPatch{OrderIndex: &idx}
}

// MovePatch reassigns a task to projectID at position idx.
func MovePatch(projectID string, idx int) TaskPatch {
	return TaskPatch{ProjectID: &projectID, OrderIndex: &idx}
}

func (p TaskPatch) String() string {
	return fmt.Sprintf("TaskPatch%v", p.Fields())
}
