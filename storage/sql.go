package storage

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/fareidzulkifli/task-manager/domain"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	orgColumns     = `id, name, order_index`
	projectColumns = `id, org_id, name, order_index, goal, description, focus, ai_instructions`
	taskColumns    = `id, project_id, summary, notes_markdown, status, urgent, important, due_date, order_index, completed_at, created_at`
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations returns the embedded migrations of a dialect by version.
func migrations(dialect string) ([]migration, error) {
	prefix := dialect + "_"
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".sql") {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".sql"), "%d", &v); err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", name, err)
		}
		content, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: v, name: name, sql: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

type assignment struct {
	column string
	value  any
	// keepWhen, if set, is a condition on the current row under which the
	// column keeps its value.
	keepWhen string
}

// taskAssignments lists the columns a task patch writes. Setting the status
// also writes completed_at: now when the task enters Done, NULL for any other
// status. A task already Done keeps its stamp. An empty due date is written
// as NULL.
func taskAssignments(p domain.TaskPatch, now time.Time) []assignment {
	var a []assignment
	if p.Summary != nil {
		a = append(a, assignment{column: "summary", value: *p.Summary})
	}
	if p.NotesMarkdown != nil {
		a = append(a, assignment{column: "notes_markdown", value: *p.NotesMarkdown})
	}
	if p.Status != nil {
		a = append(a, assignment{column: "status", value: string(*p.Status)})
		if *p.Status == domain.StatusDone {
			ts := now.UTC()
			a = append(a, assignment{column: "completed_at", value: &ts, keepWhen: "status = '" + string(domain.StatusDone) + "'"})
		} else {
			a = append(a, assignment{column: "completed_at", value: (*time.Time)(nil)})
		}
	}
	if p.Urgent != nil {
		a = append(a, assignment{column: "urgent", value: *p.Urgent})
	}
	if p.Important != nil {
		a = append(a, assignment{column: "important", value: *p.Important})
	}
	if p.DueDate != nil {
		var due any
		if *p.DueDate != "" {
			due = *p.DueDate
		}
		a = append(a, assignment{column: "due_date", value: due})
	}
	if p.ProjectID != nil {
		a = append(a, assignment{column: "project_id", value: *p.ProjectID})
	}
	if p.OrderIndex != nil {
		a = append(a, assignment{column: "order_index", value: *p.OrderIndex})
	}
	return a
}

func orgAssignments(p domain.OrgPatch) []assignment {
	var a []assignment
	if p.Name != nil {
		a = append(a, assignment{column: "name", value: *p.Name})
	}
	if p.OrderIndex != nil {
		a = append(a, assignment{column: "order_index", value: *p.OrderIndex})
	}
	return a
}

func projectAssignments(p domain.ProjectPatch) []assignment {
	var a []assignment
	if p.Name != nil {
		a = append(a, assignment{column: "name", value: *p.Name})
	}
	if p.OrderIndex != nil {
		a = append(a, assignment{column: "order_index", value: *p.OrderIndex})
	}
	if p.Goal != nil {
		a = append(a, assignment{column: "goal", value: *p.Goal})
	}
	if p.Description != nil {
		a = append(a, assignment{column: "description", value: *p.Description})
	}
	if p.Focus != nil {
		a = append(a, assignment{column: "focus", value: *p.Focus})
	}
	if p.AIInstructions != nil {
		a = append(a, assignment{column: "ai_instructions", value: *p.AIInstructions})
	}
	return a
}

// updateStatement builds `UPDATE table SET ... WHERE id = ?` with the id as
// the last argument. placeholder renders the n-th (1-based) parameter.
// Guarded columns are written through a CASE on the row's current values.
func updateStatement(table string, set []assignment, id string, placeholder func(int) string) (string, []any) {
	cols := make([]string, 0, len(set))
	args := make([]any, 0, len(set)+1)
	for i, a := range set {
		val := placeholder(i + 1)
		if a.keepWhen != "" {
			val = "CASE WHEN " + a.keepWhen + " THEN " + a.column + " ELSE " + val + " END"
		}
		cols = append(cols, a.column+" = "+val)
		args = append(args, a.value)
	}
	args = append(args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(cols, ", "), placeholder(len(set)+1)), args
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func question(int) string { return "?" }
