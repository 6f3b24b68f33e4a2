package board

import (
	"github.com/fareidzulkifli/task-manager/domain"
)

// IntentOptimize is the outcome of a priority re-index.
const IntentOptimize Intent = "optimize"

// UpdateTask patches a task locally and schedules the same PATCH remotely.
func (c *Coordinator) UpdateTask(id string, p domain.TaskPatch) error {
	if err := c.state.PatchTask(id, p); err != nil {
		return err
	}
	c.persist.PatchTask(id, p)
	return nil
}

// UpdateProject patches a project's settings locally and schedules the same
// PATCH remotely.
func (c *Coordinator) UpdateProject(id string, p domain.ProjectPatch) error {
	if err := c.state.PatchProject(id, p); err != nil {
		return err
	}
	c.persist.PatchProject(id, p)
	return nil
}

// RestoreTask moves a done task back to In Progress.
func (c *Coordinator) RestoreTask(id string) error {
	st := domain.StatusInProgress
	return c.UpdateTask(id, domain.TaskPatch{Status: &st})
}

// Optimize re-indexes a project's tasks by priority score (highest first),
// keeping the current order among equal scores, and persists every new
// index. It is a one-shot action; later reorders are free to undo it.
func (c *Coordinator) Optimize(projectID string) (Outcome, error) {
	if !c.state.IsProject(projectID) {
		return Outcome{Intent: IntentNone}, domain.Invalidf("optimize", "unknown project %q", projectID)
	}
	ranked := domain.TaskIDs(domain.PriorityOrder(c.state.projectTasks(projectID)))
	if err := c.state.ReorderTasksWithinProject(projectID, ranked); err != nil {
		return Outcome{Intent: IntentNone}, err
	}
	for i, id := range ranked {
		c.persist.PatchTask(id, domain.OrderPatch(i))
	}
	return Outcome{Intent: IntentOptimize, Patches: len(ranked)}, nil
}
