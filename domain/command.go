package domain

import "github.com/bytedance/sonic"

const (
	EntityProject = "project"
	EntityTask    = "task"

	CommandPatch = "patch"
)

// Command is a write queued for the store.
type Command struct {
	// ID carries the idempotency key when the command goes through the patch queue.
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// NewTaskPatchCommand encodes a task patch as a command.
func NewTaskPatchCommand(id, taskID string, p TaskPatch, ts int64) (Command, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return Command{}, err
	}
	return Command{ID: id, EntityType: EntityTask, EntityID: taskID, Type: CommandPatch, Data: data, Timestamp: ts}, nil
}

// NewProjectPatchCommand encodes a project patch as a command.
func NewProjectPatchCommand(id, projectID string, p ProjectPatch, ts int64) (Command, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return Command{}, err
	}
	return Command{ID: id, EntityType: EntityProject, EntityID: projectID, Type: CommandPatch, Data: data, Timestamp: ts}, nil
}

// TaskPatch decodes the payload of a task patch command.
func (c Command) TaskPatch() (TaskPatch, error) {
	var p TaskPatch
	err := sonic.Unmarshal(c.Data, &p)
	return p, err
}

// ProjectPatch decodes the payload of a project patch command.
func (c Command) ProjectPatch() (ProjectPatch, error) {
	var p ProjectPatch
	err := sonic.Unmarshal(c.Data, &p)
	return p, err
}
