package board

import (
	"context"

	"github.com/fareidzulkifli/task-manager/domain"
)

// Loader is the read side of the remote store needed to build a State.
type Loader interface {
	GetOrganization(ctx context.Context, id string) (domain.Organization, error)
	ListProjects(ctx context.Context, orgID string) ([]domain.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
}

// Store is the remote system of record. Every entity supports list by
// parent, get, partial patch and delete; lists come back in ascending
// order_index. Missing records yield domain.ErrNotFound. There are no
// transactions across records.
type Store interface {
	Loader
	Patcher

	ListOrganizations(ctx context.Context) ([]domain.Organization, error)
	CreateOrganization(ctx context.Context, o domain.Organization) (domain.Organization, error)
	PatchOrganization(ctx context.Context, id string, p domain.OrgPatch) (domain.Organization, error)
	// DeleteOrganization removes the organization with its projects and tasks.
	DeleteOrganization(ctx context.Context, id string) error

	GetProject(ctx context.Context, id string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error

	GetTask(ctx context.Context, id string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}
