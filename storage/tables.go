package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/fareidzulkifli/task-manager/domain"
)

// Rows of one kind share a fixed partition so records can be addressed by
// id alone; parents are plain properties.
const (
	orgPartition     = "org"
	projectPartition = "project"
	taskPartition    = "task"
)

// Tables is a Store backed by Azure Table Storage.
type Tables struct {
	orgs     *aztables.Client
	projects *aztables.Client
	tasks    *aztables.Client
	now      func() time.Time
}

// NewTables creates table clients from a storage connection string.
func NewTables(connStr, orgsTable, projectsTable, tasksTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		orgs:     svc.NewClient(orgsTable),
		projects: svc.NewClient(projectsTable),
		tasks:    svc.NewClient(tasksTable),
		now:      time.Now,
	}, nil
}

// Init creates the tables if they do not exist yet.
func (s *Tables) Init(ctx context.Context) error {
	for _, c := range []*aztables.Client{s.orgs, s.projects, s.tasks} {
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

type orgEntity struct {
	entityKeys
	Name       string `json:"Name"`
	OrderIndex int    `json:"OrderIndex"`
}

type orgUpdate struct {
	entityKeys
	Name       *string `json:"Name,omitempty"`
	OrderIndex *int    `json:"OrderIndex,omitempty"`
}

type projectEntity struct {
	entityKeys
	OrgID          string `json:"OrgID"`
	Name           string `json:"Name"`
	OrderIndex     int    `json:"OrderIndex"`
	Goal           string `json:"Goal,omitempty"`
	Description    string `json:"Description,omitempty"`
	Focus          string `json:"Focus,omitempty"`
	AIInstructions string `json:"AIInstructions,omitempty"`
}

type projectUpdate struct {
	entityKeys
	Name           *string `json:"Name,omitempty"`
	OrderIndex     *int    `json:"OrderIndex,omitempty"`
	Goal           *string `json:"Goal,omitempty"`
	Description    *string `json:"Description,omitempty"`
	Focus          *string `json:"Focus,omitempty"`
	AIInstructions *string `json:"AIInstructions,omitempty"`
}

// Timestamps and due dates are kept as strings; an empty string is null.
type taskEntity struct {
	entityKeys
	ProjectID     string `json:"ProjectID"`
	Summary       string `json:"Summary"`
	NotesMarkdown string `json:"NotesMarkdown,omitempty"`
	Status        string `json:"Status"`
	Urgent        bool   `json:"Urgent"`
	Important     bool   `json:"Important"`
	DueDate       string `json:"DueDate"`
	OrderIndex    int    `json:"OrderIndex"`
	CompletedAt   string `json:"CompletedAt"`
	CreatedAt     string `json:"CreatedAt"`
}

type taskUpdate struct {
	entityKeys
	ProjectID     *string `json:"ProjectID,omitempty"`
	Summary       *string `json:"Summary,omitempty"`
	NotesMarkdown *string `json:"NotesMarkdown,omitempty"`
	Status        *string `json:"Status,omitempty"`
	Urgent        *bool   `json:"Urgent,omitempty"`
	Important     *bool   `json:"Important,omitempty"`
	DueDate       *string `json:"DueDate,omitempty"`
	OrderIndex    *int    `json:"OrderIndex,omitempty"`
	CompletedAt   *string `json:"CompletedAt,omitempty"`
}

// entityKeys addresses a row. aztables.Entity is not used for writes since
// it would also send a zero Timestamp.
type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

func rowKeys(pk, rk string) entityKeys {
	return entityKeys{PartitionKey: pk, RowKey: rk}
}

func encodeProject(p domain.Project) projectEntity {
	return projectEntity{
		entityKeys:     rowKeys(projectPartition, p.ID),
		OrgID:          p.OrgID,
		Name:           p.Name,
		OrderIndex:     p.OrderIndex,
		Goal:           p.Goal,
		Description:    p.Description,
		Focus:          p.Focus,
		AIInstructions: p.AIInstructions,
	}
}

func decodeProject(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	return domain.Project{
		ID:             ent.RowKey,
		OrgID:          ent.OrgID,
		Name:           ent.Name,
		OrderIndex:     ent.OrderIndex,
		Goal:           ent.Goal,
		Description:    ent.Description,
		Focus:          ent.Focus,
		AIInstructions: ent.AIInstructions,
	}, nil
}

func encodeProjectPatch(id string, p domain.ProjectPatch) projectUpdate {
	return projectUpdate{
		entityKeys:     rowKeys(projectPartition, id),
		Name:           p.Name,
		OrderIndex:     p.OrderIndex,
		Goal:           p.Goal,
		Description:    p.Description,
		Focus:          p.Focus,
		AIInstructions: p.AIInstructions,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeTask(t domain.Task) taskEntity {
	ent := taskEntity{
		entityKeys:    rowKeys(taskPartition, t.ID),
		ProjectID:     t.ProjectID,
		Summary:       t.Summary,
		NotesMarkdown: t.NotesMarkdown,
		Status:        string(t.Status),
		Urgent:        t.Urgent,
		Important:     t.Important,
		OrderIndex:    t.OrderIndex,
		CompletedAt:   formatTime(t.CompletedAt),
		CreatedAt:     formatTime(&t.CreatedAt),
	}
	if t.DueDate != nil {
		ent.DueDate = *t.DueDate
	}
	return ent
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:            ent.RowKey,
		ProjectID:     ent.ProjectID,
		Summary:       ent.Summary,
		NotesMarkdown: ent.NotesMarkdown,
		Status:        domain.Status(ent.Status),
		Urgent:        ent.Urgent,
		Important:     ent.Important,
		OrderIndex:    ent.OrderIndex,
	}
	if ent.DueDate != "" {
		d := ent.DueDate
		t.DueDate = &d
	}
	completed, err := parseTime(ent.CompletedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s completed at: %w", ent.RowKey, err)
	}
	t.CompletedAt = completed
	created, err := parseTime(ent.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s created at: %w", ent.RowKey, err)
	}
	if created != nil {
		t.CreatedAt = *created
	}
	return t, nil
}

// encodeTaskPatch maps a patch to a merge update. Setting the status also
// writes completed_at: now for Done, empty otherwise.
func encodeTaskPatch(id string, p domain.TaskPatch, now time.Time) taskUpdate {
	u := taskUpdate{
		entityKeys:    rowKeys(taskPartition, id),
		ProjectID:     p.ProjectID,
		Summary:       p.Summary,
		NotesMarkdown: p.NotesMarkdown,
		Urgent:        p.Urgent,
		Important:     p.Important,
		DueDate:       p.DueDate,
		OrderIndex:    p.OrderIndex,
	}
	if p.Status != nil {
		st := string(*p.Status)
		completed := ""
		if *p.Status == domain.StatusDone {
			completed = formatTime(&now)
		}
		u.Status = &st
		u.CompletedAt = &completed
	}
	return u
}

func notFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func mapErr(kind, id string, err error) error {
	if notFound(err) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return err
}

func eqFilter(prop, value string) string {
	return prop + " eq '" + strings.ReplaceAll(value, "'", "''") + "'"
}

func list[T any](ctx context.Context, c *aztables.Client, filter string, decode func([]byte) (T, error)) ([]T, error) {
	pager := c.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			v, err := decode(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func merge(ctx context.Context, c *aztables.Client, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

func insert(ctx context.Context, c *aztables.Client, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.AddEntity(ctx, payload, nil)
	return err
}

func decodeOrg(data []byte) (domain.Organization, error) {
	var ent orgEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Organization{}, err
	}
	return domain.Organization{ID: ent.RowKey, Name: ent.Name, OrderIndex: ent.OrderIndex}, nil
}

// ListOrganizations returns every organization by order_index.
func (s *Tables) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	orgs, err := list(ctx, s.orgs, eqFilter("PartitionKey", orgPartition), decodeOrg)
	if err != nil {
		return nil, err
	}
	return domain.SortOrganizations(orgs), nil
}

func (s *Tables) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	ent, err := s.orgs.GetEntity(ctx, orgPartition, id, nil)
	if err != nil {
		return domain.Organization{}, mapErr("organization", id, err)
	}
	return decodeOrg(ent.Value)
}

// CreateOrganization inserts an organization.
func (s *Tables) CreateOrganization(ctx context.Context, o domain.Organization) (domain.Organization, error) {
	ent := orgEntity{entityKeys: rowKeys(orgPartition, o.ID), Name: o.Name, OrderIndex: o.OrderIndex}
	if err := insert(ctx, s.orgs, ent); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (s *Tables) PatchOrganization(ctx context.Context, id string, p domain.OrgPatch) (domain.Organization, error) {
	u := orgUpdate{entityKeys: rowKeys(orgPartition, id), Name: p.Name, OrderIndex: p.OrderIndex}
	if err := merge(ctx, s.orgs, u); err != nil {
		return domain.Organization{}, mapErr("organization", id, err)
	}
	return s.GetOrganization(ctx, id)
}

// DeleteOrganization removes the organization with its projects and their
// tasks. Tables has no cascade, so children go first.
func (s *Tables) DeleteOrganization(ctx context.Context, id string) error {
	if _, err := s.GetOrganization(ctx, id); err != nil {
		return err
	}
	projects, err := s.ListProjects(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if err := s.DeleteProject(ctx, p.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if _, err := s.orgs.DeleteEntity(ctx, orgPartition, id, nil); err != nil {
		return mapErr("organization", id, err)
	}
	return nil
}

func (s *Tables) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	filter := eqFilter("PartitionKey", projectPartition) + " and " + eqFilter("OrgID", orgID)
	projects, err := list(ctx, s.projects, filter, decodeProject)
	if err != nil {
		return nil, err
	}
	return domain.SortProjects(projects), nil
}

func (s *Tables) GetProject(ctx context.Context, id string) (domain.Project, error) {
	ent, err := s.projects.GetEntity(ctx, projectPartition, id, nil)
	if err != nil {
		return domain.Project{}, mapErr("project", id, err)
	}
	return decodeProject(ent.Value)
}

func (s *Tables) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	if err := insert(ctx, s.projects, encodeProject(p)); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (s *Tables) PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	if err := merge(ctx, s.projects, encodeProjectPatch(id, p)); err != nil {
		return domain.Project{}, mapErr("project", id, err)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes the project and its tasks.
func (s *Tables) DeleteProject(ctx context.Context, id string) error {
	tasks, err := s.ListTasks(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.DeleteTask(ctx, t.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if _, err := s.projects.DeleteEntity(ctx, projectPartition, id, nil); err != nil {
		return mapErr("project", id, err)
	}
	return nil
}

func (s *Tables) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	filter := eqFilter("PartitionKey", taskPartition) + " and " + eqFilter("ProjectID", projectID)
	tasks, err := list(ctx, s.tasks, filter, decodeTask)
	if err != nil {
		return nil, err
	}
	return sortTasks(tasks), nil
}

func (s *Tables) GetTask(ctx context.Context, id string) (domain.Task, error) {
	ent, err := s.tasks.GetEntity(ctx, taskPartition, id, nil)
	if err != nil {
		return domain.Task{}, mapErr("task", id, err)
	}
	return decodeTask(ent.Value)
}

func (s *Tables) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := insert(ctx, s.tasks, encodeTask(t)); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Tables) PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	u := encodeTaskPatch(id, p, s.now())
	if p.Status != nil && *p.Status == domain.StatusDone {
		// A task already Done keeps its stamp.
		cur, err := s.GetTask(ctx, id)
		if err != nil {
			return domain.Task{}, err
		}
		if cur.Done() {
			u.CompletedAt = nil
		}
	}
	if err := merge(ctx, s.tasks, u); err != nil {
		return domain.Task{}, mapErr("task", id, err)
	}
	return s.GetTask(ctx, id)
}

func (s *Tables) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.tasks.DeleteEntity(ctx, taskPartition, id, nil); err != nil {
		return mapErr("task", id, err)
	}
	return nil
}
