package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// RecentProjectsLimit is how many projects the dashboard shows.
const RecentProjectsLimit = 6

// RecentProject is a dashboard entry with task totals and the last time
// work was recorded on the project.
type RecentProject struct {
	Project
	OrgName         string     `json:"org_name"`
	TotalTasks      int        `json:"total_tasks"`
	IncompleteTasks int        `json:"incomplete_tasks"`
	LastWorkedOn    *time.Time `json:"last_worked_on"`
}

// RecentProjects summarizes projects and returns at most limit of them,
// most recently worked on first. A task counts as work when it is created
// and when it is completed. Projects without tasks come last.
func RecentProjects(orgs []Organization, projects []Project, tasks []Task, limit int) []RecentProject {
	names := make(map[string]string, len(orgs))
	for _, o := range orgs {
		names[o.ID] = o.Name
	}
	byID := make(map[string]*RecentProject, len(projects))
	out := make([]RecentProject, len(projects))
	for i, p := range projects {
		out[i] = RecentProject{Project: p, OrgName: names[p.OrgID]}
		if out[i].OrgName == "" {
			out[i].OrgName = "Unknown Organization"
		}
		byID[p.ID] = &out[i]
	}
	for _, t := range tasks {
		rp, ok := byID[t.ProjectID]
		if !ok {
			continue
		}
		rp.TotalTasks++
		if !t.Done() {
			rp.IncompleteTasks++
		}
		rp.touch(t.CreatedAt)
		if t.CompletedAt != nil {
			rp.touch(*t.CompletedAt)
		}
	}
	slices.SortStableFunc(out, func(a, b RecentProject) int {
		switch {
		case a.LastWorkedOn == nil && b.LastWorkedOn == nil:
			return strings.Compare(a.ID, b.ID)
		case a.LastWorkedOn == nil:
			return 1
		case b.LastWorkedOn == nil:
			return -1
		}
		if c := b.LastWorkedOn.Compare(*a.LastWorkedOn); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *RecentProject) touch(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if r.LastWorkedOn == nil || ts.After(*r.LastWorkedOn) {
		t := ts
		r.LastWorkedOn = &t
	}
}
