package domain

import (
	"cmp"
	"slices"
)

// CompareOrder orders siblings by ascending order_index.
func CompareOrder(a, b int) int {
	return cmp.Compare(a, b)
}

func doneBucket(t Task) int {
	if t.Done() {
		return 1
	}
	return 0
}

// DefaultOrder returns the display order of tasks: active before done, then
// ascending order_index. Ties keep their input order.
func DefaultOrder(tasks []Task) []Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b Task) int {
		if c := cmp.Compare(doneBucket(a), doneBucket(b)); c != 0 {
			return c
		}
		return CompareOrder(a.OrderIndex, b.OrderIndex)
	})
	return out
}

// PriorityScore is the Eisenhower score of a task, 0 through 3.
func PriorityScore(t Task) int {
	s := 0
	if t.Urgent {
		s += 2
	}
	if t.Important {
		s++
	}
	return s
}

// PriorityOrder ranks tasks by descending score, then ascending order_index.
// Equal keys keep their input order.
func PriorityOrder(tasks []Task) []Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b Task) int {
		if c := cmp.Compare(PriorityScore(b), PriorityScore(a)); c != 0 {
			return c
		}
		return CompareOrder(a.OrderIndex, b.OrderIndex)
	})
	return out
}

// SortProjects returns projects in ascending order_index.
func SortProjects(projects []Project) []Project {
	out := slices.Clone(projects)
	slices.SortStableFunc(out, func(a, b Project) int {
		return CompareOrder(a.OrderIndex, b.OrderIndex)
	})
	return out
}

// SortOrganizations returns organizations in ascending order_index.
func SortOrganizations(orgs []Organization) []Organization {
	out := slices.Clone(orgs)
	slices.SortStableFunc(out, func(a, b Organization) int {
		return CompareOrder(a.OrderIndex, b.OrderIndex)
	})
	return out
}

// ArrayMove removes the element at from and reinserts it at to. Both
// indexes refer to positions in ids. The input is not modified.
func ArrayMove(ids []string, from, to int) []string {
	out := slices.Clone(ids)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || from == to {
		return out
	}
	v := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, v)
}

// TaskIDs extracts ids in order.
func TaskIDs(tasks []Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

// ProjectIDs extracts ids in order.
func ProjectIDs(projects []Project) []string {
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}
