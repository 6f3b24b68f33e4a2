package storage

import (
	"cmp"
	"slices"
	"strings"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

var (
	_ board.Store = (*Tables)(nil)
	_ board.Store = (*Postgres)(nil)
	_ board.Store = (*SQLite)(nil)
	_ board.Store = (*Cache)(nil)

	_ board.Patcher = (*Queue)(nil)
)

// sortTasks orders tasks by ascending order_index, ties by id, the order
// every backend lists them in.
func sortTasks(tasks []domain.Task) []domain.Task {
	out := slices.Clone(tasks)
	slices.SortFunc(out, func(a, b domain.Task) int {
		if c := cmp.Compare(a.OrderIndex, b.OrderIndex); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
