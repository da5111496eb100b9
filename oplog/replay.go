package oplog

import (
	"slices"

	"github.com/hupe1980/pcedit/internal/bitmap"
)

// deleteActions are the action names treated as deletions in stored
// histories.
var deleteActions = []Action{ActionDelete, "mask.delete", "remove"}

// Replay folds an ordered operation history into the set of deleted global
// indices. Restores remove indices again; unknown actions are ignored.
func Replay(records []Record) *bitmap.Set {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})

	deleted := bitmap.New()
	for _, rec := range sorted {
		switch {
		case slices.Contains(deleteActions, rec.Op.Action):
			deleted.AddMany(rec.Op.Indices)
		case rec.Op.Action == ActionRestore:
			for _, id := range rec.Op.Indices {
				deleted.Remove(id)
			}
		}
	}
	return deleted
}
