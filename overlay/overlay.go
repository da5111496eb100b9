package overlay

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/pcedit/internal/bitmap"
	"github.com/hupe1980/pcedit/oplog"
	"github.com/hupe1980/pcedit/pointbuf"
)

// Aggregate returns the sorted union of the indices of every cluster whose
// label is in classes. A nil classes slice selects the classes the preview
// marked itself. Indices at or beyond NumPoints are dropped when NumPoints
// is known.
func Aggregate(d Detail, classes []string) []uint32 {
	if classes == nil {
		classes = d.SelectedClasses
	}
	set := bitmap.New()
	for i, label := range d.Labels {
		if i >= len(d.Clusters) || !slices.Contains(classes, label) {
			continue
		}
		set.AddMany(d.Clusters[i])
	}
	if d.NumPoints > 0 && set.Len() > 0 {
		set.RemoveRange(uint64(d.NumPoints), uint64(1)<<32)
	}
	return set.ToSlice()
}

// Paint tints the points holding the given dataset indices and returns how
// many of them are present in store. An empty list clears the tint.
func Paint(store *pointbuf.Store, indices []uint32) int {
	set := bitmap.New()
	for _, id := range indices {
		if i, ok := store.IndexOf(id); ok {
			set.Add(uint32(i))
		}
	}
	store.SetOverlay(set)
	return set.Len()
}

// Apply submits indices as delete operations. apply is called per accepted
// operation, see oplog.Log.Commit.
func Apply(ctx context.Context, log *oplog.Log, indices []uint32, apply oplog.ApplyFunc) (oplog.Result, error) {
	if len(indices) == 0 {
		return oplog.Result{}, nil
	}
	res, err := log.Commit(ctx, indices, nil, apply)
	if err != nil {
		return res, fmt.Errorf("overlay: apply: %w", err)
	}
	return res, nil
}
