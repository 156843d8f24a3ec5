// Package planner computes the ordered set of ids a run submits to the fetch
// pipeline.
package planner

import (
	"context"
	"fmt"
	"slices"

	"github.com/JakeFAU/hn-archiver/internal/archive"
)

// Request describes the id range for one run. The range is half-open:
// [Lower, Upper).
type Request struct {
	Lower     int64
	Upper     int64
	Direction archive.Direction
	MaxItems  int
	Policy    archive.ExistingPolicy
}

// Plan is the ordered id sequence for one run plus the existing-record tags
// the writer needs.
type Plan struct {
	IDs             []int64
	Policy          archive.ExistingPolicy
	SkippedExisting int

	existing archive.IDSet
}

// IsUpdate reports whether id was already stored when the plan was built.
func (p Plan) IsUpdate(id int64) bool {
	return p.existing.Has(id)
}

// Updates returns how many planned ids are tagged as updates.
func (p Plan) Updates() int {
	return len(p.existing)
}

// Build computes the plan. An empty range yields an empty plan without
// touching storage.
func Build(ctx context.Context, store archive.ItemStore, req Request) (Plan, error) {
	if req.Lower < 1 {
		req.Lower = 1
	}
	if req.Policy == "" {
		req.Policy = archive.PolicySkip
	}
	plan := Plan{Policy: req.Policy}
	if req.Upper <= req.Lower {
		return plan, nil
	}

	lower, upper := window(req)
	ids := make([]int64, 0, upper-lower)
	for id := lower; id < upper; id++ {
		ids = append(ids, id)
	}
	if req.Direction != archive.Ascending {
		slices.Reverse(ids)
	}

	existing, err := store.ExistingIDs(ctx, lower, upper)
	if err != nil {
		return Plan{}, fmt.Errorf("load existing ids: %w", err)
	}

	switch req.Policy {
	case archive.PolicySkip:
		kept := ids[:0]
		for _, id := range ids {
			if existing.Has(id) {
				plan.SkippedExisting++
				continue
			}
			kept = append(kept, id)
		}
		plan.IDs = kept
	case archive.PolicyMerge:
		plan.existing = make(archive.IDSet)
		for _, id := range ids {
			if existing.Has(id) {
				plan.existing[id] = struct{}{}
			}
		}
		plan.IDs = ids
	default:
		return Plan{}, fmt.Errorf("unknown existing-record policy %q", req.Policy)
	}
	return plan, nil
}

// window narrows [Lower, Upper) to the MaxItems ids at the start of the
// requested direction.
func window(req Request) (lower, upper int64) {
	lower, upper = req.Lower, req.Upper
	if req.MaxItems <= 0 || upper-lower <= int64(req.MaxItems) {
		return lower, upper
	}
	if req.Direction == archive.Ascending {
		return lower, lower + int64(req.MaxItems)
	}
	return upper - int64(req.MaxItems), upper
}
