// Package progress defines the snapshots emitted by the persistence writer.
package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the cumulative state of one run after an outcome was handled.
type Snapshot struct {
	// RunID identifies the run the snapshot belongs to.
	RunID uuid.UUID `json:"run_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Succeeded counts items inserted or updated.
	Succeeded int64 `json:"succeeded"`
	// Failed counts fetch, mapping, and per-record storage failures.
	Failed int64 `json:"failed"`
	// Processed counts every outcome handled, including absent and skipped ids.
	Processed int64 `json:"processed"`
	// Total is the number of ids planned for the run.
	Total int64 `json:"total"`
}

// Validate performs coarse validation on Snapshot payloads.
func (s Snapshot) Validate() error {
	if s.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if s.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if s.Succeeded < 0 || s.Failed < 0 || s.Processed < 0 {
		return errors.New("counters must be >= 0")
	}
	if s.Succeeded+s.Failed > s.Processed {
		return errors.New("processed must cover succeeded and failed")
	}
	return nil
}

// Remaining returns how many planned ids have not been processed yet.
func (s Snapshot) Remaining() int64 {
	if s.Total <= s.Processed {
		return 0
	}
	return s.Total - s.Processed
}
