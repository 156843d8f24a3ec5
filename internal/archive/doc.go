// Package archive defines the domain types shared by the archiver components:
// the persisted Item, the tagged fetch Outcome, per-run counters, the error
// taxonomy, and the collaborator interfaces (remote source, item store, blob
// archive, publisher) that the pipeline, planner, and writer are written
// against.
package archive
