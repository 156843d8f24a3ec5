package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutcomeKind tags the result of one fetch attempt.
type OutcomeKind int

// Supported outcome kinds.
const (
	OutcomeFetched OutcomeKind = iota + 1
	OutcomeAbsent
	OutcomeFailed
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFetched:
		return "fetched"
	case OutcomeAbsent:
		return "absent"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of fetching one id. Raw is set for fetched
// outcomes, Err for failed ones.
type Outcome struct {
	Kind OutcomeKind
	ID   int64
	Raw  []byte
	Err  error
}

// Fetched builds an outcome carrying the raw remote payload.
func Fetched(id int64, raw []byte) Outcome {
	return Outcome{Kind: OutcomeFetched, ID: id, Raw: raw}
}

// Absent builds an outcome for an id the remote reports as missing.
func Absent(id int64) Outcome {
	return Outcome{Kind: OutcomeAbsent, ID: id}
}

// Failed builds an outcome for a fetch that could not complete.
func Failed(id int64, cause error) Outcome {
	return Outcome{Kind: OutcomeFailed, ID: id, Err: cause}
}

// ExistingPolicy decides what happens to ids already present in storage.
type ExistingPolicy string

// Supported existing-record policies.
const (
	PolicySkip  ExistingPolicy = "skip"
	PolicyMerge ExistingPolicy = "merge"
)

// ParseExistingPolicy validates a policy name, case-insensitively.
func ParseExistingPolicy(raw string) (ExistingPolicy, error) {
	switch p := ExistingPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicySkip, PolicyMerge:
		return p, nil
	case "":
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown existing-record policy %q (want skip or merge)", raw)
	}
}

// Direction sets the order in which ids are admitted into the pipeline.
type Direction string

// Supported directions.
const (
	Descending Direction = "descending"
	Ascending  Direction = "ascending"
)

// IDSet is a set of stored item ids.
type IDSet map[int64]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Counters is the per-run state owned by the persistence writer.
type Counters struct {
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	Absent      int64 `json:"absent"`
	Skipped     int64 `json:"skipped"`
	Inserted    int64 `json:"inserted"`
	Updated     int64 `json:"updated"`
	Processed   int64 `json:"processed"`
	Uncommitted int64 `json:"-"`
}

// Summary is the user-visible result of one run.
type Summary struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Planned    int       `json:"planned"`
	Counters   Counters  `json:"counters"`
	Cancelled  bool      `json:"cancelled"`
	Err        string    `json:"error,omitempty"`
}
