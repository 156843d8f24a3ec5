package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/progress"
)

// ProgressSource reports the most recent snapshot of the current run.
type ProgressSource interface {
	Latest() (progress.Snapshot, bool)
}

// ProgressHandler exposes the read-only progress endpoint.
type ProgressHandler struct {
	source ProgressSource
	logger *zap.Logger
}

// NewProgressHandler wires the snapshot source and logger.
func NewProgressHandler(source ProgressSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		source: source,
		logger: logger,
	}
}

// GetProgress handles GET /v1/progress?run_id=. It returns {"progress": {...}}
// on success, 400 for a malformed run_id, 404 before the first snapshot or when
// run_id names a different run, and 503 when no source is wired.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress source unavailable")
		return
	}
	want, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no progress reported yet")
		return
	}
	if want != uuid.Nil && want != snap.RunID {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": toProgressDTO(snap)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid run_id")
	}
	return id, nil
}

func toProgressDTO(snap progress.Snapshot) progressDTO {
	dto := progressDTO{
		RunID:     snap.RunID.String(),
		TS:        snap.TS,
		Succeeded: snap.Succeeded,
		Failed:    snap.Failed,
		Processed: snap.Processed,
		Total:     snap.Total,
		Remaining: snap.Remaining(),
	}
	if snap.Total > 0 {
		dto.Percent = float64(snap.Processed) * 100 / float64(snap.Total)
	}
	return dto
}

type progressDTO struct {
	RunID     string    `json:"run_id"`
	TS        time.Time `json:"ts"`
	Succeeded int64     `json:"succeeded"`
	Failed    int64     `json:"failed"`
	Processed int64     `json:"processed"`
	Total     int64     `json:"total"`
	Remaining int64     `json:"remaining"`
	Percent   float64   `json:"percent"`
}
