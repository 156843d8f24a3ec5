package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hn-archiver/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures gauges follow the newest snapshot in a batch.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.New()
	batch := []progress.Snapshot{
		{RunID: runID, TS: time.Now(), Succeeded: 1, Processed: 1, Total: 4},
		{RunID: runID, TS: time.Now(), Succeeded: 1, Failed: 1, Processed: 2, Total: 4},
		{RunID: runID, TS: time.Now(), Succeeded: 2, Failed: 1, Processed: 4, Total: 4},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.succeeded))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.failed))
	require.Equal(t, 4.0, testutil.ToFloat64(sink.processed))
	require.Equal(t, 4.0, testutil.ToFloat64(sink.total))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.snapshots))

	require.NoError(t, sink.Consume(context.Background(), nil))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.snapshots))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
