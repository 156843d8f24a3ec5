package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/clock/system"
	idgen "github.com/JakeFAU/hn-archiver/internal/id/uuid"
	pubmemory "github.com/JakeFAU/hn-archiver/internal/publisher/memory"
	"github.com/JakeFAU/hn-archiver/internal/store/memory"
)

var runID = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")

// fakeSource serves stories for every id up to max except those marked absent
// or failing.
type fakeSource struct {
	mu      sync.Mutex
	max     int64
	maxErr  error
	absent  map[int64]bool
	failing map[int64]bool
	titles  map[int64]string
	onItem  func(ctx context.Context, id int64) error
	calls   []int64
}

func newFakeSource(maxID int64) *fakeSource {
	return &fakeSource{
		max:     maxID,
		absent:  map[int64]bool{},
		failing: map[int64]bool{},
		titles:  map[int64]string{},
	}
}

func (f *fakeSource) MaxItemID(context.Context) (int64, error) {
	return f.max, f.maxErr
}

func (f *fakeSource) Item(ctx context.Context, id int64) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	absent, failing, title := f.absent[id], f.failing[id], f.titles[id]
	hook := f.onItem
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, id); err != nil {
			return nil, err
		}
	}
	switch {
	case absent:
		return nil, nil
	case failing:
		return nil, fmt.Errorf("status 503: %w", archive.ErrRemoteUnavailable)
	}
	if title == "" {
		title = fmt.Sprintf("story %d", id)
	}
	return fmt.Appendf(nil, `{"id":%d,"type":"story","by":"pg","time":1160418111,"title":%q}`, id, title), nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) requested() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func newRunner(t *testing.T, cfg Config, deps Deps) *Runner {
	t.Helper()
	if deps.IDs == nil {
		deps.IDs = idgen.Static(runID)
	}
	if deps.Clock == nil {
		deps.Clock = system.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	}
	r, err := New(cfg, deps)
	require.NoError(t, err)
	return r
}

func TestRunArchivesWholeRange(t *testing.T) {
	t.Parallel()

	source := newFakeSource(10)
	source.absent[3] = true
	source.failing[7] = true
	store := memory.NewStore()

	r := newRunner(t, Config{Concurrency: 4, CommitEvery: 3}, Deps{Source: source, Store: store})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, runID, summary.RunID)
	assert.Equal(t, 10, summary.Planned)
	assert.Equal(t, int64(8), summary.Counters.Succeeded)
	assert.Equal(t, int64(8), summary.Counters.Inserted)
	assert.Equal(t, int64(1), summary.Counters.Failed)
	assert.Equal(t, int64(1), summary.Counters.Absent)
	assert.Equal(t, int64(10), summary.Counters.Processed)
	assert.False(t, summary.Cancelled)
	assert.Empty(t, summary.Err)
	assert.Equal(t, []int64{1, 2, 4, 5, 6, 8, 9, 10}, store.IDs())
}

func TestRunCapsNewestItemsWhenDescending(t *testing.T) {
	t.Parallel()

	source := newFakeSource(100)
	store := memory.NewStore()

	r := newRunner(t, Config{Concurrency: 2, MaxItems: 5, Direction: archive.Descending}, Deps{Source: source, Store: store})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Planned)
	assert.Equal(t, []int64{96, 97, 98, 99, 100}, store.IDs())
}

func TestRunHonorsMinItemID(t *testing.T) {
	t.Parallel()

	source := newFakeSource(10)
	store := memory.NewStore()

	r := newRunner(t, Config{Concurrency: 1, MinItemID: 8, Direction: archive.Ascending}, Deps{Source: source, Store: store})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Planned)
	assert.Equal(t, []int64{8, 9, 10}, source.requested())
}

func TestRunWithEmptyRange(t *testing.T) {
	t.Parallel()

	source := newFakeSource(5)
	store := memory.NewStore()

	r := newRunner(t, Config{MinItemID: 50}, Deps{Source: source, Store: store})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Planned)
	assert.Zero(t, summary.Counters.Processed)
	assert.Empty(t, source.requested())
}

func TestRunSkipsExistingAndRetriesAbsentLater(t *testing.T) {
	t.Parallel()

	source := newFakeSource(6)
	source.absent[4] = true
	source.failing[5] = true
	store := memory.NewStore()

	r := newRunner(t, Config{Concurrency: 3}, Deps{Source: source, Store: store})
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 6}, store.IDs())

	source.set(func(f *fakeSource) {
		f.absent = map[int64]bool{}
		f.failing = map[int64]bool{}
		f.calls = nil
	})

	second, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, second.Planned)
	assert.Equal(t, int64(4), second.Counters.Skipped)
	assert.Equal(t, int64(2), second.Counters.Inserted)
	assert.ElementsMatch(t, []int64{4, 5}, source.requested())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, store.IDs())
}

func TestRunMergeUpdatesExistingItems(t *testing.T) {
	t.Parallel()

	source := newFakeSource(3)
	store := memory.NewStore()
	old := "old"
	store.Seed(archive.Item{ID: 2, Title: &old})
	source.titles[2] = "new"

	r := newRunner(t, Config{Concurrency: 2, Policy: archive.PolicyMerge}, Deps{Source: source, Store: store})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Planned)
	assert.Equal(t, int64(2), summary.Counters.Inserted)
	assert.Equal(t, int64(1), summary.Counters.Updated)
	assert.Zero(t, summary.Counters.Skipped)

	item, ok := store.Get(2)
	require.True(t, ok)
	require.NotNil(t, item.Title)
	assert.Equal(t, "new", *item.Title)
}

func TestRunCancellationKeepsFetchedItems(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := newFakeSource(50)
	source.onItem = func(ctx context.Context, id int64) error {
		if id == 10 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	store := memory.NewStore()

	r := newRunner(t, Config{Concurrency: 1, Direction: archive.Ascending, CommitEvery: 4}, Deps{Source: source, Store: store})
	summary, err := r.Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 50, summary.Planned)
	assert.Equal(t, int64(9), summary.Counters.Processed)
	assert.Equal(t, int64(9), summary.Counters.Succeeded)
	assert.Equal(t, 9, store.Len())
}

func TestRunPublishesSummary(t *testing.T) {
	t.Parallel()

	source := newFakeSource(4)
	store := memory.NewStore()
	pub := pubmemory.New()

	r := newRunner(t, Config{Concurrency: 2, Topic: "hn-runs"}, Deps{Source: source, Store: store, Publisher: pub})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hn-runs", msgs[0].Topic)
	assert.Equal(t, summary, msgs[0].Payload)
	assert.Contains(t, string(msgs[0].Data), `"run_id":"`+runID.String()+`"`)
}

func TestRunWithoutTopicDoesNotPublish(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	r := newRunner(t, Config{}, Deps{Source: newFakeSource(2), Store: memory.NewStore(), Publisher: pub})
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pub.Messages())
}

func TestRunPublishFailureIsLoggedOnly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	pub := pubmemory.New()
	pub.FailWith(errors.New("broker down"))

	r := newRunner(t, Config{Topic: "hn-runs"}, Deps{
		Source:    newFakeSource(2),
		Store:     memory.NewStore(),
		Publisher: pub,
		Logger:    zap.New(core),
	})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Counters.Succeeded)
	assert.Equal(t, 1, logs.FilterMessage("publish run summary failed").Len())
}

func TestRunMaxItemIDFailure(t *testing.T) {
	t.Parallel()

	source := newFakeSource(0)
	source.maxErr = fmt.Errorf("dial: %w", archive.ErrRemoteUnavailable)

	r := newRunner(t, Config{}, Deps{Source: source, Store: memory.NewStore()})
	summary, err := r.Run(context.Background())
	require.ErrorIs(t, err, archive.ErrRemoteUnavailable)
	assert.Contains(t, summary.Err, "fetch max item id")
	assert.Empty(t, source.requested())
}

func TestNewRequiresSourceAndStore(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{Store: memory.NewStore()})
	require.Error(t, err)
	_, err = New(Config{}, Deps{Source: newFakeSource(1)})
	require.Error(t, err)
}
