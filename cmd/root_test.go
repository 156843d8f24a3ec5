package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/config"
)

type fakeRunner struct {
	summary archive.Summary
	err     error
	calls   int
}

func (r *fakeRunner) Run(context.Context) (archive.Summary, error) {
	r.calls++
	return r.summary, r.err
}

type fakeApp struct {
	runner    *fakeRunner
	runnerErr error
	closed    bool
	served    bool
}

func (a *fakeApp) Close(context.Context) { a.closed = true }
func (a *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) Serve(ctx context.Context) error {
	a.served = true
	<-ctx.Done()
	return nil
}

func (a *fakeApp) Runner() (Runner, error) {
	if a.runnerErr != nil {
		return nil, a.runnerErr
	}
	return a.runner, nil
}

// useFakeApp swaps the app factory and records the config it receives.
func useFakeApp(t *testing.T, fa *fakeApp, factoryErr error) *config.Config {
	t.Helper()
	var got config.Config
	prev := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		got = cfg
		if factoryErr != nil {
			return nil, factoryErr
		}
		return fa, nil
	}
	t.Cleanup(func() { newApp = prev })
	return &got
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDownload_FlagsOverrideDefaults(t *testing.T) {
	fa := &fakeApp{runner: &fakeRunner{summary: archive.Summary{
		RunID:   uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Planned: 7,
		Counters: archive.Counters{
			Succeeded: 5,
			Inserted:  4,
			Updated:   1,
			Failed:    1,
			Absent:    1,
		},
	}}}
	cfg := useFakeApp(t, fa, nil)

	out, err := execute(t, "download",
		"--db", "memory://",
		"--parallel-downloads", "3",
		"--max-items", "7",
		"--min-item-id", "100",
		"--descending=false",
		"--existing", "merge",
		"--commit-every", "10",
		"--log-errors",
		"--dry-run",
	)
	require.NoError(t, err)

	assert.Equal(t, "memory://", cfg.DB.URL)
	assert.Equal(t, 3, cfg.Download.Concurrency)
	assert.Equal(t, 7, cfg.Download.MaxItems)
	assert.Equal(t, int64(100), cfg.Download.MinItemID)
	assert.False(t, cfg.Download.Descending)
	assert.Equal(t, archive.PolicyMerge, cfg.Policy())
	assert.Equal(t, 10, cfg.Download.CommitEvery)
	assert.True(t, cfg.Download.LogErrors)
	assert.True(t, cfg.Download.DryRun)

	assert.Equal(t, 1, fa.runner.calls)
	assert.True(t, fa.closed)
	assert.True(t, fa.served)
	assert.Contains(t, out, "planned 7, stored 5 (4 new, 1 updated), failed 1, absent 1")
}

func TestDownload_Defaults(t *testing.T) {
	fa := &fakeApp{runner: &fakeRunner{}}
	cfg := useFakeApp(t, fa, nil)

	_, err := execute(t, "download")
	require.NoError(t, err)

	assert.Equal(t, "sqlite://hackernews.db", cfg.DB.URL)
	assert.Equal(t, 16, cfg.Download.Concurrency)
	assert.Zero(t, cfg.Download.MaxItems)
	assert.Equal(t, int64(1), cfg.Download.MinItemID)
	assert.Equal(t, archive.Descending, cfg.Direction())
	assert.Equal(t, archive.PolicySkip, cfg.Policy())
	assert.Equal(t, 1024, cfg.Download.CommitEvery)
}

func TestDownload_ConfigFileWithFlagOverride(t *testing.T) {
	fa := &fakeApp{runner: &fakeRunner{}}
	cfg := useFakeApp(t, fa, nil)

	path := filepath.Join(t.TempDir(), "hn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download:\n  concurrency: 5\n  max_items: 50\n"), 0o600))

	_, err := execute(t, "--config", path, "download", "--max-items", "9")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Download.Concurrency)
	assert.Equal(t, 9, cfg.Download.MaxItems)
}

func TestDownload_CancelledRunIsReported(t *testing.T) {
	fa := &fakeApp{runner: &fakeRunner{summary: archive.Summary{Cancelled: true}}}
	useFakeApp(t, fa, nil)

	out, err := execute(t, "download")
	require.NoError(t, err)
	assert.Contains(t, out, "(cancelled)")
}

func TestDownload_RunErrorIsReturned(t *testing.T) {
	fa := &fakeApp{runner: &fakeRunner{err: archive.ErrStorageFault}}
	useFakeApp(t, fa, nil)

	_, err := execute(t, "download")
	require.ErrorIs(t, err, archive.ErrStorageFault)
	assert.True(t, fa.closed)
}

func TestDownload_RunnerBuildError(t *testing.T) {
	fa := &fakeApp{runnerErr: errors.New("no source")}
	useFakeApp(t, fa, nil)

	_, err := execute(t, "download")
	require.ErrorContains(t, err, "build runner")
}

func TestDownload_InvalidConfigSkipsAppInit(t *testing.T) {
	called := false
	prev := newApp
	newApp = func(context.Context, config.Config) (App, error) {
		called = true
		return &fakeApp{}, nil
	}
	t.Cleanup(func() { newApp = prev })

	_, err := execute(t, "download", "--existing", "overwrite")
	require.ErrorContains(t, err, "load config")
	assert.False(t, called)
}

func TestDownload_AppInitFailure(t *testing.T) {
	useFakeApp(t, nil, errors.New("db down"))

	_, err := execute(t, "download")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestDownload_RejectsArguments(t *testing.T) {
	useFakeApp(t, &fakeApp{runner: &fakeRunner{}}, nil)

	_, err := execute(t, "download", "extra")
	require.Error(t, err)
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
