package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// downloadFlags maps flag names to config keys.
var downloadFlags = map[string]string{
	"db":                 "db.url",
	"parallel-downloads": "download.concurrency",
	"max-items":          "download.max_items",
	"min-item-id":        "download.min_item_id",
	"descending":         "download.descending",
	"existing":           "download.existing",
	"commit-every":       "download.commit_every",
	"log-errors":         "download.log_errors",
	"dry-run":            "download.dry_run",
	"status-addr":        "server.addr",
	"archive":            "archive.provider",
}

// newDownloadCmd creates the 'download' subcommand.
func newDownloadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Downloads Hacker News items into the configured store",
		Long: `Fetches every item id from --min-item-id up to the current max item id,
newest first by default, and stores them in batches. Ids already stored are
skipped unless --existing=merge is given.`,
		Args: cobra.NoArgs,
		RunE: withApp(runDownload),
	}

	f := cmd.Flags()
	f.String("db", "sqlite://hackernews.db", "database URL (sqlite://path, postgres://..., memory://)")
	f.Int("parallel-downloads", 16, "number of concurrent item fetches")
	f.Int("max-items", 0, "maximum number of ids to plan (0 = no limit)")
	f.Int64("min-item-id", 1, "lowest item id to download")
	f.Bool("descending", true, "download newest items first")
	f.String("existing", "skip", "what to do with stored ids: skip or merge")
	f.Int("commit-every", 1024, "number of writes per commit")
	f.Bool("log-errors", false, "log the cause of every failed item")
	f.Bool("dry-run", false, "keep items in memory instead of the database")
	f.String("status-addr", "", "serve health, metrics, and progress on this address")
	f.String("archive", "none", "raw payload archive provider: none, local, memory, gcs")
	for flag, key := range downloadFlags {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func runDownload(cmd *cobra.Command, appInstance App) error {
	logger := appInstance.Logger()

	runner, err := appInstance.Runner()
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}

	serveCtx, stopServe := context.WithCancel(cmd.Context())
	served := make(chan error, 1)
	go func() { served <- appInstance.Serve(serveCtx) }()

	summary, runErr := runner.Run(cmd.Context())

	stopServe()
	if err := <-served; err != nil {
		logger.Warn("status server stopped with error", zap.Error(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: planned %d, stored %d (%d new, %d updated), failed %d, absent %d, skipped %d%s\n",
		summary.RunID,
		summary.Planned,
		summary.Counters.Succeeded,
		summary.Counters.Inserted,
		summary.Counters.Updated,
		summary.Counters.Failed,
		summary.Counters.Absent,
		summary.Counters.Skipped,
		cancelledSuffix(summary.Cancelled),
	)
	if runErr != nil {
		return fmt.Errorf("download: %w", runErr)
	}
	return nil
}

func cancelledSuffix(cancelled bool) string {
	if cancelled {
		return " (cancelled)"
	}
	return ""
}
