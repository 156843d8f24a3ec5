// Package cmd defines and implements the CLI commands for the hn-archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/app"
	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/config"
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner executes one download run.
type Runner interface {
	Run(ctx context.Context) (archive.Summary, error)
}

// App defines the application interface that commands use. Tests inject a
// fake through newApp.
type App interface {
	Close(ctx context.Context)
	Logger() *zap.Logger
	Runner() (Runner, error)
	Serve(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Runner() (Runner, error) {
	r, err := a.App.Runner()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// newRootCmd creates and configures the root command. Flags of every
// subcommand are bound into v, which config.Load then reads.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "hn-archiver",
		Short: "Archives Hacker News items into a relational store.",
		Long: `hn-archiver downloads Hacker News items from the public Firebase API
and stores them in SQLite or PostgreSQL. Runs are resumable: ids already
stored are skipped (or merged) on the next run.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hn-archiver.yaml)")
	cmd.PersistentFlags().Bool("dev-logs", false, "human-readable development logging")
	_ = v.BindPFlag("logging.development", cmd.PersistentFlags().Lookup("dev-logs"))

	cmd.AddCommand(newDownloadCmd(v))
	return cmd
}

// withApp resolves the App stored by PersistentPreRunE and closes it once fn
// returns. PersistentPostRun is skipped when RunE fails, so closing happens
// here instead.
func withApp(fn func(cmd *cobra.Command, appInstance App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
			defer cancel()
			appInstance.Close(ctx)
		}()
		return fn(cmd, appInstance)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command; a cancelled download still commits what it fetched.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(viper.New()).ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
