// Package cmd implements the georeport command line client.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-report-client/internal/apiclient"
	"github.com/JakeFAU/geo-report-client/internal/app"
	"github.com/JakeFAU/geo-report-client/internal/config"
	"github.com/JakeFAU/geo-report-client/internal/logging"
	"github.com/JakeFAU/geo-report-client/internal/runner"
	"github.com/JakeFAU/geo-report-client/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows tests to inject an app wired to fake backends.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Client() *apiclient.Client
	NewRunner() *runner.Runner
	NewTracker() *tracker.Tracker
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options) (App, error) {
	return app.NewApp(ctx, cfg, opts)
}

type rootFlags struct {
	cfgFile string
	dev     bool
	noColor bool
}

// session owns the app built for one invocation so it is closed even when
// the command fails.
type session struct {
	app App
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.app.Close(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() (*cobra.Command, *session) {
	var flags rootFlags
	s := &session{}
	cmd := &cobra.Command{
		Use:   "georeport",
		Short: "Run and track AI visibility analyses.",
		Long: `georeport drives the GEO/AEO analysis backend: it generates queries for a
company, runs analyses in the foreground with live progress, and tracks any
number of analyses in the background with completion notifications.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the app after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if flags.dev {
				cfg.Logging.Development = true
			}
			logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, app.Options{
				Logger:  logger,
				Console: cmd.OutOrStdout(),
				Colors:  useColors(flags.noColor),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			s.app = appInstance
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (defaults and GEOREPORT_* environment variables otherwise)")
	cmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "human readable debug logging")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newQueriesCmd(),
		newRunCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newDeleteCmd(),
		newHealthCmd(),
	)

	return cmd, s
}

func appFrom(cmd *cobra.Command) App {
	if cmd.Context() == nil {
		return nil
	}
	a, _ := cmd.Context().Value(appKey).(App)
	return a
}

func useColors(disabled bool) bool {
	if disabled || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// run executes the command line in args and closes the app afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, s := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if closeErr := s.close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("shutdown: %w", closeErr))
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		Fatal(os.Stderr, err)
	}
}
