package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/spf13/cobra"
)

// annotationNoApp marks commands that run without an App.
const annotationNoApp = "reslot/no-app"

var (
	cfgFile string
	verbose bool
	logger  = slog.Default()

	initializer Initializer
	cleanup     func()
)

// Initializer builds the App once flags are parsed. The returned func
// releases whatever the App holds.
type Initializer func(ctx context.Context) (*App, func(), error)

type startedKey struct{}

var rootCmd = &cobra.Command{
	Use:   "reslot",
	Short: "reslot - find a new time for a meeting",
	Long: `reslot looks up the busy time of everyone invited to a meeting,
offers the first free slots they share and moves the meeting to the
slot you pick.

Sessions live for a few minutes; pick a slot before they expire.`,
	SilenceUsage:      true,
	PersistentPreRunE: beforeCommand,
	PersistentPostRun: afterCommand,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path (overrides RESLOT_CONFIG)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// beforeCommand tags the command's context for logging and builds the App
// unless the command opts out.
func beforeCommand(cmd *cobra.Command, _ []string) error {
	if verbose {
		logger = observability.NewLogger(observability.LogConfig{Level: slog.LevelDebug, Output: cmd.ErrOrStderr()})
	}
	if cfgFile != "" {
		if err := os.Setenv("RESLOT_CONFIG", cfgFile); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithCorrelationID(ctx, "")
	ctx = observability.WithLogAttrs(ctx, "command", cmd.CommandPath())
	ctx = context.WithValue(ctx, startedKey{}, time.Now())
	cmd.SetContext(ctx)
	logger.DebugContext(ctx, "command start")

	if app != nil || initializer == nil || cmd.Annotations[annotationNoApp] == "true" {
		return nil
	}
	built, release, err := initializer(ctx)
	if err != nil {
		return err
	}
	app, cleanup = built, release
	return nil
}

func afterCommand(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	started, ok := ctx.Value(startedKey{}).(time.Time)
	if !ok {
		return
	}
	logger.DebugContext(ctx, "command end", "duration_ms", time.Since(started).Milliseconds())
}

// Execute runs the command tree and exits non-zero on error.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// WithoutApp marks cmd to run without building the App.
func WithoutApp(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationNoApp] = "true"
	return cmd
}

// SetInitializer sets how the App is built before a command runs.
func SetInitializer(fn Initializer) {
	initializer = fn
}

func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
