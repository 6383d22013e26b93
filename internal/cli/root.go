package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	charmlog "github.com/charmbracelet/log"
	"github.com/cruciblehq/bundlegen/internal"
	"github.com/cruciblehq/bundlegen/internal/matcher"
)

// Represents the root command for bundlegen.
var RootCmd struct {
	Quiet    bool        `short:"q" help:"Suppress informational output."`
	Verbose  bool        `short:"v" help:"Enable verbose output."`
	Debug    bool        `short:"d" help:"Enable debug output."`
	Generate GenerateCmd `cmd:"" help:"Generate an OCI bundle for a platform."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Generates OCI bundles from OCI images for RDK devices.\n\nThe image is expected to be unpacked into the rootfs directory of the bundle."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
			"modes":   strings.Join(matcher.ModeNames(), ","),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	logger, ok := slog.Default().Handler().(*charmlog.Logger)
	if !ok {
		return // Not a charm logger, nothing to configure
	}

	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	// Configure formatter
	if isatty(os.Stderr) {
		logger.SetFormatter(charmlog.TextFormatter)
	} else {
		logger.SetFormatter(charmlog.LogfmtFormatter)
	}
	logger.SetReportTimestamp(verbose)

	// Configure level
	if debug {
		logger.SetLevel(charmlog.DebugLevel)
	} else if quiet {
		logger.SetLevel(charmlog.WarnLevel)
	} else {
		logger.SetLevel(charmlog.InfoLevel)
	}

	// Commit
	logger.SetOutput(os.Stderr)
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
