package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdul-hamid-achik/requester/packages/core/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalOptions holds the persistent flags and what PersistentPreRunE
// derives from them
type globalOptions struct {
	configPath string
	verbose    int
	noColor    bool

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{
		cfg:    config.DefaultConfig(),
		logger: zerolog.Nop(),
	}

	rootCmd := &cobra.Command{
		Use:   "requester",
		Short: "Send HTTP requests and inspect what came back.",
		Long: `requester builds one HTTP request from flags, sends it and shows the
response: status, headers, timing, remote address and body. Checks and
extractions run against the captured response, and every exchange can be
dumped as JSON or YAML or kept in a local history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", getEnvString("REQUESTER_CONFIG", ""), "Path to config file (env: REQUESTER_CONFIG)")
	rootCmd.PersistentFlags().CountVarP(&g.verbose, "verbose", "v", "Verbose output (-v for headers and debug logs, -vv for trace logs)")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(newRequestCmd(g))
	for _, method := range shortcutMethods {
		rootCmd.AddCommand(newShortcutCmd(g, method))
	}
	rootCmd.AddCommand(newStressCmd(g))
	rootCmd.AddCommand(newHistoryCmd(g))
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// load reads the config file and environment, then sets up logging
func (g *globalOptions) load(stderr io.Writer) error {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	g.cfg = cfg
	if cfg.GetNoColor() {
		g.noColor = true
	}

	level := cfg.Level()
	switch {
	case g.verbose >= 2:
		level = zerolog.TraceLevel
	case g.verbose == 1:
		level = zerolog.DebugLevel
	}

	g.logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        stderr,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    g.noColor,
	}).Level(level).With().Timestamp().Logger()

	g.logger.Debug().Str("config", g.configPath).Str("level", level.String()).Msg("configuration loaded")
	return nil
}

// Execute runs the CLI and exits with the code matching the returned error
func Execute(v, bt string) {
	version = v
	buildTime = bt

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Silent {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
