// Package cli implements the jobsql command line tool.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vjain20/gojobsql/jobsql"
)

var version = "dev"

// openFunc builds the query service a profile points at.
type openFunc func(ctx context.Context, p Profile) (jobsql.Service, error)

// Execute runs the CLI.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(openService)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootOptions holds the persistent flags and what PersistentPreRunE
// resolves from them.
type rootOptions struct {
	configPath string
	profile    string
	logLevel   string
	output     string

	open   openFunc
	active Profile
	logger *slog.Logger
}

func newRootCmd(open openFunc) *cobra.Command {
	opts := &rootOptions{open: open}

	rootCmd := &cobra.Command{
		Use:           "jobsql",
		Short:         "Run SQL as asynchronous query jobs",
		Long:          "Submit SQL to Snowflake or BigQuery, wait for the job and print its result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", ConfigPath(), "Config file")
	rootCmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "Output format (table, json); table on a terminal, json otherwise")

	rootCmd.AddCommand(newQueryCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func (o *rootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := LoadUserConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.active, err = cfg.ActiveProfile(o.profile); err != nil {
		return err
	}

	if o.output == "" {
		o.output = "json"
		if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			o.output = "table"
		}
	}
	if o.output != "table" && o.output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", o.output)
	}

	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slogLevel(o.logLevel)}))
	return nil
}

// slogLevel maps a level name to an slog.Level, defaulting to info.
func slogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "jobsql", version)
			return err
		},
	}
}
