// Package cli implements the oneplate command line client.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"one-plate/internal/config"
	"one-plate/internal/session"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Opener creates the session a command works on. mount reports whether the
// initial sync should run.
type Opener func(ctx context.Context, opts *RootOptions, mount bool) (*session.Session, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool

	open Opener
}

// NewRootCommand creates the root command. A nil opener uses OpenSession.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenSession
	}
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "oneplate",
		Short: "One Plate shopping list and favorites",
		Long: `Manage your One Plate shopping list and favorite recipes.

Changes show up immediately and are sent to the server in the background;
if the server rejects one it is undone and the reason is printed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewLocaleCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewFavoritesCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))

	return cmd
}

// OpenSession loads the configuration and opens a session on it.
func OpenSession(ctx context.Context, opts *RootOptions, mount bool) (*session.Session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return session.Open(ctx, session.Options{
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		SkipMount: !mount,
	})
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, opts *RootOptions, mount bool, fn func(s *session.Session, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := opts.open(ctx, opts, mount)
	if err != nil {
		return err
	}
	defer s.Close()

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if mount && s.MountErr != nil {
		out.VerboseLog("initial sync failed: %v", s.MountErr)
	}
	return fn(s, out)
}
