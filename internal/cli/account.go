package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"one-plate/internal/locale"
	"one-plate/internal/session"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store the identity token and load your data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, false, func(s *session.Session, out *OutputFormatter) error {
				if err := s.SetToken(cmd.Context(), args[0]); err != nil {
					return out.Fail(err)
				}
				data := map[string]int{"favorites": s.Favorites.Len(), "items": len(s.Shopping.Items())}
				return out.Success(data, func(w io.Writer) {
					fmt.Fprintf(w, "Signed in. %d favorites, %d items on your list.\n", data["favorites"], data["items"])
				})
			})
		},
	}
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the identity token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, false, func(s *session.Session, out *OutputFormatter) error {
				if err := s.ClearToken(cmd.Context()); err != nil {
					return out.Fail(err)
				}
				return out.Success(map[string]bool{"signedIn": false}, func(w io.Writer) {
					fmt.Fprintln(w, "Signed out.")
				})
			})
		},
	}
}

// NewLocaleCommand creates the locale command.
func NewLocaleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locale [tag]",
		Short: "Show or set the language sent to the server",
		Long: "Show or set the language sent to the server.\n\nSupported: " +
			strings.Join(locale.Names(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, false, func(s *session.Session, out *OutputFormatter) error {
				current := s.Locale()
				if len(args) == 1 {
					var err error
					if current, err = s.SetLocale(cmd.Context(), args[0]); err != nil {
						return out.Fail(err)
					}
				}
				return out.Success(map[string]string{"locale": current}, func(w io.Writer) {
					fmt.Fprintln(w, current)
				})
			})
		},
	}
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reload favorites and the shopping list from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, true, func(s *session.Session, out *OutputFormatter) error {
				if s.MountErr != nil {
					return out.Fail(s.MountErr)
				}
				data := map[string]int{"favorites": s.Favorites.Len(), "items": len(s.Shopping.Items())}
				return out.Success(data, func(w io.Writer) {
					fmt.Fprintf(w, "Synced %d favorites and %d items.\n", data["favorites"], data["items"])
				})
			})
		},
	}
}
