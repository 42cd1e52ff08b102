package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"one-plate/internal/session"
	"one-plate/internal/view"
)

// NewFavoritesCommand creates the favorites command group.
func NewFavoritesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List and toggle favorite recipes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorite recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, true, func(s *session.Session, out *OutputFormatter) error {
				if s.MountErr != nil {
					return out.Fail(s.MountErr)
				}
				rs := s.Favorites.Recipes()
				return out.Success(rs, func(w io.Writer) { view.Favorites(w, rs) })
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <recipeId>",
		Short: "Add or remove a recipe from your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, true, func(s *session.Session, out *OutputFormatter) error {
				if s.MountErr != nil {
					return out.Fail(s.MountErr)
				}
				p, err := s.ToggleFavorite(cmd.Context(), args[0])
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				fav := s.Favorites.IsFavorite(args[0])
				return out.Success(map[string]any{"recipeId": args[0], "favorite": fav}, func(w io.Writer) {
					if fav {
						fmt.Fprintf(w, "Added %s to favorites.\n", args[0])
					} else {
						fmt.Fprintf(w, "Removed %s from favorites.\n", args[0])
					}
				})
			})
		},
	})
	return cmd
}
