package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"one-plate/internal/errs"
	"one-plate/internal/session"
	"one-plate/internal/shopping"
	"one-plate/internal/view"
)

// NewListCommand creates the shopping list command group.
func NewListCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show and change the shopping list",
	}
	cmd.AddCommand(newListShowCommand(opts))
	cmd.AddCommand(newListAddCommand(opts))
	cmd.AddCommand(newListToggleCommand(opts))
	cmd.AddCommand(newListUpdateCommand(opts))
	cmd.AddCommand(newListRemoveCommand(opts))
	cmd.AddCommand(newListClearPurchasedCommand(opts))
	cmd.AddCommand(newListClearCommand(opts))
	cmd.AddCommand(newListStatsCommand(opts))
	cmd.AddCommand(newListAddRecipeCommand(opts))
	return cmd
}

// mounted runs fn on a synced session; it fails when the sync did.
func mounted(cmd *cobra.Command, opts *RootOptions, fn func(s *session.Session, out *OutputFormatter) error) error {
	return withSession(cmd, opts, true, func(s *session.Session, out *OutputFormatter) error {
		if s.MountErr != nil {
			return out.Fail(s.MountErr)
		}
		return fn(s, out)
	})
}

func newListShowCommand(opts *RootOptions) *cobra.Command {
	var grouped, pending bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the shopping list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				items := s.Shopping.Items()
				if pending {
					items = s.Shopping.PendingItems()
				}
				if grouped {
					groups := shopping.GroupByRecipe(items)
					return out.Success(groups, func(w io.Writer) { view.Groups(w, groups) })
				}
				return out.Success(items, func(w io.Writer) { view.Items(w, items) })
			})
		},
	}
	cmd.Flags().BoolVarP(&grouped, "group", "g", false, "group items by recipe")
	cmd.Flags().BoolVar(&pending, "pending", false, "only items not yet purchased")
	return cmd
}

func newListAddCommand(opts *RootOptions) *cobra.Command {
	var in shopping.NewItem
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				p, err := s.Shopping.AddItem(in)
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				it, _ := s.Shopping.Get(p.Key())
				return out.Success(it, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s.\n", it.Label())
				})
			})
		},
	}
	cmd.Flags().StringVarP(&in.Quantity, "qty", "q", "", "quantity")
	cmd.Flags().StringVarP(&in.Unit, "unit", "u", "", "unit")
	return cmd
}

func newListToggleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <itemId>",
		Short: "Mark an item purchased or not purchased",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				p, err := s.Shopping.TogglePurchased(args[0])
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				it, _ := s.Shopping.Get(args[0])
				return out.Success(it, func(w io.Writer) { view.Items(w, []shopping.Item{it}) })
			})
		},
	}
}

func newListUpdateCommand(opts *RootOptions) *cobra.Command {
	var name, qty, unit string
	cmd := &cobra.Command{
		Use:   "update <itemId>",
		Short: "Change an item's name, quantity or unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch shopping.Patch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("qty") {
				patch.Quantity = &qty
			}
			if cmd.Flags().Changed("unit") {
				patch.Unit = &unit
			}
			if patch == (shopping.Patch{}) {
				return NewExitError(ExitCommandError, "nothing to update: pass --name, --qty or --unit")
			}
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				p, err := s.Shopping.UpdateItem(args[0], patch)
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				it, _ := s.Shopping.Get(args[0])
				return out.Success(it, func(w io.Writer) { view.Items(w, []shopping.Item{it}) })
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "new name")
	cmd.Flags().StringVarP(&qty, "qty", "q", "", "new quantity")
	cmd.Flags().StringVarP(&unit, "unit", "u", "", "new unit")
	return cmd
}

func newListRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <itemId>",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				p, err := s.Shopping.RemoveItem(args[0])
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				return out.Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintln(w, "Removed.")
				})
			})
		},
	}
}

func newListClearPurchasedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-purchased",
		Short: "Remove every purchased item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				before := s.Shopping.Stats().Purchased
				p, err := s.Shopping.ClearPurchased()
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				return out.Success(map[string]int{"removed": before}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %d purchased items.\n", before)
				})
			})
		},
	}
}

func newListClearCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to clear the whole list without --yes")
			}
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				p, err := s.Shopping.ClearAll()
				if err := await(cmd.Context(), p, err); err != nil {
					return out.Fail(err)
				}
				return out.Success(s.Shopping.Stats(), func(w io.Writer) {
					fmt.Fprintln(w, "Shopping list cleared.")
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm clearing the list")
	return cmd
}

func newListStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				st := s.Shopping.Stats()
				return out.Success(st, func(w io.Writer) { view.Stats(w, st) })
			})
		},
	}
}

// batchJSON is the JSON shape of add-recipe output.
type batchJSON struct {
	Added  []shopping.Item `json:"added"`
	Failed []batchFailure  `json:"failed,omitempty"`
}

type batchFailure struct {
	Ingredient string `json:"ingredient"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

func newListAddRecipeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-recipe <recipeId>",
		Short: "Add every ingredient of a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mounted(cmd, opts, func(s *session.Session, out *OutputFormatter) error {
				r, err := s.Recipe(cmd.Context(), args[0])
				if err != nil {
					return out.Fail(err)
				}
				res, err := s.Shopping.AddItemsFromRecipe(cmd.Context(), r)
				if err != nil {
					return out.Fail(err)
				}

				data := batchJSON{Added: res.Added}
				for _, f := range res.Failed {
					data.Failed = append(data.Failed, batchFailure{
						Ingredient: f.Ingredient.String(),
						Kind:       errs.KindOf(f.Err).String(),
						Message:    errs.UserMessage(f.Err),
					})
				}
				if err := out.Success(data, func(w io.Writer) { view.Batch(w, r.Title, res) }); err != nil {
					return err
				}
				if len(res.Added) == 0 {
					return NewExitError(ExitFailure, "no ingredient could be added")
				}
				return nil
			})
		},
	}
}
