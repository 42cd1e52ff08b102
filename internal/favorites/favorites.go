// Package favorites keeps the user's favorite recipes: an id set backed by a
// denormalized list of the full recipes.
package favorites

import (
	"context"

	"one-plate/internal/errs"
	"one-plate/internal/optimistic"
	"one-plate/internal/recipe"
)

// Gateway is the part of the backend API favorites need.
type Gateway interface {
	ListFavorites(ctx context.Context) ([]recipe.Recipe, error)
	AddFavorite(ctx context.Context, recipeID string) error
	RemoveFavorite(ctx context.Context, recipeID string) error
}

// Service owns the favorite set. Membership is derived from the recipe list,
// so an id is in the set exactly when its recipe is in the list.
type Service struct {
	gw      Gateway
	recipes *optimistic.Collection[recipe.Recipe]
	d       *optimistic.Dispatcher[recipe.Recipe]
}

// NewService starts a service with an empty set.
func NewService(gw Gateway, opts ...optimistic.Option) *Service {
	recipes := optimistic.NewCollection(
		func(r recipe.Recipe) string { return r.ID },
		func(r recipe.Recipe, id string) recipe.Recipe { r.ID = id; return r },
	)
	return &Service{
		gw:      gw,
		recipes: recipes,
		d:       optimistic.NewDispatcher("favorites", recipes, opts...),
	}
}

// Close stops the dispatcher.
func (s *Service) Close() {
	s.d.Close()
}

// Sync replaces the local set with the backend's favorites.
func (s *Service) Sync(ctx context.Context) error {
	p, err := s.d.Submit(optimistic.Mutation[recipe.Recipe]{
		Op: "sync",
		Call: func(ctx context.Context) ([]optimistic.Delta[recipe.Recipe], error) {
			list, err := s.gw.ListFavorites(ctx)
			if err != nil {
				return nil, err
			}
			return []optimistic.Delta[recipe.Recipe]{optimistic.ReplaceOf(dedupe(list))}, nil
		},
	})
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

// Unsent returns the number of local changes still waiting to be sent.
func (s *Service) Unsent() int {
	return s.d.Queued()
}

// Flush waits until every change submitted so far has resolved.
func (s *Service) Flush(ctx context.Context) error {
	return s.d.Barrier(ctx)
}

// Reset forgets the local set without telling the backend.
func (s *Service) Reset() error {
	_, err := s.d.Submit(optimistic.Mutation[recipe.Recipe]{
		Op:      "reset",
		Forward: []optimistic.Delta[recipe.Recipe]{optimistic.ReplaceOf[recipe.Recipe](nil)},
	})
	return err
}

// Toggle adds r to the favorites, or removes it when it is already there.
func (s *Service) Toggle(r recipe.Recipe) (*optimistic.Pending[recipe.Recipe], error) {
	if r.ID == "" {
		return nil, errs.Validationf("toggle_favorite", "Recipe has no id")
	}

	if s.recipes.Has(r.ID) {
		return s.d.Submit(optimistic.Mutation[recipe.Recipe]{
			Op:      "unfavorite",
			Keys:    []string{r.ID},
			Forward: []optimistic.Delta[recipe.Recipe]{optimistic.RemoveOf[recipe.Recipe](r.ID)},
			Call: func(ctx context.Context) ([]optimistic.Delta[recipe.Recipe], error) {
				err := s.gw.RemoveFavorite(ctx, r.ID)
				if err != nil && !errs.Is(err, errs.NotFound) {
					return nil, err
				}
				return nil, nil
			},
		})
	}

	return s.d.Submit(optimistic.Mutation[recipe.Recipe]{
		Op:      "favorite",
		Keys:    []string{r.ID},
		Forward: []optimistic.Delta[recipe.Recipe]{optimistic.InsertOf(r)},
		Call: func(ctx context.Context) ([]optimistic.Delta[recipe.Recipe], error) {
			return nil, s.gw.AddFavorite(ctx, r.ID)
		},
	})
}

// IsFavorite reports whether the recipe is in the set.
func (s *Service) IsFavorite(recipeID string) bool {
	return s.recipes.Has(recipeID)
}

// IDs returns the favorite recipe ids in list order.
func (s *Service) IDs() []string {
	snap := s.recipes.Snapshot()
	ids := make([]string, len(snap))
	for i, r := range snap {
		ids[i] = r.ID
	}
	return ids
}

// Recipes returns the cached favorite recipes. The slice must not be modified.
func (s *Service) Recipes() []recipe.Recipe {
	return s.recipes.Snapshot()
}

// Get returns the cached recipe.
func (s *Service) Get(recipeID string) (recipe.Recipe, bool) {
	return s.recipes.Get(recipeID)
}

// Len returns the number of favorites.
func (s *Service) Len() int {
	return s.recipes.Len()
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(list []recipe.Recipe) []recipe.Recipe {
	seen := make(map[string]bool, len(list))
	out := make([]recipe.Recipe, 0, len(list))
	for _, r := range list {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}
