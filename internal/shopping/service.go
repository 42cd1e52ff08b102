package shopping

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"one-plate/internal/errs"
	"one-plate/internal/optimistic"
	"one-plate/internal/recipe"
)

// Gateway is the part of the backend API the shopping list needs.
type Gateway interface {
	ListItems(ctx context.Context) ([]Item, error)
	AddItem(ctx context.Context, in NewItem) (Item, error)
	TogglePurchased(ctx context.Context, id string) (Item, error)
	UpdateItem(ctx context.Context, id string, in ItemUpdate) (Item, error)
	RemoveItem(ctx context.Context, id string) error
	ClearPurchased(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// Service owns the local shopping list and keeps it in step with the backend.
type Service struct {
	gw    Gateway
	items *optimistic.Collection[Item]
	d     *optimistic.Dispatcher[Item]
	now   func() time.Time
}

// NewService starts a service with an empty list. Call Sync to load it and
// Close to stop the dispatcher.
func NewService(gw Gateway, opts ...optimistic.Option) *Service {
	items := optimistic.NewCollection(itemKey, withItemKey)
	return &Service{
		gw:    gw,
		items: items,
		d:     optimistic.NewDispatcher("shopping", items, opts...),
		now:   time.Now,
	}
}

// Close stops the dispatcher. Unsent changes are rolled back.
func (s *Service) Close() {
	s.d.Close()
}

// Sync replaces the local list with the backend's. Changes queued after the
// refresh are replayed on top of the new list. On failure the list is kept.
func (s *Service) Sync(ctx context.Context) error {
	p, err := s.d.Submit(optimistic.Mutation[Item]{
		Op: "sync",
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			items, err := s.gw.ListItems(ctx)
			if err != nil {
				return nil, err
			}
			return []optimistic.Delta[Item]{optimistic.ReplaceOf(items)}, nil
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

// Reset empties the local list without telling the backend. Used on logout.
func (s *Service) Reset() error {
	_, err := s.d.Submit(optimistic.Mutation[Item]{
		Op:      "reset",
		Forward: []optimistic.Delta[Item]{optimistic.ReplaceOf[Item](nil)},
	})
	return err
}

// AddItem inserts the item under a temporary id and asks the backend to
// create it. On success the entry is re-keyed to the server id; the
// temporary id keeps resolving to it.
func (s *Service) AddItem(in NewItem) (*optimistic.Pending[Item], error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Quantity = strings.TrimSpace(in.Quantity)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Name == "" {
		return nil, errs.Validationf("add_item", "Item name is required")
	}

	tmp := Item{
		ID:          TempIDPrefix + uuid.NewString(),
		Name:        in.Name,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		RecipeID:    in.RecipeID,
		RecipeTitle: in.RecipeTitle,
		AddedAt:     s.now().UTC(),
	}

	return s.d.Submit(optimistic.Mutation[Item]{
		Op:      "add_item",
		Keys:    []string{tmp.ID},
		Forward: []optimistic.Delta[Item]{optimistic.InsertOf(tmp)},
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			created, err := s.gw.AddItem(ctx, in)
			if err != nil {
				return nil, err
			}
			if created.RecipeTitle == "" {
				created.RecipeTitle = in.RecipeTitle
			}
			if created.ID != tmp.ID && s.items.Has(created.ID) {
				return []optimistic.Delta[Item]{
					optimistic.RemoveOf[Item](tmp.ID),
					optimistic.UpdateOf(created),
				}, nil
			}
			return []optimistic.Delta[Item]{optimistic.RekeyOf(tmp.ID, created)}, nil
		},
	})
}

// TogglePurchased flips the purchased flag of the item.
func (s *Service) TogglePurchased(id string) (*optimistic.Pending[Item], error) {
	cur, ok := s.items.Get(id)
	if !ok {
		return nil, errs.NotFoundf("toggle_purchased", "Item %q is no longer on the list", id)
	}
	next := cur
	next.IsPurchased = !cur.IsPurchased

	return s.d.Submit(optimistic.Mutation[Item]{
		Op:      "toggle_purchased",
		Keys:    []string{cur.ID},
		Forward: []optimistic.Delta[Item]{optimistic.UpdateOf(next)},
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			updated, err := s.gw.TogglePurchased(ctx, s.items.Resolve(cur.ID))
			if err != nil {
				return nil, err
			}
			return []optimistic.Delta[Item]{optimistic.UpdateOf(s.keepLocal(updated, next))}, nil
		},
	})
}

// UpdateItem edits name, quantity or unit.
func (s *Service) UpdateItem(id string, patch Patch) (*optimistic.Pending[Item], error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, errs.Validationf("update_item", "Item name is required")
	}
	cur, ok := s.items.Get(id)
	if !ok {
		return nil, errs.NotFoundf("update_item", "Item %q is no longer on the list", id)
	}
	next := patch.applyTo(cur)

	return s.d.Submit(optimistic.Mutation[Item]{
		Op:      "update_item",
		Keys:    []string{cur.ID},
		Forward: []optimistic.Delta[Item]{optimistic.UpdateOf(next)},
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			updated, err := s.gw.UpdateItem(ctx, s.items.Resolve(cur.ID), ItemUpdate{
				Name:     next.Name,
				Quantity: next.Quantity,
				Unit:     next.Unit,
			})
			if err != nil {
				return nil, err
			}
			return []optimistic.Delta[Item]{optimistic.UpdateOf(s.keepLocal(updated, next))}, nil
		},
	})
}

// RemoveItem deletes the item. A NotFound answer from the backend counts as
// success: the item is gone either way.
func (s *Service) RemoveItem(id string) (*optimistic.Pending[Item], error) {
	cur, ok := s.items.Get(id)
	if !ok {
		return nil, errs.NotFoundf("remove_item", "Item %q is no longer on the list", id)
	}

	return s.d.Submit(optimistic.Mutation[Item]{
		Op:      "remove_item",
		Keys:    []string{cur.ID},
		Forward: []optimistic.Delta[Item]{optimistic.RemoveOf[Item](cur.ID)},
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			err := s.gw.RemoveItem(ctx, s.items.Resolve(cur.ID))
			if err != nil && !errs.Is(err, errs.NotFound) {
				return nil, err
			}
			return nil, nil
		},
	})
}

// ClearPurchased removes every purchased item.
func (s *Service) ClearPurchased() (*optimistic.Pending[Item], error) {
	var forward []optimistic.Delta[Item]
	for _, it := range s.items.Snapshot() {
		if it.IsPurchased {
			forward = append(forward, optimistic.RemoveOf[Item](it.ID))
		}
	}
	return s.d.Submit(optimistic.Mutation[Item]{
		Op:      "clear_purchased",
		Forward: forward,
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			return nil, s.gw.ClearPurchased(ctx)
		},
	})
}

// ClearAll empties the list.
func (s *Service) ClearAll() (*optimistic.Pending[Item], error) {
	snap := s.items.Snapshot()
	forward := make([]optimistic.Delta[Item], 0, len(snap))
	for _, it := range snap {
		forward = append(forward, optimistic.RemoveOf[Item](it.ID))
	}
	return s.d.Submit(optimistic.Mutation[Item]{
		Op:      "clear_all",
		Forward: forward,
		Call: func(ctx context.Context) ([]optimistic.Delta[Item], error) {
			return nil, s.gw.ClearAll(ctx)
		},
	})
}

// BatchFailure is an ingredient that could not be added.
type BatchFailure struct {
	Ingredient recipe.Ingredient
	Err        error
}

// BatchResult reports the outcome of AddItemsFromRecipe.
type BatchResult struct {
	Added  []Item
	Failed []BatchFailure
}

// AddItemsFromRecipe adds one item per ingredient. Each ingredient succeeds
// or fails on its own; failed ones are rolled back and reported.
func (s *Service) AddItemsFromRecipe(ctx context.Context, r recipe.Recipe) (BatchResult, error) {
	if len(r.Ingredients) == 0 {
		return BatchResult{}, errs.Validationf("add_from_recipe", "Recipe %q has no ingredients", r.Title)
	}

	type submitted struct {
		ing recipe.Ingredient
		p   *optimistic.Pending[Item]
	}
	var (
		res     BatchResult
		pending []submitted
	)
	for _, ing := range r.Ingredients {
		p, err := s.AddItem(NewItem{
			Name:        ing.Name,
			Quantity:    ing.Quantity,
			Unit:        ing.Unit,
			RecipeID:    r.ID,
			RecipeTitle: r.Title,
		})
		if err != nil {
			res.Failed = append(res.Failed, BatchFailure{Ingredient: ing, Err: err})
			continue
		}
		pending = append(pending, submitted{ing: ing, p: p})
	}

	for _, sub := range pending {
		if err := sub.p.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed = append(res.Failed, BatchFailure{Ingredient: sub.ing, Err: err})
			continue
		}
		if it, ok := s.items.Get(sub.p.Key()); ok {
			res.Added = append(res.Added, it)
		}
	}
	return res, nil
}

// Items returns the current list. The slice must not be modified.
func (s *Service) Items() []Item {
	return s.items.Snapshot()
}

// Get returns the item with the given id. Temporary ids of confirmed items resolve too.
func (s *Service) Get(id string) (Item, bool) {
	return s.items.Get(id)
}

// Stats is recomputed from the current list on every call.
func (s *Service) Stats() Stats {
	return ComputeStats(s.items.Snapshot())
}

// Groups returns items grouped by originating recipe.
func (s *Service) Groups() []Group {
	return GroupByRecipe(s.items.Snapshot())
}

// PendingItems returns the items not yet purchased.
func (s *Service) PendingItems() []Item {
	return Filter(s.items.Snapshot(), false)
}

// PurchasedItems returns the purchased items.
func (s *Service) PurchasedItems() []Item {
	return Filter(s.items.Snapshot(), true)
}

// keepLocal fills fields the backend does not echo back.
func (s *Service) keepLocal(server, local Item) Item {
	if server.RecipeTitle == "" {
		server.RecipeTitle = local.RecipeTitle
	}
	if server.AddedAt.IsZero() {
		server.AddedAt = local.AddedAt
	}
	return server
}
