package shopping

import (
	"strings"
	"time"
)

// TempIDPrefix marks ids assigned locally before the backend confirms an item.
const TempIDPrefix = "tmp-"

// Item is one entry of the shopping list.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Quantity    string    `json:"quantity,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	RecipeID    string    `json:"recipeId,omitempty"`
	RecipeTitle string    `json:"recipeTitle,omitempty"`
	IsPurchased bool      `json:"isPurchased"`
	AddedAt     time.Time `json:"addedAt"`
}

// IsTemporary reports whether the item is still waiting for a server id.
func (i Item) IsTemporary() bool {
	return strings.HasPrefix(i.ID, TempIDPrefix)
}

// Label renders the item as "quantity unit name".
func (i Item) Label() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Quantity, i.Unit, i.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// NewItem is the input for adding an item.
type NewItem struct {
	Name        string `json:"name"`
	Quantity    string `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	RecipeID    string `json:"recipeId,omitempty"`
	RecipeTitle string `json:"recipeTitle,omitempty"`
}

// ItemUpdate is the full set of editable fields sent when updating an item.
type ItemUpdate struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Patch changes a subset of an item's editable fields. Nil fields are kept.
type Patch struct {
	Name     *string
	Quantity *string
	Unit     *string
}

func (p Patch) applyTo(it Item) Item {
	if p.Name != nil {
		it.Name = strings.TrimSpace(*p.Name)
	}
	if p.Quantity != nil {
		it.Quantity = strings.TrimSpace(*p.Quantity)
	}
	if p.Unit != nil {
		it.Unit = strings.TrimSpace(*p.Unit)
	}
	return it
}

// Stats are counts derived from the current list.
type Stats struct {
	Total     int `json:"total"`
	Purchased int `json:"purchased"`
	Pending   int `json:"pending"`
}

// Group is the set of items added from one recipe. Items added by hand are
// grouped under an empty RecipeID.
type Group struct {
	RecipeID    string `json:"recipeId,omitempty"`
	RecipeTitle string `json:"recipeTitle,omitempty"`
	Items       []Item `json:"items"`
}

func itemKey(i Item) string { return i.ID }

func withItemKey(i Item, id string) Item {
	i.ID = id
	return i
}
