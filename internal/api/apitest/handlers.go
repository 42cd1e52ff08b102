package apitest

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"one-plate/internal/recipe"
	"one-plate/internal/shopping"
)

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

func (b *Backend) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]recipe.Recipe, 0, len(b.favorites))
	for _, id := range b.favorites {
		out = append(out, b.recipes[id])
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.recipes[id]; !ok {
		writeError(w, http.StatusNotFound, "Recipe not found")
		return
	}
	if !slices.Contains(b.favorites, id) {
		b.favorites = append(b.favorites, id)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"recipeId": id})
}

func (b *Backend) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.favorites, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Recipe is not a favorite")
		return
	}
	b.favorites = slices.Delete(b.favorites, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rec, ok := b.recipes[mux.Vars(r)["id"]]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Recipe not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) handleListItems(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	items := append([]shopping.Item{}, b.items...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (b *Backend) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var in shopping.NewItem
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "Item name is required")
		return
	}

	it := shopping.Item{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		RecipeID:    in.RecipeID,
		RecipeTitle: in.RecipeTitle,
		AddedAt:     b.now().UTC(),
	}
	b.mu.Lock()
	b.items = append(b.items, it)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"item": it})
}

func (b *Backend) handleToggle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(mux.Vars(r)["id"])
	if i < 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	b.items[i].IsPurchased = !b.items[i].IsPurchased
	writeJSON(w, http.StatusOK, map[string]any{"item": b.items[i]})
}

func (b *Backend) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var in shopping.ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "Item name is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(mux.Vars(r)["id"])
	if i < 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	b.items[i].Name = in.Name
	b.items[i].Quantity = in.Quantity
	b.items[i].Unit = in.Unit
	writeJSON(w, http.StatusOK, map[string]any{"item": b.items[i]})
}

func (b *Backend) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(mux.Vars(r)["id"])
	if i < 0 {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	b.items = slices.Delete(b.items, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleClearPurchased(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.items = slices.DeleteFunc(b.items, func(it shopping.Item) bool { return it.IsPurchased })
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleClearAll(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// indexOf must be called with b.mu held.
func (b *Backend) indexOf(id string) int {
	return slices.IndexFunc(b.items, func(it shopping.Item) bool { return it.ID == id })
}
