package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"one-plate/internal/api/apitest"
	"one-plate/internal/config"
	"one-plate/internal/database"
	"one-plate/internal/prefs"
	"one-plate/internal/recipe"
	"one-plate/internal/session"
	"one-plate/internal/shopping"
)

type harness struct {
	srv  *apitest.Server
	db   *database.DB
	open Opener
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	db, err := database.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := apitest.New(t)
	cfg := &config.Config{APIURL: srv.URL, DatabasePath: path, HTTPTimeout: 5 * time.Second, Locale: "en"}
	return &harness{
		srv: srv,
		db:  db,
		open: func(ctx context.Context, _ *RootOptions, mount bool) (*session.Session, error) {
			return session.Open(ctx, session.Options{Config: cfg, DB: db, SkipMount: !mount})
		},
	}
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, prefs.NewStore(h.db.SQL).SetToken(context.Background(), h.srv.Token("user-1")))
}

func (h *harness) run(args ...string) (string, error) {
	cmd := NewRootCommand(h.open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func assertGolden(t *testing.T, name, got string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(got))
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.srv.SeedItems(shopping.Item{ID: "a", Name: "Milk"}, shopping.Item{ID: "b", Name: "Eggs"})

	out, err := h.run("login", h.srv.Token("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "Signed in. 0 favorites, 2 items on your list.\n", out)

	out, err = h.run("logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out.\n", out)

	_, err = h.run("list", "show")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Your session has expired. Please sign in again.", ErrorMessage(err))
}

func TestListShowGrouped(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.srv.SeedItems(
		shopping.Item{ID: "1", Name: "flour", Quantity: "200", Unit: "g", RecipeID: "r1", RecipeTitle: "Pancakes"},
		shopping.Item{ID: "2", Name: "batteries", IsPurchased: true},
		shopping.Item{ID: "3", Name: "eggs", Quantity: "2", RecipeID: "r1"},
	)

	out, err := h.run("list", "show", "--group")
	require.NoError(t, err)
	assertGolden(t, "list_show_grouped", out)

	out, err = h.run("list", "show", "--pending")
	require.NoError(t, err)
	assert.NotContains(t, out, "batteries")
}

func TestListAddToggleRemove(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run("list", "add", "Milk", "--qty", "1", "--unit", "l")
	require.NoError(t, err)
	assert.Equal(t, "Added 1 l Milk.\n", out)

	items := h.srv.Items()
	require.Len(t, items, 1)
	id := items[0].ID

	out, err = h.run("list", "toggle", id)
	require.NoError(t, err)
	assert.Equal(t, "[x] 1 l Milk  ("+id+")\n", out)
	assert.True(t, h.srv.Items()[0].IsPurchased)

	out, err = h.run("list", "update", id, "--qty", "2")
	require.NoError(t, err)
	assert.Equal(t, "[x] 2 l Milk  ("+id+")\n", out)

	out, err = h.run("list", "stats")
	require.NoError(t, err)
	assert.Equal(t, "1 items: 1 purchased, 0 pending\n", out)

	out, err = h.run("list", "remove", id)
	require.NoError(t, err)
	assert.Equal(t, "Removed.\n", out)
	assert.Empty(t, h.srv.Items())
}

func TestListToggleRejected(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.srv.SeedItems(shopping.Item{ID: "a", Name: "Milk"})
	h.srv.FailNext(apitest.RouteTogglePurchased, http.StatusInternalServerError, "boom")

	_, err := h.run("list", "toggle", "a")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "The server could not complete the request.", ErrorMessage(err))
	assert.False(t, h.srv.Items()[0].IsPurchased)
}

func TestListArgumentErrors(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	_, err := h.run("list", "clear")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("list", "update", "a")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("list", "add", "  ")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("--format", "yaml", "list", "stats")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListClear(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.srv.SeedItems(shopping.Item{ID: "a", Name: "Milk"}, shopping.Item{ID: "b", Name: "Eggs", IsPurchased: true})

	out, err := h.run("list", "clear-purchased")
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 purchased items.\n", out)
	assert.Len(t, h.srv.Items(), 1)

	out, err = h.run("list", "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "Shopping list cleared.\n", out)
	assert.Empty(t, h.srv.Items())
}

func TestListAddRecipePartialFailure(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.srv.SeedRecipes(recipe.Recipe{
		ID:    "r1",
		Title: "Pancakes",
		Ingredients: []recipe.Ingredient{
			{Name: "flour", Quantity: "200", Unit: "g"},
			{Name: "milk", Quantity: "300", Unit: "ml"},
			{Name: "eggs", Quantity: "2"},
		},
	})
	h.srv.FailNext(apitest.RouteAddItem, http.StatusInternalServerError, "boom")

	out, err := h.run("list", "add-recipe", "r1")
	require.NoError(t, err)
	assertGolden(t, "add_recipe_partial", out)
	assert.Len(t, h.srv.Items(), 2)
}

func TestFavoritesToggleAndList(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.srv.SeedRecipes(recipe.Recipe{ID: "r1", Title: "Pancakes", PrepMinutes: 20})

	out, err := h.run("favorites", "toggle", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Added r1 to favorites.\n", out)

	out, err = h.run("favorites", "list")
	require.NoError(t, err)
	assert.Equal(t, "* Pancakes  (r1)  20m\n", out)

	out, err = h.run("favorites", "toggle", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Removed r1 from favorites.\n", out)
	assert.Empty(t, h.srv.FavoriteIDs())
}

func TestJSONFormat(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.srv.SeedItems(shopping.Item{ID: "a", Name: "Milk"}, shopping.Item{ID: "b", Name: "Eggs", IsPurchased: true})

	out, err := h.run("--format", "json", "list", "stats")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   shopping.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, shopping.Stats{Total: 2, Purchased: 1, Pending: 1}, resp.Data)
}

func TestLocale(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("locale")
	require.NoError(t, err)
	assert.Equal(t, "en\n", out)

	out, err = h.run("locale", "es-MX")
	require.NoError(t, err)
	assert.Equal(t, "es\n", out)

	out, err = h.run("locale")
	require.NoError(t, err)
	assert.Equal(t, "es\n", out)
}

func TestMetrics(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	_, err := h.run("list", "add", "Milk")
	require.NoError(t, err)

	out, err := h.run("metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "shopping/add_item: 1 confirmed, 0 rolled back")
	assert.Contains(t, out, "goroutines:")
}
