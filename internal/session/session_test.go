package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"one-plate/internal/api/apitest"
	"one-plate/internal/auth"
	"one-plate/internal/config"
	"one-plate/internal/database"
	"one-plate/internal/errs"
	"one-plate/internal/prefs"
	"one-plate/internal/recipe"
	"one-plate/internal/shopping"
)

type fixture struct {
	srv *apitest.Server
	db  *database.DB
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	db, err := database.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := apitest.New(t)
	return &fixture{
		srv: srv,
		db:  db,
		cfg: &config.Config{APIURL: srv.URL, DatabasePath: path, HTTPTimeout: 5 * time.Second, Locale: "en"},
	}
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, prefs.NewStore(f.db.SQL).SetToken(context.Background(), f.srv.Token("user-1")))
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), Options{Config: f.cfg, DB: f.db})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MountSyncLoadsBothStores(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.srv.SeedFavorites("r1", "r2")
	f.srv.SeedItems(shopping.Item{Name: "Milk"}, shopping.Item{Name: "Eggs"}, shopping.Item{Name: "Bread"})

	s := f.open(t)

	require.NoError(t, s.MountErr)
	assert.Equal(t, []string{"r1", "r2"}, s.Favorites.IDs())
	assert.Len(t, s.Shopping.Items(), 3)
}

func TestOpen_WithoutTokenIsNotFatal(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	assert.True(t, errs.Is(s.MountErr, errs.Unauthorized))
	assert.False(t, s.SignedIn())
	assert.Empty(t, s.Shopping.Items())
	assert.Zero(t, f.srv.Calls(apitest.RouteListItems))
}

func TestOpen_BackendDownKeepsSessionUsable(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.srv.FailNext(apitest.RouteListItems, 503, "maintenance")

	s := f.open(t)

	require.Error(t, s.MountErr)
	assert.True(t, errs.Is(s.MountErr, errs.Server))

	f.srv.SeedItems(shopping.Item{Name: "Milk"})
	require.NoError(t, s.Refresh(context.Background()))
	assert.Len(t, s.Shopping.Items(), 1)
}

func TestSession_ExpiredTokenRejectedBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	expired, err := auth.Issue(f.srv.Secret, "user-1", -time.Hour)
	require.NoError(t, err)
	require.NoError(t, prefs.NewStore(f.db.SQL).SetToken(context.Background(), expired))

	s := f.open(t)

	assert.True(t, errs.Is(s.MountErr, errs.Unauthorized))
	assert.Zero(t, f.srv.Calls(apitest.RouteListItems))
	assert.Zero(t, f.srv.Calls(apitest.RouteListFavorites))
}

func TestSession_LoginAndLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.srv.SeedItems(shopping.Item{Name: "Milk"})

	s := f.open(t)
	require.NoError(t, s.SetToken(ctx, f.srv.Token("user-1")))
	assert.True(t, s.SignedIn())
	assert.Len(t, s.Shopping.Items(), 1)

	stored, err := prefs.NewStore(f.db.SQL).Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	require.NoError(t, s.ClearToken(ctx))
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.SignedIn())
	assert.Empty(t, s.Shopping.Items())
	assert.Zero(t, s.Favorites.Len())

	stored, err = prefs.NewStore(f.db.SQL).Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Len(t, f.srv.Items(), 1, "logout must not touch the backend")
}

func TestSession_LogoutWhileAddFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)
	f.srv.SeedItems(shopping.Item{ID: "a", Name: "Milk"}, shopping.Item{ID: "b", Name: "Eggs"})
	s := f.open(t)

	release := f.srv.Hold(apitest.RouteAddItem)
	f.srv.FailNext(apitest.RouteAddItem, 500, "boom")
	add, err := s.Shopping.AddItem(shopping.NewItem{Name: "Bread"})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()
	require.NoError(t, s.ClearToken(ctx))
	assert.Error(t, add.Wait(ctx))

	require.NoError(t, s.Flush(ctx))
	assert.Empty(t, s.Shopping.Items())
	assert.False(t, s.SignedIn())
}

func TestSession_SetLocale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)
	s := f.open(t)
	assert.Equal(t, "en", s.Locale())

	got, err := s.SetLocale(ctx, "pt")
	require.NoError(t, err)
	assert.Equal(t, "pt-BR", got)

	_, err = s.SetLocale(ctx, "not a tag!")
	assert.True(t, errs.Is(err, errs.Validation))

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, "pt-BR", f.srv.LastLocale())

	// A new session picks up the stored preference.
	require.NoError(t, s.Close())
	again := f.open(t)
	assert.Equal(t, "pt-BR", again.Locale())
}

func TestSession_ToggleFavoriteFetchesRecipe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)
	f.srv.SeedRecipes(recipe.Recipe{ID: "r9", Title: "Curry"})
	s := f.open(t)

	p, err := s.ToggleFavorite(ctx, "r9")
	require.NoError(t, err)
	assert.True(t, s.Favorites.IsFavorite("r9"))
	require.NoError(t, p.Wait(ctx))
	assert.Equal(t, []string{"r9"}, f.srv.FavoriteIDs())

	r, ok := s.Favorites.Get("r9")
	require.True(t, ok)
	assert.Equal(t, "Curry", r.Title)

	p, err = s.ToggleFavorite(ctx, "r9")
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))
	assert.Empty(t, f.srv.FavoriteIDs())
}

func TestSession_AddRecipeToList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)
	f.srv.SeedRecipes(recipe.Recipe{
		ID:    "r1",
		Title: "Pancakes",
		Ingredients: []recipe.Ingredient{
			{Name: "flour", Quantity: "200", Unit: "g"},
			{Name: "milk", Quantity: "300", Unit: "ml"},
		},
	})
	s := f.open(t)

	res, err := s.AddRecipeToList(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	assert.Empty(t, res.Failed)

	groups := s.Shopping.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "Pancakes", groups[0].RecipeTitle)
}

func TestSession_CloseRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)

	s, err := Open(ctx, Options{Config: f.cfg, DB: f.db})
	require.NoError(t, err)

	p, err := s.Shopping.AddItem(shopping.NewItem{Name: "Milk"})
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, s.Close())

	summary, err := s.Metrics().Summary(ctx, 1)
	require.NoError(t, err)

	var added int
	for _, row := range summary {
		if row.Store == "shopping" && row.Op == "add_item" {
			added = row.Confirmed
		}
	}
	assert.Equal(t, 1, added)
}
