// Package apitest runs an in-memory One Plate backend for tests and local
// development.
package apitest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"one-plate/internal/auth"
	"one-plate/internal/recipe"
	"one-plate/internal/shopping"
)

// Route names, usable with FailNext, Hold and Calls.
const (
	RouteListFavorites   = "list_favorites"
	RouteAddFavorite     = "add_favorite"
	RouteRemoveFavorite  = "remove_favorite"
	RouteGetRecipe       = "get_recipe"
	RouteListItems       = "list_items"
	RouteAddItem         = "add_item"
	RouteTogglePurchased = "toggle_purchased"
	RouteUpdateItem      = "update_item"
	RouteRemoveItem      = "remove_item"
	RouteClearPurchased  = "clear_purchased"
	RouteClearAll        = "clear_all"
)

// DefaultSecret signs tokens accepted by a Backend.
var DefaultSecret = []byte("one-plate-dev-secret")

type failure struct {
	status  int
	message string
}

// Backend holds the fake server state. It is safe for concurrent use.
type Backend struct {
	Secret []byte

	mu        sync.Mutex
	items     []shopping.Item
	recipes   map[string]recipe.Recipe
	favorites []string
	failures  map[string][]failure
	gates     map[string]chan struct{}
	calls     map[string]int
	locale    string
	now       func() time.Time
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		Secret:   DefaultSecret,
		recipes:  make(map[string]recipe.Recipe),
		failures: make(map[string][]failure),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
		now:      time.Now,
	}
}

// Server is a Backend served over httptest.
type Server struct {
	*Backend
	*httptest.Server
}

// New starts a server and closes it when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	b := NewBackend()
	s := &Server{Backend: b, Server: httptest.NewServer(b.Router())}
	t.Cleanup(s.Close)
	return s
}

// Close releases held requests and shuts the server down.
func (s *Server) Close() {
	s.ReleaseAll()
	s.Server.Close()
}

// Router builds the HTTP routes.
func (b *Backend) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(b.authenticate, b.intercept)

	r.HandleFunc("/recipes/favorites", b.handleListFavorites).Methods(http.MethodGet).Name(RouteListFavorites)
	r.HandleFunc("/recipes/{id}/favorite", b.handleAddFavorite).Methods(http.MethodPost).Name(RouteAddFavorite)
	r.HandleFunc("/recipes/{id}/favorite", b.handleRemoveFavorite).Methods(http.MethodDelete).Name(RouteRemoveFavorite)
	r.HandleFunc("/recipes/{id}", b.handleGetRecipe).Methods(http.MethodGet).Name(RouteGetRecipe)

	r.HandleFunc("/shopping-list", b.handleListItems).Methods(http.MethodGet).Name(RouteListItems)
	r.HandleFunc("/shopping-list", b.handleClearAll).Methods(http.MethodDelete).Name(RouteClearAll)
	r.HandleFunc("/shopping-list/items", b.handleAddItem).Methods(http.MethodPost).Name(RouteAddItem)
	r.HandleFunc("/shopping-list/items/{id}/toggle", b.handleToggle).Methods(http.MethodPatch).Name(RouteTogglePurchased)
	r.HandleFunc("/shopping-list/items/{id}", b.handleUpdateItem).Methods(http.MethodPut).Name(RouteUpdateItem)
	r.HandleFunc("/shopping-list/items/{id}", b.handleRemoveItem).Methods(http.MethodDelete).Name(RouteRemoveItem)
	r.HandleFunc("/shopping-list/checked-items", b.handleClearPurchased).Methods(http.MethodDelete).Name(RouteClearPurchased)
	return r
}

// Token issues a token the backend accepts.
func (b *Backend) Token(subject string) string {
	tok, err := auth.Issue(b.Secret, subject, time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

// SeedRecipes makes recipes available to GET /recipes/{id}.
func (b *Backend) SeedRecipes(rs ...recipe.Recipe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rs {
		b.recipes[r.ID] = r
	}
}

// SeedFavorites sets the favorite recipe ids. Unknown ids get a stub recipe.
func (b *Backend) SeedFavorites(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.favorites = append([]string(nil), ids...)
	for _, id := range ids {
		if _, ok := b.recipes[id]; !ok {
			b.recipes[id] = recipe.Recipe{ID: id, Title: "Recipe " + id}
		}
	}
}

// SeedItems replaces the shopping list. Items without an id get one.
func (b *Backend) SeedItems(items ...shopping.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make([]shopping.Item, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		b.items = append(b.items, it)
	}
}

// Items returns the stored list.
func (b *Backend) Items() []shopping.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shopping.Item(nil), b.items...)
}

// FavoriteIDs returns the stored favorite ids.
func (b *Backend) FavoriteIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.favorites...)
}

// FailNext makes the next request to route answer with status and message.
// Repeated calls queue further failures.
func (b *Backend) FailNext(route string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], failure{status: status, message: message})
}

// DropNext makes the next request to route fail at the transport level.
func (b *Backend) DropNext(route string) {
	b.FailNext(route, 0, "")
}

// Hold blocks requests to route until the returned function is called.
func (b *Backend) Hold(route string) (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[route] = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			owned := b.gates[route] == gate
			if owned {
				delete(b.gates, route)
			}
			b.mu.Unlock()
			if owned {
				close(gate)
			}
		})
	}
}

// ReleaseAll unblocks every held route.
func (b *Backend) ReleaseAll() {
	b.mu.Lock()
	gates := b.gates
	b.gates = make(map[string]chan struct{})
	b.mu.Unlock()
	for _, g := range gates {
		close(g)
	}
}

// Calls returns how many requests reached route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// LastLocale returns the Accept-Language of the latest request.
func (b *Backend) LastLocale() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locale
}

func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := auth.Verify(b.Secret, token); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		b.mu.Lock()
		b.calls[name]++
		b.locale = r.Header.Get("Accept-Language")
		gate := b.gates[name]
		var fail *failure
		if q := b.failures[name]; len(q) > 0 {
			fail = &q[0]
			b.failures[name] = q[1:]
		}
		b.mu.Unlock()

		if gate != nil {
			if err := wait(r.Context(), gate); err != nil {
				return
			}
		}
		if fail != nil && fail.status == 0 {
			drop(w)
			return
		}
		if fail != nil {
			writeError(w, fail.status, fail.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func wait(ctx context.Context, gate <-chan struct{}) error {
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drop closes the connection without a response.
func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("apitest: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}
