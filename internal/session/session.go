// Package session wires the local stores to the backend for one signed-in
// user. A Session is created with Open and must be closed with Close.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"one-plate/internal/api"
	"one-plate/internal/auth"
	"one-plate/internal/config"
	"one-plate/internal/database"
	"one-plate/internal/errs"
	"one-plate/internal/favorites"
	"one-plate/internal/locale"
	"one-plate/internal/metrics"
	"one-plate/internal/optimistic"
	"one-plate/internal/prefs"
	"one-plate/internal/recipe"
	"one-plate/internal/shopping"
)

// Options configures Open.
type Options struct {
	Config *config.Config

	// DB is used instead of opening Config.DatabasePath. The caller keeps
	// ownership of it.
	DB *database.DB

	// NewClient overrides how the backend client is built.
	NewClient func(cfg *config.Config, id api.Identity) api.Client

	Logger *slog.Logger
	Now    func() time.Time

	// SkipMount opens the session without the initial sync.
	SkipMount bool
}

// Session owns the favorite set and the shopping list together with the
// identity used to reach the backend.
type Session struct {
	Favorites *favorites.Service
	Shopping  *shopping.Service

	// MountErr is the error of the initial sync, if any. It is not fatal:
	// the session works with empty stores and Refresh can be retried.
	MountErr error

	cfg     *config.Config
	db      *database.DB
	ownsDB  bool
	prefs   *prefs.Store
	metrics *metrics.Store
	client  api.Client
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	token  string
	locale string

	closeOnce sync.Once
}

// Open loads the stored identity, starts both stores and, unless
// SkipMount is set, runs the initial sync.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session: config is required")
	}
	s := &Session{
		cfg:    opts.Config,
		db:     opts.DB,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if s.db == nil {
		db, err := database.NewDB(s.cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open local database: %w", err)
		}
		s.db = db
		s.ownsDB = true
	}

	s.prefs = prefs.NewStore(s.db.SQL)
	if err := s.loadIdentity(ctx); err != nil {
		s.closeDB()
		return nil, err
	}

	s.metrics = metrics.NewStore(s.db.SQL)
	dispatchOpts := []optimistic.Option{
		optimistic.WithObserver(s.metrics.Observer()),
		optimistic.WithLogger(s.logger),
	}

	newClient := opts.NewClient
	if newClient == nil {
		newClient = api.NewClient
	}
	s.client = newClient(s.cfg, s)
	s.Favorites = favorites.NewService(s.client, dispatchOpts...)
	s.Shopping = shopping.NewService(s.client, dispatchOpts...)

	if !opts.SkipMount {
		s.MountErr = s.mount(ctx)
	}
	return s, nil
}

func (s *Session) loadIdentity(ctx context.Context) error {
	token, err := s.prefs.Token(ctx)
	if err != nil {
		return err
	}
	stored, err := s.prefs.Locale(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.locale = locale.Match(stored, s.cfg.Locale).String()
	return nil
}

func (s *Session) mount(ctx context.Context) error {
	if !s.SignedIn() {
		return errs.E(errs.Unauthorized, "mount", "not signed in")
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial sync failed", "error", err, "kind", errs.KindOf(err).String())
		return err
	}
	s.logger.Info("session mounted",
		"favorites", s.Favorites.Len(), "items", len(s.Shopping.Items()), "locale", s.Locale())
	return nil
}

// Token implements api.Identity. It fails with Unauthorized when no token
// is stored or the stored one has expired.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if err := auth.Check(token, s.now()); err != nil {
		return "", err
	}
	return token, nil
}

// Locale implements api.Identity.
func (s *Session) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

// SignedIn reports whether a token is stored.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// SetToken stores a new identity token and refreshes both stores with it.
// The token is kept even if the refresh fails.
func (s *Session) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if err := auth.Check(token, s.now()); err != nil {
		return err
	}
	if err := s.prefs.SetToken(ctx, token); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.MountErr = s.Refresh(ctx)
	return s.MountErr
}

// ClearToken signs out. Submitted changes are given until ctx is done to
// reach the backend, then the token is forgotten and both stores emptied.
func (s *Session) ClearToken(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		s.logger.Warn("logout before pending changes resolved", "error", err)
	}
	if err := s.prefs.ClearToken(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	return errors.Join(s.Favorites.Reset(), s.Shopping.Reset())
}

// SetLocale stores the preferred locale and returns the supported locale it
// resolved to.
func (s *Session) SetLocale(ctx context.Context, tag string) (string, error) {
	resolved, err := locale.Resolve(tag)
	if err != nil {
		return "", errs.Validationf("set_locale", "Unknown language %q", tag)
	}
	if err := s.prefs.SetLocale(ctx, resolved); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.locale = resolved
	s.mu.Unlock()
	return resolved, nil
}

// Refresh syncs both stores concurrently.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		wg             sync.WaitGroup
		favErr, shpErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		favErr = s.Favorites.Sync(ctx)
	}()
	go func() {
		defer wg.Done()
		shpErr = s.Shopping.Sync(ctx)
	}()
	wg.Wait()

	if favErr != nil {
		return favErr
	}
	return shpErr
}

// Flush waits for every submitted change to resolve.
func (s *Session) Flush(ctx context.Context) error {
	return errors.Join(s.Favorites.Flush(ctx), s.Shopping.Flush(ctx))
}

// Unsent returns the number of local changes waiting behind the one in flight.
func (s *Session) Unsent() int {
	return s.Favorites.Unsent() + s.Shopping.Unsent()
}

// Recipe fetches a recipe, preferring the favorites cache.
func (s *Session) Recipe(ctx context.Context, id string) (recipe.Recipe, error) {
	if r, ok := s.Favorites.Get(id); ok && len(r.Ingredients) > 0 {
		return r, nil
	}
	return s.client.GetRecipe(ctx, id)
}

// ToggleFavorite favorites or unfavorites a recipe by id.
func (s *Session) ToggleFavorite(ctx context.Context, id string) (*optimistic.Pending[recipe.Recipe], error) {
	r, ok := s.Favorites.Get(id)
	if !ok {
		var err error
		if r, err = s.client.GetRecipe(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.Favorites.Toggle(r)
}

// AddRecipeToList adds every ingredient of a recipe to the shopping list.
func (s *Session) AddRecipeToList(ctx context.Context, id string) (shopping.BatchResult, error) {
	r, err := s.Recipe(ctx, id)
	if err != nil {
		return shopping.BatchResult{}, err
	}
	return s.Shopping.AddItemsFromRecipe(ctx, r)
}

// Metrics returns the mutation metrics store.
func (s *Session) Metrics() *metrics.Store {
	return s.metrics
}

// Health reports process and local storage usage.
func (s *Session) Health() metrics.SysHealth {
	return metrics.GetSysHealth(filepath.Dir(s.cfg.DatabasePath))
}

// Close stops both stores, rolling back anything unsent, and releases the
// local database if the session opened it.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Favorites.Close()
		s.Shopping.Close()
		err = s.metrics.Close()
		s.closeDB()
	})
	return err
}

func (s *Session) closeDB() {
	if s.ownsDB {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("failed to close local database", "error", err)
		}
	}
}
