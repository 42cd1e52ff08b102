// Package api is the HTTP client for the One Plate backend.
//
// Every failure leaving this package is an *errs.Error classified from the
// transport error or the response status and body.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"one-plate/internal/config"
	"one-plate/internal/errs"
	"one-plate/internal/favorites"
	"one-plate/internal/recipe"
	"one-plate/internal/shopping"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Identity supplies the bearer token and locale attached to each request.
type Identity interface {
	Token(ctx context.Context) (string, error)
	Locale() string
}

// Client is the backend API consumed by the app.
type Client interface {
	favorites.Gateway
	shopping.Gateway
	GetRecipe(ctx context.Context, id string) (recipe.Recipe, error)
}

// ItemsResponse is the body of GET /shopping-list.
type ItemsResponse struct {
	Items []shopping.Item `json:"items"`
	Total int             `json:"total"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item shopping.Item `json:"item"`
}

// FavoriteResponse confirms a favorite change.
type FavoriteResponse struct {
	RecipeID string `json:"recipeId"`
}

// ErrorResponse is the error body returned by the backend.
type ErrorResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Errors  []struct {
		Code        string `json:"code,omitempty"`
		Message     string `json:"message,omitempty"`
		LongMessage string `json:"longMessage,omitempty"`
	} `json:"errors,omitempty"`
}

// client is the concrete implementation of Client.
type client struct {
	baseURL    string
	httpClient *http.Client
	identity   Identity
}

// NewClient creates a backend client for cfg.APIURL.
func NewClient(cfg *config.Config, identity Identity) Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		identity:   identity,
	}
}

// ListFavorites fetches the user's favorite recipes.
func (c *client) ListFavorites(ctx context.Context) ([]recipe.Recipe, error) {
	var out []recipe.Recipe
	if err := c.do(ctx, "list_favorites", http.MethodGet, "/recipes/favorites", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddFavorite marks a recipe as favorite.
func (c *client) AddFavorite(ctx context.Context, recipeID string) error {
	var out FavoriteResponse
	return c.do(ctx, "add_favorite", http.MethodPost, "/recipes/"+url.PathEscape(recipeID)+"/favorite", nil, &out)
}

// RemoveFavorite unmarks a recipe.
func (c *client) RemoveFavorite(ctx context.Context, recipeID string) error {
	return c.do(ctx, "remove_favorite", http.MethodDelete, "/recipes/"+url.PathEscape(recipeID)+"/favorite", nil, nil)
}

// GetRecipe fetches one recipe with its ingredients.
func (c *client) GetRecipe(ctx context.Context, id string) (recipe.Recipe, error) {
	var out recipe.Recipe
	err := c.do(ctx, "get_recipe", http.MethodGet, "/recipes/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListItems fetches the shopping list.
func (c *client) ListItems(ctx context.Context) ([]shopping.Item, error) {
	var out ItemsResponse
	if err := c.do(ctx, "list_items", http.MethodGet, "/shopping-list", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AddItem creates an item and returns it with its server id.
func (c *client) AddItem(ctx context.Context, in shopping.NewItem) (shopping.Item, error) {
	var out ItemResponse
	if err := c.do(ctx, "add_item", http.MethodPost, "/shopping-list/items", in, &out); err != nil {
		return shopping.Item{}, err
	}
	if out.Item.ID == "" {
		return shopping.Item{}, errs.E(errs.Server, "add_item", "response carried no item id")
	}
	return out.Item, nil
}

// TogglePurchased flips an item's purchased flag.
func (c *client) TogglePurchased(ctx context.Context, id string) (shopping.Item, error) {
	var out ItemResponse
	err := c.do(ctx, "toggle_purchased", http.MethodPatch, "/shopping-list/items/"+url.PathEscape(id)+"/toggle", nil, &out)
	return out.Item, err
}

// UpdateItem replaces an item's editable fields.
func (c *client) UpdateItem(ctx context.Context, id string, in shopping.ItemUpdate) (shopping.Item, error) {
	var out ItemResponse
	err := c.do(ctx, "update_item", http.MethodPut, "/shopping-list/items/"+url.PathEscape(id), in, &out)
	return out.Item, err
}

// RemoveItem deletes an item.
func (c *client) RemoveItem(ctx context.Context, id string) error {
	return c.do(ctx, "remove_item", http.MethodDelete, "/shopping-list/items/"+url.PathEscape(id), nil, nil)
}

// ClearPurchased deletes every purchased item.
func (c *client) ClearPurchased(ctx context.Context) error {
	return c.do(ctx, "clear_purchased", http.MethodDelete, "/shopping-list/checked-items", nil, nil)
}

// ClearAll deletes the whole list.
func (c *client) ClearAll(ctx context.Context) error {
	return c.do(ctx, "clear_all", http.MethodDelete, "/shopping-list", nil, nil)
}

func (c *client) do(ctx context.Context, op, method, path string, body, out any) error {
	token, err := c.identity.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.Validation, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errs.Wrap(errs.Network, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if loc := c.identity.Locale(); loc != "" {
		req.Header.Set("Accept-Language", loc)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.Network, op, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return &errs.Error{
			Kind:    errs.Server,
			Op:      op,
			Status:  resp.StatusCode,
			Message: "failed to decode response",
			Err:     err,
		}
	}
	return nil
}

// classify turns a non-2xx response into an *errs.Error.
func classify(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body ErrorResponse
	message := ""
	if json.Unmarshal(raw, &body) == nil {
		message = body.message()
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &errs.Error{
		Kind:    kindForStatus(resp.StatusCode),
		Op:      op,
		Status:  resp.StatusCode,
		Message: message,
	}
}

func kindForStatus(status int) errs.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.Validation
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.Unauthorized
	case http.StatusNotFound:
		return errs.NotFound
	case http.StatusConflict:
		return errs.Conflict
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errs.Network
	default:
		return errs.Server
	}
}

func (e ErrorResponse) message() string {
	for _, d := range e.Errors {
		if d.LongMessage != "" {
			return d.LongMessage
		}
		if d.Message != "" {
			return d.Message
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
