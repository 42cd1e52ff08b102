package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"one-plate/internal/api/apitest"
	"one-plate/internal/config"
	"one-plate/internal/recipe"
	"one-plate/internal/session"
	"one-plate/internal/shopping"
)

const (
	adminID  = int64(42)
	memberID = int64(43)
)

type fakeSender struct {
	sent chan tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent <- c
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func newTestBot(t *testing.T) (*Bot, *apitest.Server, *fakeSender) {
	t.Helper()
	srv := apitest.New(t)
	cfg := &config.Config{
		APIURL:                 srv.URL,
		DatabasePath:           filepath.Join(t.TempDir(), "bot.db"),
		HTTPTimeout:            5 * time.Second,
		Locale:                 "en",
		TelegramAllowedUserIDs: []int64{adminID, memberID},
		AdminTelegramID:        adminID,
	}

	sess, err := session.Open(context.Background(), session.Options{Config: cfg, SkipMount: true})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	require.NoError(t, sess.SetToken(context.Background(), srv.Token("household")))

	sender := &fakeSender{sent: make(chan tgbotapi.Chattable, 4)}
	return newBot(sender, cfg, sess), srv, sender
}

func TestFormatList(t *testing.T) {
	items := []shopping.Item{
		{ID: "1", Name: "flour", Quantity: "200", Unit: "g", RecipeTitle: "Pancakes"},
		{ID: "2", Name: "Milk", IsPurchased: true},
	}

	out := formatList(items)

	if !strings.Contains(out, "🛒 Shopping List") {
		t.Error("Missing list header")
	}
	if !strings.Contains(out, "1. ⬜ 200 g flour (Pancakes)") {
		t.Error("Missing first item with its recipe")
	}
	if !strings.Contains(out, "2. ☑️ Milk") {
		t.Error("Missing purchased item")
	}
	if !strings.Contains(out, "1 of 2 purchased") {
		t.Error("Missing purchased count")
	}

	if got := formatList(nil); got != "🛒 Your shopping list is empty." {
		t.Errorf("unexpected empty list output: %q", got)
	}
}

func TestReply_ListLifecycle(t *testing.T) {
	ctx := context.Background()
	b, srv, _ := newTestBot(t)

	reply := b.Reply(ctx, memberID, "/add 2 l milk")
	assert.Equal(t, "✅ Added 2 l milk.", reply.Text)
	require.NoError(t, b.sess.Flush(ctx))
	require.Len(t, srv.Items(), 1)

	reply = b.Reply(ctx, memberID, "eggs")
	assert.Equal(t, "✅ Added eggs.", reply.Text)
	require.NoError(t, b.sess.Flush(ctx))

	reply = b.Reply(ctx, memberID, "/list")
	assert.Contains(t, reply.Text, "1. ⬜ 2 l milk")
	assert.Contains(t, reply.Text, "2. ⬜ eggs")

	reply = b.Reply(ctx, memberID, "/done 1")
	assert.Equal(t, "☑️ 2 l milk", reply.Text)

	reply = b.Reply(ctx, memberID, "/stats")
	assert.Equal(t, "📊 2 items: 1 purchased, 1 pending\n", reply.Text)

	reply = b.Reply(ctx, memberID, "/clear")
	assert.Equal(t, "🧹 Removed 1 purchased items.", reply.Text)
	assert.Len(t, srv.Items(), 1)

	reply = b.Reply(ctx, memberID, "/remove 1")
	assert.Equal(t, "🗑 Removed eggs.", reply.Text)
	assert.Empty(t, srv.Items())
}

func TestReply_FailureIsReported(t *testing.T) {
	ctx := context.Background()
	b, srv, _ := newTestBot(t)
	srv.SeedItems(shopping.Item{ID: "i1", Name: "Milk"})
	require.NoError(t, b.sess.Refresh(ctx))
	srv.FailNext(apitest.RouteTogglePurchased, 500, "boom")

	reply := b.Reply(ctx, memberID, "/done 1")

	assert.True(t, strings.HasPrefix(reply.Text, "❌ "), reply.Text)
	it, ok := b.sess.Shopping.Get("i1")
	require.True(t, ok)
	assert.False(t, it.IsPurchased, "a failed toggle is rolled back")
}

func TestReply_UnknownItem(t *testing.T) {
	b, _, _ := newTestBot(t)

	reply := b.Reply(context.Background(), memberID, "/done 7")

	assert.True(t, strings.HasPrefix(reply.Text, "❌ "), reply.Text)
}

func TestReply_ClearAllNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	b, srv, _ := newTestBot(t)
	srv.SeedItems(shopping.Item{Name: "Milk"}, shopping.Item{Name: "Eggs"})
	require.NoError(t, b.sess.Refresh(ctx))

	reply := b.Reply(ctx, memberID, "/clear all")
	require.NotNil(t, reply.Keyboard)
	assert.Equal(t, "Remove all 2 items from the list?", reply.Text)
	assert.Len(t, srv.Items(), 2)

	assert.Equal(t, "Nothing was removed.", b.Callback(ctx, "clear|cancel").Text)
	assert.Len(t, srv.Items(), 2)

	assert.Equal(t, "🗑 Shopping list cleared.", b.Callback(ctx, "clear|all").Text)
	assert.Empty(t, srv.Items())
	assert.Empty(t, b.sess.Shopping.Items())
}

func TestReply_Favorites(t *testing.T) {
	ctx := context.Background()
	b, srv, _ := newTestBot(t)
	srv.SeedRecipes(recipe.Recipe{ID: "r9", Title: "Curry", Description: "Spicy"})

	reply := b.Reply(ctx, memberID, "/fav r9")
	assert.Equal(t, "⭐ Added Curry to favorites.", reply.Text)
	assert.Equal(t, []string{"r9"}, srv.FavoriteIDs())

	reply = b.Reply(ctx, memberID, "/favorites")
	assert.Contains(t, reply.Text, "* Curry  (r9)")

	reply = b.Reply(ctx, memberID, "/fav r9")
	assert.Equal(t, "Removed r9 from favorites.", reply.Text)
	assert.Empty(t, srv.FavoriteIDs())
}

func TestReply_Recipe(t *testing.T) {
	ctx := context.Background()
	b, srv, _ := newTestBot(t)
	srv.SeedRecipes(recipe.Recipe{
		ID:    "r1",
		Title: "Pancakes",
		Ingredients: []recipe.Ingredient{
			{Name: "flour", Quantity: "200", Unit: "g"},
			{Name: "milk", Quantity: "300", Unit: "ml"},
		},
	})

	reply := b.Reply(ctx, memberID, "/recipe r1")

	assert.Equal(t, "🛒 Added 2 of 2 ingredients from Pancakes.\n", reply.Text)
	assert.Len(t, srv.Items(), 2)
}

func TestReply_MetricsAdminOnly(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBot(t)

	reply := b.Reply(ctx, memberID, "/metrics")
	assert.Equal(t, "⛔ Access Denied: Admin only.", reply.Text)

	reply = b.Reply(ctx, adminID, "/metrics@OnePlateBot")
	assert.Contains(t, reply.Text, "📊 Usage & Health Report")
	assert.Contains(t, reply.Text, "🧠 System Health")
	assert.Contains(t, reply.Text, "⏳ Unsent changes: 0")
}

func TestReply_Unknown(t *testing.T) {
	b, _, _ := newTestBot(t)

	reply := b.Reply(context.Background(), memberID, "/plan")

	assert.Equal(t, "Unknown command. Send /help for the list.", reply.Text)
}

func TestWebhook(t *testing.T) {
	b, _, sender := newTestBot(t)
	mux := http.NewServeMux()
	b.RegisterHandlers(mux)

	post := func(from int64, text string) *httptest.ResponseRecorder {
		body := `{"update_id":1,"message":{"message_id":7,"date":0,` +
			`"from":{"id":` + itoa(from) + `,"is_bot":false,"first_name":"A"},` +
			`"chat":{"id":` + itoa(from) + `,"type":"private"},"text":"` + text + `"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Unauthorized", func(t *testing.T) {
		rec := post(7, "/list")
		assert.Equal(t, http.StatusOK, rec.Code)
		select {
		case c := <-sender.sent:
			t.Fatalf("unexpected reply to a stranger: %+v", c)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Allowed", func(t *testing.T) {
		post(memberID, "/list")
		select {
		case c := <-sender.sent:
			msg, ok := c.(tgbotapi.MessageConfig)
			require.True(t, ok, "expected a message, got %T", c)
			assert.Equal(t, memberID, msg.ChatID)
			assert.Equal(t, "🛒 Your shopping list is empty.", msg.Text)
		case <-time.After(5 * time.Second):
			t.Fatal("no reply sent")
		}
	})

	t.Run("BadBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, "OK", rec.Body.String())
	})
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
