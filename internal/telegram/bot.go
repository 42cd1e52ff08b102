package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"one-plate/internal/config"
	"one-plate/internal/errs"
	"one-plate/internal/session"
	"one-plate/internal/shopping"
	"one-plate/internal/view"
)

// replyTimeout bounds the work done for one incoming message.
const replyTimeout = 30 * time.Second

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot exposes one One Plate session to allow-listed Telegram users.
type Bot struct {
	api  Sender
	sess *session.Session
	cfg  *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, sess *session.Session) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return newBot(bot, cfg, sess), nil
}

func newBot(api Sender, cfg *config.Config, sess *session.Session) *Bot {
	return &Bot{api: api, sess: sess, cfg: cfg}
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("Error parsing update: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if update.CallbackQuery != nil {
		if b.allowed(update.CallbackQuery.From) {
			go b.handleCallbackQuery(update.CallbackQuery)
		}
		return
	}

	if update.Message == nil || !b.allowed(update.Message.From) {
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) allowed(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	if !b.cfg.IsAllowedTelegramUser(from.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", from.ID, from.UserName)
		return false
	}
	return true
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	reply := b.Reply(ctx, msg.From.ID, msg.Text)
	out := tgbotapi.NewMessage(msg.Chat.ID, reply.Text)
	if reply.Keyboard != nil {
		out.ReplyMarkup = *reply.Keyboard
	}
	if _, err := b.api.Send(out); err != nil {
		log.Printf("Failed to send reply: %v", err)
	}
}

// Reply is the bot's answer to one message.
type Reply struct {
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

func text(format string, args ...any) Reply {
	return Reply{Text: fmt.Sprintf(format, args...)}
}

// Reply computes the answer to a command sent by userID.
func (b *Bot) Reply(ctx context.Context, userID int64, message string) Reply {
	command, arg, _ := strings.Cut(strings.TrimSpace(message), " ")
	arg = strings.TrimSpace(arg)
	// Commands may be addressed as /list@BotName in groups.
	command, _, _ = strings.Cut(command, "@")

	switch command {
	case "/start", "/help":
		return Reply{Text: helpText}
	case "/list":
		return Reply{Text: formatList(b.sess.Shopping.Items())}
	case "/add":
		return b.add(arg)
	case "/done":
		return b.toggle(ctx, arg)
	case "/remove":
		return b.remove(ctx, arg)
	case "/clear":
		return b.clear(ctx, arg)
	case "/stats":
		var sb strings.Builder
		view.Stats(&sb, b.sess.Shopping.Stats())
		return Reply{Text: "📊 " + sb.String()}
	case "/favorites":
		var sb strings.Builder
		sb.WriteString("⭐ Favorites\n\n")
		view.Favorites(&sb, b.sess.Favorites.Recipes())
		return Reply{Text: sb.String()}
	case "/fav":
		return b.favorite(ctx, arg)
	case "/recipe":
		return b.addRecipe(ctx, arg)
	case "/refresh":
		if err := b.sess.Refresh(ctx); err != nil {
			return failure(err)
		}
		return text("🔄 Synced %d favorites and %d items.", b.sess.Favorites.Len(), len(b.sess.Shopping.Items()))
	case "/metrics":
		if userID != b.cfg.AdminTelegramID {
			return Reply{Text: "⛔ Access Denied: Admin only."}
		}
		return b.metrics(ctx)
	default:
		if !strings.HasPrefix(command, "/") && command != "" {
			// Plain text adds an item, like /add.
			return b.add(strings.TrimSpace(message))
		}
		return Reply{Text: "Unknown command. Send /help for the list."}
	}
}

const helpText = `🛒 One Plate
/list - show the shopping list
/add <item> - add an item (plain text works too)
/done <n> - mark item n purchased or not
/remove <n> - remove item n
/clear - remove purchased items (/clear all empties the list)
/stats - count items
/favorites - list favorite recipes
/fav <recipeId> - favorite or unfavorite a recipe
/recipe <recipeId> - add a recipe's ingredients
/refresh - reload from the server`

func failure(err error) Reply {
	return Reply{Text: "❌ " + errs.UserMessage(err)}
}

// add reports the item as added as soon as it is on the local list. A
// rejection is announced by the next /list, where it is gone.
func (b *Bot) add(name string) Reply {
	if name == "" {
		return Reply{Text: "Usage: /add <item>"}
	}
	if _, err := b.sess.Shopping.AddItem(shopping.NewItem{Name: name}); err != nil {
		return failure(err)
	}
	return text("✅ Added %s.", strings.TrimSpace(name))
}

// itemID maps a 1-based position in /list to an id. Anything else is taken
// as an id.
func (b *Bot) itemID(arg string) string {
	if n, err := strconv.Atoi(arg); err == nil {
		items := b.sess.Shopping.Items()
		if n >= 1 && n <= len(items) {
			return items[n-1].ID
		}
	}
	return arg
}

func (b *Bot) toggle(ctx context.Context, arg string) Reply {
	if arg == "" {
		return Reply{Text: "Usage: /done <n>"}
	}
	id := b.itemID(arg)
	p, err := b.sess.Shopping.TogglePurchased(id)
	if err != nil {
		return failure(err)
	}
	if err := p.Wait(ctx); err != nil {
		return failure(err)
	}
	it, _ := b.sess.Shopping.Get(id)
	if it.IsPurchased {
		return text("☑️ %s", it.Label())
	}
	return text("⬜ %s", it.Label())
}

func (b *Bot) remove(ctx context.Context, arg string) Reply {
	if arg == "" {
		return Reply{Text: "Usage: /remove <n>"}
	}
	id := b.itemID(arg)
	it, _ := b.sess.Shopping.Get(id)
	p, err := b.sess.Shopping.RemoveItem(id)
	if err != nil {
		return failure(err)
	}
	if err := p.Wait(ctx); err != nil {
		return failure(err)
	}
	return text("🗑 Removed %s.", it.Label())
}

func (b *Bot) clear(ctx context.Context, arg string) Reply {
	if arg == "all" {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🗑 Clear everything", "clear|all"),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "clear|cancel"),
			),
		)
		return Reply{
			Text:     fmt.Sprintf("Remove all %d items from the list?", len(b.sess.Shopping.Items())),
			Keyboard: &keyboard,
		}
	}

	n := b.sess.Shopping.Stats().Purchased
	p, err := b.sess.Shopping.ClearPurchased()
	if err != nil {
		return failure(err)
	}
	if err := p.Wait(ctx); err != nil {
		return failure(err)
	}
	return text("🧹 Removed %d purchased items.", n)
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	// Answer callback to remove spinner
	b.api.Request(tgbotapi.NewCallback(query.ID, ""))
	if query.Message == nil {
		return
	}

	reply := b.Callback(ctx, query.Data)
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, reply.Text)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Failed to edit message: %v", err)
	}
}

// Callback computes the answer to an inline keyboard button.
func (b *Bot) Callback(ctx context.Context, data string) Reply {
	switch data {
	case "clear|all":
		p, err := b.sess.Shopping.ClearAll()
		if err != nil {
			return failure(err)
		}
		if err := p.Wait(ctx); err != nil {
			return failure(err)
		}
		return Reply{Text: "🗑 Shopping list cleared."}
	case "clear|cancel":
		return Reply{Text: "Nothing was removed."}
	default:
		return Reply{Text: "This button has expired."}
	}
}

func (b *Bot) favorite(ctx context.Context, recipeID string) Reply {
	if recipeID == "" {
		return Reply{Text: "Usage: /fav <recipeId>"}
	}
	p, err := b.sess.ToggleFavorite(ctx, recipeID)
	if err != nil {
		return failure(err)
	}
	if err := p.Wait(ctx); err != nil {
		return failure(err)
	}
	r, ok := b.sess.Favorites.Get(recipeID)
	if ok {
		return text("⭐ Added %s to favorites.", r.Title)
	}
	return text("Removed %s from favorites.", recipeID)
}

func (b *Bot) addRecipe(ctx context.Context, recipeID string) Reply {
	if recipeID == "" {
		return Reply{Text: "Usage: /recipe <recipeId>"}
	}
	r, err := b.sess.Recipe(ctx, recipeID)
	if err != nil {
		return failure(err)
	}
	res, err := b.sess.Shopping.AddItemsFromRecipe(ctx, r)
	if err != nil {
		return failure(err)
	}
	var sb strings.Builder
	view.Batch(&sb, r.Title, res)
	return Reply{Text: "🛒 " + sb.String()}
}

func (b *Bot) metrics(ctx context.Context) Reply {
	rows, err := b.sess.Metrics().Summary(ctx, 7)
	if err != nil {
		log.Printf("Error fetching metrics: %v", err)
		return Reply{Text: "❌ Error fetching metrics."}
	}

	var sb strings.Builder
	sb.WriteString("📊 Usage & Health Report\n\n")
	sb.WriteString("🗓 Last 7 days\n")
	view.Metrics(&sb, rows)
	sb.WriteString("\n🧠 System Health\n")
	view.Health(&sb, b.sess.Health())
	fmt.Fprintf(&sb, "⏳ Unsent changes: %d\n", b.sess.Unsent())
	return Reply{Text: sb.String()}
}

// formatList renders the list numbered so /done and /remove can refer to
// items by position.
func formatList(items []shopping.Item) string {
	if len(items) == 0 {
		return "🛒 Your shopping list is empty."
	}
	var sb strings.Builder
	sb.WriteString("🛒 Shopping List\n\n")
	for i, it := range items {
		box := "⬜"
		if it.IsPurchased {
			box = "☑️"
		}
		fmt.Fprintf(&sb, "%d. %s %s", i+1, box, it.Label())
		if it.RecipeTitle != "" {
			fmt.Fprintf(&sb, " (%s)", it.RecipeTitle)
		}
		sb.WriteString("\n")
	}
	st := shopping.ComputeStats(items)
	fmt.Fprintf(&sb, "\n%d of %d purchased", st.Purchased, st.Total)
	return sb.String()
}
