package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"one-plate/internal/config"
	"one-plate/internal/errs"
	"one-plate/internal/session"
	"one-plate/internal/telegram"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. Open the household session. A failed first sync is retried by /refresh.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sess, err := session.Open(ctx, session.Options{Config: cfg, Logger: logger})
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer sess.Close()
	if sess.MountErr != nil {
		if errs.Is(sess.MountErr, errs.Unauthorized) {
			log.Printf("Not signed in: run `oneplate login` with the bot's config first")
		} else {
			log.Printf("Initial sync failed: %v", sess.MountErr)
		}
	}

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, sess)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	// 4. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		log.Printf("Telegram Bot Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := sess.Flush(ctxShutdown); err != nil {
		log.Printf("Unsent changes dropped: %v", err)
	}

	log.Println("Server exiting")
}
