package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

//////////////////////////////////////////////////////////////
// MAIN
//////////////////////////////////////////////////////////////

func newLogger(format, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if format == "json" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log = zerolog.New(output).With().Timestamp().Logger()
	}
	return log.Level(lvl)
}

func main() {
	// Load .env file; plain environment variables work too.
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogFormat, cfg.LogLevel)
	log.Info().Str("waking_hours", cfg.Moderation.Hours.String()).Msg("🚀 Starting group moderator...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := NewGenerator(ctx, cfg.LLM)
	if u, ok := gen.(Unconfigured); ok {
		log.Warn().Err(u.Reason).Str("provider", cfg.LLM.Provider).
			Msg("⚠️  moderation model unavailable, messages will never be deleted")
	} else {
		log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("🧠 moderation model ready")
	}
	moderator := NewModerator(cfg.Moderation, gen, log)

	db, err := sql.Open("sqlite3", cfg.SessionDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session database")
	}
	defer db.Close()

	container := sqlstore.NewWithDB(db, "sqlite3", waLog.Zerolog(log.With().Str("component", "Database").Logger()))
	if err := container.Upgrade(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to upgrade session database")
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load device")
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(log.With().Str("component", "Client").Logger()))

	// Keep the interfaces nil when the audit log is off.
	var (
		recorder actionRecorder
		lister   actionLister
	)
	if !cfg.AuditDisabled {
		audit, err := NewAuditStore(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare moderation log")
		}
		recorder, lister = audit, audit
	}

	bot := NewBot(cfg.Moderation, moderator, whatsmeowDeleter{client: client}, recorder, log)
	client.AddEventHandler(bot.HandleEvent)

	if cfg.MetricsAddr != "" {
		srv := newStatusServer(cfg.MetricsAddr, NewRouter(bot, lister))
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("📈 status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get QR channel")
		}
		if err := client.Connect(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect")
		}
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				log.Info().Msg("QR code received, scan it please:")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			case "success":
				log.Info().Msg("✅ pairing successful")
			default:
				log.Warn().Str("event", evt.Event).Msg("pairing ended")
			}
		}
	} else if err := client.Connect(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}

	log.Info().Msg("🌐 Connected. Listening for group messages")

	select {
	case <-ctx.Done():
		log.Info().Msg("caught interrupt signal, shutting down gracefully...")
	case <-bot.LoggedOut():
		log.Warn().Msg("session ended, shutting down")
	}

	client.Disconnect()
	bot.Wait()
}
