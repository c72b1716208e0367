package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stellaria/remy/internal/bot"
	"github.com/stellaria/remy/internal/db"
	"github.com/stellaria/remy/internal/logger"
	"github.com/stellaria/remy/internal/timers"
	"github.com/stellaria/remy/modules/moderation"
	"github.com/stellaria/remy/modules/reminders"
)

func main() {
	cfg, err := bot.LoadConfig()
	if err != nil {
		// No logger yet; exit immediately.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("open sqlite failed", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}
	log.Info("sqlite ready", zap.String("path", cfg.DBPath))

	store := timers.NewSQLiteStore(database.DB)
	bus := timers.NewBus(log.Named("bus"))
	scheduler := timers.NewScheduler(store, bus, log.Named("timers"))

	remindersMod, err := reminders.New(database.DB, store, scheduler, bus, log.Named("reminders"), cfg.GuildID)
	if err != nil {
		log.Fatal("reminders module init failed", zap.Error(err))
	}
	moderationMod, err := moderation.New(scheduler, bus, log.Named("moderation"), cfg.GuildID)
	if err != nil {
		log.Fatal("moderation module init failed", zap.Error(err))
	}

	runner, err := bot.NewRunner(cfg.Token, cfg.GuildID, log.Named("bot"), []bot.Module{
		remindersMod,
		moderationMod,
	})
	if err != nil {
		log.Fatal("session init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the dispatch loop before the gateway opens so timers persisted
	// by a previous run are picked up even if Discord is slow to connect.
	scheduler.Start(ctx)

	if err := runner.Run(ctx); err != nil {
		log.Error("bot run failed", zap.Error(err))
	}

	stop()
	scheduler.Wait()
	log.Info("shutdown complete")
}
