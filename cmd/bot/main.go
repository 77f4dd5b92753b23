// Package main contains the entrypoint for the Telegram chat bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgard/chatbridge/internal/ai"
	"github.com/edgard/chatbridge/internal/bot"
	"github.com/edgard/chatbridge/internal/bot/handlers"
	"github.com/edgard/chatbridge/internal/bot/tasks"
	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
	"github.com/edgard/chatbridge/internal/logger"
	"github.com/edgard/chatbridge/internal/staleness"
	"github.com/edgard/chatbridge/internal/status"
	"github.com/edgard/chatbridge/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires config, logging, storage, the model client, the staleness guard,
// the Telegram bot, the scheduler and the status server, then blocks until
// shutdown. It returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	aiClient, err := ai.NewClient(ctx, cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize AI client", "backend", cfg.AI.Backend, "error", err)
		return 1
	}

	metrics, err := status.NewMetrics()
	if err != nil {
		log.Error("Failed to register metrics", "error", err)
		return 1
	}

	guard := staleness.New(
		staleness.WithThreshold(cfg.Staleness.Threshold),
		staleness.WithMaxStreak(cfg.Staleness.MaxStreak),
		staleness.WithObserver(logger.StalenessObserver(log)),
		staleness.WithObserver(metrics.Observer()),
	)

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		AI:        aiClient,
		Guard:     guard,
		Metrics:   metrics,
		Scheduler: sched,
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, telegram.BotOptions(logger.Middleware(log), hDeps)...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	var statusServer bot.StatusServer
	if cfg.HTTP.Enabled {
		statusServer = status.NewServer(log, cfg.HTTP.Addr, store, guard, metrics)
	}

	app := bot.NewBot(log, cfg, db, store, aiClient, tg, sched, statusServer)

	log.Info("Starting bridge...",
		"stale_threshold", guard.Threshold(),
		"stale_max_streak", guard.MaxStreak(),
	)
	runErr := app.Run(ctx)
	log.Info("Bridge run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bridge stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bridge stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
