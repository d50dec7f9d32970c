package main

import (
	"context"
	"invite-link-bot/internal/config"
	"invite-link-bot/internal/handler"
	"invite-link-bot/internal/httpserver"
	"invite-link-bot/internal/repository"
	"invite-link-bot/internal/scheduler"
	"invite-link-bot/internal/service"
	"invite-link-bot/pkg/telegram"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logrus.Info("Initializing config...")
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize bot")
	}

	logFile := setupLogging(cfg)
	if logFile != nil {
		defer logFile.Close()
	}
	logrus.Info("Config initialized...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()

	linkService := service.NewLinkService(repository.NewLinkFileRepository(cfg.LinksFile))

	policy := telegram.DefaultRetryPolicy()

	// Создаем клиент Telegram
	var client *telegram.Client
	err = telegram.Supervise(ctx, policy, "telegram client", func(context.Context) error {
		c, err := telegram.NewClient(cfg.TelegramToken, cfg.Debug)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logrus.WithError(err).Fatal("Max retries reached. Bot shutting down.")
	}
	if client == nil {
		logrus.Info("Bot stopped before start")
		return
	}

	logrus.Infof("Authorized on account %s", client.Bot.Self.UserName)

	deleteScheduler := scheduler.NewDeleteScheduler(telegram.NewMessageDeleter(client.Bot), scheduler.Config{
		DefaultDelay: cfg.AutoDeleteDelay,
		Workers:      cfg.DeleteWorkers,
		MaxPending:   cfg.MaxPendingDeletes,
		FlushOnStop:  cfg.DeletePendingOnShutdown,
	})
	deleteScheduler.Start(ctx)

	botHandler := handler.NewHandler(client.Bot, linkService, deleteScheduler, cfg)

	var polling atomic.Bool
	var metricsServer *httpserver.Server
	if cfg.MetricsAddr != "" {
		metricsServer = httpserver.New(cfg.MetricsAddr, httpserver.Deps{
			StartTime: startedAt,
			Links:     linkService.Count,
			Pending:   deleteScheduler.Pending,
			Ready:     polling.Load,
		})
		go func() {
			if err := metricsServer.Start(); err != nil {
				logrus.WithError(err).Error("HTTP server failed")
			}
		}()
	}

	// Первая попытка слушает обновления через уже созданный клиент,
	// после падения поднимаем новый: остановленный BotAPI обновлений больше не отдает
	firstSource := true
	poller := telegram.NewPoller(func() (telegram.UpdateSource, error) {
		if firstSource {
			firstSource = false
			return client.Bot, nil
		}
		c, err := telegram.NewClient(cfg.TelegramToken, cfg.Debug)
		if err != nil {
			return nil, err
		}
		return c.Bot, nil
	}, client.UpdateConfig)

	logrus.Info("Bot started. Press Ctrl+C to stop.")
	pollErr := telegram.Supervise(ctx, policy, "bot polling", func(ctx context.Context) error {
		return poller.Run(ctx, func(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
			polling.Store(true)
			defer polling.Store(false)
			return botHandler.HandleUpdates(ctx, updates)
		})
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	deleteScheduler.Stop(shutdownCtx)
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Error stopping HTTP server")
		}
	}

	if pollErr != nil && ctx.Err() == nil {
		logrus.WithError(pollErr).Fatal("Max retries reached. Bot shutting down.")
	}

	logrus.Info("Bot stopped gracefully")
}

// setupLogging настраивает уровень и вывод логов: stdout и, если задан, файл
func setupLogging(cfg *config.BotConfig) *os.File {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFile == "" {
		return nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.WithError(err).Warn("Failed to open log file, logging to stdout only")
		return nil
	}

	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	return f
}
