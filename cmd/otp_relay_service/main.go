package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/aradsms/otp_relay/internal/otp_relay_service/adapters/http"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/adapters/redislease"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/adapters/telegram"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/app"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/provider"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/repository/memory"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/repository/postgres"
	"github.com/aradsms/otp_relay/internal/platform/config"
	"github.com/aradsms/otp_relay/internal/platform/database"
	"github.com/aradsms/otp_relay/internal/platform/logger"
	"github.com/aradsms/otp_relay/internal/platform/messagebroker"
)

const (
	serviceName     = "otp-relay-service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)
	log.Info("Configuration loaded", "store_driver", cfg.StoreDriver, "poll_interval", cfg.PollInterval)

	startCtx, cancelStart := context.WithTimeout(mainCtx, startupTimeout)
	defer cancelStart()

	repo, closeStore, err := openStore(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher app.EventPublisher
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		publisher = natsClient
		log.Info("NATS connection initialized; lifecycle events enabled")
	}

	var lease app.PollLease
	if cfg.RedisAddr != "" {
		redisClient, err := redislease.Connect(startCtx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		if err := redisClient.Ping(startCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		lease = redislease.NewLease(redisClient)
		log.Info("Redis poll lease enabled", "addr", cfg.RedisAddr)
	}

	botAPI, err := telegram.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("authorize telegram bot: %w", err)
	}
	log.Info("Telegram bot authorized", "username", botAPI.Self.UserName)

	numberProvider := provider.NewMNITProvider(log, cfg.ProviderAllocateURL, cfg.ProviderInfoURL, cfg.ProviderAPIKey,
		&http.Client{Timeout: cfg.ProviderTimeout})
	notifier := telegram.NewNotifier(botAPI, log)
	machine := app.NewStateMachine(repo, notifier, publisher, cfg.BroadcastChatID, log)
	poller := app.NewPoller(numberProvider, machine, log, app.PollerConfig{MaxPages: cfg.PollMaxPages})
	scheduler := app.NewScheduler(repo, poller, lease, log, app.SchedulerConfig{
		Interval: cfg.PollInterval,
		LeaseTTL: cfg.PollLeaseTTL,
	})
	service := app.NewAllocationService(numberProvider, repo, machine, scheduler, log)
	bot := telegram.NewBot(botAPI, service, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httpadapter.NewRouter(service, []byte(cfg.AdminJWTSecret), log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET is empty; admin API will reject every request")
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	resumed, err := scheduler.Start(groupCtx)
	if err != nil {
		return err
	}
	log.Info("Scheduler started", "resumed", resumed)

	g.Go(func() error {
		return bot.Run(groupCtx)
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http shutdown: %w", err))
		}

		done := make(chan struct{})
		go func() {
			scheduler.Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info("All poll activities stopped")
		case <-shutdownCtx.Done():
			shutdownErr = errors.Join(shutdownErr, errors.New("poll activities did not stop before the shutdown timeout"))
		}
		return shutdownErr
	})

	log.Info("Service components initialized. Service is ready.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Service shutdown complete.")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.AllocationRepository, func(), error) {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Warn("Using in-memory allocation store; allocations are lost on restart")
		return memory.NewAllocationRepository(), func() {}, nil
	}

	pool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.NewPgAllocationRepository(pool, log)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Info("Database connection pool initialized")
	return repo, pool.Close, nil
}
