package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coffeehouse/internal/backend"
	"coffeehouse/internal/cart"
	"coffeehouse/internal/config"
	"coffeehouse/internal/contact"
	"coffeehouse/internal/events"
	"coffeehouse/internal/httpserver"
	"coffeehouse/internal/logger"
	"coffeehouse/internal/menu"
	"coffeehouse/internal/profile"
	"coffeehouse/internal/reservation"
	accountsvc "coffeehouse/internal/service/account"
	"coffeehouse/internal/service/device"
	"coffeehouse/internal/storage"
	"coffeehouse/internal/storefront"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	sweepInterval = time.Minute
	purgeInterval = time.Hour
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("open backend", zap.Error(err))
	}
	defer be.Close()

	var (
		google httpserver.GoogleCallback
		ready  []httpserver.ReadyCheck
	)
	if be.Pool != nil {
		ready = append(ready, httpserver.ReadyCheck{Name: "db", Check: pingPool(be.Pool)})
	}
	if be.Accounts != nil {
		if cfg.GoogleOAuthEnabled() {
			google = be.Accounts
		}
		go purgeSessions(ctx, be.Accounts, log)
	}
	identity, docs := be.Identity, be.Documents

	var store storage.Store
	switch cfg.StorageBackend {
	case config.StorageRedis:
		client, err := storage.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("connect to redis", zap.Error(err))
		}
		defer client.Close()
		store = storage.NewRedis(client, "coffeehouse:", cfg.StorageTTL)
		ready = append(ready, httpserver.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	default:
		log.Warn("using in-memory storage; carts and sessions are lost on restart")
		store = storage.NewMemory()
	}

	catalog, err := menu.New(docs, log.Named("menu"))
	if err != nil {
		log.Fatal("load menu", zap.Error(err))
	}
	profiles := profile.New(docs, log.Named("profiles"))

	cartOpts := cart.Options{Scope: cart.Scope(cfg.CartScope), Resolver: catalog}
	if cfg.RabbitMQURL != "" {
		publisher, err := events.Dial(cfg.RabbitMQURL, cfg.OrdersExchange, log.Named("events"))
		if err != nil {
			log.Fatal("connect to rabbitmq", zap.Error(err))
		}
		defer publisher.Close()
		cartOpts.Notifier = publisher
	}

	registry := storefront.NewRegistry(storefront.Deps{
		Identity:  identity,
		Documents: docs,
		Storage:   store,
		Profiles:  profiles,
		Cart:      cartOpts,
	}, log.Named("storefront"))
	go registry.Run(ctx, sweepInterval, cfg.ClientIdle)

	devices, err := device.New([]byte(cfg.DeviceSecret), cfg.DeviceTTL)
	if err != nil {
		log.Fatal("init device tokens", zap.Error(err))
	}
	if cfg.DeviceSecret == "" {
		log.Warn("DEVICE_SECRET not set; device tokens will not survive a restart")
	}

	srv, err := httpserver.New(cfg.HTTPAddr, log.Named("http"), httpserver.Deps{
		Clients:           registry,
		Devices:           devices,
		Menu:              catalog,
		Profiles:          profiles,
		Reservations:      reservation.New(docs, log.Named("reservations")),
		Contact:           contact.New(docs, log.Named("contact")),
		Google:            google,
		Ready:             ready,
		PublicBaseURL:     cfg.PublicBaseURL,
		CORSOrigins:       cfg.CORSOrigins,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
	})
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func pingPool(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}

func purgeSessions(ctx context.Context, accounts *accountsvc.Service, log *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := accounts.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}
