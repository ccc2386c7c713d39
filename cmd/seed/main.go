package main

import (
	"context"

	"coffeehouse/internal/backend"
	"coffeehouse/internal/config"
	"coffeehouse/internal/logger"
	"coffeehouse/internal/seed"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.Named(cfg.Env, "seed")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	be, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("open backend", zap.Error(err))
	}
	defer be.Close()

	created, err := seed.Apply(ctx, be.Documents, log)
	if err != nil {
		log.Fatal("seed apply", zap.Error(err), zap.Int("created", created))
	}

	log.Info("seed applied", zap.Int("created", created))
}
