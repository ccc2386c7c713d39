package main

import (
	"context"

	"coffeehouse/internal/config"
	"coffeehouse/internal/db"
	"coffeehouse/internal/logger"
	"coffeehouse/internal/migrate"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.Named(cfg.Env, "migrate")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool, log); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}

	log.Info("migrations applied")
}
