package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"coffeehouse/internal/backend"
	"coffeehouse/internal/config"
	"coffeehouse/internal/importer"
	"coffeehouse/internal/logger"
	"coffeehouse/internal/seed"
	"go.uber.org/zap"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to menu CSV (id,name,description,price,category,image,popular,rating)")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	log, err := logger.Named(cfg.Env, "importer")
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

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, seed.NewWriter(be.Documents, log))

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		log.Fatal("import failed", zap.Error(err), zap.Int("imported", count))
	}

	fmt.Printf("Imported %d menu items in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}
