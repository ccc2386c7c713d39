// Package backend opens the configured remote identity service and document store.
package backend

import (
	"context"
	"fmt"

	"coffeehouse/internal/config"
	"coffeehouse/internal/db"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/remote/appwrite"
	accountrepo "coffeehouse/internal/repository/account"
	documentrepo "coffeehouse/internal/repository/document"
	tokenrepo "coffeehouse/internal/repository/token"
	accountsvc "coffeehouse/internal/service/account"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Backend is the remote side of the storefront.
type Backend struct {
	Identity  remote.IdentityService
	Documents remote.DocumentStore
	// Accounts is set for the self-hosted backend only.
	Accounts *accountsvc.Service
	// Pool is set for the self-hosted backend only.
	Pool *pgxpool.Pool
}

// Open connects to the backend named by cfg.RemoteBackend.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.RemoteBackend {
	case config.BackendAppwrite:
		client := appwrite.New(appwrite.Config{
			Endpoint:   cfg.Appwrite.Endpoint,
			ProjectID:  cfg.Appwrite.ProjectID,
			DatabaseID: cfg.Appwrite.DatabaseID,
			APIKey:     cfg.Appwrite.APIKey,
			Timeout:    cfg.Appwrite.Timeout,
		}, logger.Named("appwrite"))
		logger.Info("using appwrite backend", zap.String("endpoint", cfg.Appwrite.Endpoint))
		return &Backend{Identity: client, Documents: client}, nil
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.DBConnString)
		if err != nil {
			return nil, fmt.Errorf("connect to db: %w", err)
		}
		accounts := accountsvc.New(
			accountrepo.NewPostgres(pool, logger.Named("accounts")),
			tokenrepo.NewPostgres(pool),
			accountsvc.Options{SessionTTL: cfg.SessionTTL, Google: googleConfig(cfg)},
			logger.Named("identity"),
		)
		logger.Info("using postgres backend", zap.Bool("google_oauth", cfg.GoogleOAuthEnabled()))
		return &Backend{
			Identity:  accounts,
			Documents: documentrepo.NewPostgres(pool, logger.Named("documents")),
			Accounts:  accounts,
			Pool:      pool,
		}, nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}
}

// Close releases the database pool, if any.
func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

func googleConfig(cfg config.Config) *accountsvc.GoogleConfig {
	if !cfg.GoogleOAuthEnabled() {
		return nil
	}
	return &accountsvc.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.PublicBaseURL + "/oauth/google/callback",
		StateSecret:  []byte(cfg.GoogleClientSecret + cfg.DeviceSecret),
	}
}
