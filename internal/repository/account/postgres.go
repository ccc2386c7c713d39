package account

import (
	"context"
	"errors"
	"strings"

	"coffeehouse/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const accountColumns = `id, email, password_hash, name, COALESCE(google_subject, ''), created_at`

func (r *postgresRepo) Create(ctx context.Context, a Account) (*Account, error) {
	var subject *string
	if a.GoogleSubject != "" {
		subject = &a.GoogleSubject
	}
	const q = `
INSERT INTO identities (id, email, password_hash, name, google_subject)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + accountColumns
	return r.scanAccount(r.pool.QueryRow(
		ctx,
		q,
		a.ID,
		strings.ToLower(a.Email),
		a.PasswordHash,
		a.Name,
		subject,
	))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const q = `SELECT ` + accountColumns + `
FROM identities
WHERE lower(email) = lower($1)
LIMIT 1
`
	return r.scanAccount(r.pool.QueryRow(ctx, q, strings.TrimSpace(email)))
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `SELECT ` + accountColumns + `
FROM identities
WHERE id = $1
LIMIT 1
`
	return r.scanAccount(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) GetByGoogleSubject(ctx context.Context, subject string) (*Account, error) {
	const q = `SELECT ` + accountColumns + `
FROM identities
WHERE google_subject = $1
LIMIT 1
`
	return r.scanAccount(r.pool.QueryRow(ctx, q, subject))
}

func (r *postgresRepo) LinkGoogleSubject(ctx context.Context, id, subject string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE identities SET google_subject = $2 WHERE id = $1`, id, subject)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Name,
		&a.GoogleSubject,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("account repo: scan", zap.Error(err))
		return nil, err
	}
	return &a, nil
}
