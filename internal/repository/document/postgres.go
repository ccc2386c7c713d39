package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const listLimit = 100

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository that keeps documents as JSONB rows.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) CreateDocument(ctx context.Context, collection, id string, fields map[string]interface{}) (*remote.Document, error) {
	if strings.TrimSpace(id) == "" || id == remote.UniqueID {
		id = uuid.NewString()
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	const q = `
INSERT INTO documents (id, collection, fields)
VALUES ($1, $2, $3::jsonb)
RETURNING id, collection, fields, created_at, updated_at
`
	return r.scanDocument(r.pool.QueryRow(ctx, q, id, collection, payload))
}

func (r *postgresRepo) ListDocuments(ctx context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	match := make(map[string]interface{}, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	payload, err := json.Marshal(match)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}

	const q = `
SELECT id, collection, fields, created_at, updated_at
FROM documents
WHERE collection = $1 AND fields @> $2::jsonb
ORDER BY created_at, id
LIMIT $3
`
	rows, err := r.pool.Query(ctx, q, collection, payload, listLimit)
	if err != nil {
		r.logger.Error("document repo: list", zap.String("collection", collection), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []remote.Document
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// UpdateDocument merges fields into the stored document; keys not named are kept.
func (r *postgresRepo) UpdateDocument(ctx context.Context, collection, docID string, fields map[string]interface{}) (*remote.Document, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	const q = `
UPDATE documents
SET fields = fields || $3::jsonb, updated_at = now()
WHERE collection = $1 AND id = $2
RETURNING id, collection, fields, created_at, updated_at
`
	return r.scanDocument(r.pool.QueryRow(ctx, q, collection, docID, payload))
}

func (r *postgresRepo) Delete(ctx context.Context, collection, docID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, docID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) scanDocument(row pgx.Row) (*remote.Document, error) {
	var doc remote.Document
	var raw []byte
	if err := row.Scan(&doc.ID, &doc.Collection, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("document repo: scan", zap.Error(err))
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc.Fields); err != nil {
		r.logger.Error("document repo: decode fields", zap.String("id", doc.ID), zap.Error(err))
		return nil, err
	}
	return &doc, nil
}
