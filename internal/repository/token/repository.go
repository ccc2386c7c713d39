package token

import (
	"context"
	"time"
)

// KindSession marks a login session secret.
const KindSession = "session"

// Token is an opaque secret bound to an identity. SessionID is the public handle of
// the session; Token is the secret presented on every request.
type Token struct {
	Token      string
	SessionID  string
	IdentityID string
	Kind       string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

type Repository interface {
	Create(ctx context.Context, token Token) error
	Get(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
