package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"coffeehouse/internal/domain"
	tokenrepo "coffeehouse/internal/repository/token"
	"github.com/google/uuid"
)

// kindOAuth marks the one-time secret handed to the browser at the end of a provider
// redirect. CompleteOAuth trades it for a session secret.
const kindOAuth = "oauth"

type tokenMeta struct {
	SessionID  string
	IdentityID string
	Kind       string
	ExpiresAt  time.Time
}

type tokenManager struct {
	repo tokenrepo.Repository
	now  func() time.Time
}

func newTokenManager(repo tokenrepo.Repository) *tokenManager {
	return &tokenManager{
		repo: repo,
		now:  time.Now,
	}
}

// Issue stores a new random secret, retrying on the unlikely collision.
func (m *tokenManager) Issue(ctx context.Context, identityID, kind string, ttl time.Duration) (tokenrepo.Token, error) {
	expiresAt := m.now().Add(ttl)
	for i := 0; i < 5; i++ {
		secret, err := randomToken()
		if err != nil {
			return tokenrepo.Token{}, err
		}
		t := tokenrepo.Token{
			Token:      secret,
			SessionID:  uuid.NewString(),
			IdentityID: identityID,
			Kind:       kind,
			ExpiresAt:  expiresAt,
		}
		err = m.repo.Create(ctx, t)
		if err == nil {
			return t, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		return tokenrepo.Token{}, err
	}
	return tokenrepo.Token{}, errors.New("token collision")
}

// Validate returns the metadata of a live secret of the given kind. Expired secrets are deleted.
func (m *tokenManager) Validate(ctx context.Context, secret, kind string) (tokenMeta, bool) {
	if secret == "" {
		return tokenMeta{}, false
	}
	meta, err := m.repo.Get(ctx, secret)
	if err != nil {
		return tokenMeta{}, false
	}
	if meta.Kind != kind || meta.IdentityID == "" {
		return tokenMeta{}, false
	}
	if m.now().After(meta.ExpiresAt) {
		_ = m.repo.Delete(ctx, secret)
		return tokenMeta{}, false
	}
	return tokenMeta{
		SessionID:  meta.SessionID,
		IdentityID: meta.IdentityID,
		Kind:       meta.Kind,
		ExpiresAt:  meta.ExpiresAt,
	}, true
}

func (m *tokenManager) Revoke(ctx context.Context, secret string) error {
	return m.repo.Delete(ctx, secret)
}

func (m *tokenManager) Purge(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now())
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
