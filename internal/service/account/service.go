// Package account is the self-hosted identity service: password accounts, opaque
// session secrets and optional Google sign-in.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	accountrepo "coffeehouse/internal/repository/account"
	tokenrepo "coffeehouse/internal/repository/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentialsMessage = "Invalid credentials. Please check the email and password."

const oauthTokenTTL = 5 * time.Minute

// Options tune the Service. Zero values get defaults.
type Options struct {
	SessionTTL time.Duration
	Google     *GoogleConfig
}

// Service implements remote.IdentityService on top of Postgres.
type Service struct {
	repo        accountrepo.Repository
	tokens      *tokenManager
	google      *googleProvider
	sessionTTL  time.Duration
	passwordMin int
	logger      *zap.Logger
}

var _ remote.IdentityService = (*Service)(nil)

// New creates a Service with sane defaults.
func New(repo accountrepo.Repository, tokens tokenrepo.Repository, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	s := &Service{
		repo:        repo,
		tokens:      newTokenManager(tokens),
		sessionTTL:  opts.SessionTTL,
		passwordMin: 8,
		logger:      logger,
	}
	if opts.Google != nil {
		s.google = newGoogleProvider(*opts.Google)
	}
	return s
}

// CreateIdentity registers a password account. An empty id or remote.UniqueID mints one.
func (s *Service) CreateIdentity(ctx context.Context, id, email, password, name string) (domain.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Identity{}, domain.Invalid("a valid email is required")
	}
	password = strings.TrimSpace(password)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return domain.Identity{}, domain.Invalid("%s", err.Error())
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Identity{}, err
	}
	if id == "" || id == remote.UniqueID {
		id = uuid.NewString()
	}

	created, err := s.repo.Create(ctx, accountrepo.Account{
		ID:           id,
		Email:        email,
		PasswordHash: string(hashed),
		Name:         strings.TrimSpace(name),
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Identity{}, fmt.Errorf("%w: a user with the same email already exists", domain.ErrAlreadyExists)
		}
		return domain.Identity{}, err
	}
	return created.Identity(), nil
}

// CreateSession validates credentials and opens a session.
func (s *Service) CreateSession(ctx context.Context, email, password string) (remote.Credential, error) {
	password = strings.TrimSpace(password)
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return remote.Credential{}, &domain.AuthenticationError{Message: invalidCredentialsMessage}
		}
		return remote.Credential{}, err
	}
	if a.PasswordHash == "" {
		return remote.Credential{}, &domain.AuthenticationError{Message: invalidCredentialsMessage}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return remote.Credential{}, &domain.AuthenticationError{Message: invalidCredentialsMessage}
	}
	return s.openSession(ctx, a.ID)
}

// CurrentIdentity resolves the identity a session secret belongs to.
func (s *Service) CurrentIdentity(ctx context.Context, cred remote.Credential) (domain.Identity, error) {
	meta, ok := s.tokens.Validate(ctx, cred.Secret, tokenrepo.KindSession)
	if !ok {
		return domain.Identity{}, &domain.AuthenticationError{Message: "session is invalid or expired"}
	}
	a, err := s.repo.GetByID(ctx, meta.IdentityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, &domain.AuthenticationError{Message: "session is invalid or expired"}
		}
		return domain.Identity{}, err
	}
	return a.Identity(), nil
}

// DeleteSession revokes the session named by the credential. Only the credential's own
// session (or "current") can be deleted.
func (s *Service) DeleteSession(ctx context.Context, cred remote.Credential, sessionID string) error {
	if sessionID != "" && sessionID != remote.CurrentSession && sessionID != cred.SessionID {
		return fmt.Errorf("delete session %s: %w", sessionID, domain.ErrNotFound)
	}
	if _, ok := s.tokens.Validate(ctx, cred.Secret, tokenrepo.KindSession); !ok {
		return &domain.AuthenticationError{Message: "session is invalid or expired"}
	}
	return s.tokens.Revoke(ctx, cred.Secret)
}

// OAuthRedirectURL returns the Google consent URL. Without Google configuration it
// fails with domain.ErrOAuthUnavailable.
func (s *Service) OAuthRedirectURL(_ context.Context, provider, successURL, failureURL string) (string, error) {
	if s.google == nil || !strings.EqualFold(provider, remote.ProviderGoogle) {
		return "", domain.ErrOAuthUnavailable
	}
	return s.google.AuthURL(successURL, failureURL)
}

// CompleteOAuth trades the one-time secret from the provider callback for a session.
func (s *Service) CompleteOAuth(ctx context.Context, callback url.Values) (remote.Credential, error) {
	userID := strings.TrimSpace(callback.Get("userId"))
	secret := strings.TrimSpace(callback.Get("secret"))
	if userID == "" || secret == "" {
		return remote.Credential{}, &domain.AuthenticationError{Message: "oauth callback is missing userId or secret"}
	}
	meta, ok := s.tokens.Validate(ctx, secret, kindOAuth)
	if !ok || meta.IdentityID != userID {
		return remote.Credential{}, &domain.AuthenticationError{Message: "oauth secret is invalid or expired"}
	}
	if err := s.tokens.Revoke(ctx, secret); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return remote.Credential{}, err
	}
	return s.openSession(ctx, meta.IdentityID)
}

// PurgeExpired removes expired secrets.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.Purge(ctx)
}

func (s *Service) openSession(ctx context.Context, identityID string) (remote.Credential, error) {
	t, err := s.tokens.Issue(ctx, identityID, tokenrepo.KindSession, s.sessionTTL)
	if err != nil {
		return remote.Credential{}, err
	}
	return remote.Credential{SessionID: t.SessionID, Secret: t.Token}, nil
}

func validatePassword(p string, min int) error {
	trimmed := strings.TrimSpace(p)
	if len(trimmed) < min {
		return fmt.Errorf("password must be at least %d characters", min)
	}
	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return errors.New("password must contain at least 1 uppercase letter, 1 lowercase letter, and 1 number")
	}
	return nil
}
