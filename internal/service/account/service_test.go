package account

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	accountrepo "coffeehouse/internal/repository/account"
	tokenrepo "coffeehouse/internal/repository/token"
)

// memoryRepo is a lightweight in-memory account repository for tests.
type memoryRepo struct {
	mu      sync.Mutex
	byEmail map[string]accountrepo.Account
}

type memoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]tokenrepo.Token
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byEmail: make(map[string]accountrepo.Account)}
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{tokens: make(map[string]tokenrepo.Token)}
}

func (r *memoryTokenRepo) Create(_ context.Context, token tokenrepo.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[token.Token]; exists {
		return domain.ErrAlreadyExists
	}
	r.tokens[token.Token] = token
	return nil
}

func (r *memoryTokenRepo) Get(_ context.Context, token string) (*tokenrepo.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := t
	return &clone, nil
}

func (r *memoryTokenRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token]; !ok {
		return domain.ErrNotFound
	}
	delete(r.tokens, token)
	return nil
}

func (r *memoryTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.tokens {
		if !t.ExpiresAt.After(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) Create(_ context.Context, a accountrepo.Account) (*accountrepo.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, exists := r.byEmail[key]; exists {
		return nil, domain.ErrAlreadyExists
	}
	clone := a
	clone.Email = key
	r.byEmail[key] = clone
	return &clone, nil
}

func (r *memoryRepo) GetByEmail(_ context.Context, email string) (*accountrepo.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]; ok {
		clone := a
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*accountrepo.Account, error) {
	return r.find(func(a accountrepo.Account) bool { return a.ID == id })
}

func (r *memoryRepo) GetByGoogleSubject(_ context.Context, subject string) (*accountrepo.Account, error) {
	return r.find(func(a accountrepo.Account) bool { return a.GoogleSubject == subject })
}

func (r *memoryRepo) LinkGoogleSubject(_ context.Context, id, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, a := range r.byEmail {
		if a.ID == id {
			a.GoogleSubject = subject
			r.byEmail[k] = a
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memoryRepo) find(match func(accountrepo.Account) bool) (*accountrepo.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byEmail {
		if match(a) {
			clone := a
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func TestCreateIdentityAndSession_SucceedsWithTrimmedPassword(t *testing.T) {
	svc := New(newMemoryRepo(), newMemoryTokenRepo(), Options{}, nil)
	ctx := context.Background()

	created, err := svc.CreateIdentity(ctx, remote.UniqueID, "User@Example.com", " Abcdefg1 ", "Ann")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if created.ID == "" || created.ID == remote.UniqueID || created.Email != "user@example.com" {
		t.Fatalf("unexpected identity %+v", created)
	}

	cred, err := svc.CreateSession(ctx, "user@example.com", "Abcdefg1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if cred.IsZero() || cred.SessionID == "" {
		t.Fatalf("expected credential, got %+v", cred)
	}

	got, err := svc.CurrentIdentity(ctx, cred)
	if err != nil {
		t.Fatalf("current identity: %v", err)
	}
	if got != created {
		t.Fatalf("expected %+v, got %+v", created, got)
	}
}

func TestCreateIdentity_RejectsDuplicateEmail(t *testing.T) {
	svc := New(newMemoryRepo(), newMemoryTokenRepo(), Options{}, nil)
	ctx := context.Background()
	if _, err := svc.CreateIdentity(ctx, "", "dup@example.com", "Abcdefg1", ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateIdentity(ctx, "", "DUP@example.com", "Abcdefg1", "")
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestValidatePassword_FailsOnWeakValues(t *testing.T) {
	cases := []struct {
		name string
		pass string
	}{
		{"too short", "Abc1"},
		{"no upper", "abcdefg1"},
		{"no lower", "ABCDEFG1"},
		{"no digit", "Abcdefgh"},
	}
	for _, tc := range cases {
		if err := validatePassword(tc.pass, 8); err == nil {
			t.Fatalf("expected error for case %s", tc.name)
		}
	}
	svc := New(newMemoryRepo(), newMemoryTokenRepo(), Options{}, nil)
	if _, err := svc.CreateIdentity(context.Background(), "", "weak@example.com", "abc", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for weak password, got %v", err)
	}
}

func TestCreateSession_InvalidCredentials(t *testing.T) {
	svc := New(newMemoryRepo(), newMemoryTokenRepo(), Options{}, nil)
	ctx := context.Background()
	if _, err := svc.CreateIdentity(ctx, "", "user@example.com", "Abcdefg1", "T"); err != nil {
		t.Fatalf("create identity: %v", err)
	}

	for _, tc := range []struct{ email, password string }{
		{"user@example.com", "wrongpass"},
		{"missing@example.com", "Abcdefg1"},
	} {
		_, err := svc.CreateSession(ctx, tc.email, tc.password)
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthenticationError for %s, got %v", tc.email, err)
		}
		if authErr.Message != invalidCredentialsMessage {
			t.Fatalf("unexpected message %q", authErr.Message)
		}
	}
}

func TestCurrentIdentity_ExpiredSessionIsDeleted(t *testing.T) {
	tokens := newMemoryTokenRepo()
	svc := New(newMemoryRepo(), tokens, Options{SessionTTL: time.Minute}, nil)
	ctx := context.Background()
	if _, err := svc.CreateIdentity(ctx, "", "user@example.com", "Abcdefg1", ""); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	cred, err := svc.CreateSession(ctx, "user@example.com", "Abcdefg1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	svc.tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.CurrentIdentity(ctx, cred)
	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError for expired session, got %v", err)
	}
	if _, err := tokens.Get(ctx, cred.Secret); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired secret to be deleted, got %v", err)
	}
}

func TestDeleteSession_RevokesCurrent(t *testing.T) {
	svc := New(newMemoryRepo(), newMemoryTokenRepo(), Options{}, nil)
	ctx := context.Background()
	if _, err := svc.CreateIdentity(ctx, "", "user@example.com", "Abcdefg1", ""); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	cred, err := svc.CreateSession(ctx, "user@example.com", "Abcdefg1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := svc.DeleteSession(ctx, cred, "someone-elses"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session id, got %v", err)
	}
	if err := svc.DeleteSession(ctx, cred, remote.CurrentSession); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := svc.CurrentIdentity(ctx, cred); err == nil {
		t.Fatalf("expected revoked session to be rejected")
	}
	if err := svc.DeleteSession(ctx, cred, remote.CurrentSession); err == nil {
		t.Fatalf("expected second delete to fail")
	}
}

func TestOAuthRedirectURL_UnavailableWithoutGoogle(t *testing.T) {
	svc := New(newMemoryRepo(), newMemoryTokenRepo(), Options{}, nil)
	_, err := svc.OAuthRedirectURL(context.Background(), remote.ProviderGoogle, "http://x/ok", "http://x/fail")
	if !errors.Is(err, domain.ErrOAuthUnavailable) {
		t.Fatalf("expected ErrOAuthUnavailable, got %v", err)
	}
	if _, err := svc.HandleGoogleCallback(context.Background(), url.Values{}); !errors.Is(err, domain.ErrOAuthUnavailable) {
		t.Fatalf("expected ErrOAuthUnavailable from callback, got %v", err)
	}
}
