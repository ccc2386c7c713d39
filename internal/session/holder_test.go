package session

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentity struct {
	identities map[string]domain.Identity // secret -> identity
	passwords  map[string]string          // email -> password
	created    []string

	createSessionErr error
	currentErr       error
	createErr        error
	deleteErr        error
	oauthErr         error
	deleted          int
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{
		identities: map[string]domain.Identity{},
		passwords:  map[string]string{},
	}
}

func (s *stubIdentity) CreateSession(_ context.Context, email, password string) (remote.Credential, error) {
	if s.createSessionErr != nil {
		return remote.Credential{}, s.createSessionErr
	}
	if s.passwords[email] != password {
		return remote.Credential{}, &domain.AuthenticationError{Message: "Invalid credentials. Please check the email and password."}
	}
	secret := "secret-" + email
	s.identities[secret] = domain.Identity{ID: "id-" + email, Name: "N", Email: email}
	return remote.Credential{SessionID: "sess", Secret: secret}, nil
}

func (s *stubIdentity) CurrentIdentity(_ context.Context, cred remote.Credential) (domain.Identity, error) {
	if s.currentErr != nil {
		return domain.Identity{}, s.currentErr
	}
	id, ok := s.identities[cred.Secret]
	if !ok {
		return domain.Identity{}, &domain.AuthenticationError{Message: "no session"}
	}
	return id, nil
}

func (s *stubIdentity) CreateIdentity(_ context.Context, id, email, password, _ string) (domain.Identity, error) {
	if s.createErr != nil {
		return domain.Identity{}, s.createErr
	}
	s.created = append(s.created, id)
	s.passwords[email] = password
	return domain.Identity{ID: id, Email: email}, nil
}

func (s *stubIdentity) OAuthRedirectURL(_ context.Context, provider, success, failure string) (string, error) {
	if s.oauthErr != nil {
		return "", s.oauthErr
	}
	return "https://idp.test/" + provider + "?success=" + url.QueryEscape(success) + "&failure=" + url.QueryEscape(failure), nil
}

func (s *stubIdentity) CompleteOAuth(_ context.Context, callback url.Values) (remote.Credential, error) {
	if callback.Get("secret") != "oauth-ok" {
		return remote.Credential{}, &domain.AuthenticationError{Message: "bad oauth secret"}
	}
	s.identities["oauth-session"] = domain.Identity{ID: callback.Get("userId"), Email: "g@example.com"}
	return remote.Credential{SessionID: "s2", Secret: "oauth-session"}, nil
}

func (s *stubIdentity) DeleteSession(_ context.Context, cred remote.Credential, _ string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.identities, cred.Secret)
	s.deleted++
	return nil
}

type stubProfiles struct {
	existing  map[string]bool
	createErr error
	created   []string
}

func (p *stubProfiles) Get(_ context.Context, ownerID string) (*domain.UserProfile, error) {
	if p.existing[ownerID] {
		return &domain.UserProfile{OwnerID: ownerID}, nil
	}
	return nil, domain.ErrNotFound
}

func (p *stubProfiles) Create(_ context.Context, id domain.Identity, _ domain.ProfileExtras) (*domain.UserProfile, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, id.ID)
	return &domain.UserProfile{OwnerID: id.ID}, nil
}

func TestLogin_StoresCredentialAndNotifies(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	idp.passwords["ann@example.com"] = "Secret123"
	store := storage.NewMemory()
	h := New(idp, store, nil, nil)

	var seen []*domain.Identity
	h.Subscribe(func(_ context.Context, id *domain.Identity) { seen = append(seen, id) })

	id, err := h.Login(ctx, " ann@example.com ", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "id-ann@example.com", id.ID)
	assert.Equal(t, Authenticated, h.State())
	require.Len(t, seen, 1)
	assert.Equal(t, id.ID, seen[0].ID)

	raw, ok, _ := store.Get(ctx, credentialKey)
	assert.True(t, ok)
	assert.Contains(t, raw, "secret-ann@example.com")

	// A fresh holder over the same storage rehydrates the session.
	h2 := New(idp, store, nil, nil)
	restored := h2.CheckCurrentSession(ctx)
	require.NotNil(t, restored)
	assert.Equal(t, id.ID, restored.ID)
}

func TestLogin_PassesAuthenticationErrorThrough(t *testing.T) {
	h := New(newStubIdentity(), storage.NewMemory(), nil, nil)
	_, err := h.Login(context.Background(), "ann@example.com", "wrong")
	var authErr *domain.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "Invalid credentials. Please check the email and password.", authErr.Message)
	assert.Nil(t, h.Current())
	assert.Equal(t, Unauthenticated, h.State())
}

func TestCheckCurrentSession_OutageKeepsStoredCredential(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	idp.passwords["a@b.c"] = "pw"
	store := storage.NewMemory()
	h := New(idp, store, nil, nil)
	_, err := h.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	var cleared bool
	h.Subscribe(func(_ context.Context, id *domain.Identity) { cleared = id == nil })

	idp.currentErr = &domain.RemoteServiceError{Op: "get account", StatusCode: 503, Err: errors.New("unavailable")}
	assert.Nil(t, h.CheckCurrentSession(ctx))
	assert.Nil(t, h.Current())
	assert.Equal(t, Unauthenticated, h.State())
	assert.True(t, cleared)
	_, ok, _ := store.Get(ctx, credentialKey)
	assert.True(t, ok)

	// Once the service recovers the same device is signed in again.
	idp.currentErr = nil
	restored := New(idp, store, nil, nil).CheckCurrentSession(ctx)
	require.NotNil(t, restored)
	assert.Equal(t, "id-a@b.c", restored.ID)
	require.NotNil(t, h.CheckCurrentSession(ctx))
}

func TestCheckCurrentSession_RejectedCredentialIsDropped(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	idp.passwords["a@b.c"] = "pw"
	store := storage.NewMemory()
	h := New(idp, store, nil, nil)
	_, err := h.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	idp.currentErr = &domain.RemoteServiceError{Op: "get account", StatusCode: 401, Err: domain.ErrNotAuthenticated}
	assert.Nil(t, h.CheckCurrentSession(ctx))
	_, ok, _ := store.Get(ctx, credentialKey)
	assert.False(t, ok)
}

type flakyStore struct {
	*storage.Memory
	getErr error
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		err := f.getErr
		f.getErr = nil
		return "", false, err
	}
	return f.Memory.Get(ctx, key)
}

func TestCheckCurrentSession_StorageErrorKeepsCredential(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	idp.passwords["a@b.c"] = "pw"
	store := &flakyStore{Memory: storage.NewMemory()}
	_, err := New(idp, store, nil, nil).Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	h := New(idp, store, nil, nil)
	store.getErr = errors.New("redis timeout")
	assert.Nil(t, h.CheckCurrentSession(ctx))
	_, ok, _ := store.Get(ctx, credentialKey)
	assert.True(t, ok)

	require.NotNil(t, h.CheckCurrentSession(ctx))
	assert.Equal(t, Authenticated, h.State())
}

func TestCheckCurrentSession_NoCredential(t *testing.T) {
	h := New(newStubIdentity(), storage.NewMemory(), nil, nil)
	assert.Nil(t, h.CheckCurrentSession(context.Background()))
	assert.Equal(t, Unauthenticated, h.State())
}

func TestRegister_ProfileFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	profiles := &stubProfiles{createErr: errors.New("collection missing")}
	h := New(idp, storage.NewMemory(), profiles, nil)
	h.newID = func() string { return "new-id" }

	id, err := h.Register(ctx, "new@example.com", "Secret123", "New", domain.ProfileExtras{Phone: "1"})
	require.NoError(t, err)
	assert.Equal(t, "id-new@example.com", id.ID)
	assert.Equal(t, []string{"new-id"}, idp.created)
	assert.Equal(t, Authenticated, h.State())
}

func TestRegister_IdentityFailurePropagates(t *testing.T) {
	idp := newStubIdentity()
	idp.createErr = &domain.RemoteServiceError{Op: "create account", StatusCode: 409, Err: domain.ErrAlreadyExists}
	h := New(idp, storage.NewMemory(), &stubProfiles{}, nil)

	_, err := h.Register(context.Background(), "dup@example.com", "Secret123", "", domain.ProfileExtras{})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Nil(t, h.Current())
}

func TestGoogleRedirectAndCallback(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	profiles := &stubProfiles{existing: map[string]bool{}}
	h := New(idp, storage.NewMemory(), profiles, nil)

	redirect, err := h.LoginWithGoogleRedirect(ctx, "http://shop/auth/callback", "http://shop/login?error=oauth_failed")
	require.NoError(t, err)
	assert.Contains(t, redirect, "https://idp.test/google")
	assert.Equal(t, OAuthPending, h.State())
	assert.Nil(t, h.Current())

	_, err = h.CompleteOAuth(ctx, url.Values{"userId": {"g1"}, "secret": {"wrong"}})
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, h.State())

	id, err := h.CompleteOAuth(ctx, url.Values{"userId": {"g1"}, "secret": {"oauth-ok"}})
	require.NoError(t, err)
	assert.Equal(t, "g1", id.ID)
	assert.Equal(t, Authenticated, h.State())
	assert.Equal(t, []string{"g1"}, profiles.created)

	// Existing profiles are left alone on later sign-ins.
	profiles.existing["g1"] = true
	_, err = h.CompleteOAuth(ctx, url.Values{"userId": {"g1"}, "secret": {"oauth-ok"}})
	require.NoError(t, err)
	assert.Len(t, profiles.created, 1)
}

func TestGoogleRedirect_Unavailable(t *testing.T) {
	idp := newStubIdentity()
	idp.oauthErr = domain.ErrOAuthUnavailable
	h := New(idp, storage.NewMemory(), nil, nil)
	_, err := h.LoginWithGoogleRedirect(context.Background(), "a", "b")
	assert.ErrorIs(t, err, domain.ErrOAuthUnavailable)
	assert.Equal(t, Unauthenticated, h.State())
}

func TestLogout_RemoteFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	idp.passwords["a@b.c"] = "pw"
	store := storage.NewMemory()
	h := New(idp, store, nil, nil)
	_, err := h.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	idp.deleteErr = &domain.RemoteServiceError{Op: "delete session", StatusCode: 500}
	require.Error(t, h.Logout(ctx))
	assert.NotNil(t, h.Current())
	_, ok, _ := store.Get(ctx, credentialKey)
	assert.True(t, ok)

	idp.deleteErr = nil
	require.NoError(t, h.Logout(ctx))
	assert.Nil(t, h.Current())
	assert.Equal(t, 1, idp.deleted)
	_, ok, _ = store.Get(ctx, credentialKey)
	assert.False(t, ok)
}

func TestLogout_ExpiredRemoteSessionStillSignsOut(t *testing.T) {
	ctx := context.Background()
	idp := newStubIdentity()
	idp.passwords["a@b.c"] = "pw"
	store := storage.NewMemory()
	h := New(idp, store, nil, nil)
	_, err := h.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	idp.deleteErr = &domain.RemoteServiceError{Op: "delete session", StatusCode: 401, Err: domain.ErrNotAuthenticated}
	require.NoError(t, h.Logout(ctx))
	assert.Nil(t, h.Current())
	_, ok, _ := store.Get(ctx, credentialKey)
	assert.False(t, ok)

	_, err = h.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	idp.deleteErr = &domain.AuthenticationError{Message: "session is invalid or expired"}
	require.NoError(t, h.Logout(ctx))
	assert.Equal(t, Unauthenticated, h.State())
}

func TestLogout_WithoutSessionIsLocalOnly(t *testing.T) {
	idp := newStubIdentity()
	h := New(idp, storage.NewMemory(), nil, nil)
	require.NoError(t, h.Logout(context.Background()))
	assert.Equal(t, 0, idp.deleted)
}
