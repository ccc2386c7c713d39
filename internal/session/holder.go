// Package session tracks which identity, if any, a device is signed in as.
// Credential checks, session issuance and OAuth are delegated to the remote identity service.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State of the holder.
type State int

const (
	Unauthenticated State = iota
	// OAuthPending is entered on the redirect to the provider. It is left only through
	// the callback route; nothing in memory is needed to resume.
	OAuthPending
	Authenticated
)

func (s State) String() string {
	switch s {
	case OAuthPending:
		return "oauth_pending"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

const credentialKey = "session"

// Observer is told about every change of the signed-in identity (nil after sign-out).
type Observer func(ctx context.Context, identity *domain.Identity)

// Profiles is the part of the profile service the holder needs.
type Profiles interface {
	Get(ctx context.Context, ownerID string) (*domain.UserProfile, error)
	Create(ctx context.Context, identity domain.Identity, extras domain.ProfileExtras) (*domain.UserProfile, error)
}

// Holder is the Session/Identity Holder of one device.
type Holder struct {
	identity remote.IdentityService
	store    storage.Store
	profiles Profiles
	logger   *zap.Logger
	newID    func() string

	mu        sync.RWMutex
	state     State
	current   *domain.Identity
	cred      remote.Credential
	observers []Observer
}

// New builds a Holder. profiles may be nil, in which case no profile records are written.
func New(identity remote.IdentityService, store storage.Store, profiles Profiles, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Holder{
		identity: identity,
		store:    store,
		profiles: profiles,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Subscribe registers an observer.
func (h *Holder) Subscribe(fn Observer) {
	h.mu.Lock()
	h.observers = append(h.observers, fn)
	h.mu.Unlock()
}

// Current returns a copy of the signed-in identity, or nil.
func (h *Holder) Current() *domain.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneIdentity(h.current)
}

func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// CheckCurrentSession asks the identity service who the stored credential belongs to.
// Any failure resolves to no session. The stored credential is only dropped when the
// service rejects it; an outage leaves it in place for the next check.
func (h *Holder) CheckCurrentSession(ctx context.Context) *domain.Identity {
	cred, err := h.credential(ctx)
	if err != nil {
		h.logger.Warn("read stored session credential", zap.Error(err))
		h.forget(ctx)
		return nil
	}
	if cred.IsZero() {
		h.set(ctx, nil, remote.Credential{})
		return nil
	}
	id, err := h.identity.CurrentIdentity(ctx, cred)
	if err != nil {
		if sessionRejected(err) {
			h.logger.Debug("no active session", zap.Error(err))
			h.set(ctx, nil, remote.Credential{})
		} else {
			h.logger.Warn("identity service unavailable", zap.Error(err))
			h.forget(ctx)
		}
		return nil
	}
	h.set(ctx, &id, cred)
	return cloneIdentity(&id)
}

// Login opens a credentialed session and resolves its identity.
// Errors from the identity service are returned unchanged.
func (h *Holder) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.Invalid("email and password required")
	}
	cred, err := h.identity.CreateSession(ctx, email, password)
	if err != nil {
		return nil, err
	}
	id, err := h.identity.CurrentIdentity(ctx, cred)
	if err != nil {
		return nil, err
	}
	h.set(ctx, &id, cred)
	return cloneIdentity(&id), nil
}

// Register creates an identity, signs it in and then writes its profile. A failed
// profile write is logged only: the identity already exists at that point.
func (h *Holder) Register(ctx context.Context, email, password, displayName string, extras domain.ProfileExtras) (*domain.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.Invalid("email and password required")
	}
	if _, err := h.identity.CreateIdentity(ctx, h.newID(), email, password, strings.TrimSpace(displayName)); err != nil {
		return nil, err
	}
	cred, err := h.identity.CreateSession(ctx, email, password)
	if err != nil {
		return nil, err
	}
	id, err := h.identity.CurrentIdentity(ctx, cred)
	if err != nil {
		return nil, err
	}
	h.set(ctx, &id, cred)

	if h.profiles != nil {
		if _, err := h.profiles.Create(ctx, id, extras); err != nil {
			h.logger.Warn("create profile after registration failed",
				zap.String("identity_id", id.ID),
				zap.Error(err),
			)
		}
	}
	return cloneIdentity(&id), nil
}

// LoginWithGoogleRedirect returns the provider URL the browser must be sent to and moves
// the holder to OAuthPending. It never yields a session itself.
func (h *Holder) LoginWithGoogleRedirect(ctx context.Context, successURL, failureURL string) (string, error) {
	redirect, err := h.identity.OAuthRedirectURL(ctx, remote.ProviderGoogle, successURL, failureURL)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.state = OAuthPending
	h.mu.Unlock()
	return redirect, nil
}

// CompleteOAuth runs at the callback route after the provider redirect. It turns the
// callback parameters into a session, then makes sure a profile exists.
func (h *Holder) CompleteOAuth(ctx context.Context, callback url.Values) (*domain.Identity, error) {
	cred, err := h.identity.CompleteOAuth(ctx, callback)
	if err != nil {
		h.leavePending()
		return nil, err
	}
	id, err := h.identity.CurrentIdentity(ctx, cred)
	if err != nil {
		h.leavePending()
		return nil, err
	}
	h.set(ctx, &id, cred)
	h.ensureProfile(ctx, id)
	return cloneIdentity(&id), nil
}

// Logout deletes the remote session. When that fails the error is returned and the local
// state is left as it was. A session the service no longer knows counts as logged out.
func (h *Holder) Logout(ctx context.Context) error {
	cred, err := h.credential(ctx)
	if err != nil {
		return err
	}
	if !cred.IsZero() {
		if err := h.identity.DeleteSession(ctx, cred, remote.CurrentSession); err != nil {
			if !sessionRejected(err) {
				return err
			}
			h.logger.Debug("remote session already gone", zap.Error(err))
		}
	}
	h.set(ctx, nil, remote.Credential{})
	return nil
}

func (h *Holder) ensureProfile(ctx context.Context, id domain.Identity) {
	if h.profiles == nil {
		return
	}
	_, err := h.profiles.Get(ctx, id.ID)
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		h.logger.Warn("lookup profile after oauth failed", zap.String("identity_id", id.ID), zap.Error(err))
		return
	}
	if _, err := h.profiles.Create(ctx, id, domain.ProfileExtras{Preferences: map[string]interface{}{}}); err != nil {
		h.logger.Info("profile creation skipped", zap.String("identity_id", id.ID), zap.Error(err))
	}
}

func (h *Holder) leavePending() {
	h.mu.Lock()
	if h.state == OAuthPending {
		if h.current != nil {
			h.state = Authenticated
		} else {
			h.state = Unauthenticated
		}
	}
	h.mu.Unlock()
}

func (h *Holder) credential(ctx context.Context) (remote.Credential, error) {
	h.mu.RLock()
	cred := h.cred
	h.mu.RUnlock()
	if !cred.IsZero() {
		return cred, nil
	}
	raw, ok, err := h.store.Get(ctx, credentialKey)
	if err != nil {
		return remote.Credential{}, fmt.Errorf("read session credential: %w", err)
	}
	if !ok {
		return remote.Credential{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		h.logger.Warn("discard unreadable session credential", zap.Error(err))
		return remote.Credential{}, nil
	}
	return cred, nil
}

// set makes id the current identity and mirrors cred to storage.
func (h *Holder) set(ctx context.Context, id *domain.Identity, cred remote.Credential) {
	h.persist(ctx, cred)
	h.apply(ctx, id, cred)
}

// forget signs the holder out in memory only. The stored credential survives so a later
// check can restore the session.
func (h *Holder) forget(ctx context.Context) {
	h.apply(ctx, nil, remote.Credential{})
}

func (h *Holder) apply(ctx context.Context, id *domain.Identity, cred remote.Credential) {
	h.mu.Lock()
	prev := h.current
	h.current = cloneIdentity(id)
	h.cred = cred
	if id != nil {
		h.state = Authenticated
	} else {
		h.state = Unauthenticated
	}
	observers := append([]Observer(nil), h.observers...)
	h.mu.Unlock()

	if sameIdentity(prev, id) {
		return
	}
	for _, fn := range observers {
		fn(ctx, cloneIdentity(id))
	}
}

func (h *Holder) persist(ctx context.Context, cred remote.Credential) {
	if cred.IsZero() {
		if err := h.store.Delete(ctx, credentialKey); err != nil {
			h.logger.Warn("clear stored session credential", zap.Error(err))
		}
		return
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		h.logger.Warn("encode session credential", zap.Error(err))
		return
	}
	if err := h.store.Set(ctx, credentialKey, string(raw)); err != nil {
		h.logger.Warn("store session credential", zap.Error(err))
	}
}

// sessionRejected reports whether the identity service refused the credential itself,
// as opposed to failing to answer.
func sessionRejected(err error) bool {
	var authErr *domain.AuthenticationError
	return errors.As(err, &authErr) ||
		errors.Is(err, domain.ErrNotAuthenticated) ||
		errors.Is(err, domain.ErrNotFound)
}

func sameIdentity(a, b *domain.Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

func cloneIdentity(id *domain.Identity) *domain.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
