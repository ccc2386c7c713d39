// Package profile manages user profile documents in the profiles collection.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"go.uber.org/zap"
)

// Update carries the editable profile fields. Nil fields are left unchanged.
type Update struct {
	Name            *string                `json:"name" validate:"omitempty,max=128"`
	Phone           *string                `json:"phone" validate:"omitempty,max=32"`
	Preferences     map[string]interface{} `json:"preferences"`
	NewsletterOptIn *bool                  `json:"newsletter"`
}

type Service struct {
	docs   remote.DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

func New(docs remote.DocumentStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{docs: docs, logger: logger, now: time.Now}
}

// Get returns the first profile owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID string) (*domain.UserProfile, error) {
	doc, err := s.find(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	p := fromDocument(*doc)
	return &p, nil
}

// Create stores a new profile for the identity.
func (s *Service) Create(ctx context.Context, id domain.Identity, extras domain.ProfileExtras) (*domain.UserProfile, error) {
	if id.ID == "" {
		return nil, domain.Invalid("profile owner is required")
	}
	prefs, err := encodePreferences(extras.Preferences)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	doc, err := s.docs.CreateDocument(ctx, remote.CollectionProfiles, remote.UniqueID, map[string]interface{}{
		"ownerId":     id.ID,
		"email":       id.Email,
		"name":        id.Name,
		"phone":       strings.TrimSpace(extras.Phone),
		"preferences": prefs,
		"newsletter":  extras.NewsletterOptIn,
		"createdAt":   now,
		"updatedAt":   now,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	p := fromDocument(*doc)
	return &p, nil
}

// Update applies u to the owner's profile and stamps updatedAt.
func (s *Service) Update(ctx context.Context, ownerID string, u Update) (*domain.UserProfile, error) {
	doc, err := s.find(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"updatedAt": s.now().UTC().Format(time.RFC3339Nano)}
	if u.Name != nil {
		fields["name"] = strings.TrimSpace(*u.Name)
	}
	if u.Phone != nil {
		fields["phone"] = strings.TrimSpace(*u.Phone)
	}
	if u.Preferences != nil {
		prefs, err := encodePreferences(u.Preferences)
		if err != nil {
			return nil, err
		}
		fields["preferences"] = prefs
	}
	if u.NewsletterOptIn != nil {
		fields["newsletter"] = *u.NewsletterOptIn
	}
	updated, err := s.docs.UpdateDocument(ctx, remote.CollectionProfiles, doc.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.logger.Info("profile updated", zap.String("owner_id", ownerID))
	p := fromDocument(*updated)
	return &p, nil
}

func (s *Service) find(ctx context.Context, ownerID string) (*remote.Document, error) {
	if ownerID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	docs, err := s.docs.ListDocuments(ctx, remote.CollectionProfiles, remote.Equal("ownerId", ownerID))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("profile for %s: %w", ownerID, domain.ErrNotFound)
	}
	return &docs[0], nil
}

// Preferences are stored as a JSON string; the document store has no nested objects.
func encodePreferences(p map[string]interface{}) (string, error) {
	if p == nil {
		p = map[string]interface{}{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", domain.Invalid("preferences are not serializable")
	}
	return string(raw), nil
}

func fromDocument(doc remote.Document) domain.UserProfile {
	f := doc.Fields
	p := domain.UserProfile{
		ID:              doc.ID,
		OwnerID:         remote.String(f, "ownerId"),
		Email:           remote.String(f, "email"),
		Name:            remote.String(f, "name"),
		Phone:           remote.String(f, "phone"),
		Preferences:     remote.Map(f, "preferences"),
		NewsletterOptIn: remote.Bool(f, "newsletter"),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if t, ok := remote.Time(f, "createdAt"); ok {
		p.CreatedAt = t
	}
	if t, ok := remote.Time(f, "updatedAt"); ok {
		p.UpdatedAt = t
	}
	return p
}
