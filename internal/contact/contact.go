// Package contact stores messages sent through the contact form.
package contact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/validation"
	"go.uber.org/zap"
)

// Message is the contact form.
type Message struct {
	FirstName string `json:"firstName" validate:"required,max=64"`
	LastName  string `json:"lastName" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"max=32"`
	Subject   string `json:"subject" validate:"required,oneof=general reservation catering feedback franchise other"`
	Message   string `json:"message" validate:"required,max=5000"`
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

func (s *Service) Submit(ctx context.Context, m Message) (*domain.ContactMessage, error) {
	m = Message{
		FirstName: strings.TrimSpace(m.FirstName),
		LastName:  strings.TrimSpace(m.LastName),
		Email:     strings.TrimSpace(m.Email),
		Phone:     strings.TrimSpace(m.Phone),
		Subject:   strings.ToLower(strings.TrimSpace(m.Subject)),
		Message:   strings.TrimSpace(m.Message),
	}
	if err := validation.Struct(m); err != nil {
		return nil, err
	}
	created := s.now().UTC()
	doc, err := s.docs.CreateDocument(ctx, remote.CollectionMessages, remote.UniqueID, map[string]interface{}{
		"firstName": m.FirstName,
		"lastName":  m.LastName,
		"email":     m.Email,
		"phone":     m.Phone,
		"subject":   m.Subject,
		"message":   m.Message,
		"createdAt": created.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("store contact message: %w", err)
	}
	s.logger.Info("contact message received",
		zap.String("message_id", doc.ID),
		zap.String("subject", m.Subject),
		zap.String("email", m.Email),
	)
	return &domain.ContactMessage{
		ID:        doc.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		Phone:     m.Phone,
		Subject:   m.Subject,
		Message:   m.Message,
		CreatedAt: created,
	}, nil
}
