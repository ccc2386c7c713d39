package account

import (
	"context"
	"time"

	"coffeehouse/internal/domain"
)

// Account is a stored identity with its credentials.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Name          string
	GoogleSubject string
	CreatedAt     time.Time
}

func (a Account) Identity() domain.Identity {
	return domain.Identity{ID: a.ID, Name: a.Name, Email: a.Email}
}

// Repository persists and fetches accounts.
type Repository interface {
	Create(ctx context.Context, a Account) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByGoogleSubject(ctx context.Context, subject string) (*Account, error)
	LinkGoogleSubject(ctx context.Context, id, subject string) error
}
