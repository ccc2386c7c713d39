// Package remote declares the ports to the hosted identity service and document store.
package remote

import (
	"context"
	"net/url"
	"time"

	"coffeehouse/internal/domain"
)

// Collections used by the storefront.
const (
	CollectionProfiles     = "profiles"
	CollectionOrders       = "orders"
	CollectionMenu         = "menu"
	CollectionReservations = "reservations"
	CollectionMessages     = "messages"
)

// UniqueID asks the document store to mint a document id.
const UniqueID = "unique()"

// CurrentSession names the session bound to the credential in DeleteSession.
const CurrentSession = "current"

// ProviderGoogle is the only federated provider the storefront offers.
const ProviderGoogle = "google"

// Credential is the opaque proof of a remote session.
type Credential struct {
	SessionID string `json:"sessionId"`
	Secret    string `json:"secret"`
}

// IsZero reports whether the credential carries no secret.
func (c Credential) IsZero() bool {
	return c.Secret == ""
}

// IdentityService owns credential verification and session issuance.
type IdentityService interface {
	CreateSession(ctx context.Context, email, password string) (Credential, error)
	CurrentIdentity(ctx context.Context, cred Credential) (domain.Identity, error)
	CreateIdentity(ctx context.Context, id, email, password, name string) (domain.Identity, error)
	OAuthRedirectURL(ctx context.Context, provider, successURL, failureURL string) (string, error)
	CompleteOAuth(ctx context.Context, callback url.Values) (Credential, error)
	DeleteSession(ctx context.Context, cred Credential, sessionID string) error
}

// Document is a record in a hosted collection.
type Document struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	Fields     map[string]interface{} `json:"fields"`
}

// Filter is an equality condition on a document field.
type Filter struct {
	Field string
	Value interface{}
}

// Equal builds a Filter.
func Equal(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// DocumentStore is the generic CRUD surface of the hosted database.
type DocumentStore interface {
	CreateDocument(ctx context.Context, collection, id string, fields map[string]interface{}) (*Document, error)
	ListDocuments(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	UpdateDocument(ctx context.Context, collection, docID string, fields map[string]interface{}) (*Document, error)
}
