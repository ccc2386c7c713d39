package domain

import "time"

// Identity is the authenticated user as reported by the identity service.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserProfile holds the editable profile stored in the profiles collection.
type UserProfile struct {
	ID              string                 `json:"id"`
	OwnerID         string                 `json:"ownerId"`
	Email           string                 `json:"email"`
	Name            string                 `json:"name"`
	Phone           string                 `json:"phone,omitempty"`
	Preferences     map[string]interface{} `json:"preferences,omitempty"`
	NewsletterOptIn bool                   `json:"newsletter"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// ProfileExtras are the optional registration fields beyond email/password/name.
type ProfileExtras struct {
	Phone           string                 `json:"phone"`
	Preferences     map[string]interface{} `json:"preferences"`
	NewsletterOptIn bool                   `json:"newsletter"`
}
