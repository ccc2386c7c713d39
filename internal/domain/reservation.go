package domain

import "time"

// Reservation is a table booking request. OwnerID is empty for guests.
type Reservation struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId,omitempty"`
	OwnerEmail      string    `json:"ownerEmail"`
	OwnerName       string    `json:"ownerName"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Guests          int       `json:"guests"`
	Location        string    `json:"location"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ContactMessage is a message sent through the contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
