// Package reservation accepts table bookings and lists a user's bookings.
package reservation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/validation"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	dateLayout    = "2006-01-02"
	statusPending = "pending"
)

// Locations maps location codes to their display names.
var Locations = map[string]string{
	"sydney":    "Sydney - George Street",
	"melbourne": "Melbourne - Collins Street",
	"brisbane":  "Brisbane - Queen Street",
}

// TimeSlots are the bookable half-hour slots, 6:00 AM through 9:30 PM.
var TimeSlots = buildSlots()

func buildSlots() []string {
	slots := make([]string, 0, 32)
	start := time.Date(2000, 1, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 32; i++ {
		slots = append(slots, start.Add(time.Duration(i)*30*time.Minute).Format("3:04 PM"))
	}
	return slots
}

func init() {
	slots := make(map[string]bool, len(TimeSlots))
	for _, s := range TimeSlots {
		slots[s] = true
	}
	if err := validation.Validator().RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		return slots[fl.Field().String()]
	}); err != nil {
		panic(err)
	}
}

// Request is the booking form.
type Request struct {
	FirstName       string `json:"firstName" validate:"required,max=64"`
	LastName        string `json:"lastName" validate:"required,max=64"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,max=32"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,timeslot"`
	Guests          int    `json:"guests" validate:"min=1,max=10"`
	Location        string `json:"location" validate:"required,oneof=sydney melbourne brisbane"`
	SpecialRequests string `json:"specialRequests" validate:"max=1000"`
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

// Submit validates and stores a booking. Signed-in bookings are attributed to the identity,
// guest bookings to the name and email on the form.
func (s *Service) Submit(ctx context.Context, id *domain.Identity, req Request) (*domain.Reservation, error) {
	req = trim(req)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Date < s.now().Format(dateLayout) {
		return nil, domain.Invalid("date must not be in the past")
	}

	r := domain.Reservation{
		OwnerEmail:      req.Email,
		OwnerName:       req.FirstName + " " + req.LastName,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           req.Phone,
		Date:            req.Date,
		Time:            req.Time,
		Guests:          req.Guests,
		Location:        req.Location,
		SpecialRequests: req.SpecialRequests,
		Status:          statusPending,
		CreatedAt:       s.now().UTC(),
	}
	if id != nil {
		r.OwnerID = id.ID
		r.OwnerEmail = id.Email
		r.OwnerName = id.Name
	}

	doc, err := s.docs.CreateDocument(ctx, remote.CollectionReservations, remote.UniqueID, fields(r))
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	r.ID = doc.ID
	s.logger.Info("reservation submitted",
		zap.String("reservation_id", r.ID),
		zap.String("owner_id", r.OwnerID),
		zap.String("location", r.Location),
		zap.String("date", r.Date),
		zap.Int("guests", r.Guests),
	)
	return &r, nil
}

// ListForOwner returns the owner's bookings, soonest first.
func (s *Service) ListForOwner(ctx context.Context, ownerID string) ([]domain.Reservation, error) {
	if ownerID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	docs, err := s.docs.ListDocuments(ctx, remote.CollectionReservations, remote.Equal("ownerId", ownerID))
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	out := make([]domain.Reservation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return slotKey(out[i]).Before(slotKey(out[j]))
	})
	return out, nil
}

func slotKey(r domain.Reservation) time.Time {
	t, err := time.Parse(dateLayout+" 3:04 PM", r.Date+" "+r.Time)
	if err != nil {
		return r.CreatedAt
	}
	return t
}

func trim(r Request) Request {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.Location = strings.ToLower(strings.TrimSpace(r.Location))
	r.SpecialRequests = strings.TrimSpace(r.SpecialRequests)
	return r
}

func fields(r domain.Reservation) map[string]interface{} {
	return map[string]interface{}{
		"ownerId":         r.OwnerID,
		"ownerEmail":      r.OwnerEmail,
		"ownerName":       r.OwnerName,
		"firstName":       r.FirstName,
		"lastName":        r.LastName,
		"email":           r.Email,
		"phone":           r.Phone,
		"date":            r.Date,
		"time":            r.Time,
		"guests":          r.Guests,
		"location":        r.Location,
		"specialRequests": r.SpecialRequests,
		"status":          r.Status,
		"createdAt":       r.CreatedAt.Format(time.RFC3339Nano),
	}
}

func fromDocument(doc remote.Document) domain.Reservation {
	f := doc.Fields
	guests, _ := remote.Int64(f, "guests")
	created, ok := remote.Time(f, "createdAt")
	if !ok {
		created = doc.CreatedAt
	}
	return domain.Reservation{
		ID:              doc.ID,
		OwnerID:         remote.String(f, "ownerId"),
		OwnerEmail:      remote.String(f, "ownerEmail"),
		OwnerName:       remote.String(f, "ownerName"),
		FirstName:       remote.String(f, "firstName"),
		LastName:        remote.String(f, "lastName"),
		Email:           remote.String(f, "email"),
		Phone:           remote.String(f, "phone"),
		Date:            remote.String(f, "date"),
		Time:            remote.String(f, "time"),
		Guests:          int(guests),
		Location:        remote.String(f, "location"),
		SpecialRequests: remote.String(f, "specialRequests"),
		Status:          remote.String(f, "status"),
		CreatedAt:       created,
	}
}
