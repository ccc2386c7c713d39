// Package device issues the signed tokens that identify a browser to the storefront.
package device

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New builds a Service. An empty secret gets a random per-process key, which
// invalidates every device token on restart.
func New(secret []byte, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate device secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &Service{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue mints a new device id and its token.
func (s *Service) Issue() (token, deviceID string, err error) {
	deviceID = uuid.NewString()
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return token, deviceID, nil
}

// Lookup returns the device id of a valid token.
func (s *Service) Lookup(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}
