// Package admin is the operator surface: password login issuing a
// short-lived JWT, and the dashboard aggregates behind it.
package admin

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/moltgrid/backend/internal/apperr"
)

type Service interface {
	Login(password string) (string, error)
	ValidateToken(token string) error
}

type service struct {
	passwordHash []byte // bcrypt
	secret       []byte
	now          func() time.Time
}

// NewService wires the operator credentials. passwordHash is the
// bcrypt hash from config; an empty hash disables login entirely.
func NewService(passwordHash, secret string) *service {
	return &service{passwordHash: []byte(passwordHash), secret: []byte(secret), now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) Login(password string) (string, error) {
	if len(s.passwordHash) == 0 {
		return "", apperr.Unauthorized("admin login is not configured")
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", apperr.Unauthorized("invalid credentials")
	}
	return s.issueToken()
}

func (s *service) issueToken() (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(s.now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(token string) error {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return apperr.Unauthorized("invalid token")
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub != "admin" {
		return apperr.Unauthorized("invalid token")
	}
	return nil
}
