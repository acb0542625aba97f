package domain

import (
	"errors"
	"time"

	projects "github.com/pmsystem/pmdash/internal/projects/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrInvalidToken       = errors.New("invalid token")
)

// AdminLogin is the body of POST /auth/admin.
type AdminLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ClientLogin is the body of POST /auth/client.
type ClientLogin struct {
	ProjectID string `json:"project_id"`
	Password  string `json:"password"`
}

// IssuedToken is returned by both login endpoints.
type IssuedToken struct {
	Token     string        `json:"token"`
	Role      projects.Role `json:"role"`
	Subject   string        `json:"subject"`
	ExpiresAt time.Time     `json:"expires_at"`
}
