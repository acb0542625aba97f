package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/auth/domain"
	"github.com/pmsystem/pmdash/internal/logger"
	projects "github.com/pmsystem/pmdash/internal/projects/domain"
)

type AdminStore interface {
	PasswordHash(ctx context.Context, username string) (string, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, username, passwordHash string) error
}

// ProjectPasswords looks up the client access password of a project.
type ProjectPasswords interface {
	PasswordHash(ctx context.Context, projectID string) (string, error)
}

type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthService struct {
	admins   AdminStore
	projects ProjectPasswords
	revoked  RevocationStore
	issuer   *auth.Issuer
}

func NewAuthService(admins AdminStore, projects ProjectPasswords, revoked RevocationStore, issuer *auth.Issuer) *AuthService {
	return &AuthService{
		admins:   admins,
		projects: projects,
		revoked:  revoked,
		issuer:   issuer,
	}
}

// LoginAdmin verifies the administrator password and issues a token.
func (s *AuthService) LoginAdmin(ctx context.Context, in domain.AdminLogin) (*domain.IssuedToken, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.admins.PasswordHash(ctx, username)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.issue(projects.RoleAdmin, username)
}

// LoginClient verifies a project's access password. The token subject is
// the project id, which scopes every later request to that project.
func (s *AuthService) LoginClient(ctx context.Context, in domain.ClientLogin) (*domain.IssuedToken, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.projects.PasswordHash(ctx, projectID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.issue(projects.RoleClient, projectID)
}

func (s *AuthService) issue(role projects.Role, subject string) (*domain.IssuedToken, error) {
	token, claims, err := s.issuer.Sign(role, subject)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	logger.Zlog.Info("login",
		zap.String("role", string(role)),
		zap.String("subject", subject),
	)
	return &domain.IssuedToken{
		Token:     token,
		Role:      role,
		Subject:   subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Authenticate parses the bearer token and rejects revoked ones.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}
	return claims, nil
}

// Logout revokes the token until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// EnsureDefaultAdmin creates the configured administrator when none exists.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	n, err := s.admins.Count(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return nil
	}
	if username == "" || password == "" {
		logger.Zlog.Warn("no administrator exists and ADMIN_USERNAME/ADMIN_PASSWORD are not set")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.admins.Create(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Zlog.Info("default administrator created", zap.String("username", username))
	return nil
}
