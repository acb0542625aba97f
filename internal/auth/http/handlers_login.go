package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/auth/domain"
	"github.com/pmsystem/pmdash/internal/logger"
)

// Logins is the part of the auth service the handlers call.
type Logins interface {
	LoginAdmin(ctx context.Context, in domain.AdminLogin) (*domain.IssuedToken, error)
	LoginClient(ctx context.Context, in domain.ClientLogin) (*domain.IssuedToken, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

type Handler struct {
	logins Logins
}

func New(logins Logins) *Handler {
	return &Handler{logins: logins}
}

// LoginAdmin handles POST /auth/admin
func (h *Handler) LoginAdmin(c *gin.Context) {
	var req domain.AdminLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	tok, err := h.logins.LoginAdmin(c.Request.Context(), req)
	h.respond(c, tok, err)
}

// LoginClient handles POST /auth/client
func (h *Handler) LoginClient(c *gin.Context) {
	var req domain.ClientLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	tok, err := h.logins.LoginClient(c.Request.Context(), req)
	h.respond(c, tok, err)
}

func (h *Handler) respond(c *gin.Context, tok *domain.IssuedToken, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid credentials"})
			return
		}
		logger.Zlog.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"token":      tok.Token,
		"role":       tok.Role,
		"subject":    tok.Subject,
		"expires_at": tok.ExpiresAt,
	})
}

// Logout handles POST /auth/logout. It must run behind RequireToken.
func (h *Handler) Logout(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if err := h.logins.Logout(c.Request.Context(), claims); err != nil {
		logger.Zlog.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
