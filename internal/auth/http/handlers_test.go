package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/auth/domain"
	"github.com/pmsystem/pmdash/internal/auth/middleware"
	"github.com/pmsystem/pmdash/internal/auth/repository"
	"github.com/pmsystem/pmdash/internal/auth/service"
	projects "github.com/pmsystem/pmdash/internal/projects/domain"
)

type memAdmins map[string]string

func (m memAdmins) PasswordHash(_ context.Context, username string) (string, error) {
	h, ok := m[username]
	if !ok {
		return "", domain.ErrInvalidCredentials
	}
	return h, nil
}

func (m memAdmins) Count(context.Context) (int, error) { return len(m), nil }

func (m memAdmins) Create(_ context.Context, username, hash string) error {
	m[username] = hash
	return nil
}

type memProjects map[string]string

func (m memProjects) PasswordHash(_ context.Context, id string) (string, error) {
	h, ok := m[id]
	if !ok {
		return "", projects.ErrNotFound
	}
	return h, nil
}

func hash(t *testing.T, pw string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func setupRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := service.NewAuthService(
		memAdmins{"admin": hash(t, "s3cret")},
		memProjects{"PRJ-00000A": hash(t, "client-pw")},
		repository.NewRevocationRepository(rdb),
		auth.NewIssuer("test-secret", time.Hour),
	)

	protect := middleware.RequireToken(svc)
	r := gin.New()
	New(svc).Register(r.Group("/auth"), func(c *gin.Context) { c.Next() }, protect)
	r.GET("/me", protect, func(c *gin.Context) {
		p := auth.PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"role": p.Role, "subject": p.Subject})
	})
	r.GET("/admin-only", protect, middleware.RequireRole(projects.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, svc
}

func do(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, r http.Handler, path string, body any) string {
	rr := do(r, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func TestLoginAdmin(t *testing.T) {
	r, _ := setupRouter(t)

	rr := do(r, http.MethodPost, "/auth/admin", "", domain.AdminLogin{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(r, http.MethodPost, "/auth/admin", "", domain.AdminLogin{Username: "nobody", Password: "s3cret"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	tok := login(t, r, "/auth/admin", domain.AdminLogin{Username: "admin", Password: "s3cret"})
	rr = do(r, http.MethodGet, "/admin-only", tok, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestLoginClientIsScopedToProject(t *testing.T) {
	r, _ := setupRouter(t)

	rr := do(r, http.MethodPost, "/auth/client", "", domain.ClientLogin{ProjectID: "PRJ-404", Password: "client-pw"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	tok := login(t, r, "/auth/client", domain.ClientLogin{ProjectID: "PRJ-00000A", Password: "client-pw"})

	rr = do(r, http.MethodGet, "/me", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"role":"client","subject":"PRJ-00000A"}`, rr.Body.String())

	// wrong role is forbidden, not unauthorized
	rr = do(r, http.MethodGet, "/admin-only", tok, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	r, _ := setupRouter(t)
	tok := login(t, r, "/auth/admin", domain.AdminLogin{Username: "admin", Password: "s3cret"})

	rr := do(r, http.MethodPost, "/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(r, http.MethodGet, "/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMissingOrGarbageToken(t *testing.T) {
	r, _ := setupRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "not-a-jwt", nil).Code)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	admins := memAdmins{}
	svc := service.NewAuthService(admins, memProjects{}, nil, auth.NewIssuer("x", time.Hour))
	ctx := context.Background()

	require.NoError(t, svc.EnsureDefaultAdmin(ctx, "root", "pw"))
	require.Contains(t, admins, "root")
	first := admins["root"]

	// existing admins are left alone
	require.NoError(t, svc.EnsureDefaultAdmin(ctx, "root", "other"))
	assert.Equal(t, first, admins["root"])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(first), []byte("pw")))
}

type failingLogins struct{ err error }

func (f failingLogins) LoginAdmin(context.Context, domain.AdminLogin) (*domain.IssuedToken, error) {
	return nil, f.err
}

func (f failingLogins) LoginClient(context.Context, domain.ClientLogin) (*domain.IssuedToken, error) {
	return nil, f.err
}

func (f failingLogins) Logout(context.Context, *auth.Claims) error { return f.err }

func TestLogin_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pass := func(c *gin.Context) { c.Next() }

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"bad credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			New(failingLogins{err: tt.err}).Register(r.Group("/auth"), pass, pass)

			rr := do(r, http.MethodPost, "/auth/admin", "", gin.H{"username": "admin", "password": "x"})
			assert.Equal(t, tt.code, rr.Code)
			rr = do(r, http.MethodPost, "/auth/client", "", gin.H{"project_id": "PRJ-1", "password": "x"})
			assert.Equal(t, tt.code, rr.Code)
		})
	}

	r := gin.New()
	New(failingLogins{}).Register(r.Group("/auth"), pass, pass)
	rr := do(r, http.MethodPost, "/auth/admin", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
