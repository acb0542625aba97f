// Package apitest runs the complete API against in-memory stores for tests.
package apitest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/bootstrap"
	"github.com/pmsystem/pmdash/internal/projects/domain"
	"github.com/pmsystem/pmdash/internal/projects/memstore"
	"github.com/pmsystem/pmdash/internal/projects/service"
	"github.com/pmsystem/pmdash/internal/uploads"
)

const (
	AdminUser     = "admin"
	AdminPassword = "admin-pw"
	WebhookSecret = "whsec-test"
)

type Server struct {
	*httptest.Server
	DB     *memstore.DB
	Redis  *miniredis.Miniredis
	Router *gin.Engine
}

// New starts the API. The server and its redis are closed with the test.
func New(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dir := t.TempDir()
	objects, err := uploads.NewLocalStore(dir, "/files")
	require.NoError(t, err)

	db := memstore.New()
	router, authSvc := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:        "pmdash-api-test",
		Version:            "test",
		AllowedOrigins:     []string{"*"},
		LoginRatePerMinute: 1000,
		WebhookSecret:      WebhookSecret,
		Redis:              rdb,
		Stores:             bootstrap.MemoryStores(db),
		Issuer:             auth.NewIssuer("test-secret", time.Hour),
		Objects:            objects,
		FilesDir:           dir,
	})
	require.NoError(t, authSvc.EnsureDefaultAdmin(context.Background(), AdminUser, AdminPassword))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &Server{Server: srv, DB: db, Redis: mr, Router: router}
}

// SeedProject creates a project directly in the store and returns its
// credentials.
func (s *Server) SeedProject(t *testing.T, name string, price int64, stages ...string) domain.ProjectCredentials {
	t.Helper()
	creds, err := service.NewProjectService(s.DB.Projects()).Create(context.Background(), domain.NewProject{
		Name:   name,
		Price:  decimal.NewFromInt(price),
		Stages: stages,
	})
	require.NoError(t, err)
	return *creds
}
