package bootstrap

import (
	"database/sql"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/pmsystem/pmdash/internal/api/http"
	apimw "github.com/pmsystem/pmdash/internal/api/http/middleware"
	"github.com/pmsystem/pmdash/internal/auth"
	authhttp "github.com/pmsystem/pmdash/internal/auth/http"
	authmw "github.com/pmsystem/pmdash/internal/auth/middleware"
	authrepo "github.com/pmsystem/pmdash/internal/auth/repository"
	authservice "github.com/pmsystem/pmdash/internal/auth/service"
	"github.com/pmsystem/pmdash/internal/payments"
	"github.com/pmsystem/pmdash/internal/projects/domain"
	projecthttp "github.com/pmsystem/pmdash/internal/projects/http"
	"github.com/pmsystem/pmdash/internal/projects/service"
	"github.com/pmsystem/pmdash/internal/uploads"
)

type RouterDeps struct {
	ServiceName        string
	Version            string
	AllowedOrigins     []string
	LoginRatePerMinute int
	WebhookSecret      string

	DB      *sql.DB
	Redis   *redis.Client
	Stores  Stores
	Issuer  *auth.Issuer
	Objects uploads.ObjectStore
	// FilesDir is served under /files when the local store is used.
	FilesDir string
}

// BuildRouter wires every route of the API. The auth service is returned so
// the caller can seed the default administrator.
func BuildRouter(dep RouterDeps) (*gin.Engine, *authservice.AuthService) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(apimw.RequestIDMiddleware())
	r.Use(cors.New(corsConfig(dep.AllowedOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	authSvc := authservice.NewAuthService(
		dep.Stores.Admins,
		dep.Stores.Projects,
		authrepo.NewRevocationRepository(dep.Redis),
		dep.Issuer,
	)
	protect := authmw.RequireToken(authSvc)
	adminOnly := authmw.RequireRole(domain.RoleAdmin)
	loginLimit := apimw.RateLimit(apimw.NewRateLimiter(dep.LoginRatePerMinute))

	authhttp.New(authSvc).Register(r.Group("/auth"), loginLimit, protect)

	projecthttp.New(
		service.NewProjectService(dep.Stores.Projects),
		service.NewChatService(dep.Stores.Messages),
		service.NewTodoService(dep.Stores.Todos),
	).Register(r, protect, adminOnly)

	uploads.NewHandler(dep.Objects, dep.Stores.Uploads).Register(r, protect)
	if dep.FilesDir != "" {
		r.Static("/files", dep.FilesDir)
	}

	payments.NewWebhookHandler(dep.WebhookSecret, dep.Stores.Projects, payments.NewEventLedger(dep.Redis)).Register(r)

	return r, authSvc
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-Match", "X-Request-Id"},
		ExposeHeaders: []string{"ETag", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
