// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The webhook endpoint is exempt from rate limiting: the platform
//     retries deliveries and a throttled retry storm loses events
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-line-crm/docs" // swagger spec registration
	"github.com/tbourn/go-line-crm/internal/config"
	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/http/handlers"
	"github.com/tbourn/go-line-crm/internal/http/middleware"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/repo"
	"github.com/tbourn/go-line-crm/internal/services"
)

// userStoreShim adapts the repository free functions to the services.UserStore
// interface expected by the IngestService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type userStoreShim struct{ db *gorm.DB }

// FindUserByLineID proxies repo.GetUserByLineID.
func (s userStoreShim) FindUserByLineID(ctx context.Context, lineUserID string) (*domain.User, error) {
	return repo.GetUserByLineID(ctx, s.db, lineUserID)
}

// CreateUser proxies repo.CreateUser.
func (s userStoreShim) CreateUser(ctx context.Context, u *domain.User) error {
	return repo.CreateUser(ctx, s.db, u)
}

// TouchUserMessage proxies repo.TouchUserMessage.
func (s userStoreShim) TouchUserMessage(ctx context.Context, id uint, ts time.Time) error {
	return repo.TouchUserMessage(ctx, s.db, id, ts)
}

// SetUserActive proxies repo.SetUserActive.
func (s userStoreShim) SetUserActive(ctx context.Context, id uint, active bool) error {
	return repo.SetUserActive(ctx, s.db, id, active)
}

// InsertMessage proxies repo.CreateMessage.
func (s userStoreShim) InsertMessage(ctx context.Context, m *domain.Message) error {
	return repo.CreateMessage(ctx, s.db, m)
}

// UpdateUserProfile proxies repo.UpdateUserProfile.
func (s userStoreShim) UpdateUserProfile(ctx context.Context, id uint, displayName, pictureURL, statusMessage, lang *string) error {
	return repo.UpdateUserProfile(ctx, s.db, id, displayName, pictureURL, statusMessage, lang)
}

// userRepoShim adapts the repository free functions to services.UserRepo for
// the dashboard UserService.
type userRepoShim struct{ db *gorm.DB }

// Get proxies repo.GetUser.
func (s userRepoShim) Get(ctx context.Context, id uint) (*domain.User, error) {
	return repo.GetUser(ctx, s.db, id)
}

// Count proxies repo.CountUsers.
func (s userRepoShim) Count(ctx context.Context, f repo.UserFilter) (int64, error) {
	return repo.CountUsers(ctx, s.db, f)
}

// ListPage proxies repo.ListUsersPage.
func (s userRepoShim) ListPage(ctx context.Context, f repo.UserFilter, offset, limit int) ([]domain.User, error) {
	return repo.ListUsersPage(ctx, s.db, f, offset, limit)
}

// UpdateCRM proxies repo.UpdateUserCRM.
func (s userRepoShim) UpdateCRM(ctx context.Context, id uint, tags []string, notes, erpCode, erpName *string) error {
	return repo.UpdateUserCRM(ctx, s.db, id, tags, notes, erpCode, erpName)
}

// MarkRead proxies repo.MarkUserRead.
func (s userRepoShim) MarkRead(ctx context.Context, id uint) error {
	return repo.MarkUserRead(ctx, s.db, id)
}

// UpdateProfile proxies repo.UpdateUserProfile.
func (s userRepoShim) UpdateProfile(ctx context.Context, id uint, displayName, pictureURL, statusMessage, lang *string) error {
	return repo.UpdateUserProfile(ctx, s.db, id, displayName, pictureURL, statusMessage, lang)
}

// CountMessages proxies repo.CountMessages.
func (s userRepoShim) CountMessages(ctx context.Context, userID uint) (int64, error) {
	return repo.CountMessages(ctx, s.db, userID)
}

// ListMessagesPage proxies repo.ListMessagesPage.
func (s userRepoShim) ListMessagesPage(ctx context.Context, userID uint, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(ctx, s.db, userID, offset, limit)
}

// Deps carries the external dependencies RegisterRoutes injects into the
// handler stack.
type Deps struct {
	DB       *gorm.DB
	Profiles line.ProfileClient
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// webhook endpoint and the versioned dashboard API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP; the webhook route is exempt)
//  8. CORS and Security headers
//
// It returns the IngestService so the server can drain detached enrichment
// tasks during graceful shutdown.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *services.IngestService {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (X-Line-Signature is masked by default)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP. The webhook group marks
	// itself exempt before this handler runs (see below).
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default; enable via SWAGGER_ENABLED)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/platform client
	ingestSvc := services.NewIngestService(userStoreShim{db: deps.DB}, deps.Profiles)
	ingestSvc.PersistTimeout = cfg.PersistTimeout
	ingestSvc.EnrichTimeout = cfg.EnrichTimeout
	userSvc := services.NewUserService(userRepoShim{db: deps.DB}, deps.Profiles)
	statsSvc := &services.StatsService{DB: deps.DB}

	wh := handlers.NewWebhookHandler(cfg.LINE.ChannelSecret, ingestSvc)
	uh := handlers.NewUserHandler(userSvc)
	sh := &handlers.StatsHandler{Svc: statsSvc}

	// Platform webhook: exempt from rate limiting, never gzip-compressed.
	r.POST("/webhook", middleware.ExemptFromRateLimit(), rl.Handler(), wh.Receive)

	// Dashboard API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	api.Use(rl.Handler())
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		// Contacts
		api.GET("/users", uh.List)
		api.GET("/users/export", uh.Export)
		api.POST("/users/batch-refresh", uh.BatchRefresh)
		api.GET("/users/:id", uh.Get)
		api.PUT("/users/:id/crm", uh.UpdateCRM)
		api.POST("/users/:id/read", uh.MarkRead)
		api.POST("/users/:id/refresh-profile", uh.RefreshProfile)

		// Message history
		api.GET("/users/:id/messages", uh.Messages)

		// Overview
		api.GET("/stats", sh.Overview)
	}

	return ingestSvc
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
