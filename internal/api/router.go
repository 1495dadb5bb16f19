package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/middleware"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log           *logrus.Logger
	DB            Database
	OrgLookup     middleware.OrgLookup
	Config        ConfigService
	Keys          KeyService
	Packages      PackageCreator
	PackageReader PackageReader
	Verifier      VerificationService
	Packs         PackService
	Queue         JobQueue
	CORSOrigins   []string
	Version       string
	SchemaVersion int
}

// Router-level limits.
const (
	maxJSONBody   = 1 << 20  // 1 MB
	maxUploadBody = 64 << 20 // 64 MB, multipart verification uploads
	rateLimit     = 100      // requests per second per IP
	rateBurst     = 200      // token bucket burst size
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(middleware.BodyLimits{JSON: maxJSONBody, Upload: maxUploadBody}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", middleware.ActorHeader},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.PrometheusMiddleware())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.DB, log, deps.Version, deps.SchemaVersion)
	config := NewConfigHandler(deps.Config, log)
	keys := NewKeyHandler(deps.Keys, log)
	packages := NewPackageHandler(deps.Packages, deps.PackageReader, deps.Verifier, deps.Queue, log)
	packs := NewPackHandler(deps.Packs, deps.Queue, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// All other API routes require authentication.
	bfGuard := middleware.NewBruteForceGuard(ctx, log)
	api.Use(middleware.BruteForceMiddleware(bfGuard))
	api.Use(middleware.AuthMiddleware(middleware.NewCachedOrgLookup(ctx, deps.OrgLookup), log, bfGuard))

	// Export policy.
	api.GET("/config", config.Get)
	api.PUT("/config", config.Put)
	api.DELETE("/config", config.Delete)

	// Signing keys.
	api.GET("/keys", keys.List)
	api.GET("/keys/active", keys.Active)
	api.POST("/keys/rotate", keys.Rotate)
	api.POST("/keys/:id/archive", keys.Archive)

	// Packages.
	api.POST("/packages", packages.Create)
	api.GET("/packages", packages.List)
	api.GET("/packages/:id", packages.Get)
	api.GET("/packages/:id/files", packages.Files)
	api.GET("/packages/:id/proof/:index", packages.Proof)
	api.POST("/packages/:id/verify", packages.Verify)
	api.GET("/packages/:id/verifications", packages.Verifications)

	// Audit packs.
	api.POST("/packs", packs.Create)
	api.GET("/packs", packs.List)
	api.GET("/packs/:id", packs.Get)
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
