package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/config"
	"github.com/iliyamo/exam-seating/internal/handler"    // import the handlers that implement the endpoints
	"github.com/iliyamo/exam-seating/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// Handlers groups everything the router wires.
type Handlers struct {
	Health *handler.HealthHandler
	Lookup *handler.LookupHandler
	Auth   *handler.AuthHandler
	Admin  *handler.AdminHandler
}

// Options carries the Redis-backed middleware settings.  A nil Redis
// client turns caching and rate limiting off.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// registerPublic registers routes that do not require authentication.
// The health check is used by load balancers and monitoring systems.
func registerPublic(e *echo.Echo, h Handlers, mw middlewareSet) {
	e.GET("/healthz", h.Health.Health)

	// The student lookup is public, so it is rate limited to slow down
	// enumeration of enrolment numbers, and cached because exam mornings
	// bring bursts of identical queries.
	e.GET("/v1/lookup", h.Lookup.Lookup, mw.rateLimit, mw.cache)
}

// registerAuth registers the admin login.  It shares the rate limiter
// with the lookup to slow down password guessing.
func registerAuth(e *echo.Echo, a *handler.AuthHandler, mw middlewareSet) {
	e.POST("/v1/admin/login", a.Login, mw.rateLimit)
}

// registerAdmin registers every admin endpoint under /v1/admin.  All
// of them require a valid access token carrying the ADMIN role.
func registerAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireAdmin(),
	)
	g.GET("/rooms", a.ListRooms)
	g.GET("/rooms/:id/seats", a.ListSeats)
	g.PUT("/rooms/:id/seats", a.AssignSeatByBody)
	g.PUT("/rooms/:id/seats/:seat_no", a.AssignSeat)
	g.GET("/rooms/:id/export", a.ExportRoom)

	g.POST("/import/csv", a.ImportCSV)
	g.POST("/import/xlsx", a.ImportXLSX)
	g.POST("/import/pdf", a.ImportPDF)
}

type middlewareSet struct {
	rateLimit echo.MiddlewareFunc
	cache     echo.MiddlewareFunc
}

// Setup registers every route on e.  log receives rate limiter warnings.
func Setup(e *echo.Echo, h Handlers, opts Options, log *zap.Logger) {
	mw := middlewareSet{
		rateLimit: middleware.NewTokenBucket(opts.RateLimit, opts.Redis, log),
		cache:     middleware.NewRedisCache(opts.Cache, opts.Redis),
	}
	registerPublic(e, h, mw)
	registerAuth(e, h.Auth, mw)
	registerAdmin(e, h.Admin, opts.JWTSecret)
}
