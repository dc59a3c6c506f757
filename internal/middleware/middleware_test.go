package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/config"
	"github.com/iliyamo/exam-seating/internal/utils"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func serve(e *echo.Echo, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "cache",
	}
}

func TestRedisCache_HitMissAndInvalidate(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cfg := cacheConfig()

	var calls int32
	e := echo.New()
	e.GET("/v1/lookup", func(c echo.Context) error {
		atomic.AddInt32(&calls, 1)
		if c.QueryParam("enrolment_no") == "missing" {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
		}
		return c.JSON(http.StatusOK, echo.Map{"room": "R1"})
	}, NewRedisCache(cfg, rdb))

	first := serve(e, http.MethodGet, "/v1/lookup?enrolment_no=E100", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/v1/lookup?enrolment_no=E100", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// errors are not cached
	serve(e, http.MethodGet, "/v1/lookup?enrolment_no=missing", nil)
	serve(e, http.MethodGet, "/v1/lookup?enrolment_no=missing", nil)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	require.NoError(t, NewCacheFlusher(cfg, rdb).Invalidate(context.Background()))
	third := serve(e, http.MethodGet, "/v1/lookup?enrolment_no=E100", nil)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestCacheFlusher_OnlyTouchesPrefix(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	require.NoError(t, mr.Set("cache:abc", "x"))
	require.NoError(t, mr.Set("cache:def", "y"))
	require.NoError(t, mr.Set("rl:ip:1.2.3.4", "z"))

	require.NoError(t, NewCacheFlusher(cacheConfig(), rdb).Invalidate(context.Background()))
	assert.False(t, mr.Exists("cache:abc"))
	assert.False(t, mr.Exists("cache:def"))
	assert.True(t, mr.Exists("rl:ip:1.2.3.4"))
}

func TestCacheFlusher_DisabledIsNoop(t *testing.T) {
	var f *CacheFlusher
	assert.NoError(t, f.Invalidate(context.Background()))

	cfg := cacheConfig()
	cfg.Enabled = false
	assert.NoError(t, NewCacheFlusher(cfg, nil).Invalidate(context.Background()))
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/v1/lookup", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, zap.NewNop()))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/v1/lookup", nil).Code)
	rec := serve(e, http.MethodGet, "/v1/lookup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	blocked := serve(e, http.MethodGet, "/v1/lookup", nil)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestTokenBucket_RedisDownAllows(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, zap.NewNop()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
	}
}

func TestJWTAuthAndRequireAdmin(t *testing.T) {
	const secret = "test-secret"
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, Subject(c))
	}, JWTAuth(secret), RequireAdmin())

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e, http.MethodGet, "/admin", http.Header{"Authorization": {"Bearer garbage"}}).Code)

	student, err := utils.NewAccessToken(secret, "user:7", "STUDENT", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden,
		serve(e, http.MethodGet, "/admin", http.Header{"Authorization": {"Bearer " + student.Token}}).Code)

	admin, err := utils.NewAccessToken(secret, "admin", utils.RoleAdmin, 5)
	require.NoError(t, err)
	rec := serve(e, http.MethodGet, "/admin", http.Header{"Authorization": {"Bearer " + admin.Token}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestRequireRole_WithoutAuthIs401(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireAdmin())
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/x", nil).Code)
}

func TestRequestIDAndLogger(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(), RequestLogger(zap.NewNop()))
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "nope") })

	rec := serve(e, http.MethodGet, "/boom", http.Header{echo.HeaderXRequestID: {"rid-1"}})
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "rid-1", rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, http.MethodGet, "/boom", nil)
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/lookup?enrolment_no=E1", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/lookup")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}
	assert.Equal(t, "rl:ip:10.0.0.1:route:GET /v1/lookup", rateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:guest", rateKey(cfg, c))

	cfg.KeyStrategy = "bogus"
	assert.Equal(t, "rl:ip:10.0.0.1:user:guest:route:GET /v1/lookup", rateKey(cfg, c))
}
