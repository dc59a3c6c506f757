package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/exam-seating/internal/config"
)

// cachedResponse is what a cache entry holds.  Lookup answers are small
// JSON documents, so the content type is the only header kept.
type cachedResponse struct {
    Status      int    `json:"s"`
    ContentType string `json:"t"`
    Body        []byte `json:"b"`
}

// bodyRecorder forwards the response to the client and keeps a copy of
// at most limit bytes of the body.
type bodyRecorder struct {
    http.ResponseWriter
    status    int
    buf       bytes.Buffer
    limit     int64
    truncated bool
}

func (r *bodyRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
    if !r.truncated {
        if r.limit > 0 && int64(r.buf.Len()+len(b)) > r.limit {
            r.truncated = true
            r.buf.Reset()
        } else {
            r.buf.Write(b)
        }
    }
    return r.ResponseWriter.Write(b)
}

// cacheKey hashes the request parts selected by cfg.KeyStrategy and
// puts the hash under cfg.Prefix.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        parts = []string{"route", c.Path()}
    case "method_route":
        parts = []string{"method", r.Method, "route", c.Path()}
    case "method_route_query":
        parts = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
    default:
        parts = []string{"route", c.Path(), "q", r.URL.RawQuery}
    }
    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache caches 200 responses of the wrapped routes under
// cfg.Prefix.  Entries live for cfg.TTL or until a CacheFlusher drops
// them after the seating plan changes.  Responses are marked with
// X-Cache HIT or MISS.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passthrough
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 5 * time.Minute
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKey(cfg, c)

            if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
                var hit cachedResponse
                if json.Unmarshal(raw, &hit) == nil && hit.Status != 0 {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(hit.Status, hit.ContentType, hit.Body)
                }
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }

            if rec.status != http.StatusOK || rec.truncated {
                return nil
            }
            entry, err := json.Marshal(cachedResponse{
                Status:      rec.status,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        rec.buf.Bytes(),
            })
            if err == nil {
                // the request context may already be done
                _ = rdb.SetEx(context.Background(), key, entry, ttl).Err()
            }
            return nil
        }
    }
}

// CacheFlusher deletes every cached response under a prefix.
type CacheFlusher struct {
    rdb    *redis.Client
    prefix string
}

// NewCacheFlusher returns a flusher for cfg.Prefix.  With caching off or
// no Redis client the flusher does nothing.
func NewCacheFlusher(cfg config.CacheConfig, rdb *redis.Client) *CacheFlusher {
    if !cfg.Enabled {
        rdb = nil
    }
    return &CacheFlusher{rdb: rdb, prefix: cfg.Prefix}
}

const flushBatch = 200

// Invalidate scans for the prefix's keys and unlinks them in batches.
func (f *CacheFlusher) Invalidate(ctx context.Context) error {
    if f == nil || f.rdb == nil {
        return nil
    }
    iter := f.rdb.Scan(ctx, 0, f.prefix+":*", flushBatch).Iterator()
    batch := make([]string, 0, flushBatch)
    for iter.Next(ctx) {
        batch = append(batch, iter.Val())
        if len(batch) == flushBatch {
            if err := f.rdb.Unlink(ctx, batch...).Err(); err != nil {
                return err
            }
            batch = batch[:0]
        }
    }
    if err := iter.Err(); err != nil {
        return err
    }
    if len(batch) > 0 {
        return f.rdb.Unlink(ctx, batch...).Err()
    }
    return nil
}
