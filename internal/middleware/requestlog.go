package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

const (
    requestIDHeader = echo.HeaderXRequestID
    requestIDKey    = "request_id"
    // longer inbound IDs are replaced to keep log lines bounded
    requestIDMaxLen = 64
)

// RequestID reuses the caller's X-Request-ID or generates a UUID, stores
// it in the context and echoes it in the response.
func RequestID() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            rid := c.Request().Header.Get(requestIDHeader)
            if rid == "" || len(rid) > requestIDMaxLen {
                rid = uuid.NewString()
            }
            c.Set(requestIDKey, rid)
            c.Response().Header().Set(requestIDHeader, rid)
            return next(c)
        }
    }
}

// RequestLogger writes one structured line per request.  5xx responses
// log at error level, 4xx at warn, everything else at info.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let Echo's error handler write the response so the
                // status below is the one the client sees
                c.Error(err)
            }

            req := c.Request()
            status := c.Response().Status
            fields := []zap.Field{
                zap.Int("status", status),
                zap.String("method", req.Method),
                zap.String("path", req.URL.Path),
                zap.String("route", c.Path()),
                zap.String("ip", c.RealIP()),
                zap.Duration("latency", time.Since(start)),
                zap.String("subject", Subject(c)),
            }
            if rid, ok := c.Get(requestIDKey).(string); ok {
                fields = append(fields, zap.String("request_id", rid))
            }
            if err != nil {
                fields = append(fields, zap.Error(err))
            }

            switch {
            case status >= 500:
                log.Error("request failed", fields...)
            case status >= 400:
                log.Warn("client error", fields...)
            default:
                log.Info("request completed", fields...)
            }
            return nil
        }
    }
}
