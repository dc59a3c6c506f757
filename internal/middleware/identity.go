package middleware

// identity.go holds helpers shared across middleware and handlers for
// reading who made the request.

import "github.com/labstack/echo/v4"

// Subject returns the token subject stored by JWTAuth, or "guest" when
// the request is unauthenticated.
func Subject(c echo.Context) string {
    if v, ok := c.Get(ctxSubject).(string); ok && v != "" {
        return v
    }
    return "guest"
}
