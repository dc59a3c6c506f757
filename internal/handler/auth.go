package handler

import (
    "context"  // provides context with cancellation for store calls
    "net/http" // HTTP status codes and primitives
    "time"     // timeouts for store calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing
    "go.uber.org/zap"

    "github.com/iliyamo/exam-seating/internal/service"
)

// AuthHandler exposes admin login.
type AuthHandler struct {
    Auth *service.AuthService
    Log  *zap.Logger
}

func NewAuthHandler(a *service.AuthService, log *zap.Logger) *AuthHandler {
    return &AuthHandler{Auth: a, Log: log}
}

// ----- DTOs -----

// loginReq carries either the shared admin password alone or the
// email and password of a named admin account.
type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}

type loginResp struct {
    Subject string    `json:"subject"`
    Access  tokenPart `json:"access"`
}

// Login: POST /v1/admin/login
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    res, err := h.Auth.Login(ctx, req.Email, req.Password)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, loginResp{
        Subject: res.Subject,
        Access:  tokenPart{Token: res.AccessToken, Expires: res.ExpiresAt},
    })
}
