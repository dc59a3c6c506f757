package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/repository"
	"github.com/iliyamo/exam-seating/internal/utils"
)

// SharedAdminSubject is the token subject of the shared admin password.
const SharedAdminSubject = "admin"

// LoginResult carries a freshly issued admin access token.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Subject     string    `json:"subject"`
}

// AuthService checks admin credentials and issues access tokens.
// Two kinds of credentials are accepted: the shared admin password,
// stored as a bcrypt hash, and named admin accounts looked up by email.
type AuthService struct {
	adminHash string
	users     AdminDirectory
	secret    string
	ttlMin    int
	log       *zap.Logger
}

// NewAuthService builds an AuthService.  users may be nil when no
// account store is configured.
func NewAuthService(adminHash string, users AdminDirectory, secret string, ttlMin int, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{adminHash: adminHash, users: users, secret: secret, ttlMin: ttlMin, log: log}
}

// IsValidAdminPassword reports whether plain matches the shared admin
// password.  It is always false when no hash is configured.
func (a *AuthService) IsValidAdminPassword(plain string) bool {
	return utils.VerifyPassword(a.adminHash, plain)
}

// Login authenticates with the shared password when email is empty and
// with a named admin account otherwise.
func (a *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if password == "" {
		return nil, ErrInvalidCredentials
	}
	subject, err := a.authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	tok, err := utils.NewAccessToken(a.secret, subject, utils.RoleAdmin, a.ttlMin)
	if err != nil {
		a.log.Error("issue access token failed", zap.Error(err))
		return nil, err
	}
	return &LoginResult{AccessToken: tok.Token, ExpiresAt: tok.Exp, Subject: subject}, nil
}

func (a *AuthService) authenticate(ctx context.Context, email, password string) (string, error) {
	if email == "" {
		if !a.IsValidAdminPassword(password) {
			return "", ErrInvalidCredentials
		}
		return SharedAdminSubject, nil
	}
	if a.users == nil {
		return "", ErrInvalidCredentials
	}
	u, err := a.users.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		a.log.Error("admin lookup failed", zap.Error(err))
		return "", err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return fmt.Sprintf("user:%d", u.ID), nil
}
