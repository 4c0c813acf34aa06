package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

const sessionIssuer = "tableidentity"

// SessionClaims represents the claims in the session JWT
type SessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Stamp    string `json:"stamp"`
	Admin    bool   `json:"admin"`
}

// Session is a signed session token for one user
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
	Admin     bool
}

// SessionService issues and validates session tokens. A token stays valid
// only while the user's security stamp is unchanged, so a password change or
// reset signs out every session of that user.
type SessionService struct {
	users     *UserService
	secret    []byte
	ttl       time.Duration
	adminRole string
	now       func() time.Time
	log       *logger.Logger
}

// NewSessionService creates a new SessionService instance
func NewSessionService(users *UserService, cfg config.ServerConfig) *SessionService {
	return &SessionService{
		users:     users,
		secret:    []byte(cfg.JWTSecret),
		ttl:       cfg.SessionTTL,
		adminRole: cfg.AdminRole,
		now:       time.Now,
		log:       logger.Get().WithFields(logger.Component("session-service")),
	}
}

// SignIn checks the password of username and issues a session token
func (s *SessionService) SignIn(ctx context.Context, username, password string) (*Session, error) {
	if len(s.secret) == 0 {
		return nil, apperrors.InternalError("session signing key is not configured", nil)
	}

	user, err := s.users.CheckPassword(ctx, username, password)
	if err != nil {
		return nil, err
	}
	admin, err := s.users.IsInRole(ctx, user, s.adminRole)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			NotBefore: jwt.NewNumericDate(now),
		},
		Username: user.UserName,
		Stamp:    user.SecurityStamp,
		Admin:    admin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	s.log.WithContext(ctx).Info("Session issued",
		logger.UserID(user.ID),
		logger.Bool("admin", admin),
	)
	return &Session{Token: signed, ExpiresAt: expires, User: user, Admin: admin}, nil
}

// Authenticate validates a session token and returns its current user.
// Admin membership is re-checked against the roles table on every call.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (*Session, error) {
	if len(s.secret) == 0 {
		return nil, apperrors.Unauthorized("session tokens are disabled", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid session token", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, apperrors.Unauthorized("invalid session token claims", nil)
	}

	user, err := s.users.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil || user.SecurityStamp != claims.Stamp {
		return nil, apperrors.Unauthorized("session has been revoked", nil)
	}

	admin, err := s.users.IsInRole(ctx, user, s.adminRole)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tokenString, ExpiresAt: claims.ExpiresAt.Time, User: user, Admin: admin}, nil
}
