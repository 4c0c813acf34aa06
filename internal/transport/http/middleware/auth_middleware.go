package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

const (
	userContextKey    = "user"
	sessionContextKey = "session"
)

// AuthMiddleware authenticates requests carrying a session token
type AuthMiddleware struct {
	sessions *service.SessionService
	log      *logger.Logger
}

func NewAuthMiddleware(sessions *service.SessionService) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		log:      logger.Get().WithFields(logger.Component("auth-middleware")),
	}
}

// RequireAuth requires a valid session token
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := m.authenticate(c); err != nil {
			m.abort(c, err)
			return
		}
		c.Next()
	}
}

// RequireAdmin requires a valid session token of a member of the admin role
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := m.authenticate(c)
		if err != nil {
			m.abort(c, err)
			return
		}
		if !session.Admin {
			m.log.WithContext(c.Request.Context()).Warn("Non-admin user attempted to access admin endpoint",
				logger.UserID(session.User.ID),
				logger.Username(session.User.UserName),
				logger.Method(c.Request.Method),
				logger.Path(c.Request.URL.Path),
			)
			m.abort(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// authenticate resolves the bearer token and stores the session on c
func (m *AuthMiddleware) authenticate(c *gin.Context) (*service.Session, error) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, apperrors.Unauthorized("", nil)
	}

	ctx := c.Request.Context()
	session, err := m.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", session.User.ID))
	c.Set(userContextKey, session.User)
	c.Set(sessionContextKey, session)
	return session, nil
}

// abort ends the request with the API error body for err. Errors other than
// unauthorized and forbidden are logged and reported without detail.
func (m *AuthMiddleware) abort(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	message := err.Error()
	switch kind {
	case apperrors.KindUnauthorized:
	case apperrors.KindForbidden:
		message = "admin privileges required"
	default:
		m.log.WithContext(c.Request.Context()).Error("Session lookup failed", logger.Error(err))
		kind = apperrors.KindInternal
		message = "An unexpected error occurred"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.Status(), gin.H{"error": kind, "message": message})
}

// GetUserFromContext retrieves the authenticated user from the context
func GetUserFromContext(c *gin.Context) *models.User {
	u, _ := c.Value(userContextKey).(*models.User)
	return u
}

// GetSessionFromContext retrieves the authenticated session from the context
func GetSessionFromContext(c *gin.Context) *service.Session {
	s, _ := c.Value(sessionContextKey).(*service.Session)
	return s
}
