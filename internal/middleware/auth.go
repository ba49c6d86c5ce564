// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request identification, metrics and audit logging.
//
// Middleware ordering is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → CORS → [RateLimit | Auth → Audit] → Handler
//
// Security headers run early so they appear on all responses including errors.
// Rate limiting guards the credential endpoints before any password check.
// Auth loads the active user; Audit runs after the handler and records only
// successful mutations.
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vivadrive/organization-api/internal/api/response"
	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/db/models"
	"github.com/vivadrive/organization-api/internal/db/repositories"
)

// Context keys set by AuthMiddleware.
const (
	UserKey   = "user"
	UserIDKey = "user_id"
)

// errTokenNotValid is the single answer for any unusable bearer token so
// clients cannot tell a bad signature from an expired token.
var errTokenNotValid = &response.AuthenticationError{
	Message: "Given token not valid for any token type",
	Code:    response.CodeTokenNotValid,
}

// AuthMiddleware requires a valid access token and an active account.
// On success the *models.User and its ID are stored in the context.
func AuthMiddleware(tokens auth.TokenService, users repositories.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, err)
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil || claims.TokenType != auth.AccessToken {
			response.Abort(c, errTokenNotValid)
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Abort(c, err)
			return
		}
		if user == nil {
			response.Abort(c, &response.AuthenticationError{
				Message: "User not found",
				Code:    "user_not_found",
			})
			return
		}
		if !user.IsActive {
			response.Abort(c, &response.AuthenticationError{
				Message: "User is inactive",
				Code:    response.CodeUserInactive,
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", &response.AuthenticationError{
			Message: "Authentication credentials were not provided.",
			Code:    response.CodeNotAuthenticated,
		}
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", &response.AuthenticationError{
			Message: "Authorization header must start with 'Bearer '",
			Code:    response.CodeNotAuthenticated,
		}
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", &response.AuthenticationError{
			Message: "Authorization token is empty",
			Code:    response.CodeNotAuthenticated,
		}
	}
	return token, nil
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, error) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, errors.New("no authenticated user in context")
	}
	user, ok := v.(*models.User)
	if !ok || user == nil {
		return nil, errors.New("unexpected user type in context")
	}
	return user, nil
}
