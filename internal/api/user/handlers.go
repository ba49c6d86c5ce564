// Package user implements the credential endpoints under /api/user: login,
// refresh-token and verify-token.
package user

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vivadrive/organization-api/internal/api/response"
	"github.com/vivadrive/organization-api/internal/auth"
	"github.com/vivadrive/organization-api/internal/db/repositories"
	"github.com/vivadrive/organization-api/internal/middleware"
	"github.com/vivadrive/organization-api/internal/telemetry"
)

var (
	errNoActiveAccount = &response.AuthenticationError{
		Message: "No active account found with the given credentials",
		Code:    response.CodeInvalidCredentials,
	}
	errTokenInvalid = &response.AuthenticationError{
		Message: "Token is invalid or expired",
		Code:    response.CodeTokenNotValid,
	}
)

// Handlers handles the credential endpoints
type Handlers struct {
	tokens auth.TokenService
	users  repositories.UserStore
	now    func() time.Time
}

// NewHandlers creates the credential handlers.
func NewHandlers(tokens auth.TokenService, users repositories.UserStore) *Handlers {
	return &Handlers{tokens: tokens, users: users, now: time.Now}
}

// LoginRequest is the body of POST /api/user/login/.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest is the body of POST /api/user/refresh-token/.
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// RefreshResponse carries the new access token.
type RefreshResponse struct {
	Access string `json:"access"`
}

// VerifyRequest is the body of POST /api/user/verify-token/.
type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// @Summary      Obtain a token pair
// @Tags         User
// @Accept       json
// @Produce      json
// @Param        body  body      LoginRequest  true  "Credentials"
// @Success      200   {object}  auth.TokenPair
// @Failure      400   {object}  response.ErrorBody
// @Failure      401   {object}  response.ErrorBody
// @Failure      429   {object}  map[string]interface{}
// @Router       /api/user/login/ [post]
// LoginHandler exchanges a username and password for an access and refresh token.
// Unknown users, wrong passwords and inactive accounts get the same 401.
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, response.Bind(err))
			return
		}

		ctx := c.Request.Context()
		user, err := h.users.GetByUsername(ctx, req.Username)
		if err != nil {
			response.Fail(c, err)
			return
		}

		reason := ""
		switch {
		case user == nil:
			auth.CheckPassword("", req.Password)
			reason = "unknown_user"
		case !auth.CheckPassword(user.PasswordHash, req.Password):
			reason = "bad_password"
		case !user.IsActive:
			reason = "inactive"
		}
		if reason != "" {
			telemetry.LoginFailuresTotal.WithLabelValues(reason).Inc()
			middleware.Logger(c).Info("login failed", "username", req.Username, "reason", reason)
			response.Fail(c, errNoActiveAccount)
			return
		}

		pair, err := h.tokens.Issue(user.ID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		if err := h.users.UpdateLastLogin(ctx, user.ID, h.now().UTC()); err != nil {
			// The tokens are already valid; a stale last_login is not worth failing the login.
			middleware.Logger(c).Warn("failed to update last login", "user_id", user.ID, "error", err)
		}

		telemetry.TokensIssuedTotal.WithLabelValues(string(auth.AccessToken)).Inc()
		telemetry.TokensIssuedTotal.WithLabelValues(string(auth.RefreshToken)).Inc()
		middleware.Logger(c).Info("login succeeded", "user_id", user.ID, "username", user.Username, "name", user.FullName())
		c.JSON(http.StatusOK, pair)
	}
}

// @Summary      Refresh an access token
// @Tags         User
// @Accept       json
// @Produce      json
// @Param        body  body      RefreshRequest  true  "Refresh token"
// @Success      200   {object}  RefreshResponse
// @Failure      400   {object}  response.ErrorBody
// @Failure      401   {object}  response.ErrorBody
// @Router       /api/user/refresh-token/ [post]
// RefreshHandler issues a new access token for a valid refresh token whose
// account is still active.
func (h *Handlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, response.Bind(err))
			return
		}

		access, claims, err := h.tokens.Refresh(req.Refresh)
		if err != nil {
			response.Fail(c, errTokenInvalid)
			return
		}

		user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		if user == nil || !user.IsActive {
			response.Fail(c, errNoActiveAccount)
			return
		}

		telemetry.TokensIssuedTotal.WithLabelValues(string(auth.AccessToken)).Inc()
		c.JSON(http.StatusOK, RefreshResponse{Access: access})
	}
}

// @Summary      Verify a token
// @Tags         User
// @Accept       json
// @Produce      json
// @Param        body  body      VerifyRequest  true  "Access or refresh token"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  response.ErrorBody
// @Failure      401   {object}  response.ErrorBody
// @Router       /api/user/verify-token/ [post]
// VerifyHandler answers 200 with an empty object when the token's signature
// and expiry are good. Either token type verifies.
func (h *Handlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, response.Bind(err))
			return
		}

		if _, err := h.tokens.Verify(req.Token); err != nil {
			response.Fail(c, errTokenInvalid)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}
