package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/response"
	"github.com/meritrack/backend/pkg/utils"
)

// UserStore is the subset of Repository the handler needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertByEmail(ctx context.Context, email, name string) (*models.User, error)
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// DevLoginRequest is the body for POST /auth/dev-login.
type DevLoginRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Session
	User *models.User `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users          UserStore
	jwt            *JWTService
	allowedDomains []string
	logger         *zap.Logger
}

// NewHandler creates an auth handler. allowedDomains restricts dev sign-in addresses.
func NewHandler(users UserStore, jwt *JWTService, allowedDomains []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, allowedDomains: allowedDomains, logger: logger}
}

// Login handles POST /auth/login for accounts that have a password (seeded administrators).
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Error("login lookup failed", zap.Error(err))
			response.Error(c, err)
			return
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	h.issue(c, user)
}

// DevLogin handles POST /auth/dev-login. It signs in by email alone, creating
// the student account on first use. Only mounted outside production.
func (h *Handler) DevLogin(c *gin.Context) {
	var req DevLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !utils.EmailDomainAllowed(req.Email, h.allowedDomains) {
		response.Forbidden(c, "email domain not allowed")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.Split(req.Email, "@")[0]
	}
	user, err := h.users.UpsertByEmail(c.Request.Context(), req.Email, name)
	if err != nil {
		h.logger.Error("dev login upsert failed", zap.Error(err), zap.String("email", req.Email))
		response.Error(c, err)
		return
	}
	h.logger.Info("dev login", zap.String("user_id", user.ID.String()))
	h.issue(c, user)
}

func (h *Handler) issue(c *gin.Context, user *models.User) {
	sess, err := h.jwt.Issue(user)
	if err != nil {
		h.logger.Error("issue token failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Session: sess, User: user})
}
