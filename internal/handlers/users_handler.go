package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
	"github.com/malekus40/ticket-reimbursement-system/internal/users"
	"github.com/malekus40/ticket-reimbursement-system/internal/validation"
)

// UserService registers and authenticates accounts.
type UserService interface {
	Register(ctx context.Context, username, password string) (*users.User, error)
	Authenticate(ctx context.Context, username, password string) (*users.User, error)
}

// RegisterUserRoutes registers the public /login routes.
func RegisterUserRoutes(r *gin.Engine, svc UserService, issuer *auth.Issuer, log *zap.Logger) {
	v := validation.New()
	log = logging.OrNop(log)

	r.POST("/login/register", func(c *gin.Context) {
		var req validation.CredentialsRequest
		if err := validation.BindAndValidate(c, &req, v, "User registration failed"); err != nil {
			return
		}

		u, err := svc.Register(c.Request.Context(), req.Username, req.Password)
		if errors.Is(err, users.ErrUserExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Username already taken"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "User registration failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": u})
	})

	r.POST("/login", func(c *gin.Context) {
		var req validation.CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}

		u, err := svc.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if !errors.Is(err, users.ErrInvalidCredentials) {
				log.Error("login", zap.String("username", req.Username), zap.Error(err))
			}
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}

		token, err := issuer.Issue(auth.Identity{Username: u.Username, Role: u.Role})
		if err != nil {
			log.Error("issue token", zap.String("username", u.Username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": token})
	})
}
