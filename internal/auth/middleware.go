package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MsgForbidden is the generic rejection message.
const MsgForbidden = "Forbidden Access"

// Authenticate resolves the bearer token into an Identity. Requests without a
// valid token are rejected with 403 and the chain is aborted.
func Authenticate(issuer *Issuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := issuer.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			if logger != nil && !errors.Is(err, ErrMissingToken) {
				logger.Debug("token rejected", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": MsgForbidden})
			return
		}
		SetIdentity(c, id)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not role, responding with message.
// The rejection is recorded on the context as ErrForbidden.
func RequireRole(role Role, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || !Allowed(id, role) {
			_ = c.Error(fmt.Errorf("%w: %s requires role %s", ErrForbidden, c.FullPath(), role))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": message})
			return
		}
		c.Next()
	}
}

// RequireSelf rejects callers whose username differs from the path parameter param.
func RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || id.Username != c.Param(param) {
			_ = c.Error(fmt.Errorf("%w: %s is restricted to its owner", ErrForbidden, c.FullPath()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": MsgForbidden})
			return
		}
		c.Next()
	}
}

// Allowed reports whether id holds role. Adding a role forces a decision here.
func Allowed(id Identity, role Role) bool {
	switch id.Role {
	case RoleEmployee:
		return role == RoleEmployee
	case RoleManager:
		return role == RoleManager
	default:
		return false
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
