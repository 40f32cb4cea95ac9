package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// ErrForbidden is returned when an authenticated caller may not perform an action.
var ErrForbidden = errors.New("forbidden")

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Username string
	Role     Role
}

const identityKey = "auth.identity"

// SetIdentity stores id on the gin context.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity set by Authenticate.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
