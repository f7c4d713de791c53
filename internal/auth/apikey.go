package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"
	// queryName carries the key for browser websocket clients, which cannot set headers.
	queryName = "api_key"

	roleContextKey = "auth.role"
)

// Role is what a presented key may do. Higher roles include lower ones.
type Role int

const (
	RoleNone Role = iota
	// RoleKiosk drives scanning, registration and ordering on a device.
	RoleKiosk
	// RoleAdmin also manages identities, the catalog and the blob store.
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleKiosk:
		return "kiosk"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Keys are the configured API keys. With neither set, authentication is
// disabled and every request is treated as admin.
type Keys struct {
	Admin string
	Kiosk string
}

func (k Keys) Disabled() bool {
	return k.Admin == "" && k.Kiosk == ""
}

// RoleOf returns the role granted by a presented key.
func (k Keys) RoleOf(provided string) Role {
	switch {
	case matches(provided, k.Admin):
		return RoleAdmin
	case matches(provided, k.Kiosk):
		return RoleKiosk
	default:
		return RoleNone
	}
}

func matches(provided, key string) bool {
	return key != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1
}

// APIKeyMiddleware validates the key from the X-API-Key header or the
// api_key query parameter and records the granted role on the context.
func APIKeyMiddleware(keys Keys) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keys.Disabled() {
			c.Set(roleContextKey, RoleAdmin)
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			provided = c.Query(queryName)
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		role := keys.RoleOf(provided)
		if role == RoleNone {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Set(roleContextKey, role)
		c.Next()
	}
}

// RequireRole rejects requests authenticated below min. It must run after
// APIKeyMiddleware.
func RequireRole(min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if RoleFrom(c) < min {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": min.String() + " key required",
			})
			return
		}
		c.Next()
	}
}

// RoleFrom returns the role APIKeyMiddleware granted, or RoleNone.
func RoleFrom(c *gin.Context) Role {
	v, ok := c.Get(roleContextKey)
	if !ok {
		return RoleNone
	}
	role, _ := v.(Role)
	return role
}
