// README: Bearer-token auth middleware; resolves the caller to an Actor.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"drivemecrazy/internal/identity"
	"drivemecrazy/internal/infra"
)

const actorKey = "auth.actor"

// Auth verifies the Authorization bearer token and stores the resolved
// Actor on the request context. Requests without a valid token and role
// claim are rejected with 401 before any handler runs.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		tok, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		actor, err := identity.Resolve(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no usable role"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// CallerActor returns the Actor stored by Auth.
func CallerActor(c *gin.Context) (identity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return identity.Actor{}, false
	}
	actor, ok := v.(identity.Actor)
	return actor, ok
}
