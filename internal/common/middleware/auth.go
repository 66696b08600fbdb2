package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"backbencher-auth-gateway/internal/common/logger"
	"backbencher-auth-gateway/internal/features/gate"
	profileservice "backbencher-auth-gateway/internal/features/profile/service"
	sessionservice "backbencher-auth-gateway/internal/features/session/service"
)

// resolveTimeout bounds how long a navigation waits for the first session
// event before answering "still loading".
const resolveTimeout = 5 * time.Second

// Context keys set for downstream handlers.
const (
	ContextSession = "session"
	ContextRole    = "role"
)

// RequireAuth gates a route on an authenticated session.
func RequireAuth(store *sessionservice.Store, g *gate.Gate) gin.HandlerFunc {
	return gateMiddleware(store, nil, g, "")
}

// RequireRole gates a route on an exact role match. The required role is
// compared verbatim against the synchronized profile role.
func RequireRole(store *sessionservice.Store, profiles profileservice.Service, g *gate.Gate, role string) gin.HandlerFunc {
	return gateMiddleware(store, profiles, g, role)
}

func gateMiddleware(store *sessionservice.Store, profiles profileservice.Service, g *gate.Gate, requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), resolveTimeout)
		defer cancel()

		// Block on the loading state instead of deciding against an
		// unresolved session.
		if err := store.WaitResolved(ctx); err != nil {
			respondResolving(c)
			return
		}

		sess, resolving := store.Current()

		profileRole := ""
		roleKnown := false
		if requiredRole != "" && sess != nil {
			snap, err := profiles.Sync(ctx, sess.UID, false)
			if err == nil && snap != nil {
				profileRole = snap.Role
				roleKnown = true
			}
		}

		outcome := g.Evaluate(sess, resolving, requiredRole, profileRole, roleKnown)
		switch outcome.Decision {
		case gate.DecisionRender:
			c.Set(ContextSession, sess)
			if roleKnown {
				c.Set(ContextRole, profileRole)
			}
			c.Next()
		case gate.DecisionRedirectLogin:
			c.Redirect(http.StatusFound, outcome.Location)
			c.Abort()
		case gate.DecisionRedirectUnauthorized:
			logger.Debug().
				Str("required_role", requiredRole).
				Str("profile_role", profileRole).
				Str("path", c.Request.URL.Path).
				Msg("Role gate refused navigation")
			c.Redirect(http.StatusFound, outcome.Location)
			c.Abort()
		default:
			respondResolving(c)
		}
	}
}

// respondResolving is the HTTP rendering of the neutral loading state.
func respondResolving(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"status":  "resolving",
	})
}
