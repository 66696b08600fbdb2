package gate

import (
	sessionmodels "backbencher-auth-gateway/internal/features/session/models"
)

// Decision is the outcome of evaluating a protected navigation.
type Decision int

const (
	// DecisionResolving means the session or role is not known yet; show a
	// neutral loading state and decide nothing.
	DecisionResolving Decision = iota
	// DecisionRender allows the protected content.
	DecisionRender
	// DecisionRedirectLogin sends an unauthenticated visitor to sign-in.
	DecisionRedirectLogin
	// DecisionRedirectUnauthorized sends an authenticated visitor whose
	// role does not match to the unauthorized destination.
	DecisionRedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionResolving:
		return "resolving"
	case DecisionRender:
		return "render"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionRedirectUnauthorized:
		return "redirect_unauthorized"
	}
	return "unknown"
}

// Outcome pairs a decision with its redirect target when one applies.
type Outcome struct {
	Decision Decision
	Location string
}

// Gate decides, per navigation, whether to render a protected route.
type Gate struct {
	LoginPath        string
	UnauthorizedPath string
}

func New(loginPath, unauthorizedPath string) *Gate {
	if loginPath == "" {
		loginPath = "/auth/login"
	}
	if unauthorizedPath == "" {
		unauthorizedPath = "/unauthorized"
	}
	return &Gate{LoginPath: loginPath, UnauthorizedPath: unauthorizedPath}
}

// Evaluate applies the gate's state machine. Role gating is an exact string
// match, no hierarchy: "admin" does not satisfy a route requiring "mentor".
// A role-gated route with the role not yet known blocks as resolving rather
// than evaluating against a default, so an admin is never bounced to
// unauthorized during the window before their role loads.
func (g *Gate) Evaluate(sess *sessionmodels.Session, resolving bool, requiredRole, profileRole string, roleKnown bool) Outcome {
	if resolving {
		return Outcome{Decision: DecisionResolving}
	}
	if sess == nil {
		return Outcome{Decision: DecisionRedirectLogin, Location: g.LoginPath}
	}
	if requiredRole == "" {
		return Outcome{Decision: DecisionRender}
	}
	if !roleKnown {
		return Outcome{Decision: DecisionResolving}
	}
	if profileRole == requiredRole {
		return Outcome{Decision: DecisionRender}
	}
	return Outcome{Decision: DecisionRedirectUnauthorized, Location: g.UnauthorizedPath}
}
