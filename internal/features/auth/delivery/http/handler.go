package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "backbencher-auth-gateway/internal/common/errors"
	"backbencher-auth-gateway/internal/common/middleware"
	"backbencher-auth-gateway/internal/features/auth/service"
	"backbencher-auth-gateway/internal/features/gate"
	profileservice "backbencher-auth-gateway/internal/features/profile/service"
	sessionmodels "backbencher-auth-gateway/internal/features/session/models"
	sessionservice "backbencher-auth-gateway/internal/features/session/service"
)

type AuthHandler struct {
	auth     *service.Service
	store    *sessionservice.Store
	profiles profileservice.Service
	gate     *gate.Gate
	limiter  *middleware.RateLimiter
}

func NewAuthHandler(auth *service.Service, store *sessionservice.Store, profiles profileservice.Service, g *gate.Gate, limiter *middleware.RateLimiter) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		store:    store,
		profiles: profiles,
		gate:     g,
		limiter:  limiter,
	}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		credentials := auth.Group("")
		credentials.Use(h.limiter.Middleware())
		{
			credentials.POST("/login", h.login)
			credentials.POST("/google", h.googleLogin)
			credentials.POST("/register", h.register)
			credentials.POST("/forgot-password", h.forgotPassword)
		}

		auth.POST("/logout", h.logout)
		auth.GET("/session", h.session)

		me := auth.Group("")
		me.Use(middleware.RequireAuth(h.store, h.gate))
		{
			me.GET("/me", h.me)
		}
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Age      *int   `json:"age"`
}

type resetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// @Summary Sign in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Session and profile"
// @Failure 401 {object} middleware.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.SendError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid login payload"))
		return
	}

	sess, snap, err := h.auth.LoginWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"session": sess, "profile": snap.Profile, "role": snap.Role},
	})
}

// @Summary Sign in with Google
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Session and profile"
// @Failure 403 {object} middleware.ErrorResponse "Registrations disabled"
// @Router /auth/google [post]
func (h *AuthHandler) googleLogin(c *gin.Context) {
	sess, snap, err := h.auth.LoginWithOAuth(c.Request.Context())
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"session": sess, "profile": snap.Profile, "role": snap.Role},
	})
}

// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{} "Created session"
// @Failure 403 {object} middleware.ErrorResponse "Registrations disabled"
// @Failure 409 {object} middleware.ErrorResponse "Email already registered"
// @Router /auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.SendError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid registration payload"))
		return
	}

	sess, err := h.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Age)
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{"session": sess}})
}

// @Summary Request a password reset email
// @Tags auth
// @Accept json
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Router /auth/forgot-password [post]
func (h *AuthHandler) forgotPassword(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.SendError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid reset payload"))
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

// @Summary Sign out
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		h.sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// session reports the current session state without gating, matching what
// the UI shell needs to render a header: resolving flag plus uid or null.
func (h *AuthHandler) session(c *gin.Context) {
	sess, resolving := h.store.Current()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"session": sess, "resolving": resolving},
	})
}

// @Summary Current session's profile
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Session and synchronized profile"
// @Failure 302 {string} string "Redirect to login when signed out"
// @Router /auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	v, _ := c.Get(middleware.ContextSession)
	sess, ok := v.(*sessionmodels.Session)
	if !ok || sess == nil {
		middleware.SendError(c, apperrors.NewUnauthorizedError("no session"))
		return
	}

	snap, err := h.profiles.Sync(c.Request.Context(), sess.UID, false)
	if err != nil {
		middleware.SendError(c, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Profile sync failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"session": sess, "profile": snap.Profile, "role": snap.Role, "synced_at": snap.SyncedAt},
	})
}

func (h *AuthHandler) sendServiceError(c *gin.Context, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		middleware.SendError(c, appErr)
		return
	}
	middleware.SendError(c, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Unexpected error"))
}
