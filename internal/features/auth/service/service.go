package service

import (
	"context"
	"strings"
	"time"

	apperrors "backbencher-auth-gateway/internal/common/errors"
	"backbencher-auth-gateway/internal/common/logger"
	profilemodels "backbencher-auth-gateway/internal/features/profile/models"
	profileservice "backbencher-auth-gateway/internal/features/profile/service"
	sessionmodels "backbencher-auth-gateway/internal/features/session/models"
	sessionservice "backbencher-auth-gateway/internal/features/session/service"
	"backbencher-auth-gateway/internal/platform/backendapi"
	"backbencher-auth-gateway/internal/platform/identity"
)

// BackendAPI is the slice of the user/site-settings backend the flows use.
type BackendAPI interface {
	GetUser(ctx context.Context, uid string) (*profilemodels.Profile, error)
	CreateUser(ctx context.Context, user profilemodels.NewUser) (*profilemodels.Profile, error)
	UpdateLastLogin(ctx context.Context, uid string, at time.Time) error
	RegistrationsAllowed(ctx context.Context) bool
}

// Service orchestrates the sign-in, sign-up and sign-out flows around the
// identity provider and the profile backend.
type Service struct {
	sessions *sessionservice.Service
	provider identity.Provider
	backend  BackendAPI
	profiles profileservice.Service
	now      func() time.Time
}

func NewService(sessions *sessionservice.Service, provider identity.Provider, backend BackendAPI, profiles profileservice.Service) *Service {
	return &Service{
		sessions: sessions,
		provider: provider,
		backend:  backend,
		profiles: profiles,
		now:      time.Now,
	}
}

// LoginWithPassword signs in with email/password, records the login time
// and forces a profile refresh so the caller sees current data.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (*sessionmodels.Session, *profilemodels.Snapshot, error) {
	sess, err := s.sessions.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	if err := s.backend.UpdateLastLogin(ctx, sess.UID, s.now()); err != nil {
		logger.Warn().Err(err).Str("uid", sess.UID).Msg("Failed to update last login")
	}

	snap, err := s.profiles.Refresh(ctx, sess.UID)
	if err != nil {
		return nil, nil, err
	}
	return sess, snap, nil
}

// LoginWithOAuth runs the OAuth popup flow. A first-time sign-in creates
// the backend profile, unless registrations are disabled, in which case the
// just-created identity is rolled back so no orphan principal remains.
func (s *Service) LoginWithOAuth(ctx context.Context) (*sessionmodels.Session, *profilemodels.Snapshot, error) {
	sess, err := s.sessions.SignInWithOAuthPopup(ctx)
	if err != nil {
		return nil, nil, err
	}

	exists := true
	if _, err := s.backend.GetUser(ctx, sess.UID); err != nil {
		if err != backendapi.ErrUserNotFound {
			return nil, nil, apperrors.NewExternalAPIError("user service", err)
		}
		exists = false
	}

	if !exists {
		if !s.backend.RegistrationsAllowed(ctx) {
			if err := s.provider.DeletePrincipal(ctx, sess.UID); err != nil {
				logger.Error().Err(err).Str("uid", sess.UID).Msg("Failed to roll back orphaned principal")
			}
			return nil, nil, apperrors.NewRegistrationsDisabledError()
		}

		name := sess.DisplayName
		if name == "" {
			name = "No Name"
		}
		loginAt := s.now()
		if _, err := s.backend.CreateUser(ctx, profilemodels.NewUser{
			UID:       sess.UID,
			Name:      name,
			Email:     sess.Email,
			Age:       nil,
			LastLogin: &loginAt,
		}); err != nil {
			return nil, nil, apperrors.NewExternalAPIError("user service", err)
		}
	} else {
		if err := s.backend.UpdateLastLogin(ctx, sess.UID, s.now()); err != nil {
			logger.Warn().Err(err).Str("uid", sess.UID).Msg("Failed to update last login")
		}
	}

	snap, err := s.profiles.Refresh(ctx, sess.UID)
	if err != nil {
		return nil, nil, err
	}
	return sess, snap, nil
}

// Register creates an identity-provider account and its backend profile.
// Registration is refused up front when the site has it disabled.
func (s *Service) Register(ctx context.Context, name, email, password string, age *int) (*sessionmodels.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "full name is required")
	}

	if !s.backend.RegistrationsAllowed(ctx) {
		return nil, apperrors.NewRegistrationsDisabledError()
	}

	sess, err := s.sessions.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if _, err := s.backend.CreateUser(ctx, profilemodels.NewUser{
		UID:   sess.UID,
		Name:  name,
		Email: strings.TrimSpace(email),
		Age:   age,
	}); err != nil {
		// The identity exists but the profile does not; the next sign-in
		// retries profile creation through the OAuth/first-login path.
		return nil, apperrors.NewExternalAPIError("user service", err)
	}

	return sess, nil
}

// ForgotPassword asks the provider to send a reset email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.sessions.RequestPasswordReset(ctx, email)
}

// Logout tears the session down. Cache invalidation happens before the
// provider call inside the session service.
func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.SignOut(ctx)
}
