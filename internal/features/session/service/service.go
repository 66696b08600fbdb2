package service

import (
	"context"
	"time"

	apperrors "backbencher-auth-gateway/internal/common/errors"
	"backbencher-auth-gateway/internal/common/logger"
	profileservice "backbencher-auth-gateway/internal/features/profile/service"
	"backbencher-auth-gateway/internal/features/session/models"
	"backbencher-auth-gateway/internal/platform/identity"
)

// syncTimeout bounds the profile sync performed inside session event
// handling so a hung backend cannot stall the event stream forever.
const syncTimeout = 15 * time.Second

// Service owns the session store and mediates every identity-provider
// operation. Session events are processed strictly in the order the
// provider delivers them.
type Service struct {
	provider    identity.Provider
	store       *Store
	profiles    profileservice.Service
	unsubscribe func()
}

func NewService(provider identity.Provider, store *Store, profiles profileservice.Service) *Service {
	s := &Service{
		provider: provider,
		store:    store,
		profiles: profiles,
	}
	s.unsubscribe = provider.OnSessionChange(s.onSessionChange)
	return s
}

// Close detaches from the provider's event stream.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Store exposes the session store for observers.
func (s *Service) Store() *Store {
	return s.store
}

// onSessionChange runs synchronously inside the provider's dispatch, which
// keeps event processing ordered: the sync for event N completes before
// event N+1 is observed here.
func (s *Service) onSessionChange(p *identity.Principal) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if p == nil {
		if err := s.profiles.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("Profile cache invalidation failed on sign-out")
		}
		s.store.Set(nil)
		logger.Debug().Msg("Session cleared")
		return
	}

	s.profiles.Bind(p.UID)
	if _, err := s.profiles.Sync(ctx, p.UID, false); err != nil {
		logger.Warn().Err(err).Str("uid", p.UID).Msg("Profile sync failed on session change")
	}
	s.store.Set(models.FromPrincipal(p))
	logger.Debug().Str("uid", p.UID).Msg("Session established")
}

func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	p, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, MapIdentityError(err)
	}
	return models.FromPrincipal(p), nil
}

func (s *Service) SignInWithOAuthPopup(ctx context.Context) (*models.Session, error) {
	p, err := s.provider.SignInWithOAuthPopup(ctx)
	if err != nil {
		return nil, MapIdentityError(err)
	}
	return models.FromPrincipal(p), nil
}

func (s *Service) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	p, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, MapIdentityError(err)
	}
	return models.FromPrincipal(p), nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if err := s.provider.SendPasswordReset(ctx, email); err != nil {
		return MapIdentityError(err)
	}
	return nil
}

// SignOut clears the profile cache first, unconditionally, then delegates
// session teardown to the provider. Cached profile data must not survive a
// sign-out even when the provider call fails partway.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.profiles.Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("Profile cache invalidation failed during sign-out")
	}

	if err := s.provider.SignOut(ctx); err != nil {
		return MapIdentityError(err)
	}
	return nil
}

// MapIdentityError translates provider sentinels into application errors.
func MapIdentityError(err error) *apperrors.AppError {
	switch err {
	case identity.ErrInvalidCredentials:
		return apperrors.New(apperrors.ErrCodeInvalidCredentials, "Invalid email or password")
	case identity.ErrAccountNotFound:
		return apperrors.New(apperrors.ErrCodeAccountNotFound, "No account exists for this email")
	case identity.ErrAccountExists:
		return apperrors.New(apperrors.ErrCodeAccountExists, "This email is already registered")
	case identity.ErrWeakCredential:
		return apperrors.New(apperrors.ErrCodeWeakCredential, "Password is too weak")
	case identity.ErrPopupCancelled:
		return apperrors.New(apperrors.ErrCodePopupCancelled, "Sign-in was cancelled")
	case identity.ErrPopupBlocked:
		return apperrors.New(apperrors.ErrCodePopupBlocked, "Popup was blocked by the browser")
	case identity.ErrRateLimited:
		return apperrors.New(apperrors.ErrCodeRateLimited, "Too many attempts, try again later")
	case identity.ErrNetworkUnavailable:
		return apperrors.New(apperrors.ErrCodeNetworkUnavailable, "Identity service unreachable")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeExternalAPI, "Identity provider request failed")
	}
}
