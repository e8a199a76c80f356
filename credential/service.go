package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/romanqed/tonequeue/metrics"
)

// ServiceConfig controls Service's caching and rate-limiting behavior.
type ServiceConfig struct {
	// Skew is the safety margin subtracted from AccessExpiresAt when
	// deciding whether a token needs refreshing (spec §3).
	Skew time.Duration

	// RefreshRateLimit bounds the aggregate refresh rate across every
	// owner, in requests per minute, to respect the identity
	// provider's own limits (spec §4.3, §5: default 100 req/min).
	RefreshRateLimit int

	// Recorder records refresh latency and failure counts, if non-nil.
	Recorder *metrics.Recorder
}

// Service caches per-owner access tokens and refreshes them from the
// identity provider on miss or expiry, collapsing concurrent refreshes
// for the same owner into a single in-flight RPC (spec §4.3).
type Service struct {
	store     Store
	refresher Refresher
	skew      time.Duration
	limiter   *rate.Limiter
	group     singleflight.Group
	recorder  *metrics.Recorder
	log       *slog.Logger
}

// NewService builds a Service backed by store for persistence and
// refresher for the actual identity-provider exchange.
func NewService(store Store, refresher Refresher, cfg ServiceConfig, log *slog.Logger) *Service {
	limit := cfg.RefreshRateLimit
	if limit <= 0 {
		limit = 100
	}
	return &Service{
		store:     store,
		refresher: refresher,
		skew:      cfg.Skew,
		limiter:   rate.NewLimiter(rate.Limit(float64(limit)/60.0), limit),
		recorder:  cfg.Recorder,
		log:       log,
	}
}

// BearerFor returns a valid access token for ownerID, refreshing it
// first if necessary (spec §4.3 protocol).
//
// At most one refresh RPC is ever in flight per ownerID: concurrent
// callers for the same owner block on the single-flight group and
// share its result rather than each issuing a refresh of their own
// (spec §8 property 6).
func (s *Service) BearerFor(ctx context.Context, ownerID string) (string, error) {
	cred, err := s.store.GetCredential(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("credential: load %s: %w", ownerID, err)
	}
	if cred == nil {
		return "", fmt.Errorf("%w: no credential for owner %s", ErrPermanent, ownerID)
	}
	if cred.Broken {
		return "", fmt.Errorf("%w: credential for owner %s is broken", ErrPermanent, ownerID)
	}
	if !cred.Expired(time.Now(), s.skew) {
		return cred.AccessToken, nil
	}
	token, err, _ := s.group.Do(ownerID, func() (any, error) {
		return s.refresh(ctx, ownerID, cred.RefreshToken)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *Service) refresh(ctx context.Context, ownerID string, refreshToken string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %s", ErrTransient, err)
	}
	start := time.Now()
	refreshed, err := s.refresher.Refresh(ctx, ownerID, refreshToken)
	if s.recorder != nil {
		s.recorder.ObserveRefreshLatency(time.Since(start).Seconds())
	}
	if err != nil {
		if s.recorder != nil {
			s.recorder.IncRefreshFailure(refreshFailureKind(err))
		}
		if errors.Is(err, ErrPermanent) {
			s.markBroken(ctx, ownerID, refreshToken)
		}
		return "", err
	}
	cred := &Credential{
		OwnerId:         ownerID,
		AccessToken:     refreshed.AccessToken,
		RefreshToken:    refreshed.RefreshToken,
		AccessExpiresAt: refreshed.ExpiresAt,
		RefreshedAt:     time.Now(),
	}
	if err := s.store.PutCredential(ctx, ownerID, cred); err != nil {
		s.log.Error("persist refreshed credential failed", "owner", ownerID, "err", err)
		return "", fmt.Errorf("credential: persist %s: %w", ownerID, err)
	}
	return cred.AccessToken, nil
}

func refreshFailureKind(err error) string {
	if errors.Is(err, ErrPermanent) {
		return "permanent"
	}
	return "transient"
}

func (s *Service) markBroken(ctx context.Context, ownerID string, refreshToken string) {
	broken := &Credential{
		OwnerId:      ownerID,
		RefreshToken: refreshToken,
		RefreshedAt:  time.Now(),
		Broken:       true,
	}
	if err := s.store.PutCredential(ctx, ownerID, broken); err != nil {
		s.log.Error("mark credential broken failed", "owner", ownerID, "err", err)
	}
}

// Revoke forgets any cached single-flight state for ownerID, so a later
// BearerFor call starts a fresh refresh instead of joining one already
// in flight. Callers already waiting on that in-flight refresh still
// receive its result.
func (s *Service) Revoke(ownerID string) {
	s.group.Forget(ownerID)
}
