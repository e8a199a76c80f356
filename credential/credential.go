// Package credential caches per-owner external identity-provider access
// tokens and refreshes them under a single-flight lock (spec §4.3).
package credential

import (
	"context"
	"time"
)

// Credential is the per-owner secret material exchanged with the
// external identity provider (spec §3).
//
// A Credential is considered expired once now >= AccessExpiresAt -
// skew; Service.BearerFor refreshes it before that point is reached.
//
// Broken is set when the identity provider rejects a refresh attempt
// with a permanent error (invalid_grant); a broken credential is never
// auto-refreshed again and every subsequent BearerFor call fails
// immediately with ErrPermanent until the owner re-authorizes.
type Credential struct {
	OwnerId         string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	RefreshedAt     time.Time
	Broken          bool
}

// Expired reports whether the credential must be refreshed before use,
// given a clock reading now and a safety skew.
func (c *Credential) Expired(now time.Time, skew time.Duration) bool {
	return !now.Before(c.AccessExpiresAt.Add(-skew))
}

// Store is the narrow persistence contract Service depends on. A
// store.Store (or any other Durable Store implementation satisfying
// tonequeue.Store) implements this by construction, since method names
// and signatures match exactly.
type Store interface {
	GetCredential(ctx context.Context, ownerID string) (*Credential, error)
	PutCredential(ctx context.Context, ownerID string, cred *Credential) error
}
