// Package credential caches per-owner external identity-provider
// access tokens, used by the Worker Lease Loop to authenticate model
// artifact downloads.
//
// # Protocol
//
// Service.BearerFor implements spec §4.3's five-step protocol:
//
//  1. Look up the credential row for the owner.
//  2. If the cached access token has not reached its expiry minus
//     skew, return it directly.
//  3. Otherwise acquire a single-flight lock keyed by owner id so at
//     most one refresh RPC is in flight per owner system-wide.
//  4. On success, persist the new token (the refresh token may
//     rotate) and return it to every waiting caller.
//  5. On failure, classify: ErrTransient (network/5xx, retry with
//     backoff) or ErrPermanent (invalid_grant, credential marked
//     broken).
//
// Refreshes are additionally rate-limited in aggregate via
// golang.org/x/time/rate, honoring the identity provider's own request
// budget regardless of how many distinct owners refresh concurrently.
package credential
