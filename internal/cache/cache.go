// Package cache provides the keyed byte store with TTL used for token
// bundles, OAuth handshake state and short-lived quote snapshots. Backends
// degrade to "unavailable" rather than erroring when the backing store is
// down, and callers can detect via Available that writes are not being
// persisted across requests.
package cache

import (
	"context"
	"strings"
	"time"
)

// TTL constants (mirroring the vendor revalidation policy, not vendor token
// expiry).
const (
	TTLToken     = 2 * time.Hour
	TTLHandshake = 10 * time.Minute
	TTLQuote     = 15 * time.Second
	TTLPortfolio = time.Minute
)

// Cache is the keyed byte store contract. Get returns (nil, nil) on a miss; Set
// returns false when the value was not stored (backend down or
// unconfigured); Delete reports whether a key was removed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	// Available reports whether the backing store is reachable. When false,
	// writes are silently dropped and every read misses.
	Available() bool
}

// TokenKey builds the token-bundle key for a (user, broker) pair. Keys are
// namespaced per pair so concurrent requests never contend.
func TokenKey(userID, brokerID string) string {
	return "token:" + userID + ":" + brokerID
}

// StateKey builds the handshake-state key for an OAuth state token.
func StateKey(state string) string {
	return "oauth_state:" + state
}

// QuoteKey builds the short-TTL quote key for a symbol.
func QuoteKey(symbol string) string {
	return "quote:" + strings.ToUpper(symbol)
}

// PortfolioKey builds the aggregated-portfolio snapshot key for a user.
func PortfolioKey(userID string) string {
	return "portfolio:" + userID
}
