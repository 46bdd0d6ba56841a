// Package adapter defines the capability contract every brokerage vendor
// integration implements, plus the registry that maps broker ids to live
// adapters. Adapters are stateless translators: they hold vendor API
// credentials and endpoints, take a TokenSet per call, and convert vendor
// wire formats to the normalized model. They never persist anything.
package adapter

import (
	"context"

	"github.com/newthinker/brokerhub/internal/model"
)

// Features is the static capability descriptor for a vendor. Upstream logic
// branches on these flags instead of on vendor identity.
type Features struct {
	StockTrading     bool `json:"stock_trading"`
	OptionsTrading   bool `json:"options_trading"`
	CryptoTrading    bool `json:"crypto_trading"`
	FractionalShares bool `json:"fractional_shares"`
	ExtendedHours    bool `json:"extended_hours"`
	ShortSelling     bool `json:"short_selling"`
	PaperTrading     bool `json:"paper_trading"`
	RealTimeQuotes   bool `json:"real_time_quotes"`
	// TokenRefreshDays is the vendor's refresh cadence in days; zero means
	// tokens are refreshed on demand rather than on a schedule.
	TokenRefreshDays int `json:"token_refresh_days"`
	// RequiresManualReauth is set for vendors whose tokens eventually require
	// the user to walk through the authorization flow again.
	RequiresManualReauth bool `json:"requires_manual_reauth"`
}

// Authorization is the result of building a vendor authorization URL.
// Three-legged OAuth vendors acquire a temporary request token first and
// return it here so the caller can persist the secret alongside the
// handshake state.
type Authorization struct {
	URL string
	// IsOOB is true when the vendor hands the user a verifier code to copy
	// back manually instead of redirecting to the callback URI.
	IsOOB bool
	// RequestToken and RequestTokenSecret are set by OAuth 1.0a vendors.
	RequestToken       string
	RequestTokenSecret string
}

// CallbackData carries the query parameters delivered to the OAuth callback,
// plus any handshake fields the connection manager re-injects (such as the
// request token secret for three-legged flows).
type CallbackData map[string]string

// Get returns the value for key, or "" when absent.
func (d CallbackData) Get(key string) string {
	if d == nil {
		return ""
	}
	return d[key]
}

// Adapter is the uniform capability contract a vendor integration satisfies.
// Vendor-level failures on reads surface as errors from the core taxonomy;
// order rejections surface as OrderResult{Success: false}, never as errors.
type Adapter interface {
	// BrokerID returns the vendor identifier.
	BrokerID() model.BrokerID
	// Name returns the vendor display name.
	Name() string
	// Features returns the static capability descriptor.
	Features() Features

	// AuthorizationURL builds the vendor authorization URL for the given
	// state token and redirect URI.
	AuthorizationURL(ctx context.Context, state, redirectURI string) (*Authorization, error)
	// ExchangeCallback exchanges the callback payload for a token set.
	ExchangeCallback(ctx context.Context, callback CallbackData, redirectURI string) (*model.TokenSet, error)
	// RefreshToken obtains fresh credentials. OAuth 2.0 vendors use the
	// refresh token; OAuth 1.0a vendors renew the existing pair, possibly
	// returning the same token value with extended validity.
	RefreshToken(ctx context.Context, tokens *model.TokenSet) (*model.TokenSet, error)

	// GetAccounts enumerates the vendor-side accounts for the token holder.
	GetAccounts(ctx context.Context, tokens *model.TokenSet) ([]model.Account, error)
	// GetBalance returns the normalized balance for one account.
	GetBalance(ctx context.Context, accountID string, tokens *model.TokenSet) (*model.Balance, error)
	// GetPositions returns the normalized positions for one account.
	GetPositions(ctx context.Context, accountID string, tokens *model.TokenSet) ([]model.Position, error)
	// GetOrders returns orders for one account, optionally filtered by the
	// vendor-neutral status group: "open", "closed" or "all".
	GetOrders(ctx context.Context, accountID string, tokens *model.TokenSet, status string) ([]model.Order, error)

	// GetQuote returns a quote for one symbol.
	GetQuote(ctx context.Context, symbol string, tokens *model.TokenSet) (*model.Quote, error)
	// GetQuotes returns quotes for multiple symbols.
	GetQuotes(ctx context.Context, symbols []string, tokens *model.TokenSet) ([]model.Quote, error)

	// PlaceOrder submits an order for the account.
	PlaceOrder(ctx context.Context, accountID string, req model.OrderRequest, tokens *model.TokenSet) (*model.OrderResult, error)
	// CancelOrder cancels an order. An empty-body success response from the
	// vendor still counts as success.
	CancelOrder(ctx context.Context, accountID, orderID string, tokens *model.TokenSet) (*model.OrderResult, error)
}
