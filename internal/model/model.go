package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors for order requests.
var (
	ErrInvalidSymbol    = errors.New("model: invalid or empty symbol")
	ErrInvalidQuantity  = errors.New("model: quantity must be positive")
	ErrInvalidPrice     = errors.New("model: limit orders require a positive limit price")
	ErrInvalidStopPrice = errors.New("model: stop orders require a positive stop price")
)

// TokenSet is the credential bundle needed to call a vendor's authenticated
// endpoints. OAuth 2.0 vendors populate AccessToken/RefreshToken/ExpiresAt;
// OAuth 1.0a vendors populate AccessToken/AccessTokenSecret and renew using
// the same pair instead of a distinct refresh credential.
type TokenSet struct {
	AccessToken       string     `json:"access_token"`
	RefreshToken      string     `json:"refresh_token,omitempty"`
	AccessTokenSecret string     `json:"access_token_secret,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token set carries an expiry in the past.
// Token sets without an expiry never report expired; the cache TTL governs
// their revalidation instead.
func (t TokenSet) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Account is a normalized vendor-side trading account.
type Account struct {
	BrokerID      BrokerID `json:"broker_id"`
	AccountID     string   `json:"account_id"`
	AccountNumber string   `json:"account_number"` // masked, e.g. "****1234"
	AccountType   string   `json:"account_type"`
	AccountName   string   `json:"account_name"`
	IsDefault     bool     `json:"is_default"`
}

// Balance is a normalized account balance snapshot.
type Balance struct {
	BrokerID              BrokerID         `json:"broker_id"`
	AccountID             string           `json:"account_id"`
	CashAvailable         decimal.Decimal  `json:"cash_available"`
	CashBalance           decimal.Decimal  `json:"cash_balance"`
	BuyingPower           decimal.Decimal  `json:"buying_power"`
	DayTradingBuyingPower *decimal.Decimal `json:"day_trading_buying_power,omitempty"`
	PortfolioValue        decimal.Decimal  `json:"portfolio_value"`
	MarginUsed            *decimal.Decimal `json:"margin_used,omitempty"`
}

// Position is a normalized holding. LastUpdated is the time the normalized
// value was computed when the vendor response carries no timestamp of its own.
type Position struct {
	BrokerID            BrokerID        `json:"broker_id"`
	AccountID           string          `json:"account_id"`
	Symbol              string          `json:"symbol"`
	Quantity            decimal.Decimal `json:"quantity"`
	AverageCost         decimal.Decimal `json:"average_cost"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketValue         decimal.Decimal `json:"market_value"`
	UnrealizedPL        decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealized_pl_percent"`
	AssetType           AssetType       `json:"asset_type"`
	LastUpdated         time.Time       `json:"last_updated"`
}

// CostBasis returns quantity x average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// Quote is a normalized market quote. Timestamp is the normalization time
// when the vendor omits one.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	Last          decimal.Decimal `json:"last"`
	Volume        int64           `json:"volume"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Open          decimal.Decimal `json:"open"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        BrokerID        `json:"source"`
}

// OrderRequest is a request to place a new order.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          OrderSide        `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	OrderType     OrderType        `json:"order_type"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce   TimeInForce      `json:"time_in_force"`
	ExtendedHours bool             `json:"extended_hours"`
}

// Validate checks the request has the fields its order type requires.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if !r.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if (r.OrderType == OrderLimit || r.OrderType == OrderStopLimit) &&
		(r.LimitPrice == nil || !r.LimitPrice.IsPositive()) {
		return ErrInvalidPrice
	}
	if (r.OrderType == OrderStop || r.OrderType == OrderStopLimit) &&
		(r.StopPrice == nil || !r.StopPrice.IsPositive()) {
		return ErrInvalidStopPrice
	}
	return nil
}

// Order is a normalized order as reported by a vendor.
type Order struct {
	BrokerID         BrokerID         `json:"broker_id"`
	AccountID        string           `json:"account_id"`
	OrderID          string           `json:"order_id"`
	ClientOrderID    string           `json:"client_order_id,omitempty"`
	Symbol           string           `json:"symbol"`
	Side             OrderSide        `json:"side"`
	Quantity         decimal.Decimal  `json:"quantity"`
	FilledQuantity   decimal.Decimal  `json:"filled_quantity"`
	OrderType        OrderType        `json:"order_type"`
	LimitPrice       *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice        *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce      TimeInForce      `json:"time_in_force"`
	Status           OrderStatus      `json:"status"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	FilledAt         *time.Time       `json:"filled_at,omitempty"`
	AverageFillPrice *decimal.Decimal `json:"average_fill_price,omitempty"`
}

// OrderResult is the outcome of a place or cancel call. Vendor rejections are
// modeled as Success=false with a human-readable message, never as errors.
type OrderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message,omitempty"`
	Order   *Order `json:"order,omitempty"`
}
