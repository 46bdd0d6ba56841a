// Package model defines the broker-agnostic value types and enumerations
// shared by every vendor adapter and service. Types here carry no behavior
// beyond validation and small helpers; adapters produce them, services
// consume them.
package model

// BrokerID identifies a supported brokerage vendor.
type BrokerID string

const (
	// BrokerAlpaca is the Alpaca brokerage (OAuth 2.0).
	BrokerAlpaca BrokerID = "alpaca"
	// BrokerETrade is the E*TRADE brokerage (OAuth 1.0a).
	BrokerETrade BrokerID = "etrade"
	// BrokerSchwab is reserved for a future Schwab integration.
	BrokerSchwab BrokerID = "schwab"
	// BrokerIBKR is reserved for a future Interactive Brokers integration.
	BrokerIBKR BrokerID = "ibkr"
)

// Valid reports whether the broker id is one of the supported vendors.
func (b BrokerID) Valid() bool {
	switch b {
	case BrokerAlpaca, BrokerETrade, BrokerSchwab, BrokerIBKR:
		return true
	}
	return false
}

// ConnectionStatus represents the lifecycle state of a broker connection.
type ConnectionStatus string

const (
	// ConnectionPending indicates OAuth has been initiated but not completed.
	ConnectionPending ConnectionStatus = "pending"
	// ConnectionActive indicates a completed connection with stored tokens.
	ConnectionActive ConnectionStatus = "active"
	// ConnectionExpired indicates the tokens lapsed and re-auth is required.
	ConnectionExpired ConnectionStatus = "expired"
	// ConnectionRevoked indicates the user explicitly disconnected.
	ConnectionRevoked ConnectionStatus = "revoked"
	// ConnectionError indicates the connection is in an unrecoverable state.
	ConnectionError ConnectionStatus = "error"
)

// AssetType classifies the instrument held in a position.
type AssetType string

const (
	AssetStock      AssetType = "stock"
	AssetETF        AssetType = "etf"
	AssetOption     AssetType = "option"
	AssetCrypto     AssetType = "crypto"
	AssetMutualFund AssetType = "mutual_fund"
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	SideBuy        OrderSide = "buy"
	SideSell       OrderSide = "sell"
	SideBuyToCover OrderSide = "buy_to_cover"
	SideSellShort  OrderSide = "sell_short"
)

// IsBuy reports whether the side adds to a position (buy family).
func (s OrderSide) IsBuy() bool {
	return s == SideBuy || s == SideBuyToCover
}

// OrderType represents the order execution type.
type OrderType string

const (
	OrderMarket       OrderType = "market"
	OrderLimit        OrderType = "limit"
	OrderStop         OrderType = "stop"
	OrderStopLimit    OrderType = "stop_limit"
	OrderTrailingStop OrderType = "trailing_stop"
)

// TimeInForce specifies how long an order remains active.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// OrderStatus represents the normalized lifecycle status of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether the order status is final.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled ||
		s == StatusRejected || s == StatusExpired
}
