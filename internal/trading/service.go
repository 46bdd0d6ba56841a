// Package trading implements order preview, placement, cancellation and
// order listing on top of the vendor adapters. Preview is a local risk
// check; nothing is sent to the vendor until PlaceOrder.
package trading

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/metrics"
	"github.com/newthinker/brokerhub/internal/model"
)

var (
	hundred       = decimal.NewFromInt(100)
	highThreshold = decimal.NewFromInt(20)
	modThreshold  = decimal.NewFromInt(10)
)

// FeatureSupport echoes the vendor capability flags relevant to an order.
type FeatureSupport struct {
	ExtendedHours    bool `json:"extended_hours"`
	FractionalShares bool `json:"fractional_shares"`
	ShortSelling     bool `json:"short_selling"`
}

// RiskAssessment summarizes the risk posture of a previewed order.
type RiskAssessment struct {
	PortfolioConcentrationPercent decimal.Decimal `json:"portfolio_concentration_percent"`
	IsConcentrated                bool            `json:"is_concentrated"`
	PositionSizeDollars           decimal.Decimal `json:"position_size_dollars"`
	CurrentPositionQty            decimal.Decimal `json:"current_position_qty"`
	BrokerSupportsFeature         FeatureSupport  `json:"broker_supports_feature"`
	Error                         string          `json:"error,omitempty"`
}

// Preview is the dry-run result of an order: estimated economics, the
// account state after the fill, risk flags and whether the service would
// allow execution.
type Preview struct {
	Symbol            string          `json:"symbol"`
	Side              model.OrderSide `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	OrderType         model.OrderType `json:"order_type"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	EstimatedPrice    decimal.Decimal `json:"estimated_price"`
	BuyingPowerImpact decimal.Decimal `json:"buying_power_impact"`
	BuyingPowerAfter  decimal.Decimal `json:"buying_power_after"`
	PositionAfter     decimal.Decimal `json:"position_after"`
	RiskAssessment    RiskAssessment  `json:"risk_assessment"`
	Warnings          []string        `json:"warnings"`
	CanExecute        bool            `json:"can_execute"`
}

// Service runs trading operations against a user's active connections.
type Service struct {
	manager  *connection.Manager
	registry *adapter.Registry
	metrics  *metrics.Registry
	log      *zap.Logger
}

// NewService wires the trading service. A nil metrics registry disables
// instrumentation.
func NewService(mgr *connection.Manager, registry *adapter.Registry, m *metrics.Registry, log *zap.Logger) *Service {
	return &Service{manager: mgr, registry: registry, metrics: m, log: log}
}

// resolve finds the user's active connection for the broker and loads the
// adapter and token bundle.
func (s *Service) resolve(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) (adapter.Adapter, *model.TokenSet, error) {
	conns, err := s.manager.ActiveConnections(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	found := false
	for _, c := range conns {
		if c.BrokerID == brokerID {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, core.ErrNoActiveConnection
	}
	ad, err := s.registry.Get(brokerID)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := s.manager.GetTokens(ctx, userID, brokerID)
	if err != nil {
		return nil, nil, err
	}
	return ad, tokens, nil
}

// PreviewOrder computes the economics and risk flags for an order without
// submitting it. The preview degrades rather than fails: a missing quote
// adds a warning; only missing account data blocks execution outright.
func (s *Service) PreviewOrder(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID, accountID string, req model.OrderRequest) (*Preview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := &Preview{
		Symbol:     strings.ToUpper(req.Symbol),
		Side:       req.Side,
		Quantity:   req.Quantity,
		OrderType:  req.OrderType,
		CanExecute: true,
	}

	ad, tokens, err := s.resolve(ctx, userID, brokerID)
	if err != nil {
		p.CanExecute = false
		p.Warnings = append(p.Warnings, "No active connection for this broker")
		p.RiskAssessment.Error = "no active connection"
		return p, nil
	}
	feats := ad.Features()
	p.RiskAssessment.BrokerSupportsFeature = FeatureSupport{
		ExtendedHours:    feats.ExtendedHours,
		FractionalShares: feats.FractionalShares,
		ShortSelling:     feats.ShortSelling,
	}

	// Price the order from the live quote, falling back to the limit price
	// when the quote is unavailable.
	quote, err := ad.GetQuote(ctx, p.Symbol, tokens)
	switch {
	case err == nil && req.LimitPrice != nil:
		p.EstimatedPrice = *req.LimitPrice
	case err == nil:
		p.EstimatedPrice = quote.Last
	case req.LimitPrice != nil:
		p.EstimatedPrice = *req.LimitPrice
		p.Warnings = append(p.Warnings, "Could not get quote: "+err.Error())
	default:
		p.Warnings = append(p.Warnings, "Could not get quote: "+err.Error())
	}

	balance, err := ad.GetBalance(ctx, accountID, tokens)
	if err != nil {
		p.CanExecute = false
		p.Warnings = append(p.Warnings, "Could not get account data: "+err.Error())
		p.RiskAssessment.Error = err.Error()
		return p, nil
	}
	positions, err := ad.GetPositions(ctx, accountID, tokens)
	if err != nil {
		p.CanExecute = false
		p.Warnings = append(p.Warnings, "Could not get account data: "+err.Error())
		p.RiskAssessment.Error = err.Error()
		return p, nil
	}

	p.EstimatedCost = req.Quantity.Mul(p.EstimatedPrice)
	if req.Side.IsBuy() {
		p.BuyingPowerImpact = p.EstimatedCost.Neg()
	} else {
		p.BuyingPowerImpact = p.EstimatedCost
	}
	p.BuyingPowerAfter = balance.BuyingPower.Add(p.BuyingPowerImpact)

	if req.Side.IsBuy() && p.EstimatedCost.GreaterThan(balance.BuyingPower) {
		p.Warnings = append(p.Warnings, "Insufficient buying power")
		p.CanExecute = false
	}

	var currentQty decimal.Decimal
	for _, pos := range positions {
		if strings.EqualFold(pos.Symbol, p.Symbol) {
			currentQty = pos.Quantity
			break
		}
	}
	if req.Side.IsBuy() {
		p.PositionAfter = currentQty.Add(req.Quantity)
	} else {
		p.PositionAfter = currentQty.Sub(req.Quantity)
	}

	if req.Side == model.SideSell && req.Quantity.GreaterThan(currentQty) {
		p.Warnings = append(p.Warnings, "Selling more shares than owned")
		if !feats.ShortSelling {
			p.Warnings = append(p.Warnings, "This broker does not support short selling")
			p.CanExecute = false
		}
	}

	var concentration decimal.Decimal
	if balance.PortfolioValue.IsPositive() {
		concentration = p.EstimatedCost.Div(balance.PortfolioValue).Mul(hundred)
	}
	p.RiskAssessment.PortfolioConcentrationPercent = concentration
	p.RiskAssessment.IsConcentrated = concentration.GreaterThan(modThreshold)
	p.RiskAssessment.PositionSizeDollars = p.EstimatedCost
	p.RiskAssessment.CurrentPositionQty = currentQty

	// Concentration warnings never block execution.
	switch {
	case concentration.GreaterThanOrEqual(highThreshold):
		p.Warnings = append(p.Warnings, "High concentration: position would be >=20% of portfolio")
	case concentration.GreaterThan(modThreshold):
		p.Warnings = append(p.Warnings, "Moderate concentration: position would be >10% of portfolio")
	}

	return p, nil
}

// PlaceOrder submits an order through the broker's adapter. Failures of any
// kind, including a missing connection, come back as an unsuccessful
// result, never as an error.
func (s *Service) PlaceOrder(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID, accountID string, req model.OrderRequest) (*model.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return &model.OrderResult{Success: false, Message: err.Error()}, nil
	}
	ad, tokens, err := s.resolve(ctx, userID, brokerID)
	if err != nil {
		return &model.OrderResult{Success: false, Message: "No active connection for this broker"}, nil
	}

	result, err := ad.PlaceOrder(ctx, accountID, req, tokens)
	if err != nil {
		return &model.OrderResult{Success: false, Message: err.Error()}, nil
	}
	if s.metrics != nil {
		status := "rejected"
		if result.Success {
			status = "accepted"
		}
		s.metrics.RecordOrderPlaced(string(brokerID), status)
	}
	s.log.Info("order submitted",
		zap.String("broker", string(brokerID)),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Bool("accepted", result.Success))
	return result, nil
}

// CancelOrder cancels an order through the broker's adapter.
func (s *Service) CancelOrder(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID, accountID, orderID string) (*model.OrderResult, error) {
	ad, tokens, err := s.resolve(ctx, userID, brokerID)
	if err != nil {
		return &model.OrderResult{Success: false, Message: "No active connection for this broker"}, nil
	}
	result, err := ad.CancelOrder(ctx, accountID, orderID, tokens)
	if err != nil {
		return &model.OrderResult{Success: false, Message: err.Error()}, nil
	}
	return result, nil
}

// ListOrders collects orders across the user's active connections,
// optionally filtered by broker and status group. Vendors that fail are
// skipped.
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID, status string) ([]model.Order, error) {
	conns, err := s.manager.ActiveConnections(ctx, userID)
	if err != nil {
		return nil, err
	}

	var all []model.Order
	for _, conn := range conns {
		if brokerID != "" && conn.BrokerID != brokerID {
			continue
		}
		ad, err := s.registry.Get(conn.BrokerID)
		if err != nil {
			continue
		}
		tokens, err := s.manager.GetTokens(ctx, userID, conn.BrokerID)
		if err != nil {
			continue
		}
		accounts, err := ad.GetAccounts(ctx, tokens)
		if err != nil {
			s.log.Warn("order listing skipped broker",
				zap.String("broker", string(conn.BrokerID)),
				zap.Error(err))
			continue
		}
		for _, acct := range accounts {
			orders, err := ad.GetOrders(ctx, acct.AccountID, tokens, status)
			if err != nil {
				s.log.Warn("order listing skipped account",
					zap.String("broker", string(conn.BrokerID)),
					zap.Error(err))
				continue
			}
			all = append(all, orders...)
		}
	}
	return all, nil
}
