// Package mocks provides a configurable in-memory broker adapter for
// testing the connection manager, aggregator and trading service.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/model"
)

// MockAdapter implements adapter.Adapter with settable state and failure
// injection per method.
type MockAdapter struct {
	mu sync.RWMutex

	ID       model.BrokerID
	features adapter.Features

	tokens    *model.TokenSet
	accounts  []model.Account
	balances  map[string]*model.Balance
	positions map[string][]model.Position
	orders    map[string][]model.Order
	quotes    map[string]model.Quote

	// Failure injection: any non-nil error fails the matching method.
	AuthErr     error
	ExchangeErr error
	RefreshErr  error
	AccountsErr error
	BalanceErr  error
	PositionErr error
	OrderErr    error
	QuoteErr    error

	// PlaceResult overrides the result of PlaceOrder when set.
	PlaceResult *model.OrderResult

	// Delay is added to every data call, for timeout tests.
	Delay time.Duration

	// Calls counts invocations by method name.
	Calls map[string]int
}

// New creates a mock adapter for the given broker id with one funded
// account.
func New(id model.BrokerID) *MockAdapter {
	m := &MockAdapter{
		ID: id,
		features: adapter.Features{
			StockTrading:   true,
			ShortSelling:   true,
			RealTimeQuotes: true,
		},
		tokens: &model.TokenSet{AccessToken: "mock-access", RefreshToken: "mock-refresh"},
		accounts: []model.Account{{
			BrokerID:      id,
			AccountID:     "acct-1",
			AccountNumber: "****1234",
			AccountType:   "margin",
			AccountName:   "Mock Account",
			IsDefault:     true,
		}},
		balances: map[string]*model.Balance{
			"acct-1": {
				BrokerID:       id,
				AccountID:      "acct-1",
				CashAvailable:  decimal.NewFromInt(10000),
				CashBalance:    decimal.NewFromInt(10000),
				BuyingPower:    decimal.NewFromInt(10000),
				PortfolioValue: decimal.NewFromInt(10000),
			},
		},
		positions: map[string][]model.Position{},
		orders:    map[string][]model.Order{},
		quotes:    map[string]model.Quote{},
		Calls:     map[string]int{},
	}
	return m
}

func (m *MockAdapter) record(method string) {
	m.mu.Lock()
	m.Calls[method]++
	m.mu.Unlock()
}

func (m *MockAdapter) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFeatures overrides the capability flags.
func (m *MockAdapter) SetFeatures(f adapter.Features) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = f
}

// SetBalance sets the balance for an account.
func (m *MockAdapter) SetBalance(accountID string, b *model.Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = b
}

// SetPositions sets the positions for an account.
func (m *MockAdapter) SetPositions(accountID string, ps []model.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[accountID] = ps
}

// SetOrders sets the order history for an account.
func (m *MockAdapter) SetOrders(accountID string, os []model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[accountID] = os
}

// SetQuote sets the quote for a symbol.
func (m *MockAdapter) SetQuote(q model.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
}

// SetAccounts replaces the account list.
func (m *MockAdapter) SetAccounts(accounts []model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = accounts
}

func (m *MockAdapter) BrokerID() model.BrokerID { return m.ID }

func (m *MockAdapter) Name() string { return "Mock " + string(m.ID) }

func (m *MockAdapter) Features() adapter.Features {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.features
}

func (m *MockAdapter) AuthorizationURL(_ context.Context, state, redirectURI string) (*adapter.Authorization, error) {
	m.record("AuthorizationURL")
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	return &adapter.Authorization{
		URL: "https://auth.mock/" + string(m.ID) + "?state=" + state,
	}, nil
}

func (m *MockAdapter) ExchangeCallback(_ context.Context, callback adapter.CallbackData, _ string) (*model.TokenSet, error) {
	m.record("ExchangeCallback")
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	cp := *m.tokens
	return &cp, nil
}

func (m *MockAdapter) RefreshToken(_ context.Context, tokens *model.TokenSet) (*model.TokenSet, error) {
	m.record("RefreshToken")
	if m.RefreshErr != nil {
		return nil, m.RefreshErr
	}
	exp := time.Now().Add(time.Hour)
	return &model.TokenSet{
		AccessToken:  "mock-access-2",
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    &exp,
	}, nil
}

func (m *MockAdapter) GetAccounts(ctx context.Context, _ *model.TokenSet) ([]model.Account, error) {
	m.record("GetAccounts")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.AccountsErr != nil {
		return nil, m.AccountsErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Account(nil), m.accounts...), nil
}

func (m *MockAdapter) GetBalance(ctx context.Context, accountID string, _ *model.TokenSet) (*model.Balance, error) {
	m.record("GetBalance")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[accountID]
	if !ok {
		return &model.Balance{BrokerID: m.ID, AccountID: accountID}, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MockAdapter) GetPositions(ctx context.Context, accountID string, _ *model.TokenSet) ([]model.Position, error) {
	m.record("GetPositions")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.PositionErr != nil {
		return nil, m.PositionErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Position(nil), m.positions[accountID]...), nil
}

func (m *MockAdapter) GetOrders(ctx context.Context, accountID string, _ *model.TokenSet, _ string) ([]model.Order, error) {
	m.record("GetOrders")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Order(nil), m.orders[accountID]...), nil
}

func (m *MockAdapter) GetQuote(ctx context.Context, symbol string, tokens *model.TokenSet) (*model.Quote, error) {
	qs, err := m.GetQuotes(ctx, []string{symbol}, tokens)
	if err != nil {
		return nil, err
	}
	return &qs[0], nil
}

func (m *MockAdapter) GetQuotes(ctx context.Context, symbols []string, _ *model.TokenSet) ([]model.Quote, error) {
	m.record("GetQuotes")
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Quote, 0, len(symbols))
	for _, s := range symbols {
		q, ok := m.quotes[s]
		if !ok {
			q = model.Quote{Symbol: s, Last: decimal.NewFromInt(100), Source: m.ID, Timestamp: time.Now().UTC()}
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *MockAdapter) PlaceOrder(ctx context.Context, accountID string, req model.OrderRequest, _ *model.TokenSet) (*model.OrderResult, error) {
	m.record("PlaceOrder")
	if err := m.wait(ctx); err != nil {
		return &model.OrderResult{Success: false, Message: err.Error()}, nil
	}
	if m.PlaceResult != nil {
		return m.PlaceResult, nil
	}
	order := model.Order{
		BrokerID:    m.ID,
		AccountID:   accountID,
		OrderID:     "mock-order-1",
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		OrderType:   req.OrderType,
		TimeInForce: req.TimeInForce,
		Status:      model.StatusOpen,
		SubmittedAt: time.Now().UTC(),
	}
	return &model.OrderResult{
		Success: true,
		OrderID: order.OrderID,
		Message: "Order placed successfully",
		Order:   &order,
	}, nil
}

func (m *MockAdapter) CancelOrder(_ context.Context, _, orderID string, _ *model.TokenSet) (*model.OrderResult, error) {
	m.record("CancelOrder")
	return &model.OrderResult{Success: true, OrderID: orderID, Message: "Order canceled successfully"}, nil
}
