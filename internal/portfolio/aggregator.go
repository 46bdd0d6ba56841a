// Package portfolio aggregates positions, balances and quotes across every
// active broker connection a user holds. Brokers are queried concurrently
// with a per-broker deadline; one failing vendor degrades its slice of the
// result to an error entry instead of failing the whole aggregation.
package portfolio

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/cache"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/metrics"
	"github.com/newthinker/brokerhub/internal/model"
)

// DefaultBrokerTimeout bounds each vendor fan-out call.
const DefaultBrokerTimeout = 10 * time.Second

var hundred = decimal.NewFromInt(100)

// BrokerError is a per-vendor failure entry in an aggregated result.
type BrokerError struct {
	BrokerID model.BrokerID `json:"broker_id"`
	Message  string         `json:"message"`
}

// BrokerSnapshot is one vendor's contribution to the aggregate.
type BrokerSnapshot struct {
	BrokerID     model.BrokerID   `json:"broker_id"`
	ConnectionID uuid.UUID        `json:"connection_id"`
	TotalValue   decimal.Decimal  `json:"total_value"`
	// CashAvailable is cash available for investment, not the ledger cash
	// balance; margin usage makes the two diverge.
	CashAvailable decimal.Decimal `json:"cash_available"`
	BuyingPower   decimal.Decimal `json:"buying_power"`
	Positions    []model.Position `json:"positions"`
	Balances     []model.Balance  `json:"balances"`
}

// Summary is the cross-broker portfolio rollup. Totals cover only the
// brokers that responded; failed brokers are listed under Errors.
type Summary struct {
	TotalValue decimal.Decimal `json:"total_value"`
	// TotalCash sums cash available for investment across brokers.
	TotalCash decimal.Decimal `json:"total_cash"`
	TotalBuyingPower  decimal.Decimal  `json:"total_buying_power"`
	TotalUnrealizedPL decimal.Decimal  `json:"total_unrealized_pl"`
	// TotalUnrealizedPLPercent is total unrealized P/L over total cost
	// basis, as a percentage. Zero when the cost basis is zero.
	TotalUnrealizedPLPercent decimal.Decimal  `json:"total_unrealized_pl_percent"`
	PositionCount            int              `json:"position_count"`
	BrokerCount              int              `json:"broker_count"`
	Brokers                  []BrokerSnapshot `json:"brokers"`
	Errors                   []BrokerError    `json:"errors,omitempty"`
	AsOf                     time.Time        `json:"as_of"`
}

// Aggregator fans requests out across the user's active connections.
type Aggregator struct {
	manager  *connection.Manager
	registry *adapter.Registry
	cache    cache.Cache
	metrics  *metrics.Registry
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewAggregator wires the aggregator. A nil metrics registry disables
// instrumentation; timeout <= 0 falls back to the default.
func NewAggregator(mgr *connection.Manager, registry *adapter.Registry, c cache.Cache, m *metrics.Registry, log *zap.Logger, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultBrokerTimeout
	}
	return &Aggregator{
		manager:  mgr,
		registry: registry,
		cache:    c,
		metrics:  m,
		log:      log,
		timeout:  timeout,
		now:      time.Now,
	}
}

// brokerCall resolves the adapter and tokens for a connection and invokes fn
// under the per-broker deadline.
func (a *Aggregator) brokerCall(ctx context.Context, conn model.Connection, fn func(ctx context.Context, ad adapter.Adapter, tokens *model.TokenSet) error) error {
	ad, err := a.registry.Get(conn.BrokerID)
	if err != nil {
		return err
	}
	tokens, err := a.manager.GetTokens(ctx, conn.UserID, conn.BrokerID)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return fn(callCtx, ad, tokens)
}

// fanOut runs fn once per active connection concurrently and collects the
// per-broker errors. fn must synchronize its own writes via the returned
// locked section helper.
func (a *Aggregator) fanOut(ctx context.Context, userID uuid.UUID, operation string, fn func(ctx context.Context, conn model.Connection, ad adapter.Adapter, tokens *model.TokenSet) error) ([]model.Connection, []BrokerError, error) {
	conns, err := a.manager.ActiveConnections(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []BrokerError
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn model.Connection) {
			defer wg.Done()
			start := a.now()
			err := a.brokerCall(ctx, conn, func(ctx context.Context, ad adapter.Adapter, tokens *model.TokenSet) error {
				return fn(ctx, conn, ad, tokens)
			})
			if a.metrics != nil {
				status := "ok"
				if err != nil {
					status = "error"
				}
				a.metrics.RecordVendorCall(string(conn.BrokerID), operation, status, a.now().Sub(start).Seconds())
			}
			if err != nil {
				a.log.Warn("broker fan-out call failed",
					zap.String("broker", string(conn.BrokerID)),
					zap.String("operation", operation),
					zap.Error(err))
				mu.Lock()
				errs = append(errs, BrokerError{BrokerID: conn.BrokerID, Message: err.Error()})
				mu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i].BrokerID < errs[j].BrokerID })
	return conns, errs, nil
}

// GetSummary aggregates positions and balances across all active
// connections into a single rollup. Recent results are served from the
// cache for the portfolio TTL.
func (a *Aggregator) GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	key := cache.PortfolioKey(userID.String())
	if raw, err := a.cache.Get(ctx, key); err == nil && raw != nil {
		var cached Summary
		if json.Unmarshal(raw, &cached) == nil {
			return &cached, nil
		}
	}

	start := a.now()
	var (
		mu        sync.Mutex
		snapshots []BrokerSnapshot
	)
	_, errs, err := a.fanOut(ctx, userID, "portfolio", func(ctx context.Context, conn model.Connection, ad adapter.Adapter, tokens *model.TokenSet) error {
		snap, err := a.collectBroker(ctx, conn, ad, tokens)
		if err != nil {
			return err
		}
		mu.Lock()
		snapshots = append(snapshots, *snap)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].BrokerID < snapshots[j].BrokerID })

	summary := a.rollUp(snapshots, errs)
	if a.metrics != nil {
		a.metrics.RecordAggregation(a.now().Sub(start).Seconds())
	}

	// A summary with failed brokers is transient; caching it would replay
	// the degraded totals for the full TTL.
	if len(summary.Errors) == 0 {
		if raw, err := json.Marshal(summary); err == nil {
			a.cache.Set(ctx, key, raw, cache.TTLPortfolio)
		}
	}
	return summary, nil
}

// collectBroker fetches one vendor's accounts, positions and balances.
func (a *Aggregator) collectBroker(ctx context.Context, conn model.Connection, ad adapter.Adapter, tokens *model.TokenSet) (*BrokerSnapshot, error) {
	accounts, err := ad.GetAccounts(ctx, tokens)
	if err != nil {
		return nil, err
	}

	snap := &BrokerSnapshot{
		BrokerID:     conn.BrokerID,
		ConnectionID: conn.ID,
	}
	for _, acct := range accounts {
		positions, err := ad.GetPositions(ctx, acct.AccountID, tokens)
		if err != nil {
			return nil, err
		}
		balance, err := ad.GetBalance(ctx, acct.AccountID, tokens)
		if err != nil {
			return nil, err
		}
		snap.Positions = append(snap.Positions, positions...)
		snap.Balances = append(snap.Balances, *balance)
		snap.TotalValue = snap.TotalValue.Add(balance.PortfolioValue)
		snap.CashAvailable = snap.CashAvailable.Add(balance.CashAvailable)
		snap.BuyingPower = snap.BuyingPower.Add(balance.BuyingPower)
	}
	return snap, nil
}

// rollUp computes cross-broker totals from the successful snapshots.
func (a *Aggregator) rollUp(snapshots []BrokerSnapshot, errs []BrokerError) *Summary {
	s := &Summary{
		Brokers: snapshots,
		Errors:  errs,
		AsOf:    a.now().UTC(),
	}
	var totalCostBasis decimal.Decimal
	for _, snap := range snapshots {
		s.BrokerCount++
		s.TotalValue = s.TotalValue.Add(snap.TotalValue)
		s.TotalCash = s.TotalCash.Add(snap.CashAvailable)
		s.TotalBuyingPower = s.TotalBuyingPower.Add(snap.BuyingPower)
		s.PositionCount += len(snap.Positions)
		for _, pos := range snap.Positions {
			s.TotalUnrealizedPL = s.TotalUnrealizedPL.Add(pos.UnrealizedPL)
			totalCostBasis = totalCostBasis.Add(pos.CostBasis())
		}
	}
	if totalCostBasis.IsPositive() {
		s.TotalUnrealizedPLPercent = s.TotalUnrealizedPL.Div(totalCostBasis).Mul(hundred)
	}
	return s
}

// GetAllPositions returns every position across the user's brokers, plus
// per-broker error entries for vendors that failed.
func (a *Aggregator) GetAllPositions(ctx context.Context, userID uuid.UUID) ([]model.Position, []BrokerError, error) {
	var (
		mu        sync.Mutex
		positions []model.Position
	)
	_, errs, err := a.fanOut(ctx, userID, "positions", func(ctx context.Context, conn model.Connection, ad adapter.Adapter, tokens *model.TokenSet) error {
		accounts, err := ad.GetAccounts(ctx, tokens)
		if err != nil {
			return err
		}
		for _, acct := range accounts {
			ps, err := ad.GetPositions(ctx, acct.AccountID, tokens)
			if err != nil {
				return err
			}
			mu.Lock()
			positions = append(positions, ps...)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Symbol != positions[j].Symbol {
			return positions[i].Symbol < positions[j].Symbol
		}
		return positions[i].BrokerID < positions[j].BrokerID
	})
	return positions, errs, nil
}

// GetAllBalances returns every account balance across the user's brokers.
func (a *Aggregator) GetAllBalances(ctx context.Context, userID uuid.UUID) ([]model.Balance, []BrokerError, error) {
	var (
		mu       sync.Mutex
		balances []model.Balance
	)
	_, errs, err := a.fanOut(ctx, userID, "balances", func(ctx context.Context, conn model.Connection, ad adapter.Adapter, tokens *model.TokenSet) error {
		accounts, err := ad.GetAccounts(ctx, tokens)
		if err != nil {
			return err
		}
		for _, acct := range accounts {
			b, err := ad.GetBalance(ctx, acct.AccountID, tokens)
			if err != nil {
				return err
			}
			mu.Lock()
			balances = append(balances, *b)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].BrokerID != balances[j].BrokerID {
			return balances[i].BrokerID < balances[j].BrokerID
		}
		return balances[i].AccountID < balances[j].AccountID
	})
	return balances, errs, nil
}

// GetPositionBySymbol sums the user's holdings of one symbol across brokers.
// A nil position with no error means the symbol is not held anywhere.
func (a *Aggregator) GetPositionBySymbol(ctx context.Context, userID uuid.UUID, symbol string) (*model.Position, error) {
	symbol = strings.ToUpper(symbol)
	positions, _, err := a.GetAllPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	var combined *model.Position
	for i := range positions {
		p := positions[i]
		if !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		if combined == nil {
			cp := p
			cp.Symbol = symbol
			combined = &cp
			continue
		}
		// Weighted average cost across brokers: the combined basis must be
		// taken before the share counts are summed.
		totalBasis := combined.CostBasis().Add(p.CostBasis())
		combined.Quantity = combined.Quantity.Add(p.Quantity)
		combined.MarketValue = combined.MarketValue.Add(p.MarketValue)
		combined.UnrealizedPL = combined.UnrealizedPL.Add(p.UnrealizedPL)
		if combined.Quantity.IsPositive() {
			combined.AverageCost = totalBasis.Div(combined.Quantity)
		}
	}
	return combined, nil
}

// GetQuotes fetches quotes from the first active connection whose vendor
// supports quote data, consulting the short-TTL cache per symbol first.
func (a *Aggregator) GetQuotes(ctx context.Context, userID uuid.UUID, symbols []string) ([]model.Quote, error) {
	var quotes []model.Quote
	missing := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		raw, err := a.cache.Get(ctx, cache.QuoteKey(sym))
		if err == nil && raw != nil {
			var q model.Quote
			if json.Unmarshal(raw, &q) == nil {
				quotes = append(quotes, q)
				continue
			}
		}
		missing = append(missing, strings.ToUpper(sym))
	}
	if len(missing) == 0 {
		return quotes, nil
	}

	conns, err := a.manager.ActiveConnections(ctx, userID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, conn := range conns {
		var fetched []model.Quote
		err := a.brokerCall(ctx, conn, func(ctx context.Context, ad adapter.Adapter, tokens *model.TokenSet) error {
			qs, err := ad.GetQuotes(ctx, missing, tokens)
			if err != nil {
				return err
			}
			fetched = qs
			return nil
		})
		if err != nil {
			lastErr = err
			a.log.Warn("quote fetch failed, trying next broker",
				zap.String("broker", string(conn.BrokerID)),
				zap.Error(err))
			continue
		}
		for _, q := range fetched {
			if raw, err := json.Marshal(q); err == nil {
				a.cache.Set(ctx, cache.QuoteKey(q.Symbol), raw, cache.TTLQuote)
			}
		}
		return append(quotes, fetched...), nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, core.ErrNoActiveConnection
}

// GetQuote fetches a single quote.
func (a *Aggregator) GetQuote(ctx context.Context, userID uuid.UUID, symbol string) (*model.Quote, error) {
	quotes, err := a.GetQuotes(ctx, userID, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, core.ErrVendorRejected
	}
	return &quotes[0], nil
}
