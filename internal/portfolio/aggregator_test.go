package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/adapter/mocks"
	"github.com/newthinker/brokerhub/internal/cache"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/model"
	"github.com/newthinker/brokerhub/internal/store"
)

type fixture struct {
	agg    *Aggregator
	alpaca *mocks.MockAdapter
	etrade *mocks.MockAdapter
	cache  *cache.Memory
	userID uuid.UUID
}

// newFixture wires an aggregator over two connected mock brokers.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		alpaca: mocks.New(model.BrokerAlpaca),
		etrade: mocks.New(model.BrokerETrade),
		cache:  cache.NewMemory(),
		userID: uuid.New(),
	}
	registry := adapter.NewRegistry()
	registry.Register(f.alpaca)
	registry.Register(f.etrade)

	mgr := connection.NewManager(registry, store.NewMemoryStore(), f.cache, nil, nil, zap.NewNop())
	ctx := context.Background()
	for _, id := range []model.BrokerID{model.BrokerAlpaca, model.BrokerETrade} {
		res, err := mgr.Initiate(ctx, f.userID, id, "")
		require.NoError(t, err)
		_, err = mgr.Complete(ctx, f.userID, res.State, adapter.CallbackData{"code": "c"})
		require.NoError(t, err)
	}

	f.agg = NewAggregator(mgr, registry, f.cache, nil, zap.NewNop(), 0)
	return f
}

func pos(broker model.BrokerID, symbol string, qty, avgCost, marketValue, pl int64) model.Position {
	return model.Position{
		BrokerID:     broker,
		AccountID:    "acct-1",
		Symbol:       symbol,
		Quantity:     decimal.NewFromInt(qty),
		AverageCost:  decimal.NewFromInt(avgCost),
		MarketValue:  decimal.NewFromInt(marketValue),
		UnrealizedPL: decimal.NewFromInt(pl),
		AssetType:    model.AssetStock,
	}
}

func TestGetSummary_MultiBroker(t *testing.T) {
	f := newFixture(t)

	f.alpaca.SetPositions("acct-1", []model.Position{
		pos(model.BrokerAlpaca, "AAPL", 10, 100, 1100, 100),
	})
	f.etrade.SetPositions("acct-1", []model.Position{
		pos(model.BrokerETrade, "MSFT", 5, 200, 1100, 100),
	})
	// Margin account: ledger cash exceeds what is available to invest.
	f.etrade.SetBalance("acct-1", &model.Balance{
		BrokerID:       model.BrokerETrade,
		AccountID:      "acct-1",
		CashAvailable:  decimal.NewFromInt(4000),
		CashBalance:    decimal.NewFromInt(5000),
		BuyingPower:    decimal.NewFromInt(5000),
		PortfolioValue: decimal.NewFromInt(20000),
	})

	summary, err := f.agg.GetSummary(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.BrokerCount)
	assert.Equal(t, 2, summary.PositionCount)
	assert.Empty(t, summary.Errors)
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(30000)), "10000 + 20000, got %s", summary.TotalValue)
	// Cash rolls up from available cash, not the ledger balance.
	assert.True(t, summary.TotalCash.Equal(decimal.NewFromInt(14000)), "got %s", summary.TotalCash)
	assert.True(t, summary.TotalUnrealizedPL.Equal(decimal.NewFromInt(200)))
	// 200 gain over 2000 cost basis.
	assert.True(t, summary.TotalUnrealizedPLPercent.Equal(decimal.NewFromInt(10)),
		"got %s", summary.TotalUnrealizedPLPercent)
	assert.False(t, summary.AsOf.IsZero())

	// Snapshots sorted by broker id.
	require.Len(t, summary.Brokers, 2)
	assert.Equal(t, model.BrokerAlpaca, summary.Brokers[0].BrokerID)
	assert.Equal(t, model.BrokerETrade, summary.Brokers[1].BrokerID)
}

func TestGetSummary_ServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.GetSummary(ctx, f.userID)
	require.NoError(t, err)
	calls := f.alpaca.Calls["GetAccounts"]

	_, err = f.agg.GetSummary(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, calls, f.alpaca.Calls["GetAccounts"], "second summary must come from cache")
}

func TestGetSummary_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.alpaca.SetPositions("acct-1", []model.Position{
		pos(model.BrokerAlpaca, "AAPL", 10, 100, 1100, 100),
	})
	f.etrade.PositionErr = core.ErrVendorUnavailable

	summary, err := f.agg.GetSummary(context.Background(), f.userID)
	require.NoError(t, err, "one failing vendor must not fail the aggregation")

	assert.Equal(t, 1, summary.BrokerCount)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, model.BrokerETrade, summary.Errors[0].BrokerID)
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(10000)), "totals cover responders only")
	assert.Equal(t, 1, summary.PositionCount)
}

func TestGetSummary_PartialFailureNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.etrade.BalanceErr = core.ErrVendorUnavailable

	summary, err := f.agg.GetSummary(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, summary.Errors, 1)
	calls := f.alpaca.Calls["GetAccounts"]

	// The vendor recovers; the degraded rollup must not be replayed.
	f.etrade.BalanceErr = nil
	summary, err = f.agg.GetSummary(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 2, summary.BrokerCount)
	assert.Greater(t, f.alpaca.Calls["GetAccounts"], calls, "second summary must be recomputed")
}

func TestGetSummary_ZeroCostBasis(t *testing.T) {
	f := newFixture(t)

	summary, err := f.agg.GetSummary(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, summary.TotalUnrealizedPLPercent.IsZero())
}

func TestGetSummary_VendorTimeout(t *testing.T) {
	f := newFixture(t)
	f.etrade.Delay = 200 * time.Millisecond
	f.agg.timeout = 20 * time.Millisecond

	summary, err := f.agg.GetSummary(context.Background(), f.userID)
	require.NoError(t, err)

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, model.BrokerETrade, summary.Errors[0].BrokerID)
	assert.Equal(t, 1, summary.BrokerCount)
}

func TestGetAllPositions_SortedBySymbol(t *testing.T) {
	f := newFixture(t)
	f.alpaca.SetPositions("acct-1", []model.Position{
		pos(model.BrokerAlpaca, "MSFT", 1, 100, 100, 0),
		pos(model.BrokerAlpaca, "AAPL", 1, 100, 100, 0),
	})
	f.etrade.SetPositions("acct-1", []model.Position{
		pos(model.BrokerETrade, "AAPL", 1, 100, 100, 0),
	})

	positions, errs, err := f.agg.GetAllPositions(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, positions, 3)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, model.BrokerAlpaca, positions[0].BrokerID)
	assert.Equal(t, "AAPL", positions[1].Symbol)
	assert.Equal(t, model.BrokerETrade, positions[1].BrokerID)
	assert.Equal(t, "MSFT", positions[2].Symbol)
}

func TestGetAllBalances(t *testing.T) {
	f := newFixture(t)

	balances, errs, err := f.agg.GetAllBalances(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, balances, 2)
	assert.Equal(t, model.BrokerAlpaca, balances[0].BrokerID)
	assert.Equal(t, model.BrokerETrade, balances[1].BrokerID)
}

func TestGetPositionBySymbol_WeightedAcrossBrokers(t *testing.T) {
	f := newFixture(t)
	f.alpaca.SetPositions("acct-1", []model.Position{
		pos(model.BrokerAlpaca, "AAPL", 10, 100, 1100, 100),
	})
	f.etrade.SetPositions("acct-1", []model.Position{
		pos(model.BrokerETrade, "AAPL", 10, 200, 2100, 100),
	})

	combined, err := f.agg.GetPositionBySymbol(context.Background(), f.userID, "aapl")
	require.NoError(t, err)
	require.NotNil(t, combined)

	assert.Equal(t, "AAPL", combined.Symbol)
	assert.True(t, combined.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, combined.MarketValue.Equal(decimal.NewFromInt(3200)))
	assert.True(t, combined.UnrealizedPL.Equal(decimal.NewFromInt(200)))
	// (10*100 + 10*200) / 20 shares.
	assert.True(t, combined.AverageCost.Equal(decimal.NewFromInt(150)), "got %s", combined.AverageCost)
}

func TestGetPositionBySymbol_NotHeld(t *testing.T) {
	f := newFixture(t)

	combined, err := f.agg.GetPositionBySymbol(context.Background(), f.userID, "TSLA")
	require.NoError(t, err)
	assert.Nil(t, combined)
}

func TestGetQuotes_CachesPerSymbol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.alpaca.SetQuote(model.Quote{Symbol: "AAPL", Last: decimal.NewFromInt(165), Source: model.BrokerAlpaca})
	f.etrade.SetQuote(model.Quote{Symbol: "AAPL", Last: decimal.NewFromInt(165), Source: model.BrokerETrade})

	quotes, err := f.agg.GetQuotes(ctx, f.userID, []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Last.Equal(decimal.NewFromInt(165)))

	vendorCalls := f.alpaca.Calls["GetQuotes"] + f.etrade.Calls["GetQuotes"]
	assert.Equal(t, 1, vendorCalls, "exactly one vendor serves the miss")

	_, err = f.agg.GetQuotes(ctx, f.userID, []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, vendorCalls, f.alpaca.Calls["GetQuotes"]+f.etrade.Calls["GetQuotes"],
		"second call must be served from cache")
}

func TestGetQuotes_FailsOverToNextBroker(t *testing.T) {
	f := newFixture(t)
	f.alpaca.QuoteErr = core.ErrVendorUnavailable
	f.etrade.SetQuote(model.Quote{Symbol: "AAPL", Last: decimal.NewFromInt(170), Source: model.BrokerETrade})

	quotes, err := f.agg.GetQuotes(context.Background(), f.userID, []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, model.BrokerETrade, quotes[0].Source)
}

func TestGetQuotes_NoActiveConnections(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(mocks.New(model.BrokerAlpaca))
	mgr := connection.NewManager(registry, store.NewMemoryStore(), cache.NewMemory(), nil, nil, zap.NewNop())
	agg := NewAggregator(mgr, registry, cache.NewMemory(), nil, zap.NewNop(), 0)

	_, err := agg.GetQuotes(context.Background(), uuid.New(), []string{"AAPL"})
	assert.ErrorIs(t, err, core.ErrNoActiveConnection)
}
