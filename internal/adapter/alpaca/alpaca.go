// Package alpaca implements the broker adapter for Alpaca, an OAuth 2.0
// vendor with a JSON REST API. Paper and live environments share the wire
// format and differ only in base URL.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/model"
)

const (
	oauthURL    = "https://app.alpaca.markets/oauth/authorize"
	tokenURL    = "https://api.alpaca.markets/oauth/token"
	paperAPIURL = "https://paper-api.alpaca.markets"
	liveAPIURL  = "https://api.alpaca.markets"
	dataURL     = "https://data.alpaca.markets"
)

// Adapter implements adapter.Adapter for Alpaca.
type Adapter struct {
	clientID     string
	clientSecret string
	paper        bool

	client   *http.Client
	oauthURL string
	tokenURL string
	apiURL   string
	dataURL  string
}

// New creates an Alpaca adapter. paper selects the paper-trading environment.
func New(clientID, clientSecret string, paper bool) *Adapter {
	apiURL := liveAPIURL
	if paper {
		apiURL = paperAPIURL
	}
	return &Adapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		paper:        paper,
		client:       &http.Client{Timeout: 15 * time.Second},
		oauthURL:     oauthURL,
		tokenURL:     tokenURL,
		apiURL:       apiURL,
		dataURL:      dataURL,
	}
}

// NewWithBaseURL creates an adapter with every endpoint rooted at base
// (for testing against a fake vendor).
func NewWithBaseURL(clientID, clientSecret, base string) *Adapter {
	a := New(clientID, clientSecret, true)
	a.oauthURL = base + "/oauth/authorize"
	a.tokenURL = base + "/oauth/token"
	a.apiURL = base
	a.dataURL = base
	return a
}

func (a *Adapter) BrokerID() model.BrokerID { return model.BrokerAlpaca }

func (a *Adapter) Name() string {
	if a.paper {
		return "Alpaca (Paper)"
	}
	return "Alpaca"
}

func (a *Adapter) Features() adapter.Features {
	return adapter.Features{
		StockTrading:     true,
		OptionsTrading:   true,
		CryptoTrading:    true,
		FractionalShares: true,
		ExtendedHours:    true,
		ShortSelling:     true,
		PaperTrading:     true,
		RealTimeQuotes:   true,
	}
}

// AuthorizationURL builds the authorization-code URL. Alpaca needs no vendor
// round trip here.
func (a *Adapter) AuthorizationURL(_ context.Context, state, redirectURI string) (*adapter.Authorization, error) {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {a.clientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"scope":         {"account:write trading data"},
	}
	return &adapter.Authorization{URL: a.oauthURL + "?" + params.Encode()}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (a *Adapter) exchangeToken(ctx context.Context, form url.Values) (*model.TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, core.WrapError(core.ErrVendorUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("token endpoint returned %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, core.WrapError(core.ErrVendorRejected, err)
	}

	tokens := &model.TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		exp := time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
		tokens.ExpiresAt = &exp
	}
	return tokens, nil
}

// ExchangeCallback exchanges the authorization code for tokens.
func (a *Adapter) ExchangeCallback(ctx context.Context, callback adapter.CallbackData, redirectURI string) (*model.TokenSet, error) {
	code := callback.Get("code")
	if code == "" {
		return nil, core.WrapError(core.ErrInvalidCallback,
			fmt.Errorf("no authorization code in callback data"))
	}
	return a.exchangeToken(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"redirect_uri":  {redirectURI},
	})
}

// RefreshToken exchanges the refresh token for a fresh access token. Alpaca
// may rotate the refresh token; the previous one is kept when the response
// omits it.
func (a *Adapter) RefreshToken(ctx context.Context, tokens *model.TokenSet) (*model.TokenSet, error) {
	if tokens == nil || tokens.RefreshToken == "" {
		return nil, core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("no refresh token available"))
	}
	fresh, err := a.exchangeToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
	})
	if err != nil {
		return nil, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tokens.RefreshToken
	}
	return fresh, nil
}

// get performs an authenticated GET and decodes the JSON body into out.
func (a *Adapter) get(ctx context.Context, rawURL string, tokens *model.TokenSet, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return core.WrapError(core.ErrVendorUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return core.WrapError(core.ErrVendorUnavailable,
			fmt.Errorf("GET %s: status %d", req.URL.Path, resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("GET %s: status %d", req.URL.Path, resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type accountWire struct {
	ID                    string          `json:"id"`
	AccountNumber         string          `json:"account_number"`
	AccountType           string          `json:"account_type"`
	Cash                  decimal.Decimal `json:"cash"`
	BuyingPower           decimal.Decimal `json:"buying_power"`
	DayTradingBuyingPower decimal.Decimal `json:"daytrading_buying_power"`
	PortfolioValue        decimal.Decimal `json:"portfolio_value"`
	InitialMargin         decimal.Decimal `json:"initial_margin"`
}

// GetAccounts enumerates accounts. Alpaca has exactly one account per token.
func (a *Adapter) GetAccounts(ctx context.Context, tokens *model.TokenSet) ([]model.Account, error) {
	var acct accountWire
	if err := a.get(ctx, a.apiURL+"/v2/account", tokens, &acct); err != nil {
		return nil, err
	}

	masked := acct.AccountNumber
	if len(masked) >= 4 {
		masked = "****" + masked[len(masked)-4:]
	}
	accountType := acct.AccountType
	if accountType == "" {
		accountType = "trading"
	}

	return []model.Account{{
		BrokerID:      model.BrokerAlpaca,
		AccountID:     acct.ID,
		AccountNumber: masked,
		AccountType:   accountType,
		AccountName:   "Alpaca " + titleCase(accountType) + " Account",
		IsDefault:     true,
	}}, nil
}

// GetBalance returns the account balance.
func (a *Adapter) GetBalance(ctx context.Context, accountID string, tokens *model.TokenSet) (*model.Balance, error) {
	var acct accountWire
	if err := a.get(ctx, a.apiURL+"/v2/account", tokens, &acct); err != nil {
		return nil, err
	}

	b := &model.Balance{
		BrokerID:       model.BrokerAlpaca,
		AccountID:      accountID,
		CashAvailable:  acct.Cash,
		CashBalance:    acct.Cash,
		BuyingPower:    acct.BuyingPower,
		PortfolioValue: acct.PortfolioValue,
	}
	if !acct.DayTradingBuyingPower.IsZero() {
		dt := acct.DayTradingBuyingPower
		b.DayTradingBuyingPower = &dt
	}
	if !acct.InitialMargin.IsZero() {
		m := acct.InitialMargin
		b.MarginUsed = &m
	}
	return b, nil
}

type positionWire struct {
	Symbol        string          `json:"symbol"`
	AssetClass    string          `json:"asset_class"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

// GetPositions returns normalized positions for the account.
func (a *Adapter) GetPositions(ctx context.Context, accountID string, tokens *model.TokenSet) ([]model.Position, error) {
	var wire []positionWire
	if err := a.get(ctx, a.apiURL+"/v2/positions", tokens, &wire); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	positions := make([]model.Position, 0, len(wire))
	for _, p := range wire {
		assetType := model.AssetStock
		switch {
		case p.AssetClass == "crypto":
			assetType = model.AssetCrypto
		case strings.HasSuffix(p.Symbol, "ETF"):
			assetType = model.AssetETF
		}

		costBasis := p.Qty.Mul(p.AvgEntryPrice)
		plPercent := decimal.Zero
		if costBasis.IsPositive() {
			plPercent = p.UnrealizedPL.Div(costBasis).Mul(decimal.NewFromInt(100))
		}

		positions = append(positions, model.Position{
			BrokerID:            model.BrokerAlpaca,
			AccountID:           accountID,
			Symbol:              p.Symbol,
			Quantity:            p.Qty,
			AverageCost:         p.AvgEntryPrice,
			CurrentPrice:        p.CurrentPrice,
			MarketValue:         p.MarketValue,
			UnrealizedPL:        p.UnrealizedPL,
			UnrealizedPLPercent: plPercent,
			AssetType:           assetType,
			LastUpdated:         now,
		})
	}
	return positions, nil
}

type orderWire struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Type           string           `json:"type"`
	TimeInForce    string           `json:"time_in_force"`
	Status         string           `json:"status"`
	Qty            decimal.Decimal  `json:"qty"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	LimitPrice     *decimal.Decimal `json:"limit_price"`
	StopPrice      *decimal.Decimal `json:"stop_price"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
	SubmittedAt    string           `json:"submitted_at"`
	FilledAt       string           `json:"filled_at"`
}

func (a *Adapter) parseOrder(w orderWire, accountID string) model.Order {
	submittedAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, w.SubmittedAt); err == nil {
		submittedAt = t
	}
	var filledAt *time.Time
	if t, err := time.Parse(time.RFC3339, w.FilledAt); err == nil && w.FilledAt != "" {
		filledAt = &t
	}

	return model.Order{
		BrokerID:         model.BrokerAlpaca,
		AccountID:        accountID,
		OrderID:          w.ID,
		ClientOrderID:    w.ClientOrderID,
		Symbol:           w.Symbol,
		Side:             mapSide(strings.ToLower(w.Side)),
		Quantity:         w.Qty,
		FilledQuantity:   w.FilledQty,
		OrderType:        mapType(strings.ToLower(w.Type)),
		LimitPrice:       w.LimitPrice,
		StopPrice:        w.StopPrice,
		TimeInForce:      mapTIF(strings.ToLower(w.TimeInForce)),
		Status:           mapStatus(strings.ToLower(w.Status)),
		SubmittedAt:      submittedAt,
		FilledAt:         filledAt,
		AverageFillPrice: w.FilledAvgPrice,
	}
}

// GetOrders returns orders for the account filtered by status group.
func (a *Adapter) GetOrders(ctx context.Context, accountID string, tokens *model.TokenSet, status string) ([]model.Order, error) {
	u := a.apiURL + "/v2/orders"
	if status != "" {
		u += "?status=" + url.QueryEscape(status)
	}

	var wire []orderWire
	if err := a.get(ctx, u, tokens, &wire); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, a.parseOrder(w, accountID))
	}
	return orders, nil
}

// GetQuote returns a quote for one symbol.
func (a *Adapter) GetQuote(ctx context.Context, symbol string, tokens *model.TokenSet) (*model.Quote, error) {
	quotes, err := a.GetQuotes(ctx, []string{symbol}, tokens)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("no quote for symbol %s", symbol))
	}
	return &quotes[0], nil
}

type tradeWire struct {
	Price     decimal.Decimal `json:"p"`
	Timestamp string          `json:"t"`
}

type quoteWire struct {
	BidPrice  decimal.Decimal `json:"bp"`
	AskPrice  decimal.Decimal `json:"ap"`
	Timestamp string          `json:"t"`
}

type barWire struct {
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume int64           `json:"v"`
}

// GetQuotes combines the latest trades, quotes and bars endpoints into
// normalized quotes.
func (a *Adapter) GetQuotes(ctx context.Context, symbols []string, tokens *model.TokenSet) ([]model.Quote, error) {
	joined := url.QueryEscape(strings.Join(symbols, ","))

	var trades struct {
		Trades map[string]tradeWire `json:"trades"`
	}
	if err := a.get(ctx, a.dataURL+"/v2/stocks/trades/latest?symbols="+joined, tokens, &trades); err != nil {
		return nil, err
	}

	var quotes struct {
		Quotes map[string]quoteWire `json:"quotes"`
	}
	if err := a.get(ctx, a.dataURL+"/v2/stocks/quotes/latest?symbols="+joined, tokens, &quotes); err != nil {
		return nil, err
	}

	var bars struct {
		Bars map[string]barWire `json:"bars"`
	}
	if err := a.get(ctx, a.dataURL+"/v2/stocks/bars/latest?symbols="+joined, tokens, &bars); err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	result := make([]model.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		trade := trades.Trades[symbol]
		quote := quotes.Quotes[symbol]
		bar := bars.Bars[symbol]

		last := trade.Price
		previousClose := bar.Close
		if previousClose.IsZero() {
			previousClose = last
		}
		change := last.Sub(previousClose)
		changePercent := decimal.Zero
		if !previousClose.IsZero() {
			changePercent = change.Div(previousClose).Mul(hundred)
		}

		ts := time.Now().UTC()
		raw := trade.Timestamp
		if raw == "" {
			raw = quote.Timestamp
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil && raw != "" {
			ts = t
		}

		result = append(result, model.Quote{
			Symbol:        symbol,
			Bid:           quote.BidPrice,
			Ask:           quote.AskPrice,
			Last:          last,
			Volume:        bar.Volume,
			Change:        change,
			ChangePercent: changePercent,
			High:          bar.High,
			Low:           bar.Low,
			Open:          bar.Open,
			PreviousClose: previousClose,
			Timestamp:     ts,
			Source:        model.BrokerAlpaca,
		})
	}
	return result, nil
}

// vendorMessage extracts the human-readable error message from an Alpaca
// error body, falling back to the raw status.
func vendorMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

// PlaceOrder submits the order. Vendor rejections and transport failures
// both surface as Success=false results.
func (a *Adapter) PlaceOrder(ctx context.Context, accountID string, order model.OrderRequest, tokens *model.TokenSet) (*model.OrderResult, error) {
	payload := map[string]any{
		"symbol":        order.Symbol,
		"qty":           order.Quantity.String(),
		"side":          orderSideReverse[order.Side],
		"type":          orderTypeReverse[order.OrderType],
		"time_in_force": tifReverse[order.TimeInForce],
	}
	if order.LimitPrice != nil {
		payload["limit_price"] = order.LimitPrice.String()
	}
	if order.StopPrice != nil {
		payload["stop_price"] = order.StopPrice.String()
	}
	if order.ExtendedHours {
		payload["extended_hours"] = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &model.OrderResult{
			Success: false,
			Message: "Order failed: " + vendorMessage(resp),
		}, nil
	}

	var wire orderWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}

	parsed := a.parseOrder(wire, accountID)
	return &model.OrderResult{
		Success: true,
		OrderID: wire.ID,
		Message: "Order placed successfully",
		Order:   &parsed,
	}, nil
}

// CancelOrder cancels an order. Alpaca answers 204 No Content on success.
func (a *Adapter) CancelOrder(ctx context.Context, accountID, orderID string, tokens *model.TokenSet) (*model.OrderResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.apiURL+"/v2/orders/"+orderID, nil)
	if err != nil {
		return &model.OrderResult{Success: false, OrderID: orderID, Message: "Cancel failed: " + err.Error()}, nil
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return &model.OrderResult{Success: false, OrderID: orderID, Message: "Cancel failed: " + err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &model.OrderResult{
			Success: false,
			OrderID: orderID,
			Message: "Cancel failed: " + vendorMessage(resp),
		}, nil
	}

	return &model.OrderResult{
		Success: true,
		OrderID: orderID,
		Message: "Order canceled successfully",
	}, nil
}
