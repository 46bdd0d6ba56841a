// Package etrade implements the broker adapter for E*TRADE, an OAuth 1.0a
// vendor. The three-legged handshake spans two HTTP round trips: a
// server-initiated request-token fetch inside AuthorizationURL, then a
// verifier exchange in ExchangeCallback. Access tokens expire at midnight
// US/Eastern and are extended (not replaced) via a renew endpoint.
package etrade

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
	sandboxBase = "https://apisb.etrade.com"
	prodBase    = "https://api.etrade.com"

	requestTokenPath = "/oauth/request_token"
	accessTokenPath  = "/oauth/access_token"
	renewTokenPath   = "/oauth/renew_access_token"

	authorizeURL = "https://us.etrade.com/e/t/etws/authorize"
)

// Callback fields the connection manager re-injects from handshake state.
const (
	FieldOAuthToken       = "oauth_token"
	FieldOAuthVerifier    = "oauth_verifier"
	FieldOAuthTokenSecret = "oauth_token_secret"
)

// Adapter implements adapter.Adapter for E*TRADE.
type Adapter struct {
	sandbox bool

	client       *http.Client
	signer       signer
	baseURL      string
	authorizeURL string
}

// New creates an E*TRADE adapter. sandbox selects the sandbox environment.
func New(consumerKey, consumerSecret string, sandbox bool) *Adapter {
	base := prodBase
	if sandbox {
		base = sandboxBase
	}
	return &Adapter{
		sandbox:      sandbox,
		client:       &http.Client{Timeout: 15 * time.Second},
		signer:       signer{consumerKey: consumerKey, consumerSecret: consumerSecret},
		baseURL:      base,
		authorizeURL: authorizeURL,
	}
}

// NewWithBaseURL creates an adapter rooted at base (for testing against a
// fake vendor).
func NewWithBaseURL(consumerKey, consumerSecret, base string) *Adapter {
	a := New(consumerKey, consumerSecret, true)
	a.baseURL = base
	a.authorizeURL = base + "/authorize"
	return a
}

func (a *Adapter) BrokerID() model.BrokerID { return model.BrokerETrade }

func (a *Adapter) Name() string {
	if a.sandbox {
		return "E*TRADE (Sandbox)"
	}
	return "E*TRADE"
}

func (a *Adapter) Features() adapter.Features {
	return adapter.Features{
		StockTrading:   true,
		OptionsTrading: true,
		ExtendedHours:  true,
		ShortSelling:   true,
		PaperTrading:   a.sandbox,
		RealTimeQuotes: true,
		// Tokens lapse at midnight Eastern; full re-auth after 120 days idle.
		TokenRefreshDays:     1,
		RequiresManualReauth: true,
	}
}

// signedCall issues a signed request and returns the response. The caller
// owns the body.
func (a *Adapter) signedCall(ctx context.Context, method, rawURL string, body []byte, token, tokenSecret string, extra map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	auth, err := a.signer.header(method, rawURL, token, tokenSecret, extra)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return a.client.Do(req)
}

// fetchTokenPair calls an oauth endpoint that answers with a form-encoded
// token pair.
func (a *Adapter) fetchTokenPair(ctx context.Context, rawURL, token, tokenSecret string, extra map[string]string) (string, string, error) {
	resp, err := a.signedCall(ctx, http.MethodGet, rawURL, nil, token, tokenSecret, extra)
	if err != nil {
		return "", "", core.WrapError(core.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", "", core.WrapError(core.ErrVendorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("oauth endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return "", "", core.WrapError(core.ErrVendorRejected, err)
	}
	tok := values.Get("oauth_token")
	secret := values.Get("oauth_token_secret")
	if tok == "" || secret == "" {
		return "", "", core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("oauth response missing token pair"))
	}
	return tok, secret, nil
}

// AuthorizationURL acquires a temporary request token (the extra vendor
// round trip of three-legged OAuth) and returns the user authorization URL.
// The request-token secret must be persisted with the handshake state; it is
// required again at the access-token exchange.
func (a *Adapter) AuthorizationURL(ctx context.Context, _ string, redirectURI string) (*adapter.Authorization, error) {
	callback := redirectURI
	isOOB := redirectURI == "" || redirectURI == "oob"
	if isOOB {
		callback = "oob"
	}

	reqToken, reqSecret, err := a.fetchTokenPair(ctx, a.baseURL+requestTokenPath, "", "",
		map[string]string{"oauth_callback": callback})
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"key":   {a.signer.consumerKey},
		"token": {reqToken},
	}
	return &adapter.Authorization{
		URL:                a.authorizeURL + "?" + params.Encode(),
		IsOOB:              isOOB,
		RequestToken:       reqToken,
		RequestTokenSecret: reqSecret,
	}, nil
}

// ExchangeCallback trades the verifier for the access token pair. The
// callback must carry oauth_token, oauth_verifier and the request-token
// secret stored at initiation.
func (a *Adapter) ExchangeCallback(ctx context.Context, callback adapter.CallbackData, _ string) (*model.TokenSet, error) {
	token := callback.Get(FieldOAuthToken)
	verifier := callback.Get(FieldOAuthVerifier)
	secret := callback.Get(FieldOAuthTokenSecret)
	if token == "" || verifier == "" || secret == "" {
		return nil, core.WrapError(core.ErrInvalidCallback,
			fmt.Errorf("missing oauth callback parameters"))
	}

	accessToken, accessSecret, err := a.fetchTokenPair(ctx, a.baseURL+accessTokenPath, token, secret,
		map[string]string{"oauth_verifier": verifier})
	if err != nil {
		return nil, err
	}

	exp := nextMidnightEastern(time.Now())
	return &model.TokenSet{
		AccessToken:       accessToken,
		AccessTokenSecret: accessSecret,
		ExpiresAt:         &exp,
	}, nil
}

// RefreshToken renews the access token pair. E*TRADE extends the validity of
// the existing pair to the next midnight Eastern; the token value itself
// does not change.
func (a *Adapter) RefreshToken(ctx context.Context, tokens *model.TokenSet) (*model.TokenSet, error) {
	if tokens == nil || tokens.AccessToken == "" || tokens.AccessTokenSecret == "" {
		return nil, core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("renew requires the access token pair"))
	}

	resp, err := a.signedCall(ctx, http.MethodGet, a.baseURL+renewTokenPath, nil,
		tokens.AccessToken, tokens.AccessTokenSecret, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("renew endpoint returned %d", resp.StatusCode))
	}

	exp := nextMidnightEastern(time.Now())
	return &model.TokenSet{
		AccessToken:       tokens.AccessToken,
		AccessTokenSecret: tokens.AccessTokenSecret,
		ExpiresAt:         &exp,
	}, nil
}

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fall back to a fixed offset; only affects the advisory expiry.
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// nextMidnightEastern returns the vendor token cutoff following now.
func nextMidnightEastern(now time.Time) time.Time {
	et := now.In(eastern)
	next := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, eastern).AddDate(0, 0, 1)
	return next.UTC()
}

// getJSON issues a signed GET and decodes the JSON body into out.
func (a *Adapter) getJSON(ctx context.Context, rawURL string, tokens *model.TokenSet, out any) error {
	resp, err := a.signedCall(ctx, http.MethodGet, rawURL, nil,
		tokens.AccessToken, tokens.AccessTokenSecret, nil)
	if err != nil {
		return core.WrapError(core.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return core.WrapError(core.ErrVendorUnavailable,
			fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return core.WrapError(core.ErrVendorRejected,
			fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type accountListWire struct {
	AccountListResponse struct {
		Accounts struct {
			Account []struct {
				AccountID     string `json:"accountId"`
				AccountIDKey  string `json:"accountIdKey"`
				AccountType   string `json:"accountType"`
				AccountDesc   string `json:"accountDesc"`
				AccountStatus string `json:"accountStatus"`
			} `json:"Account"`
		} `json:"Accounts"`
	} `json:"AccountListResponse"`
}

// GetAccounts enumerates the user's E*TRADE accounts.
func (a *Adapter) GetAccounts(ctx context.Context, tokens *model.TokenSet) ([]model.Account, error) {
	var wire accountListWire
	if err := a.getJSON(ctx, a.baseURL+"/v1/accounts/list.json", tokens, &wire); err != nil {
		return nil, err
	}

	raw := wire.AccountListResponse.Accounts.Account
	accounts := make([]model.Account, 0, len(raw))
	for _, acct := range raw {
		accountType := acct.AccountType
		if accountType == "" {
			accountType = "INDIVIDUAL"
		}
		name := acct.AccountDesc
		if name == "" {
			name = "E*TRADE Account"
		}
		accounts = append(accounts, model.Account{
			BrokerID:      model.BrokerETrade,
			AccountID:     acct.AccountID,
			AccountNumber: maskAccountKey(acct.AccountIDKey),
			AccountType:   accountType,
			AccountName:   name,
			IsDefault:     acct.AccountStatus == "ACTIVE",
		})
	}
	return accounts, nil
}

func maskAccountKey(key string) string {
	if len(key) < 4 {
		return key
	}
	tail := key[len(key)-4:]
	return strings.Repeat("*", 4) + tail
}

type balanceWire struct {
	BalanceResponse struct {
		Computed struct {
			CashAvailableForInvestment decimal.Decimal `json:"cashAvailableForInvestment"`
			CashBalance                decimal.Decimal `json:"cashBalance"`
			CashBuyingPower            decimal.Decimal `json:"cashBuyingPower"`
			DtCashBuyingPower          decimal.Decimal `json:"dtCashBuyingPower"`
			MarginBuyingPower          decimal.Decimal `json:"marginBuyingPower"`
			RealTimeValues             struct {
				TotalAccountValue decimal.Decimal `json:"totalAccountValue"`
			} `json:"RealTimeValues"`
		} `json:"Computed"`
	} `json:"BalanceResponse"`
}

// GetBalance returns the normalized balance for one account.
func (a *Adapter) GetBalance(ctx context.Context, accountID string, tokens *model.TokenSet) (*model.Balance, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/balance.json?instType=BROKERAGE&realTimeNAV=true", a.baseURL, accountID)

	var wire balanceWire
	if err := a.getJSON(ctx, u, tokens, &wire); err != nil {
		return nil, err
	}

	computed := wire.BalanceResponse.Computed
	dt := computed.DtCashBuyingPower
	margin := computed.MarginBuyingPower
	return &model.Balance{
		BrokerID:              model.BrokerETrade,
		AccountID:             accountID,
		CashAvailable:         computed.CashAvailableForInvestment,
		CashBalance:           computed.CashBalance,
		BuyingPower:           computed.CashBuyingPower,
		DayTradingBuyingPower: &dt,
		PortfolioValue:        computed.RealTimeValues.TotalAccountValue,
		MarginUsed:            &margin,
	}, nil
}

type portfolioWire struct {
	PortfolioResponse struct {
		AccountPortfolio []struct {
			Position []struct {
				Product struct {
					Symbol       string `json:"symbol"`
					SecurityType string `json:"securityType"`
				} `json:"Product"`
				Quantity     decimal.Decimal `json:"quantity"`
				CostPerShare decimal.Decimal `json:"costPerShare"`
				MarketValue  decimal.Decimal `json:"marketValue"`
				Quick        struct {
					LastTrade decimal.Decimal `json:"lastTrade"`
				} `json:"Quick"`
			} `json:"Position"`
		} `json:"AccountPortfolio"`
	} `json:"PortfolioResponse"`
}

// GetPositions returns the normalized positions for one account.
func (a *Adapter) GetPositions(ctx context.Context, accountID string, tokens *model.TokenSet) ([]model.Position, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/portfolio.json", a.baseURL, accountID)

	var wire portfolioWire
	if err := a.getJSON(ctx, u, tokens, &wire); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	hundred := decimal.NewFromInt(100)
	var positions []model.Position
	for _, acctPortfolio := range wire.PortfolioResponse.AccountPortfolio {
		for _, pos := range acctPortfolio.Position {
			assetType := model.AssetStock
			switch pos.Product.SecurityType {
			case "OPTN":
				assetType = model.AssetOption
			case "MF":
				assetType = model.AssetMutualFund
			}

			costBasis := pos.Quantity.Mul(pos.CostPerShare)
			unrealizedPL := pos.MarketValue.Sub(costBasis)
			plPercent := decimal.Zero
			if costBasis.IsPositive() {
				plPercent = unrealizedPL.Div(costBasis).Mul(hundred)
			}

			positions = append(positions, model.Position{
				BrokerID:            model.BrokerETrade,
				AccountID:           accountID,
				Symbol:              pos.Product.Symbol,
				Quantity:            pos.Quantity,
				AverageCost:         pos.CostPerShare,
				CurrentPrice:        pos.Quick.LastTrade,
				MarketValue:         pos.MarketValue,
				UnrealizedPL:        unrealizedPL,
				UnrealizedPLPercent: plPercent,
				AssetType:           assetType,
				LastUpdated:         now,
			})
		}
	}
	return positions, nil
}

type orderDetailWire struct {
	OrderAction string           `json:"orderAction"`
	PriceType   string           `json:"priceType"`
	OrderTerm   string           `json:"orderTerm"`
	LimitPrice  *decimal.Decimal `json:"limitPrice"`
	StopPrice   *decimal.Decimal `json:"stopPrice"`
	Instrument  []struct {
		Product struct {
			Symbol string `json:"symbol"`
		} `json:"Product"`
		OrderedQuantity       decimal.Decimal  `json:"orderedQuantity"`
		FilledQuantity        decimal.Decimal  `json:"filledQuantity"`
		AverageExecutionPrice *decimal.Decimal `json:"averageExecutionPrice"`
		OrderAction           string           `json:"orderAction"`
	} `json:"Instrument"`
}

type orderWire struct {
	OrderID       json.Number       `json:"orderId"`
	ClientOrderID string            `json:"clientOrderId"`
	OrderStatus   string            `json:"orderStatus"`
	OrderDetail   []orderDetailWire `json:"OrderDetail"`
}

func (a *Adapter) parseOrder(w orderWire, accountID string) model.Order {
	var detail orderDetailWire
	if len(w.OrderDetail) > 0 {
		detail = w.OrderDetail[0]
	}

	order := model.Order{
		BrokerID:      model.BrokerETrade,
		AccountID:     accountID,
		OrderID:       w.OrderID.String(),
		ClientOrderID: w.ClientOrderID,
		Side:          mapSide(detail.OrderAction),
		OrderType:     mapType(detail.PriceType),
		TimeInForce:   mapTIF(detail.OrderTerm),
		Status:        mapStatus(w.OrderStatus),
		LimitPrice:    detail.LimitPrice,
		StopPrice:     detail.StopPrice,
		SubmittedAt:   time.Now().UTC(),
	}
	if len(detail.Instrument) > 0 {
		inst := detail.Instrument[0]
		order.Symbol = inst.Product.Symbol
		order.Quantity = inst.OrderedQuantity
		order.FilledQuantity = inst.FilledQuantity
		order.AverageFillPrice = inst.AverageExecutionPrice
		if inst.OrderAction != "" {
			order.Side = mapSide(inst.OrderAction)
		}
	}
	return order
}

// GetOrders returns orders for one account, optionally filtered by status.
func (a *Adapter) GetOrders(ctx context.Context, accountID string, tokens *model.TokenSet, status string) ([]model.Order, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/orders.json", a.baseURL, accountID)
	if status != "" {
		u += "?status=" + url.QueryEscape(strings.ToUpper(status))
	}

	var wire struct {
		OrdersResponse struct {
			Order []orderWire `json:"Order"`
		} `json:"OrdersResponse"`
	}
	if err := a.getJSON(ctx, u, tokens, &wire); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(wire.OrdersResponse.Order))
	for _, w := range wire.OrdersResponse.Order {
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

type quoteDataWire struct {
	Product struct {
		Symbol string `json:"symbol"`
	} `json:"Product"`
	All struct {
		Bid                   decimal.Decimal `json:"bid"`
		Ask                   decimal.Decimal `json:"ask"`
		LastTrade             decimal.Decimal `json:"lastTrade"`
		TotalVolume           int64           `json:"totalVolume"`
		ChangeClose           decimal.Decimal `json:"changeClose"`
		ChangeClosePercentage decimal.Decimal `json:"changeClosePercentage"`
		High                  decimal.Decimal `json:"high"`
		Low                   decimal.Decimal `json:"low"`
		Open                  decimal.Decimal `json:"open"`
		PreviousClose         decimal.Decimal `json:"previousClose"`
	} `json:"All"`
}

// GetQuotes returns quotes for multiple symbols in one call.
func (a *Adapter) GetQuotes(ctx context.Context, symbols []string, tokens *model.TokenSet) ([]model.Quote, error) {
	u := fmt.Sprintf("%s/v1/market/quote/%s.json", a.baseURL, url.PathEscape(strings.Join(symbols, ",")))

	var wire struct {
		QuoteResponse struct {
			QuoteData []quoteDataWire `json:"QuoteData"`
		} `json:"QuoteResponse"`
	}
	if err := a.getJSON(ctx, u, tokens, &wire); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	quotes := make([]model.Quote, 0, len(wire.QuoteResponse.QuoteData))
	for _, q := range wire.QuoteResponse.QuoteData {
		quotes = append(quotes, model.Quote{
			Symbol:        q.Product.Symbol,
			Bid:           q.All.Bid,
			Ask:           q.All.Ask,
			Last:          q.All.LastTrade,
			Volume:        q.All.TotalVolume,
			Change:        q.All.ChangeClose,
			ChangePercent: q.All.ChangeClosePercentage,
			High:          q.All.High,
			Low:           q.All.Low,
			Open:          q.All.Open,
			PreviousClose: q.All.PreviousClose,
			Timestamp:     now,
			Source:        model.BrokerETrade,
		})
	}
	return quotes, nil
}

type etradeErrorWire struct {
	Error struct {
		Message string `json:"message"`
	} `json:"Error"`
}

func vendorMessage(raw []byte, fallback string) string {
	var e etradeErrorWire
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return fallback
}

func (a *Adapter) buildOrderPayload(order model.OrderRequest) map[string]any {
	session := "REGULAR"
	if order.ExtendedHours {
		session = "EXTENDED"
	}

	inner := map[string]any{
		"allOrNone":     "false",
		"priceType":     orderTypeReverse[order.OrderType],
		"orderTerm":     tifReverse[order.TimeInForce],
		"marketSession": session,
		"Instrument": []map[string]any{{
			"Product": map[string]any{
				"securityType": "EQ",
				"symbol":       order.Symbol,
			},
			"orderAction":  orderSideReverse[order.Side],
			"quantityType": "QUANTITY",
			"quantity":     order.Quantity.String(),
		}},
	}
	if order.LimitPrice != nil {
		inner["limitPrice"] = order.LimitPrice.String()
	}
	if order.StopPrice != nil {
		inner["stopPrice"] = order.StopPrice.String()
	}

	return map[string]any{
		"orderType":     "EQ",
		"clientOrderId": "bh" + time.Now().UTC().Format("20060102150405"),
		"Order":         []map[string]any{inner},
	}
}

// PlaceOrder previews then places the order, E*TRADE's required two-step
// flow. Any vendor refusal surfaces as Success=false, never as an error.
func (a *Adapter) PlaceOrder(ctx context.Context, accountID string, order model.OrderRequest, tokens *model.TokenSet) (*model.OrderResult, error) {
	payload := a.buildOrderPayload(order)

	previewBody, err := json.Marshal(map[string]any{"PreviewOrderRequest": payload})
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}

	previewURL := fmt.Sprintf("%s/v1/accounts/%s/orders/preview.json", a.baseURL, accountID)
	resp, err := a.signedCall(ctx, http.MethodPost, previewURL, previewBody,
		tokens.AccessToken, tokens.AccessTokenSecret, nil)
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &model.OrderResult{
			Success: false,
			Message: vendorMessage(raw, "Preview failed"),
		}, nil
	}

	var preview struct {
		PreviewOrderResponse struct {
			PreviewIds []struct {
				PreviewID json.Number `json:"previewId"`
			} `json:"PreviewIds"`
		} `json:"PreviewOrderResponse"`
	}
	if err := json.Unmarshal(raw, &preview); err != nil ||
		len(preview.PreviewOrderResponse.PreviewIds) == 0 ||
		preview.PreviewOrderResponse.PreviewIds[0].PreviewID.String() == "" {
		return &model.OrderResult{Success: false, Message: "Failed to get preview ID"}, nil
	}
	previewID := preview.PreviewOrderResponse.PreviewIds[0].PreviewID

	payload["PreviewIds"] = []map[string]any{{"previewId": previewID}}
	placeBody, err := json.Marshal(map[string]any{"PlaceOrderRequest": payload})
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}

	placeURL := fmt.Sprintf("%s/v1/accounts/%s/orders/place.json", a.baseURL, accountID)
	resp, err = a.signedCall(ctx, http.MethodPost, placeURL, placeBody,
		tokens.AccessToken, tokens.AccessTokenSecret, nil)
	if err != nil {
		return &model.OrderResult{Success: false, Message: "Order failed: " + err.Error()}, nil
	}
	raw, _ = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &model.OrderResult{
			Success: false,
			Message: vendorMessage(raw, "Order placement failed"),
		}, nil
	}

	var placed struct {
		PlaceOrderResponse struct {
			OrderIds []struct {
				OrderID json.Number `json:"orderId"`
			} `json:"OrderIds"`
		} `json:"PlaceOrderResponse"`
	}
	var orderID string
	if json.Unmarshal(raw, &placed) == nil && len(placed.PlaceOrderResponse.OrderIds) > 0 {
		orderID = placed.PlaceOrderResponse.OrderIds[0].OrderID.String()
	}

	return &model.OrderResult{
		Success: true,
		OrderID: orderID,
		Message: "Order placed successfully",
	}, nil
}

// CancelOrder cancels an order via the cancel endpoint. An empty success
// body still counts as success.
func (a *Adapter) CancelOrder(ctx context.Context, accountID, orderID string, tokens *model.TokenSet) (*model.OrderResult, error) {
	body, err := json.Marshal(map[string]any{
		"CancelOrderRequest": map[string]any{"orderId": orderID},
	})
	if err != nil {
		return &model.OrderResult{Success: false, OrderID: orderID, Message: "Cancel failed: " + err.Error()}, nil
	}

	u := fmt.Sprintf("%s/v1/accounts/%s/orders/cancel.json", a.baseURL, accountID)
	resp, err := a.signedCall(ctx, http.MethodPut, u, body,
		tokens.AccessToken, tokens.AccessTokenSecret, nil)
	if err != nil {
		return &model.OrderResult{Success: false, OrderID: orderID, Message: "Cancel failed: " + err.Error()}, nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &model.OrderResult{
			Success: false,
			OrderID: orderID,
			Message: vendorMessage(raw, "Cancel failed"),
		}, nil
	}

	return &model.OrderResult{
		Success: true,
		OrderID: orderID,
		Message: "Order canceled",
	}, nil
}
