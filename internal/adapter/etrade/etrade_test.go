package etrade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/model"
)

func tokens() *model.TokenSet {
	return &model.TokenSet{AccessToken: "access-token", AccessTokenSecret: "access-secret"}
}

func TestAuthorizationURL_RequestTokenRoundTrip(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, requestTokenPath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	auth, err := a.AuthorizationURL(context.Background(), "user-1", "https://app.example.com/callback")
	require.NoError(t, err)

	assert.False(t, auth.IsOOB)
	assert.Equal(t, "req-token", auth.RequestToken)
	assert.Equal(t, "req-secret", auth.RequestTokenSecret)

	u, err := url.Parse(auth.URL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "ck", u.Query().Get("key"))
	assert.Equal(t, "req-token", u.Query().Get("token"))

	assert.Contains(t, gotAuth, "oauth_callback=")
	assert.Contains(t, gotAuth, "oauth_signature=")
}

func TestAuthorizationURL_OOB(t *testing.T) {
	var callback string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callback = r.Header.Get("Authorization")
		w.Write([]byte("oauth_token=t&oauth_token_secret=s"))
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	auth, err := a.AuthorizationURL(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.True(t, auth.IsOOB)
	assert.Contains(t, callback, `oauth_callback="oob"`)
}

func TestAuthorizationURL_VendorRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature invalid", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	_, err := a.AuthorizationURL(context.Background(), "user-1", "oob")
	assert.ErrorIs(t, err, core.ErrVendorRejected)
}

func TestExchangeCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, accessTokenPath, r.URL.Path)
		auth := r.Header.Get("Authorization")
		assert.Contains(t, auth, `oauth_token="req-token"`)
		assert.Contains(t, auth, `oauth_verifier="verifier-123"`)
		w.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret"))
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	ts, err := a.ExchangeCallback(context.Background(), adapter.CallbackData{
		FieldOAuthToken:       "req-token",
		FieldOAuthVerifier:    "verifier-123",
		FieldOAuthTokenSecret: "req-secret",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "access-token", ts.AccessToken)
	assert.Equal(t, "access-secret", ts.AccessTokenSecret)
	require.NotNil(t, ts.ExpiresAt)
	assert.True(t, ts.ExpiresAt.After(time.Now()))
}

func TestExchangeCallback_MissingFields(t *testing.T) {
	a := New("ck", "cs", true)

	for _, cb := range []adapter.CallbackData{
		nil,
		{FieldOAuthToken: "t", FieldOAuthVerifier: "v"},
		{FieldOAuthToken: "t", FieldOAuthTokenSecret: "s"},
		{FieldOAuthVerifier: "v", FieldOAuthTokenSecret: "s"},
	} {
		_, err := a.ExchangeCallback(context.Background(), cb, "")
		assert.ErrorIs(t, err, core.ErrInvalidCallback)
	}
}

func TestRefreshToken_ExtendsSamePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, renewTokenPath, r.URL.Path)
		w.Write([]byte("Access Token has been renewed"))
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	renewed, err := a.RefreshToken(context.Background(), tokens())
	require.NoError(t, err)

	assert.Equal(t, "access-token", renewed.AccessToken)
	assert.Equal(t, "access-secret", renewed.AccessTokenSecret)
	require.NotNil(t, renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.After(time.Now()))
}

func TestRefreshToken_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	_, err := a.RefreshToken(context.Background(), tokens())
	assert.ErrorIs(t, err, core.ErrVendorRejected)
}

func TestRefreshToken_MissingPair(t *testing.T) {
	a := New("ck", "cs", true)
	_, err := a.RefreshToken(context.Background(), &model.TokenSet{AccessToken: "only-token"})
	assert.ErrorIs(t, err, core.ErrVendorRejected)
}

func TestNextMidnightEastern(t *testing.T) {
	// 2026-03-10 15:00 ET -> cutoff is 2026-03-11 00:00 ET.
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, eastern)
	next := nextMidnightEastern(now)

	et := next.In(eastern)
	assert.Equal(t, 2026, et.Year())
	assert.Equal(t, time.March, et.Month())
	assert.Equal(t, 11, et.Day())
	assert.Equal(t, 0, et.Hour())
	assert.True(t, next.After(now.UTC()))
}

func TestGetAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts/list.json", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"AccountListResponse": map[string]any{
				"Accounts": map[string]any{
					"Account": []map[string]any{
						{
							"accountId":     "83405188",
							"accountIdKey":  "dBZOKt9xDrtRSAOl4MSiiA",
							"accountType":   "MARGIN",
							"accountDesc":   "Brokerage",
							"accountStatus": "ACTIVE",
						},
						{
							"accountId":     "83405199",
							"accountIdKey":  "vQMsebA1H5WltUfDkJP48g",
							"accountStatus": "CLOSED",
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	accounts, err := a.GetAccounts(context.Background(), tokens())
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, model.BrokerETrade, accounts[0].BrokerID)
	assert.Equal(t, "83405188", accounts[0].AccountID)
	assert.Equal(t, "****SiiA", accounts[0].AccountNumber)
	assert.Equal(t, "MARGIN", accounts[0].AccountType)
	assert.Equal(t, "Brokerage", accounts[0].AccountName)
	assert.True(t, accounts[0].IsDefault)

	// Missing type and description fall back to defaults.
	assert.Equal(t, "INDIVIDUAL", accounts[1].AccountType)
	assert.Equal(t, "E*TRADE Account", accounts[1].AccountName)
	assert.False(t, accounts[1].IsDefault)
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts/acct-key/balance.json", r.URL.Path)
		assert.Equal(t, "BROKERAGE", r.URL.Query().Get("instType"))
		json.NewEncoder(w).Encode(map[string]any{
			"BalanceResponse": map[string]any{
				"Computed": map[string]any{
					"cashAvailableForInvestment": 4500.50,
					"cashBalance":                5000.25,
					"cashBuyingPower":            9000,
					"dtCashBuyingPower":          18000,
					"marginBuyingPower":          10000,
					"RealTimeValues": map[string]any{
						"totalAccountValue": 25000.75,
					},
				},
			},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	bal, err := a.GetBalance(context.Background(), "acct-key", tokens())
	require.NoError(t, err)

	assert.Equal(t, "acct-key", bal.AccountID)
	assert.True(t, bal.CashAvailable.Equal(decimal.NewFromFloat(4500.50)))
	assert.True(t, bal.CashBalance.Equal(decimal.NewFromFloat(5000.25)))
	assert.True(t, bal.BuyingPower.Equal(decimal.NewFromInt(9000)))
	require.NotNil(t, bal.DayTradingBuyingPower)
	assert.True(t, bal.DayTradingBuyingPower.Equal(decimal.NewFromInt(18000)))
	require.NotNil(t, bal.MarginUsed)
	assert.True(t, bal.MarginUsed.Equal(decimal.NewFromInt(10000)))
	assert.True(t, bal.PortfolioValue.Equal(decimal.NewFromFloat(25000.75)))
}

func TestGetPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts/acct-key/portfolio.json", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"PortfolioResponse": map[string]any{
				"AccountPortfolio": []map[string]any{{
					"Position": []map[string]any{
						{
							"Product":      map[string]any{"symbol": "AAPL", "securityType": "EQ"},
							"quantity":     10,
							"costPerShare": 150,
							"marketValue":  1650,
							"Quick":        map[string]any{"lastTrade": 165},
						},
						{
							"Product":      map[string]any{"symbol": "SPY   260320C00500000", "securityType": "OPTN"},
							"quantity":     2,
							"costPerShare": 0,
							"marketValue":  300,
							"Quick":        map[string]any{"lastTrade": 1.50},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	positions, err := a.GetPositions(context.Background(), "acct-key", tokens())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	aapl := positions[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, model.AssetStock, aapl.AssetType)
	assert.True(t, aapl.UnrealizedPL.Equal(decimal.NewFromInt(150)), "1650 - 10*150")
	assert.True(t, aapl.UnrealizedPLPercent.Equal(decimal.NewFromInt(10)))

	// Zero cost basis leaves the percentage at zero instead of dividing.
	opt := positions[1]
	assert.Equal(t, model.AssetOption, opt.AssetType)
	assert.True(t, opt.UnrealizedPLPercent.IsZero())
	assert.True(t, opt.UnrealizedPL.Equal(decimal.NewFromInt(300)))
}

func TestGetOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts/acct-key/orders.json", r.URL.Path)
		assert.Equal(t, "OPEN", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(map[string]any{
			"OrdersResponse": map[string]any{
				"Order": []map[string]any{{
					"orderId":     12345,
					"orderStatus": "OPEN",
					"OrderDetail": []map[string]any{{
						"orderAction": "BUY",
						"priceType":   "LIMIT",
						"orderTerm":   "GOOD_FOR_DAY",
						"limitPrice":  150.50,
						"Instrument": []map[string]any{{
							"Product":         map[string]any{"symbol": "AAPL"},
							"orderedQuantity": 10,
							"filledQuantity":  0,
						}},
					}},
				}},
			},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	orders, err := a.GetOrders(context.Background(), "acct-key", tokens(), "open")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "12345", o.OrderID)
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, model.SideBuy, o.Side)
	assert.Equal(t, model.OrderLimit, o.OrderType)
	assert.Equal(t, model.TIFDay, o.TimeInForce)
	assert.Equal(t, model.StatusOpen, o.Status)
	require.NotNil(t, o.LimitPrice)
	assert.True(t, o.LimitPrice.Equal(decimal.NewFromFloat(150.50)))
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestGetQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/market/quote/AAPL,MSFT.json", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"QuoteResponse": map[string]any{
				"QuoteData": []map[string]any{
					{
						"Product": map[string]any{"symbol": "AAPL"},
						"All": map[string]any{
							"bid":                   164.95,
							"ask":                   165.05,
							"lastTrade":             165,
							"totalVolume":           1000000,
							"changeClose":           15,
							"changeClosePercentage": 10,
							"high":                  166,
							"low":                   160,
							"open":                  161,
							"previousClose":         150,
						},
					},
					{
						"Product": map[string]any{"symbol": "MSFT"},
						"All":     map[string]any{"lastTrade": 410.10},
					},
				},
			},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	quotes, err := a.GetQuotes(context.Background(), []string{"AAPL", "MSFT"}, tokens())
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	q := quotes[0]
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, model.BrokerETrade, q.Source)
	assert.True(t, q.Last.Equal(decimal.NewFromInt(165)))
	assert.True(t, q.Change.Equal(decimal.NewFromInt(15)))
	assert.True(t, q.ChangePercent.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1000000), q.Volume)

	assert.Equal(t, "MSFT", quotes[1].Symbol)
}

func TestGetPositions_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	_, err := a.GetPositions(context.Background(), "acct-key", tokens())
	assert.ErrorIs(t, err, core.ErrVendorUnavailable)
}

func TestGetBalance_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such account", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	_, err := a.GetBalance(context.Background(), "bad-acct", tokens())
	assert.ErrorIs(t, err, core.ErrVendorRejected)
}

func TestPlaceOrder_PreviewThenPlace(t *testing.T) {
	var previewReq, placeReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/accounts/acct-key/orders/preview.json":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&previewReq))
			json.NewEncoder(w).Encode(map[string]any{
				"PreviewOrderResponse": map[string]any{
					"PreviewIds": []map[string]any{{"previewId": 7001}},
				},
			})
		case "/v1/accounts/acct-key/orders/place.json":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&placeReq))
			json.NewEncoder(w).Encode(map[string]any{
				"PlaceOrderResponse": map[string]any{
					"OrderIds": []map[string]any{{"orderId": 9001}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	limit := decimal.NewFromFloat(150.50)
	result, err := a.PlaceOrder(context.Background(), "acct-key", model.OrderRequest{
		Symbol:      "AAPL",
		Side:        model.SideBuy,
		OrderType:   model.OrderLimit,
		Quantity:    decimal.NewFromInt(10),
		LimitPrice:  &limit,
		TimeInForce: model.TIFDay,
	}, tokens())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "9001", result.OrderID)

	require.NotNil(t, previewReq["PreviewOrderRequest"])
	place, ok := placeReq["PlaceOrderRequest"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, place["PreviewIds"], "place request must carry the preview id")
}

func TestPlaceOrder_PreviewRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"Error": map[string]any{"message": "Insufficient funds"},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	result, err := a.PlaceOrder(context.Background(), "acct-key", model.OrderRequest{
		Symbol:      "AAPL",
		Side:        model.SideBuy,
		OrderType:   model.OrderMarket,
		Quantity:    decimal.NewFromInt(10000),
		TimeInForce: model.TIFDay,
	}, tokens())
	require.NoError(t, err, "vendor refusals must not surface as errors")

	assert.False(t, result.Success)
	assert.Equal(t, "Insufficient funds", result.Message)
}

func TestPlaceOrder_TransportFailure(t *testing.T) {
	a := NewWithBaseURL("ck", "cs", "http://127.0.0.1:1")
	result, err := a.PlaceOrder(context.Background(), "acct-key", model.OrderRequest{
		Symbol:      "AAPL",
		Side:        model.SideBuy,
		OrderType:   model.OrderMarket,
		Quantity:    decimal.NewFromInt(1),
		TimeInForce: model.TIFDay,
	}, tokens())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Order failed")
}

func TestPlaceOrder_MissingPreviewID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"PreviewOrderResponse":{}}`))
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	result, err := a.PlaceOrder(context.Background(), "acct-key", model.OrderRequest{
		Symbol:      "AAPL",
		Side:        model.SideBuy,
		OrderType:   model.OrderMarket,
		Quantity:    decimal.NewFromInt(1),
		TimeInForce: model.TIFDay,
	}, tokens())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Failed to get preview ID", result.Message)
}

func TestCancelOrder_EmptyBodySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/accounts/acct-key/orders/cancel.json", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	result, err := a.CancelOrder(context.Background(), "acct-key", "9001", tokens())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "9001", result.OrderID)
}

func TestCancelOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"Error": map[string]any{"message": "Order already executed"},
		})
	}))
	defer srv.Close()

	a := NewWithBaseURL("ck", "cs", srv.URL)
	result, err := a.CancelOrder(context.Background(), "acct-key", "9001", tokens())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Order already executed", result.Message)
}
