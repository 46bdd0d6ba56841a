package alpaca

import "github.com/newthinker/brokerhub/internal/model"

// Vendor code mapping tables. Every code Alpaca enumerates maps to a
// normalized value; lookups fall back to a conservative default for codes
// that appear after this table was written.

var orderStatusMap = map[string]model.OrderStatus{
	"new":                  model.StatusOpen,
	"accepted":             model.StatusOpen,
	"pending_new":          model.StatusPending,
	"accepted_for_bidding": model.StatusOpen,
	"stopped":              model.StatusOpen,
	"rejected":             model.StatusRejected,
	"suspended":            model.StatusOpen,
	"calculated":           model.StatusOpen,
	"partially_filled":     model.StatusPartiallyFilled,
	"filled":               model.StatusFilled,
	"done_for_day":         model.StatusOpen,
	"canceled":             model.StatusCanceled,
	"expired":              model.StatusExpired,
	"replaced":             model.StatusCanceled,
	"pending_cancel":       model.StatusOpen,
	"pending_replace":      model.StatusOpen,
	"held":                 model.StatusPending,
}

var orderSideMap = map[string]model.OrderSide{
	"buy":  model.SideBuy,
	"sell": model.SideSell,
}

var orderTypeMap = map[string]model.OrderType{
	"market":        model.OrderMarket,
	"limit":         model.OrderLimit,
	"stop":          model.OrderStop,
	"stop_limit":    model.OrderStopLimit,
	"trailing_stop": model.OrderTrailingStop,
}

var tifMap = map[string]model.TimeInForce{
	"day": model.TIFDay,
	"gtc": model.TIFGTC,
	"ioc": model.TIFIOC,
	"fok": model.TIFFOK,
}

// Reverse mappings for outgoing requests. Alpaca has no distinct short-sale
// actions; buy-to-cover and sell-short collapse onto buy/sell.
var orderSideReverse = map[model.OrderSide]string{
	model.SideBuy:        "buy",
	model.SideSell:       "sell",
	model.SideBuyToCover: "buy",
	model.SideSellShort:  "sell",
}

var orderTypeReverse = map[model.OrderType]string{
	model.OrderMarket:       "market",
	model.OrderLimit:        "limit",
	model.OrderStop:         "stop",
	model.OrderStopLimit:    "stop_limit",
	model.OrderTrailingStop: "trailing_stop",
}

var tifReverse = map[model.TimeInForce]string{
	model.TIFDay: "day",
	model.TIFGTC: "gtc",
	model.TIFIOC: "ioc",
	model.TIFFOK: "fok",
}

func mapStatus(code string) model.OrderStatus {
	if s, ok := orderStatusMap[code]; ok {
		return s
	}
	return model.StatusPending
}

func mapSide(code string) model.OrderSide {
	if s, ok := orderSideMap[code]; ok {
		return s
	}
	return model.SideBuy
}

func mapType(code string) model.OrderType {
	if t, ok := orderTypeMap[code]; ok {
		return t
	}
	return model.OrderMarket
}

func mapTIF(code string) model.TimeInForce {
	if t, ok := tifMap[code]; ok {
		return t
	}
	return model.TIFDay
}
