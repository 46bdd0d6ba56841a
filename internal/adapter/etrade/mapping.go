package etrade

import "github.com/newthinker/brokerhub/internal/model"

// Vendor code mapping tables for E*TRADE's enumerations. Unknown codes fall
// back to conservative defaults instead of erroring.

var orderStatusMap = map[string]model.OrderStatus{
	"OPEN":             model.StatusOpen,
	"EXECUTED":         model.StatusFilled,
	"CANCELLED":        model.StatusCanceled,
	"CANCEL_REQUESTED": model.StatusPending,
	"EXPIRED":          model.StatusExpired,
	"REJECTED":         model.StatusRejected,
	"PARTIAL":          model.StatusPartiallyFilled,
	"PENDING":          model.StatusPending,
}

var orderSideMap = map[string]model.OrderSide{
	"BUY":          model.SideBuy,
	"SELL":         model.SideSell,
	"BUY_TO_COVER": model.SideBuyToCover,
	"SELL_SHORT":   model.SideSellShort,
}

var orderTypeMap = map[string]model.OrderType{
	"MARKET":             model.OrderMarket,
	"LIMIT":              model.OrderLimit,
	"STOP":               model.OrderStop,
	"STOP_LIMIT":         model.OrderStopLimit,
	"TRAILING_STOP_CNST": model.OrderTrailingStop,
	"TRAILING_STOP_PRCT": model.OrderTrailingStop,
}

var tifMap = map[string]model.TimeInForce{
	"GOOD_FOR_DAY":        model.TIFDay,
	"GOOD_UNTIL_CANCEL":   model.TIFGTC,
	"IMMEDIATE_OR_CANCEL": model.TIFIOC,
	"FILL_OR_KILL":        model.TIFFOK,
}

var orderSideReverse = map[model.OrderSide]string{
	model.SideBuy:        "BUY",
	model.SideSell:       "SELL",
	model.SideBuyToCover: "BUY_TO_COVER",
	model.SideSellShort:  "SELL_SHORT",
}

var orderTypeReverse = map[model.OrderType]string{
	model.OrderMarket:       "MARKET",
	model.OrderLimit:        "LIMIT",
	model.OrderStop:         "STOP",
	model.OrderStopLimit:    "STOP_LIMIT",
	model.OrderTrailingStop: "TRAILING_STOP_CNST",
}

var tifReverse = map[model.TimeInForce]string{
	model.TIFDay: "GOOD_FOR_DAY",
	model.TIFGTC: "GOOD_UNTIL_CANCEL",
	model.TIFIOC: "IMMEDIATE_OR_CANCEL",
	model.TIFFOK: "FILL_OR_KILL",
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
