// internal/api/handler/trading.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newthinker/brokerhub/internal/api/response"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/model"
	"github.com/newthinker/brokerhub/internal/trading"
)

// TradingHandler handles order preview, placement and cancellation.
type TradingHandler struct {
	service *trading.Service
}

// NewTradingHandler creates a new trading handler.
func NewTradingHandler(svc *trading.Service) *TradingHandler {
	return &TradingHandler{service: svc}
}

type orderEnvelope struct {
	BrokerID  model.BrokerID     `json:"broker_id"`
	AccountID string             `json:"account_id"`
	Order     model.OrderRequest `json:"order"`
}

func decodeOrderEnvelope(w http.ResponseWriter, r *http.Request) (*orderEnvelope, bool) {
	var env orderEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return nil, false
	}
	if !env.BrokerID.Valid() {
		fail(w, core.ErrUnsupportedBroker)
		return nil, false
	}
	if env.Order.TimeInForce == "" {
		env.Order.TimeInForce = model.TIFDay
	}
	return &env, true
}

// Preview runs the dry-run risk check for an order.
func (h *TradingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	env, ok := decodeOrderEnvelope(w, r)
	if !ok {
		return
	}
	preview, err := h.service.PreviewOrder(r.Context(), userID, env.BrokerID, env.AccountID, env.Order)
	if err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}
	response.JSON(w, http.StatusOK, preview)
}

// Place submits an order.
func (h *TradingHandler) Place(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	env, ok := decodeOrderEnvelope(w, r)
	if !ok {
		return
	}
	result, err := h.service.PlaceOrder(r.Context(), userID, env.BrokerID, env.AccountID, env.Order)
	if err != nil {
		fail(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	response.JSON(w, status, result)
}

// Cancel cancels an open order.
func (h *TradingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	brokerID := model.BrokerID(chi.URLParam(r, "brokerID"))
	if !brokerID.Valid() {
		fail(w, core.ErrUnsupportedBroker)
		return
	}
	accountID := chi.URLParam(r, "accountID")
	orderID := chi.URLParam(r, "orderID")

	result, err := h.service.CancelOrder(r.Context(), userID, brokerID, accountID, orderID)
	if err != nil {
		fail(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	response.JSON(w, status, result)
}

// List returns orders across the user's brokers. Supports broker_id and
// status query filters; status is the vendor-neutral group "open", "closed"
// or "all".
func (h *TradingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	brokerID := model.BrokerID(r.URL.Query().Get("broker_id"))
	if brokerID != "" && !brokerID.Valid() {
		fail(w, core.ErrUnsupportedBroker)
		return
	}
	status := r.URL.Query().Get("status")

	orders, err := h.service.ListOrders(r.Context(), userID, brokerID, status)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  len(orders),
	})
}
