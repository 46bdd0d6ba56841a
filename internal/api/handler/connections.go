// Package handler implements the HTTP handlers for the public API surface:
// connection lifecycle, aggregated portfolio reads and trading.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/api/middleware"
	"github.com/newthinker/brokerhub/internal/api/response"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/model"
)

// httpStatus maps core taxonomy errors to HTTP status codes.
func httpStatus(err error) int {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		return http.StatusInternalServerError
	}
	switch coreErr.Code {
	case core.ErrBadRequest.Code, core.ErrInvalidCallback.Code, core.ErrConfigInvalid.Code:
		return http.StatusBadRequest
	case core.ErrUserRequired.Code:
		return http.StatusUnauthorized
	case core.ErrStateMismatch.Code:
		return http.StatusForbidden
	case core.ErrConnectionNotFound.Code, core.ErrNoPendingConnection.Code, core.ErrNoActiveConnection.Code:
		return http.StatusNotFound
	case core.ErrStateExpiredOrMissing.Code:
		return http.StatusGone
	case core.ErrTokensUnavailable.Code:
		return http.StatusConflict
	case core.ErrUnsupportedBroker.Code:
		return http.StatusUnprocessableEntity
	case core.ErrVendorRejected.Code:
		return http.StatusBadGateway
	case core.ErrVendorUnavailable.Code, core.ErrCacheUnavailable.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	response.Error(w, httpStatus(err), err)
}

func user(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, core.ErrUserRequired)
	}
	return id, ok
}

// ConnectionsHandler handles connection lifecycle requests.
type ConnectionsHandler struct {
	manager *connection.Manager
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(manager *connection.Manager) *ConnectionsHandler {
	return &ConnectionsHandler{manager: manager}
}

type initiateRequest struct {
	BrokerID    model.BrokerID `json:"broker_id"`
	RedirectURI string         `json:"redirect_uri"`
}

// Initiate starts the OAuth handshake for a broker.
func (h *ConnectionsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}
	if !req.BrokerID.Valid() {
		fail(w, core.ErrUnsupportedBroker)
		return
	}

	result, err := h.manager.Initiate(r.Context(), userID, req.BrokerID, req.RedirectURI)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

type completeRequest struct {
	State    string            `json:"state"`
	Callback map[string]string `json:"callback"`
}

// Complete finishes the OAuth handshake with the callback payload.
func (h *ConnectionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}
	if req.State == "" {
		fail(w, core.ErrStateExpiredOrMissing)
		return
	}

	conn, err := h.manager.Complete(r.Context(), userID, req.State, adapter.CallbackData(req.Callback))
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, conn)
}

// List returns the user's connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	conns, err := h.manager.List(r.Context(), userID)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"connections": conns,
		"total":       len(conns),
	})
}

// Get returns one connection.
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}
	conn, err := h.manager.Get(r.Context(), userID, id)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, conn)
}

// Refresh refreshes the connection's tokens.
func (h *ConnectionsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}
	conn, err := h.manager.Refresh(r.Context(), userID, id)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, conn)
}

// Disconnect revokes a connection.
func (h *ConnectionsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}
	if err := h.manager.Disconnect(r.Context(), userID, id); err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"disconnected": true})
}

// ListAccounts returns broker accounts under the user's active connections.
func (h *ConnectionsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	brokerID := model.BrokerID(r.URL.Query().Get("broker_id"))
	if brokerID != "" && !brokerID.Valid() {
		fail(w, core.ErrUnsupportedBroker)
		return
	}
	accounts, err := h.manager.ListAccounts(r.Context(), userID, brokerID)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"total":    len(accounts),
	})
}
