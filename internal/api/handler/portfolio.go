// internal/api/handler/portfolio.go
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/newthinker/brokerhub/internal/api/response"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/portfolio"
)

// PortfolioHandler handles aggregated portfolio reads.
type PortfolioHandler struct {
	aggregator *portfolio.Aggregator
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(agg *portfolio.Aggregator) *PortfolioHandler {
	return &PortfolioHandler{aggregator: agg}
}

// Summary returns the cross-broker rollup.
func (h *PortfolioHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	summary, err := h.aggregator.GetSummary(r.Context(), userID)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// Positions returns all positions across brokers.
func (h *PortfolioHandler) Positions(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	positions, errs, err := h.aggregator.GetAllPositions(r.Context(), userID)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"total":     len(positions),
		"errors":    errs,
	})
}

// PositionBySymbol returns the combined holding of one symbol.
func (h *PortfolioHandler) PositionBySymbol(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	symbol := chi.URLParam(r, "symbol")
	pos, err := h.aggregator.GetPositionBySymbol(r.Context(), userID, symbol)
	if err != nil {
		fail(w, err)
		return
	}
	if pos == nil {
		response.Error(w, http.StatusNotFound, core.ErrPositionNotFound)
		return
	}
	response.JSON(w, http.StatusOK, pos)
}

// Balances returns all account balances across brokers.
func (h *PortfolioHandler) Balances(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	balances, errs, err := h.aggregator.GetAllBalances(r.Context(), userID)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"balances": balances,
		"total":    len(balances),
		"errors":   errs,
	})
}

// Quotes returns quotes for a comma-separated symbol list.
func (h *PortfolioHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := user(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		fail(w, core.ErrBadRequest)
		return
	}
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	quotes, err := h.aggregator.GetQuotes(r.Context(), userID, symbols)
	if err != nil {
		fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"quotes": quotes,
		"total":  len(quotes),
	})
}
