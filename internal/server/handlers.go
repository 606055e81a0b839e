package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bobmcallan/quorum/internal/models"
	"github.com/bobmcallan/quorum/internal/services/market"
)

// handleAnalyze handles POST /api/analyze.
// 200 when at least one ticker succeeded, 422 when every ticker failed.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.AnalysisRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Code:    "validation_failed",
			Details: validationErrors(err),
		})
		return
	}

	resp, err := s.app.AnalysisService.Analyze(r.Context(), req)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}

	status := http.StatusOK
	if len(resp.Results) == 0 && len(resp.Failures) > 0 {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, resp)
}

// handleMarketSentiment handles GET /api/market-sentiment?currency=USD&refresh=false.
func (s *Server) handleMarketSentiment(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	refresh := false
	if raw := q.Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, "refresh must be true or false", "invalid_request")
			return
		}
		refresh = v
	}

	resp, err := s.app.MarketService.GetMarketSentiment(r.Context(), q.Get("currency"), refresh)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// refreshRequest is the body of the refresh-buy and refresh-sell endpoints
type refreshRequest struct {
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

func (s *Server) decodeRefresh(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	// An empty body means the default currency
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if !DecodeJSON(w, r, &req) {
			return "", false
		}
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Code:    "validation_failed",
			Details: validationErrors(err),
		})
		return "", false
	}
	return req.Currency, true
}

// handleRefreshBuy handles POST /api/market-sentiment/refresh-buy.
func (s *Server) handleRefreshBuy(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	currency, ok := s.decodeRefresh(w, r)
	if !ok {
		return
	}
	list, err := s.app.MarketService.RefreshBuy(r.Context(), currency)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// handleRefreshSell handles POST /api/market-sentiment/refresh-sell.
func (s *Server) handleRefreshSell(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	currency, ok := s.decodeRefresh(w, r)
	if !ok {
		return
	}
	list, err := s.app.MarketService.RefreshSell(r.Context(), currency)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) writeMarketError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, market.ErrUnknownCurrency) {
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "unsupported_currency")
		return
	}
	s.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("Market sentiment request failed")
	WriteErrorWithCode(w, http.StatusBadGateway, "Market data unavailable", models.ErrorKind(err))
}
