// quotes.go — обработчики коммерческих предложений поставщиков.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// RecordQuote — POST /api/v1/vendor-quotes.
// Повтор того же номера КП от поставщика по тому же RFQ возвращает уже записанное КП.
func (h *APIHandler) RecordQuote(w http.ResponseWriter, r *http.Request) {
	var req recordQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.quotes.RecordQuote(r.Context(), tenantID(r), req.toInput())
	if err != nil {
		h.writeServiceError(w, r, "quotes.record", err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuoteResponse(q))
}

// GetQuote — GET /api/v1/vendor-quotes/{id}.
func (h *APIHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.quotes.Get(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "quotes.get", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

// ListQuotes — GET /api/v1/vendor-quotes/tender/{tenderId}.
func (h *APIHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.ListForTender(r.Context(), tenantID(r), chi.URLParam(r, "tenderId"))
	if err != nil {
		h.writeServiceError(w, r, "quotes.list", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(toQuoteResponses(quotes)))
}

// ListRFQQuotes — GET /api/v1/rfq/{id}/quotes.
func (h *APIHandler) ListRFQQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.ListForRFQ(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "quotes.list_rfq", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(toQuoteResponses(quotes)))
}

// SelectQuote — POST /api/v1/vendor-quotes/{id}/select.
func (h *APIHandler) SelectQuote(w http.ResponseWriter, r *http.Request) {
	var req selectQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.quotes.SelectQuote(r.Context(), tenantID(r), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.writeServiceError(w, r, "quotes.select", err)
		return
	}

	rejected := result.Rejected
	if rejected == nil {
		rejected = []string{}
	}
	writeJSON(w, http.StatusOK, selectQuoteResponse{
		Quote:            toQuoteResponse(result.Quote),
		Items:            toBOQItemResponses(result.Items),
		RejectedQuoteIDs: rejected,
	})
}

// ReviewQuote — POST /api/v1/vendor-quotes/{id}/review.
func (h *APIHandler) ReviewQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.quotes.MarkUnderReview(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "quotes.review", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

// RejectQuote — POST /api/v1/vendor-quotes/{id}/reject.
func (h *APIHandler) RejectQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.quotes.Reject(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "quotes.reject", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func toQuoteResponses(quotes []*model.VendorQuote) []quoteResponse {
	out := make([]quoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, toQuoteResponse(q))
	}
	return out
}
