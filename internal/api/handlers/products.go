// products.go — обработчик POST /api/v1/products/match.
package handlers

import (
	"net/http"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
)

// MatchProducts — подбор продуктов каталога по описанию позиции.
func (h *APIHandler) MatchProducts(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	results, err := h.matcher.Match(r.Context(), tenantID(r), matching.Query{
		Description: req.Description,
		SpecText:    req.SpecText,
		Category:    req.Category,
	}, req.Limit)
	if err != nil {
		h.writeServiceError(w, r, "products.match", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(toMatchResults(results)))
}
