// boq.go — обработчики ведомости BOQ тендера.
package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ListBOQ — GET /api/v1/boq/tender/{tenderId}.
func (h *APIHandler) ListBOQ(w http.ResponseWriter, r *http.Request) {
	view, err := h.ledger.ListForTender(r.Context(), tenantID(r), chi.URLParam(r, "tenderId"))
	if err != nil {
		h.writeServiceError(w, r, "boq.list", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(view))
}

// AppendBOQItem — POST /api/v1/boq/tender/{tenderId}/items.
func (h *APIHandler) AppendBOQItem(w http.ResponseWriter, r *http.Request) {
	var req boqItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.ledger.Append(r.Context(), tenantID(r), chi.URLParam(r, "tenderId"), req.toInput())
	if err != nil {
		h.writeServiceError(w, r, "boq.append", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBOQItemResponse(item))
}

// UpdateBOQItem — PATCH /api/v1/boq/items/{id}.
func (h *APIHandler) UpdateBOQItem(w http.ResponseWriter, r *http.Request) {
	var req boqItemPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.ledger.Update(r.Context(), tenantID(r), chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		h.writeServiceError(w, r, "boq.update", err)
		return
	}
	writeJSON(w, http.StatusOK, toBOQItemResponse(item))
}

// RemoveBOQItem — DELETE /api/v1/boq/items/{id}.
func (h *APIHandler) RemoveBOQItem(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Remove(r.Context(), tenantID(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "boq.remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderBOQ — PUT /api/v1/boq/tender/{tenderId}/order.
func (h *APIHandler) ReorderBOQ(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items, err := h.ledger.Reorder(r.Context(), tenantID(r), chi.URLParam(r, "tenderId"), req.ItemIDs, req.ExpectedVersion)
	if err != nil {
		h.writeServiceError(w, r, "boq.reorder", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(toBOQItemResponses(items)))
}

// GenerateBOQ — POST /api/v1/boq/tender/{tenderId}/generate.
func (h *APIHandler) GenerateBOQ(w http.ResponseWriter, r *http.Request) {
	result, err := h.generator.Generate(r.Context(), tenantID(r), chi.URLParam(r, "tenderId"))
	if err != nil {
		h.writeServiceError(w, r, "boq.generate", err)
		return
	}

	reasons := result.SkipReasons
	if reasons == nil {
		reasons = []string{}
	}
	writeJSON(w, http.StatusOK, generateResponse{
		ItemsCreated:       result.ItemsCreated,
		Items:              toBOQItemResponses(result.Items),
		Skipped:            result.Skipped,
		SkipReasons:        reasons,
		CatalogUnavailable: result.CatalogUnavailable,
	})
}

// ExportBOQ — GET /api/v1/boq/tender/{tenderId}/export.
// Файл собирается в памяти целиком до записи заголовков ответа.
func (h *APIHandler) ExportBOQ(w http.ResponseWriter, r *http.Request) {
	tenderID := chi.URLParam(r, "tenderId")

	var buf bytes.Buffer
	if err := h.ledger.Export(r.Context(), tenantID(r), tenderID, &buf); err != nil {
		h.writeServiceError(w, r, "boq.export", err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "boq-"+tenderID+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
