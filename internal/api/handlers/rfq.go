// rfq.go — обработчики запросов коммерческих предложений (RFQ).
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/api/middleware"
	"github.com/bigkaa/hexabid/costing-module/internal/service"
)

// CreateRFQ — POST /api/v1/rfq. Автор берётся из sub токена, если он есть.
func (h *APIHandler) CreateRFQ(w http.ResponseWriter, r *http.Request) {
	var req createRFQRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.CreateRFQInput{
		TenderID:  req.TenderID,
		ItemIDs:   req.BOQItemIDs,
		VendorIDs: req.VendorIDs,
		Subject:   req.Subject,
		Message:   req.Message,
		Deadline:  req.ResponseDeadline,
	}
	if sub := middleware.SubjectFromContext(r.Context()); sub != "" {
		in.CreatedBy = &sub
	}

	rfq, err := h.dispatcher.Create(r.Context(), tenantID(r), in)
	if err != nil {
		h.writeServiceError(w, r, "rfq.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRFQResponse(rfq))
}

// GetRFQ — GET /api/v1/rfq/{id}.
func (h *APIHandler) GetRFQ(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.dispatcher.Get(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "rfq.get", err)
		return
	}
	writeJSON(w, http.StatusOK, toRFQResponse(rfq))
}

// ListRFQs — GET /api/v1/rfq/tender/{tenderId}.
func (h *APIHandler) ListRFQs(w http.ResponseWriter, r *http.Request) {
	rfqs, err := h.dispatcher.ListForTender(r.Context(), tenantID(r), chi.URLParam(r, "tenderId"))
	if err != nil {
		h.writeServiceError(w, r, "rfq.list", err)
		return
	}

	items := make([]rfqResponse, 0, len(rfqs))
	for _, rfq := range rfqs {
		items = append(items, toRFQResponse(rfq))
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}

// SendRFQ — POST /api/v1/rfq/{id}/send.
func (h *APIHandler) SendRFQ(w http.ResponseWriter, r *http.Request) {
	var req sendRFQRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rfq, err := h.dispatcher.Send(r.Context(), tenantID(r), chi.URLParam(r, "id"), service.SendInput{
		Channels:  req.Channels,
		VendorIDs: req.VendorIDs,
	})
	if err != nil {
		h.writeServiceError(w, r, "rfq.send", err)
		return
	}
	writeJSON(w, http.StatusOK, toRFQResponse(rfq))
}

// UpdateDeliveryStatus — POST /api/v1/rfq/{id}/delivery-status.
// Вызывается транспортом доставки после попытки отправки.
func (h *APIHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req deliveryStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rfq, err := h.dispatcher.UpdateDeliveryStatus(r.Context(), tenantID(r), chi.URLParam(r, "id"),
		req.VendorID, req.Channel, req.Status, req.Error)
	if err != nil {
		h.writeServiceError(w, r, "rfq.delivery_status", err)
		return
	}
	writeJSON(w, http.StatusOK, toRFQResponse(rfq))
}

// CloseRFQ — POST /api/v1/rfq/{id}/close.
func (h *APIHandler) CloseRFQ(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.dispatcher.Close(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "rfq.close", err)
		return
	}
	writeJSON(w, http.StatusOK, toRFQResponse(rfq))
}

// ReopenRFQ — POST /api/v1/rfq/{id}/reopen. Тело необязательно.
func (h *APIHandler) ReopenRFQ(w http.ResponseWriter, r *http.Request) {
	var req reopenRFQRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	rfq, err := h.dispatcher.Reopen(r.Context(), tenantID(r), chi.URLParam(r, "id"), req.ResponseDeadline)
	if err != nil {
		h.writeServiceError(w, r, "rfq.reopen", err)
		return
	}
	writeJSON(w, http.StatusOK, toRFQResponse(rfq))
}
