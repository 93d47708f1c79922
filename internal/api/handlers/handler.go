// handler.go — основной обработчик API Costing Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/hexabid/costing-module/internal/api/errors"
	"github.com/bigkaa/hexabid/costing-module/internal/service"
	"github.com/bigkaa/hexabid/costing-module/internal/tenant"
)

// maxBodyBytes — предельный размер тела JSON-запроса.
const maxBodyBytes = 1 << 20

// APIHandler — основной обработчик API Costing Module.
type APIHandler struct {
	health     *HealthHandler
	ledger     *service.BOQLedgerService
	generator  *service.BOQGenerator
	matcher    *service.ProductMatchService
	dispatcher *service.RFQDispatcher
	quotes     *service.QuoteReconciler
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	ledger *service.BOQLedgerService,
	generator *service.BOQGenerator,
	matcher *service.ProductMatchService,
	dispatcher *service.RFQDispatcher,
	quotes *service.QuoteReconciler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		ledger:     ledger,
		generator:  generator,
		matcher:    matcher,
		dispatcher: dispatcher,
		quotes:     quotes,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// tenantID возвращает арендатора запроса. Пустая строка даёт
// ErrTenantRequired в сервисном слое.
func tenantID(r *http.Request) string {
	id, _ := tenant.FromContext(r.Context())
	return id
}

// writeServiceError пишет ответ для ошибки сервиса; неожиданные ошибки логируются.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if apierrors.WriteServiceError(w, err) {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// decodeJSON разбирает тело запроса в v. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return false
	}
	return true
}

// decodeOptionalJSON — как decodeJSON, но пустое тело допустимо.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return false
	}
	return true
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
