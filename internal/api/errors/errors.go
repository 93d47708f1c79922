// Пакет errors — конструкторы стандартных ошибок API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bigkaa/hexabid/costing-module/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeTenantRequired        = "TENANT_REQUIRED"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	CodeInternalError         = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// TenantRequired — 400 арендатор не определён.
func TenantRequired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeTenantRequired, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 устаревшее состояние или недопустимый переход.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// DependencyUnavailable — 503 каталог или подсистема тендеров недоступны.
func DependencyUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeDependencyUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// WriteServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Возвращает true, если ошибка неожиданная (500) и её стоит залогировать.
func WriteServiceError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, service.ErrTenantRequired):
		TenantRequired(w, "Не указан арендатор")
	case errors.Is(err, service.ErrValidation):
		ValidationError(w, detail(err, service.ErrValidation))
	case errors.Is(err, service.ErrNotFound):
		NotFound(w, detail(err, service.ErrNotFound))
	case errors.Is(err, service.ErrConflict):
		Conflict(w, detail(err, service.ErrConflict))
	case errors.Is(err, service.ErrDependencyUnavailable):
		DependencyUnavailable(w, detail(err, service.ErrDependencyUnavailable))
	default:
		InternalError(w, "Внутренняя ошибка сервера")
		return true
	}
	return false
}

// detail убирает из текста ошибки префикс sentinel-ошибки:
// "ошибка валидации: описание обязательно" → "описание обязательно".
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}
