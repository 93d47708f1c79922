// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/lifecycle"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

var (
	// ErrValidation — некорректные входные данные; запись не выполнялась.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден или принадлежит другому арендатору.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — устаревшее состояние или недопустимый переход.
	ErrConflict = errors.New("конфликт состояния")
	// ErrDependencyUnavailable — каталог или подсистема тендеров недоступны.
	ErrDependencyUnavailable = errors.New("внешняя зависимость недоступна")
	// ErrTenantRequired — не указан арендатор.
	ErrTenantRequired = errors.New("не указан арендатор")
)

// Единые сообщения «не найдено» по видам сущностей.
const (
	msgItemNotFound   = "позиция BOQ не найдена"
	msgTenderNotFound = "тендер не найден"
	msgRFQNotFound    = "RFQ не найден"
	msgQuoteNotFound  = "КП не найдено"
	msgVendorNotFound = "поставщик не найден"
)

// validationf оборачивает ErrValidation сообщением.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// conflictf оборачивает ErrConflict сообщением.
func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// notFound оборачивает ErrNotFound единым сообщением.
func notFound(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса.
// notFoundMsg — сообщение для ErrNotFound по виду сущности.
func mapRepoError(err error, notFoundMsg string) error {
	var te *lifecycle.TransitionError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound(notFoundMsg)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrMissingTenant):
		return ErrTenantRequired
	case errors.As(err, &te):
		return fmt.Errorf("%w: %s", ErrConflict, te.Message)
	default:
		return err
	}
}

// requireTenant проверяет, что арендатор указан.
func requireTenant(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return nil
}
