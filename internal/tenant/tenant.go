// Пакет tenant — идентификатор арендатора в контексте запроса.
package tenant

import (
	"context"
	"strings"
)

type contextKey struct{}

// WithTenant возвращает контекст с идентификатором арендатора.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext извлекает идентификатор арендатора.
// ok == false, если арендатор не задан или пуст.
func FromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(contextKey{}).(string)
	id = strings.TrimSpace(id)
	return id, id != ""
}
