// tenant.go — определение арендатора запроса.
// Порядок: заголовок, поддомен базового домена, claim токена.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/hexabid/costing-module/internal/api/errors"
	"github.com/bigkaa/hexabid/costing-module/internal/tenant"
)

// TenantResolver — middleware, помещающий арендатора в контекст запроса.
type TenantResolver struct {
	header     string
	baseDomain string
	logger     *slog.Logger
}

// NewTenantResolver создаёт middleware определения арендатора.
// header — имя заголовка; baseDomain — пусто, если поддомены не используются.
func NewTenantResolver(header, baseDomain string, logger *slog.Logger) *TenantResolver {
	return &TenantResolver{
		header:     header,
		baseDomain: strings.ToLower(strings.Trim(baseDomain, ".")),
		logger:     logger.With(slog.String("component", "tenant_resolver")),
	}
}

// Middleware возвращает HTTP middleware.
// Без арендатора — 400 TENANT_REQUIRED. Если JWT содержит арендатора,
// отличного от указанного в запросе, — 403.
func (t *TenantResolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := t.resolve(r)

			if claims := ClaimsFromContext(r.Context()); claims != nil && claims.TenantID != "" {
				switch {
				case tenantID == "":
					tenantID = claims.TenantID
				case tenantID != claims.TenantID:
					t.logger.Warn("Арендатор запроса не совпадает с арендатором токена",
						slog.String("tenant_id", tenantID),
						slog.String("token_tenant_id", claims.TenantID),
						slog.String("subject", claims.Subject),
					)
					apierrors.Forbidden(w, "Арендатор запроса не совпадает с арендатором токена")
					return
				}
			}

			if tenantID == "" {
				apierrors.TenantRequired(w, "Не указан арендатор: заголовок "+t.header+" обязателен")
				return
			}

			noteTenant(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), tenantID)))
		})
	}
}

// resolve ищет арендатора в заголовке, затем в поддомене.
func (t *TenantResolver) resolve(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(t.header)); id != "" {
		return id
	}
	if t.baseDomain == "" {
		return ""
	}
	return subdomainTenant(r.Host, t.baseDomain)
}

// subdomainTenant возвращает первую метку хоста вида <tenant>.<baseDomain>.
// acme.bids.example.com при baseDomain bids.example.com → acme.
func subdomainTenant(host, baseDomain string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	prefix, ok := strings.CutSuffix(host, "."+baseDomain)
	if !ok || prefix == "" || strings.Contains(prefix, ".") {
		return ""
	}
	return prefix
}
