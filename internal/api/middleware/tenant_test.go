package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/hexabid/costing-module/internal/tenant"
)

// TestTenantResolver проверяет определение арендатора по заголовку,
// поддомену и claim токена.
func TestTenantResolver(t *testing.T) {
	resolver := NewTenantResolver("X-Tenant-ID", "bids.example.com", testLogger())

	tests := []struct {
		name        string
		host        string
		header      string
		claims      *AuthClaims
		wantStatus  int
		wantTenant  string
		wantErrCode string
	}{
		{"заголовок", "api.local", "acme", nil, http.StatusOK, "acme", ""},
		{"поддомен", "acme.bids.example.com", "", nil, http.StatusOK, "acme", ""},
		{"поддомен с портом", "globex.bids.example.com:8010", "", nil, http.StatusOK, "globex", ""},
		{"заголовок важнее поддомена", "acme.bids.example.com", "globex", nil, http.StatusOK, "globex", ""},
		{"вложенный поддомен не считается", "a.b.bids.example.com", "", nil, http.StatusBadRequest, "", "TENANT_REQUIRED"},
		{"чужой домен", "acme.other.com", "", nil, http.StatusBadRequest, "", "TENANT_REQUIRED"},
		{"claim токена", "api.local", "", &AuthClaims{Subject: "u1", TenantID: "acme"}, http.StatusOK, "acme", ""},
		{"claim совпадает", "api.local", "acme", &AuthClaims{Subject: "u1", TenantID: "acme"}, http.StatusOK, "acme", ""},
		{"claim расходится", "api.local", "globex", &AuthClaims{Subject: "u1", TenantID: "acme"}, http.StatusForbidden, "", "FORBIDDEN"},
		{"токен без арендатора", "api.local", "", &AuthClaims{Subject: "u1"}, http.StatusBadRequest, "", "TENANT_REQUIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := resolver.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = tenant.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/rfq/r1", nil)
			req.Host = tt.host
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			if tt.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, tt.claims))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got != tt.wantTenant {
				t.Errorf("арендатор = %q, ожидался %q", got, tt.wantTenant)
			}
			if tt.wantErrCode != "" {
				var body struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("ошибка разбора тела: %v", err)
				}
				if body.Error.Code != tt.wantErrCode {
					t.Errorf("code = %q, ожидался %q", body.Error.Code, tt.wantErrCode)
				}
			}
		})
	}
}

// TestTenantResolver_NoBaseDomain проверяет, что без базового домена
// поддомены игнорируются.
func TestTenantResolver_NoBaseDomain(t *testing.T) {
	resolver := NewTenantResolver("X-Tenant-ID", "", testLogger())
	handler := resolver.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rfq/r1", nil)
	req.Host = "acme.bids.example.com"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400", rec.Code)
	}
}

// TestRequestLogger_LevelsAndTenant проверяет уровень записи по статусу
// и арендатора в логе.
func TestRequestLogger_LevelsAndTenant(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"успех", http.StatusOK, "INFO"},
		{"ошибка клиента", http.StatusConflict, "WARN"},
		{"ошибка сервера", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			resolver := NewTenantResolver("X-Tenant-ID", "", testLogger())

			inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			})
			handler := RequestLogger(logger)(resolver.Middleware()(inner))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/rfq", nil)
			req.Header.Set("X-Tenant-ID", "acme")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("ошибка разбора лога: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, ожидался %s", entry["level"], tt.wantLevel)
			}
			if entry["tenant_id"] != "acme" {
				t.Errorf("tenant_id = %v", entry["tenant_id"])
			}
			if entry["bytes"] != float64(2) {
				t.Errorf("bytes = %v", entry["bytes"])
			}
			if !strings.Contains(buf.String(), `"path":"/api/v1/rfq"`) {
				t.Errorf("путь не записан: %s", buf.String())
			}
		})
	}
}

// TestNormalizePath проверяет замену идентификаторов в путях метрик.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/rfq", "/api/v1/rfq"},
		{"/api/v1/rfq/0b8e9c54-1111-4a2b-9c3d-2f6a7b8c9d0e/send", "/api/v1/rfq/{id}/send"},
		{"/api/v1/boq/tender/T-2024-17/items", "/api/v1/boq/tender/{id}/items"},
		{"/api/v1/boq/items/abc", "/api/v1/boq/items/{id}"},
		{"/api/v1/vendor-quotes/q1/select", "/api/v1/vendor-quotes/{id}/select"},
		{"/api/v1/products/match", "/api/v1/products/match"},
		{"/api/v1/rfq/r1/quotes", "/api/v1/rfq/{id}/quotes"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидался %q", tt.path, got, tt.want)
		}
	}
}
