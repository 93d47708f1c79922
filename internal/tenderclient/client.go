// Пакет tenderclient — HTTP-клиент подсистемы тендеров.
// Поддерживает TLS с кастомным CA (CM_TENDER_CA_CERT_PATH).
// Операции: GetTender (GET /api/v1/tenders/{id}) с результатами разбора документации.
package tenderclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

var (
	// ErrNotFound — тендер не найден или принадлежит другому арендатору.
	ErrNotFound = errors.New("тендер не найден")
	// ErrUnavailable — подсистема тендеров недоступна или ответила ошибкой.
	ErrUnavailable = errors.New("подсистема тендеров недоступна")
)

// TokenProvider — функция, возвращающая токен для авторизации запросов.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken возвращает TokenProvider с фиксированным токеном.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// tenderResponse — ответ GET /api/v1/tenders/{id}.
type tenderResponse struct {
	ID                 string              `json:"id"`
	TenantID           string              `json:"tenant_id"`
	Title              string              `json:"title"`
	Value              *decimal.Decimal    `json:"value,omitempty"`
	Currency           string              `json:"currency"`
	Status             string              `json:"status"`
	SubmissionDeadline *time.Time          `json:"submission_deadline,omitempty"`
	ParsingConfidence  *float64            `json:"parsing_confidence,omitempty"`
	ParsedData         *parsedDataResponse `json:"parsed_data,omitempty"`
}

// parsedDataResponse — результат внешнего разбора документации тендера.
type parsedDataResponse struct {
	Category *string              `json:"category,omitempty"`
	Items    []parsedItemResponse `json:"items"`
}

type parsedItemResponse struct {
	ItemNumber     string          `json:"item_number"`
	Description    string          `json:"description"`
	Specifications string          `json:"specifications"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit"`
	HSNCode        string          `json:"hsn_code"`
}

// Client — HTTP-клиент подсистемы тендеров.
type Client struct {
	baseURL       string
	tenantHeader  string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// tokenProvider — функция для получения токена (может быть nil).
func New(baseURL, tenantHeader, caCertPath string, tokenProvider TokenProvider, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата подсистемы тендеров: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат подсистемы тендеров добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	if tenantHeader == "" {
		tenantHeader = "X-Tenant-ID"
	}

	return &Client{
		baseURL:       normalizeURL(baseURL),
		tenantHeader:  tenantHeader,
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "tender_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// BaseURL возвращает базовый URL подсистемы тендеров.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetTender запрашивает тендер арендатора вместе с результатами разбора.
// 404 и тендер чужого арендатора — ErrNotFound; сетевые ошибки и 5xx — ErrUnavailable.
func (c *Client) GetTender(ctx context.Context, tenantID, tenderID string) (*model.Tender, error) {
	reqURL := c.baseURL + "/api/v1/tenders/" + url.PathEscape(tenderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetTender: %w", err)
	}
	req.Header.Set(c.tenantHeader, tenantID)
	req.Header.Set("Accept", "application/json")

	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: получение токена: %v", ErrUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос GetTender: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Подсистема тендеров вернула ошибку",
			slog.Int("status", resp.StatusCode),
			slog.String("tender_id", tenderID),
		)
		return nil, fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: декодирование тендера: %v", ErrUnavailable, err)
	}

	if tr.ID != tenderID || tr.TenantID != tenantID {
		return nil, ErrNotFound
	}

	return tr.toModel(), nil
}

// toModel преобразует ответ в доменную модель.
func (tr *tenderResponse) toModel() *model.Tender {
	t := &model.Tender{
		ID:                 tr.ID,
		TenantID:           tr.TenantID,
		Title:              tr.Title,
		Value:              tr.Value,
		Currency:           tr.Currency,
		Status:             tr.Status,
		SubmissionDeadline: tr.SubmissionDeadline,
		ParsingConfidence:  tr.ParsingConfidence,
	}
	if tr.ParsedData != nil {
		t.Category = tr.ParsedData.Category
		t.ParsedItems = make([]model.ParsedItem, 0, len(tr.ParsedData.Items))
		for _, it := range tr.ParsedData.Items {
			t.ParsedItems = append(t.ParsedItems, model.ParsedItem{
				ItemNumber:     it.ItemNumber,
				Description:    it.Description,
				Specifications: it.Specifications,
				Quantity:       it.Quantity,
				Unit:           it.Unit,
				HSNCode:        it.HSNCode,
			})
		}
	}
	return t
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
