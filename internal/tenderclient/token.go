// token.go — сервисный токен для запросов к подсистеме тендеров.
// Client Credentials flow через OIDC token endpoint (например, Keycloak:
// {base}/realms/{realm}/protocol/openid-connect/token).
package tenderclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenExpiryDelta — токен обновляется заранее, за это время до истечения.
const tokenExpiryDelta = 30 * time.Second

// ClientCredentials возвращает TokenProvider, получающий токен через Client Credentials flow.
// Токен кэшируется и обновляется за 30 секунд до истечения.
// httpClient может быть nil — используется стандартный клиент с таймаутом 10s.
func ClientCredentials(tokenURL, clientID, clientSecret string, scopes []string, httpClient *http.Client, logger *slog.Logger) TokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// Контекст источника задаёт только HTTP-клиент для обращений к token endpoint
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	source := oauth2.ReuseTokenSourceWithExpiry(nil, &loggingSource{
		source: cfg.TokenSource(ctx),
		logger: logger.With(slog.String("component", "tender_token")),
	}, tokenExpiryDelta)

	return func(context.Context) (string, error) {
		tok, err := source.Token()
		if err != nil {
			return "", fmt.Errorf("получение сервисного токена: %w", err)
		}
		return tok.AccessToken, nil
	}
}

// loggingSource пишет в журнал каждое обращение к token endpoint.
type loggingSource struct {
	source oauth2.TokenSource
	logger *slog.Logger
}

func (s *loggingSource) Token() (*oauth2.Token, error) {
	tok, err := s.source.Token()
	if err != nil {
		s.logger.Warn("Ошибка получения сервисного токена", slog.String("error", err.Error()))
		return nil, err
	}
	s.logger.Debug("Сервисный токен обновлён", slog.Time("expires_at", tok.Expiry))
	return tok, nil
}
