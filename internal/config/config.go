// Пакет config — загрузка и валидация конфигурации Costing Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Драйверы хранилища.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Области видимости каталога.
const (
	CatalogScopeTenant = "tenant"
	CatalogScopeShared = "shared"
)

// Config содержит все параметры конфигурации Costing Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8010-8019)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище ---

	// Драйвер хранилища: postgres или memory
	StoreDriver string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений (0 — по умолчанию pgxpool)
	DBMaxConns int32

	// --- Подсистема тендеров ---

	// Базовый URL сервиса тендеров
	TenderServiceURL string
	// Сервисный токен для запросов к подсистеме тендеров (опционально)
	TenderServiceToken string
	// OIDC token endpoint для Client Credentials flow (опционально, вместо статического токена)
	TenderTokenURL string
	// Client ID сервисной учётной записи
	TenderClientID string
	// Client Secret сервисной учётной записи
	TenderClientSecret string
	// Путь к CA-сертификату сервиса тендеров (опционально)
	TenderCACertPath string
	// Время жизни записи в кэше заголовков тендеров
	TenderCacheTTL time.Duration
	// Размер кэша заголовков тендеров
	TenderCacheSize int

	// --- Каталог и сопоставление ---

	// Время жизни снимка каталога арендатора в кэше
	CatalogCacheTTL time.Duration
	// Количество арендаторов в кэше каталога
	CatalogCacheSize int
	// Область видимости каталога: tenant или shared
	CatalogScope string
	// Порог уверенности для автоматического сопоставления при генерации BOQ
	MatchThreshold float64
	// Максимальное количество результатов сопоставления
	MatchLimit int
	// Ставка GST по умолчанию для новых позиций
	DefaultGSTPercent float64

	// --- Арендаторы ---

	// Заголовок с идентификатором арендатора
	TenantHeader string
	// Базовый домен для определения арендатора по поддомену (пусто — выключено)
	TenantBaseDomain string

	// --- JWT (fallback-валидация, основная на API Gateway) ---

	// URL JWKS endpoint (пусто — проверка JWT выключена)
	JWTJWKSURL string
	// Issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Claim с идентификатором арендатора
	JWTTenantClaim string

	// --- Доставка RFQ ---

	// Адрес Redis для очереди доставки (пусто — доставка не выполняется)
	RedisAddr string
	// Пароль Redis
	RedisPassword string
	// Номер базы Redis
	RedisDB int
	// Имя очереди asynq
	DeliveryQueue string
	// Каналы рассылки, разрешённые в этой установке
	DeliveryChannels []string

	// --- Фоновые задачи ---

	// Включено ли фоновое закрытие RFQ с истёкшим сроком ответа
	RFQExpiryEnabled bool
	// Интервал закрытия RFQ с истёкшим сроком ответа
	RFQExpiryInterval time.Duration
	// Группа сервиса в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CM_PORT — порт HTTP-сервера (по умолчанию 8010)
	cfg.Port, err = getEnvInt("CM_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port < 8010 || cfg.Port > 8019 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 8010-8019", cfg.Port)
	}

	// CM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	// CM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище ---

	// CM_STORE_DRIVER — драйвер хранилища (по умолчанию postgres)
	cfg.StoreDriver = getEnvDefault("CM_STORE_DRIVER", StoreDriverPostgres)
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("CM_STORE_DRIVER: недопустимое значение %q, допустимые: postgres, memory", cfg.StoreDriver)
	}

	// --- PostgreSQL ---

	if cfg.StoreDriver == StoreDriverPostgres {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// --- Подсистема тендеров ---

	// CM_TENDER_SERVICE_URL — обязательный
	cfg.TenderServiceURL, err = getEnvRequired("CM_TENDER_SERVICE_URL")
	if err != nil {
		return nil, err
	}
	cfg.TenderServiceURL = strings.TrimRight(cfg.TenderServiceURL, "/")

	// CM_TENDER_SERVICE_TOKEN — сервисный токен (опционально)
	cfg.TenderServiceToken = getEnvDefault("CM_TENDER_SERVICE_TOKEN", "")

	// CM_TENDER_TOKEN_URL, CM_TENDER_CLIENT_ID, CM_TENDER_CLIENT_SECRET —
	// сервисная учётная запись (Client Credentials flow, опционально)
	cfg.TenderTokenURL = getEnvDefault("CM_TENDER_TOKEN_URL", "")
	cfg.TenderClientID = getEnvDefault("CM_TENDER_CLIENT_ID", "")
	cfg.TenderClientSecret = getEnvDefault("CM_TENDER_CLIENT_SECRET", "")
	if cfg.TenderTokenURL != "" && (cfg.TenderClientID == "" || cfg.TenderClientSecret == "") {
		return nil, fmt.Errorf("CM_TENDER_TOKEN_URL задан: требуются CM_TENDER_CLIENT_ID и CM_TENDER_CLIENT_SECRET")
	}

	// CM_TENDER_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.TenderCACertPath = getEnvDefault("CM_TENDER_CA_CERT_PATH", "")

	// CM_TENDER_CACHE_TTL — время жизни кэша тендеров (по умолчанию 30s)
	cfg.TenderCacheTTL, err = getEnvDuration("CM_TENDER_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_TENDER_CACHE_TTL: %w", err)
	}

	// CM_TENDER_CACHE_SIZE — размер кэша тендеров (по умолчанию 1000)
	cfg.TenderCacheSize, err = getEnvInt("CM_TENDER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CM_TENDER_CACHE_SIZE: %w", err)
	}
	if cfg.TenderCacheSize < 1 {
		return nil, fmt.Errorf("CM_TENDER_CACHE_SIZE: значение %d должно быть положительным", cfg.TenderCacheSize)
	}

	// --- Каталог и сопоставление ---

	// CM_CATALOG_CACHE_TTL — время жизни снимка каталога (по умолчанию 60s)
	cfg.CatalogCacheTTL, err = getEnvDuration("CM_CATALOG_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_CATALOG_CACHE_TTL: %w", err)
	}

	// CM_CATALOG_CACHE_SIZE — количество арендаторов в кэше (по умолчанию 256)
	cfg.CatalogCacheSize, err = getEnvInt("CM_CATALOG_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("CM_CATALOG_CACHE_SIZE: %w", err)
	}
	if cfg.CatalogCacheSize < 1 {
		return nil, fmt.Errorf("CM_CATALOG_CACHE_SIZE: значение %d должно быть положительным", cfg.CatalogCacheSize)
	}

	// CM_CATALOG_SCOPE — область видимости каталога (по умолчанию tenant)
	cfg.CatalogScope = getEnvDefault("CM_CATALOG_SCOPE", CatalogScopeTenant)
	if cfg.CatalogScope != CatalogScopeTenant && cfg.CatalogScope != CatalogScopeShared {
		return nil, fmt.Errorf("CM_CATALOG_SCOPE: недопустимое значение %q, допустимые: tenant, shared", cfg.CatalogScope)
	}

	// CM_MATCH_THRESHOLD — порог уверенности (по умолчанию 0.5)
	cfg.MatchThreshold, err = getEnvFloat("CM_MATCH_THRESHOLD", 0.5)
	if err != nil {
		return nil, fmt.Errorf("CM_MATCH_THRESHOLD: %w", err)
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 1 {
		return nil, fmt.Errorf("CM_MATCH_THRESHOLD: значение %v вне допустимого диапазона 0-1", cfg.MatchThreshold)
	}

	// CM_MATCH_LIMIT — число результатов сопоставления (по умолчанию 10)
	cfg.MatchLimit, err = getEnvInt("CM_MATCH_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("CM_MATCH_LIMIT: %w", err)
	}
	if cfg.MatchLimit < 1 || cfg.MatchLimit > 100 {
		return nil, fmt.Errorf("CM_MATCH_LIMIT: значение %d вне допустимого диапазона 1-100", cfg.MatchLimit)
	}

	// CM_DEFAULT_GST_PERCENT — GST по умолчанию (по умолчанию 18)
	cfg.DefaultGSTPercent, err = getEnvFloat("CM_DEFAULT_GST_PERCENT", 18)
	if err != nil {
		return nil, fmt.Errorf("CM_DEFAULT_GST_PERCENT: %w", err)
	}
	if cfg.DefaultGSTPercent < 0 || cfg.DefaultGSTPercent > 100 {
		return nil, fmt.Errorf("CM_DEFAULT_GST_PERCENT: значение %v вне допустимого диапазона 0-100", cfg.DefaultGSTPercent)
	}

	// --- Арендаторы ---

	// CM_TENANT_HEADER — заголовок арендатора (по умолчанию X-Tenant-ID)
	cfg.TenantHeader = getEnvDefault("CM_TENANT_HEADER", "X-Tenant-ID")

	// CM_TENANT_BASE_DOMAIN — базовый домен для поддоменов (опционально)
	cfg.TenantBaseDomain = strings.ToLower(strings.Trim(getEnvDefault("CM_TENANT_BASE_DOMAIN", ""), "."))

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("CM_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("CM_JWT_ISSUER", "")
	cfg.JWTTenantClaim = getEnvDefault("CM_JWT_TENANT_CLAIM", "tenant_id")

	// --- Доставка RFQ ---

	// CM_REDIS_ADDR — адрес Redis (опционально)
	cfg.RedisAddr = getEnvDefault("CM_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("CM_REDIS_PASSWORD", "")

	// CM_REDIS_DB — номер базы Redis (по умолчанию 0)
	cfg.RedisDB, err = getEnvInt("CM_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("CM_REDIS_DB: %w", err)
	}
	if cfg.RedisDB < 0 || cfg.RedisDB > 15 {
		return nil, fmt.Errorf("CM_REDIS_DB: значение %d вне допустимого диапазона 0-15", cfg.RedisDB)
	}

	// CM_DELIVERY_QUEUE — очередь asynq (по умолчанию rfq_delivery)
	cfg.DeliveryQueue = getEnvDefault("CM_DELIVERY_QUEUE", "rfq_delivery")

	// CM_DELIVERY_CHANNELS — разрешённые каналы (по умолчанию email,whatsapp)
	cfg.DeliveryChannels = parseCSV(getEnvDefault("CM_DELIVERY_CHANNELS", "email,whatsapp"))
	if len(cfg.DeliveryChannels) == 0 {
		return nil, fmt.Errorf("CM_DELIVERY_CHANNELS: нужен хотя бы один канал")
	}
	for _, ch := range cfg.DeliveryChannels {
		if ch != "email" && ch != "whatsapp" {
			return nil, fmt.Errorf("CM_DELIVERY_CHANNELS: недопустимый канал %q, допустимые: email, whatsapp", ch)
		}
	}

	// --- Фоновые задачи ---

	// CM_RFQ_EXPIRY_ENABLED — фоновое закрытие RFQ (по умолчанию true)
	cfg.RFQExpiryEnabled, err = getEnvBool("CM_RFQ_EXPIRY_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("CM_RFQ_EXPIRY_ENABLED: %w", err)
	}

	// CM_RFQ_EXPIRY_INTERVAL — интервал закрытия просроченных RFQ (по умолчанию 1m)
	cfg.RFQExpiryInterval, err = getEnvDuration("CM_RFQ_EXPIRY_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_RFQ_EXPIRY_INTERVAL: %w", err)
	}
	if cfg.RFQExpiryInterval <= 0 {
		return nil, fmt.Errorf("CM_RFQ_EXPIRY_INTERVAL: значение %v должно быть положительным", cfg.RFQExpiryInterval)
	}

	// CM_DEPHEALTH_GROUP — группа в метриках зависимостей (по умолчанию hexabid)
	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "hexabid")

	// CM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase читает параметры PostgreSQL; вызывается только для драйвера postgres.
func loadDatabase(cfg *Config) error {
	var err error

	// CM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CM_DB_HOST")
	if err != nil {
		return err
	}

	// CM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CM_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("CM_DB_PORT: %w", err)
	}

	// CM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CM_DB_NAME")
	if err != nil {
		return err
	}

	// CM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CM_DB_USER")
	if err != nil {
		return err
	}

	// CM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CM_DB_PASSWORD")
	if err != nil {
		return err
	}

	// CM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("CM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CM_DB_MAX_CONNS — размер пула (по умолчанию 0, решает pgxpool)
	maxConns, err := getEnvInt("CM_DB_MAX_CONNS", 0)
	if err != nil {
		return fmt.Errorf("CM_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 0 || maxConns > 1000 {
		return fmt.Errorf("CM_DB_MAX_CONNS: значение %d вне допустимого диапазона 0-1000", maxConns)
	}
	cfg.DBMaxConns = int32(maxConns)

	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL подключения для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SharedCatalog сообщает, включены ли общие продукты в каталог арендатора.
func (c *Config) SharedCatalog() bool {
	return c.CatalogScope == CatalogScopeShared
}

// JWTEnabled сообщает, включена ли fallback-проверка JWT.
func (c *Config) JWTEnabled() bool {
	return c.JWTJWKSURL != ""
}

// DeliveryEnabled сообщает, настроена ли очередь доставки RFQ.
func (c *Config) DeliveryEnabled() bool {
	return c.RedisAddr != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает дробное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
