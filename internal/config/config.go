// Пакет config — загрузка и валидация конфигурации Tape Catalogue
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

// Config содержит все параметры конфигурации Tape Catalogue.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8010-8019)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Проверять входящие запросы по OpenAPI-контракту
	OpenAPIValidation bool

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений
	DBMaxConns int

	// --- Кэш mount policy ---

	// Максимальное количество записей в кэше правил монтирования
	MountPolicyCacheSize int
	// Время жизни записи кэша
	MountPolicyCacheTTL time.Duration

	// --- JWT (пустой JWKS URL — аутентификация отключена) ---

	JWTJWKSURL          string
	JWTIssuer           string
	JWKSRefreshInterval time.Duration
	JWKSClientTimeout   time.Duration
	JWTLeeway           time.Duration
	// Путь к CA-сертификату для JWKS endpoint (опционально)
	CACertPath string

	// --- Маппинг групп → ролей ---

	RoleAdminGroups    []string
	RoleOperatorGroups []string
	RoleReadonlyGroups []string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Статистика пулов лент ---

	// Период обновления метрик пулов лент, 0 — отключено
	PoolStatsInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// TC_PORT — порт HTTP-сервера (по умолчанию 8010)
	cfg.Port, err = getEnvInt("TC_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("TC_PORT: %w", err)
	}
	if cfg.Port < 8010 || cfg.Port > 8019 {
		return nil, fmt.Errorf("TC_PORT: значение %d вне допустимого диапазона 8010-8019", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TC_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("TC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.OpenAPIValidation, err = getEnvBool("TC_OPENAPI_VALIDATION", true)
	if err != nil {
		return nil, fmt.Errorf("TC_OPENAPI_VALIDATION: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("TC_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("TC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("TC_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("TC_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("TC_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("TC_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("TC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("TC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// TC_DB_MAX_CONNS — каждая операция каталога занимает одно подключение,
	// при исчерпании пула вызов блокируется до освобождения
	cfg.DBMaxConns, err = getEnvInt("TC_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("TC_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 500 {
		return nil, fmt.Errorf("TC_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-500", cfg.DBMaxConns)
	}

	// --- Кэш mount policy ---

	cfg.MountPolicyCacheSize, err = getEnvInt("TC_MOUNT_POLICY_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("TC_MOUNT_POLICY_CACHE_SIZE: %w", err)
	}
	if cfg.MountPolicyCacheSize < 1 {
		return nil, fmt.Errorf("TC_MOUNT_POLICY_CACHE_SIZE: значение %d должно быть положительным", cfg.MountPolicyCacheSize)
	}

	cfg.MountPolicyCacheTTL, err = getEnvDuration("TC_MOUNT_POLICY_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TC_MOUNT_POLICY_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = strings.TrimRight(getEnvDefault("TC_JWT_JWKS_URL", ""), "/")
	if cfg.JWTJWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWTJWKSURL); err != nil {
			return nil, fmt.Errorf("TC_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
		}
	}
	cfg.JWTIssuer = getEnvDefault("TC_JWT_ISSUER", "")

	cfg.JWKSRefreshInterval, err = getEnvDuration("TC_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TC_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("TC_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TC_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("TC_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TC_JWT_LEEWAY: %w", err)
	}
	cfg.CACertPath = getEnvDefault("TC_CA_CERT_PATH", "")

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("TC_ROLE_ADMIN_GROUPS", "tape-admins"))
	cfg.RoleOperatorGroups = parseCSV(getEnvDefault("TC_ROLE_OPERATOR_GROUPS", "tape-operators"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("TC_ROLE_READONLY_GROUPS", "tape-viewers"))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("TC_DEPHEALTH_GROUP", "tape-catalogue")
	cfg.DephealthCheckInterval, err = getEnvDuration("TC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Статистика пулов лент ---

	cfg.PoolStatsInterval, err = getEnvDuration("TC_POOL_STATS_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TC_POOL_STATS_INTERVAL: %w", err)
	}
	if cfg.PoolStatsInterval < 0 {
		return nil, fmt.Errorf("TC_POOL_STATS_INTERVAL: значение %v не может быть отрицательным", cfg.PoolStatsInterval)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("TC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
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
