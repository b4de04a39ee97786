// Пакет config — загрузка и валидация конфигурации Bucket Gate
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

// AuthMode — режим работы шлюза авторизации.
type AuthMode string

const (
	// AuthModeEnforced — боевой режим: личность берётся из заголовка,
	// неизвестные принципалы отклоняются.
	AuthModeEnforced AuthMode = "enforced"
	// AuthModeBypass — режим разработки: заголовок игнорируется,
	// подставляется фиксированный принципал из конфигурации.
	// Включается только явно, никогда не выводится из окружения.
	AuthModeBypass AuthMode = "bypass"
)

// Config содержит все параметры конфигурации Bucket Gate.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Таймаут чтения запроса
	HTTPReadTimeout time.Duration
	// Таймаут записи ответа (включая отдачу содержимого объектов)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	HTTPIdleTimeout time.Duration
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

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

	// --- S3-хранилище ---

	// Регион S3
	S3Region string
	// Имя бакета
	S3Bucket string
	// Долгоживущий ключ доступа
	S3AccessKeyID string
	// Долгоживущий секретный ключ
	S3SecretAccessKey string
	// ARN роли для временных учётных данных (пусто — роль не используется,
	// клиент строится прямо на долгоживущей паре ключей)
	S3RoleARN string
	// Имя сессии при выпуске временных учётных данных
	S3SessionName string
	// Кастомный endpoint S3 (MinIO и совместимые); пусто — стандартный AWS.
	// При заданном endpoint включается path-style адресация.
	S3Endpoint string
	// Таймаут каждого исходящего вызова (STS, S3, запись аудита)
	S3RequestTimeout time.Duration

	// --- Временные учётные данные ---

	// Кандидаты длительности сессии в секундах, по убыванию.
	// При ошибке "запрошенная длительность превышает максимум роли"
	// провайдер пробует следующий, меньший кандидат.
	CredentialDurations []int32

	// --- Авторизация ---

	// Режим шлюза авторизации: enforced или bypass
	AuthMode AuthMode
	// Идентификатор принципала, подставляемый в режиме bypass
	AuthBypassPrincipal string
	// HTTP-заголовок с идентификатором вызывающего
	IdentityHeader string
	// Идентификатор, который будет заведён администратором при старте,
	// если в allow-list ещё нет ни одного администратора (опционально)
	BootstrapAdmin string

	// --- Журнал активности ---

	// Сколько последних записей аудита хранить (старые вытесняются)
	AuditRetention int

	// --- Кэш принципалов ---

	// TTL записи в кэше поиска принципалов
	PrincipalCacheTTL time.Duration
	// Максимальный размер кэша поиска принципалов
	PrincipalCacheSize int

	// --- Наблюдаемость ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа сервиса в topologymetrics
	DephealthGroup string

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

	// BG_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("BG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("BG_PORT: %w", err)
	}

	// BG_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("BG_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_HTTP_READ_TIMEOUT: %w", err)
	}

	// BG_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 60s).
	// Для отдачи крупных объектов значение стоит увеличить.
	cfg.HTTPWriteTimeout, err = getEnvDuration("BG_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// BG_HTTP_IDLE_TIMEOUT — таймаут простоя соединения (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("BG_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// BG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BG_LOG_LEVEL: %w", err)
	}

	// BG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("BG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// BG_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("BG_DB_HOST")
	if err != nil {
		return nil, err
	}

	// BG_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("BG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BG_DB_PORT: %w", err)
	}

	// BG_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("BG_DB_NAME")
	if err != nil {
		return nil, err
	}

	// BG_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("BG_DB_USER")
	if err != nil {
		return nil, err
	}

	// BG_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("BG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// BG_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("BG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- S3-хранилище ---

	// BG_S3_REGION — обязательный
	cfg.S3Region, err = getEnvRequired("BG_S3_REGION")
	if err != nil {
		return nil, err
	}

	// BG_S3_BUCKET — обязательный
	cfg.S3Bucket, err = getEnvRequired("BG_S3_BUCKET")
	if err != nil {
		return nil, err
	}

	// BG_S3_ACCESS_KEY_ID — обязательный
	cfg.S3AccessKeyID, err = getEnvRequired("BG_S3_ACCESS_KEY_ID")
	if err != nil {
		return nil, err
	}

	// BG_S3_SECRET_ACCESS_KEY — обязательный
	cfg.S3SecretAccessKey, err = getEnvRequired("BG_S3_SECRET_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// BG_S3_ROLE_ARN — ARN роли (опционально; пусто — без assume role)
	cfg.S3RoleARN = getEnvDefault("BG_S3_ROLE_ARN", "")

	// BG_S3_SESSION_NAME — имя сессии (по умолчанию bucketgate)
	cfg.S3SessionName = getEnvDefault("BG_S3_SESSION_NAME", "bucketgate")

	// BG_S3_ENDPOINT — кастомный endpoint (опционально)
	cfg.S3Endpoint = strings.TrimRight(getEnvDefault("BG_S3_ENDPOINT", ""), "/")

	// BG_S3_REQUEST_TIMEOUT — таймаут исходящих вызовов (по умолчанию 30s)
	cfg.S3RequestTimeout, err = getEnvDuration("BG_S3_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_S3_REQUEST_TIMEOUT: %w", err)
	}

	// --- Временные учётные данные ---

	// BG_CREDENTIAL_DURATIONS — кандидаты длительности в секундах,
	// по убыванию (по умолчанию 3600,1800,900)
	cfg.CredentialDurations, err = parseDurationCandidates(getEnvDefault("BG_CREDENTIAL_DURATIONS", "3600,1800,900"))
	if err != nil {
		return nil, fmt.Errorf("BG_CREDENTIAL_DURATIONS: %w", err)
	}

	// --- Авторизация ---

	// BG_AUTH_MODE — режим шлюза (по умолчанию enforced)
	mode := getEnvDefault("BG_AUTH_MODE", string(AuthModeEnforced))
	switch AuthMode(mode) {
	case AuthModeEnforced, AuthModeBypass:
		cfg.AuthMode = AuthMode(mode)
	default:
		return nil, fmt.Errorf("BG_AUTH_MODE: недопустимое значение %q, допустимые: enforced, bypass", mode)
	}

	// BG_AUTH_BYPASS_PRINCIPAL — обязателен в режиме bypass
	cfg.AuthBypassPrincipal = getEnvDefault("BG_AUTH_BYPASS_PRINCIPAL", "")
	if cfg.AuthMode == AuthModeBypass && cfg.AuthBypassPrincipal == "" {
		return nil, fmt.Errorf("BG_AUTH_BYPASS_PRINCIPAL: обязателен при BG_AUTH_MODE=bypass")
	}

	// BG_IDENTITY_HEADER — заголовок с идентификатором (по умолчанию X-User-Email)
	cfg.IdentityHeader = getEnvDefault("BG_IDENTITY_HEADER", "X-User-Email")

	// BG_BOOTSTRAP_ADMIN — стартовый администратор (опционально)
	cfg.BootstrapAdmin = getEnvDefault("BG_BOOTSTRAP_ADMIN", "")

	// --- Журнал активности ---

	// BG_AUDIT_RETENTION — сколько записей хранить (по умолчанию 1000)
	cfg.AuditRetention, err = getEnvInt("BG_AUDIT_RETENTION", 1000)
	if err != nil {
		return nil, fmt.Errorf("BG_AUDIT_RETENTION: %w", err)
	}
	if cfg.AuditRetention < 1 {
		return nil, fmt.Errorf("BG_AUDIT_RETENTION: значение %d должно быть положительным", cfg.AuditRetention)
	}

	// --- Кэш принципалов ---

	// BG_PRINCIPAL_CACHE_TTL — TTL кэша поиска (по умолчанию 30s)
	cfg.PrincipalCacheTTL, err = getEnvDuration("BG_PRINCIPAL_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_PRINCIPAL_CACHE_TTL: %w", err)
	}

	// BG_PRINCIPAL_CACHE_SIZE — размер кэша поиска (по умолчанию 1024)
	cfg.PrincipalCacheSize, err = getEnvInt("BG_PRINCIPAL_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("BG_PRINCIPAL_CACHE_SIZE: %w", err)
	}
	if cfg.PrincipalCacheSize < 1 {
		return nil, fmt.Errorf("BG_PRINCIPAL_CACHE_SIZE: значение %d должно быть положительным", cfg.PrincipalCacheSize)
	}

	// --- Наблюдаемость ---

	// BG_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("BG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// BG_DEPHEALTH_GROUP — группа сервиса в topologymetrics (по умолчанию bucketgate)
	cfg.DephealthGroup = getEnvDefault("BG_DEPHEALTH_GROUP", "bucketgate")

	// --- Graceful shutdown ---

	// BG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("BG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BG_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает подключение к PostgreSQL в форме URL.
// Используется topologymetrics для разбора хоста и порта зависимости.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
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

// parseDurationCandidates разбирает список кандидатов длительности сессии.
// Список обязан быть непустым, со строго убывающими положительными значениями.
func parseDurationCandidates(s string) ([]int32, error) {
	parts := strings.Split(s, ",")
	result := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("некорректное целое число: %q", p)
		}
		if n < 900 {
			return nil, fmt.Errorf("длительность %d меньше минимума STS (900 секунд)", n)
		}
		if len(result) > 0 && int32(n) >= result[len(result)-1] {
			return nil, fmt.Errorf("кандидаты должны строго убывать, %d после %d", n, result[len(result)-1])
		}
		result = append(result, int32(n))
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("список кандидатов пуст")
	}
	return result, nil
}
