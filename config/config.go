package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	LedgerBaseURL string
	LedgerTimeout time.Duration

	SweepInterval time.Duration
	// MaxScore - верхняя граница здравого смысла для одного результата.
	// Игровой потолок очков - внешняя забота, поэтому он задаётся снаружи.
	MaxScore float64

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	ledgerURL := os.Getenv("LEDGER_BASE_URL")
	if ledgerURL == "" {
		return nil, fmt.Errorf("LEDGER_BASE_URL environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	ledgerTimeoutSec, err := intEnv("LEDGER_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}

	sweepIntervalSec, err := intEnv("SWEEP_INTERVAL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	if sweepIntervalSec <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive, got %d", sweepIntervalSec)
	}

	maxScore := 100000.0
	if raw := os.Getenv("MAX_SCORE"); raw != "" {
		maxScore, err = strconv.ParseFloat(raw, 64)
		if err != nil || maxScore <= 0 {
			return nil, fmt.Errorf("invalid MAX_SCORE environment variable: %q", raw)
		}
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		LedgerBaseURL:     ledgerURL,
		LedgerTimeout:     time.Duration(ledgerTimeoutSec) * time.Second,
		SweepInterval:     time.Duration(sweepIntervalSec) * time.Second,
		MaxScore:          maxScore,
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

// ArchiveEnabled сообщает, настроено ли хранилище аудита.
// Без него расчёт работает, но отчёты не выгружаются.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}
