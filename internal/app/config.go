package app

import (
	"os"
	"strconv"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config описывает настройки запуска сервиса. Все значения можно
// переопределить переменными окружения с префиксом CHECKOUT_.
type Config struct {
	HTTPAddr     string
	OpsAddr      string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string
	JWTSecret    string

	ShippingMinor      int64
	TaxRateBasisPoints int64
	RestockOnCancel    bool
}

// DefaultConfig возвращает конфигурацию для локальной разработки:
// in-memory хранилище, API на :8080, операционный сервер на :9090.
func DefaultConfig() Config {
	pricing := domain.DefaultPricing()
	return Config{
		HTTPAddr:           ":8080",
		OpsAddr:            ":9090",
		JWTSecret:          "dev-secret",
		ShippingMinor:      pricing.ShippingMinor,
		TaxRateBasisPoints: pricing.TaxRateBasisPoints,
		RestockOnCancel:    true,
	}
}

// ConfigFromEnv читает конфигурацию из окружения поверх значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("CHECKOUT_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("CHECKOUT_OPS_ADDR"); v != "" {
		cfg.OpsAddr = v
	}
	if v := os.Getenv("CHECKOUT_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("CHECKOUT_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("CHECKOUT_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("CHECKOUT_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("CHECKOUT_SHIPPING_COST_MINOR"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed >= 0 {
			cfg.ShippingMinor = parsed
		}
	}
	if v := os.Getenv("CHECKOUT_TAX_RATE_BP"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed >= 0 {
			cfg.TaxRateBasisPoints = parsed
		}
	}
	if v := os.Getenv("CHECKOUT_RESTOCK_ON_CANCEL"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.RestockOnCancel = parsed
		}
	}

	return cfg
}

// Pricing собирает тарифы расчёта заказа из конфигурации.
func (c Config) Pricing() domain.Pricing {
	return domain.Pricing{
		ShippingMinor:      c.ShippingMinor,
		TaxRateBasisPoints: c.TaxRateBasisPoints,
	}
}
