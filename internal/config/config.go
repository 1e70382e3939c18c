package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// maxInstallmentsCap is the longest plan the product supports.
const maxInstallmentsCap = 12

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	AutoMigrate            bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SummaryCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	BusinessTimezone       string
	MaxInstallments        int
	AtomicSaleWrites       bool
	BootstrapOwner         string
	BootstrapOwnerPassword string
	BootstrapBusinessID    string
}

// Load reads configuration from the environment, after loading a .env file
// when one exists. Values below a numeric setting's minimum fall back to its
// default; MAX_INSTALLMENTS above 12 is clamped to 12.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SUMMARY_CACHE_TTL_SECONDS", 30)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BUSINESS_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("MAX_INSTALLMENTS", 12)
	v.SetDefault("ATOMIC_SALE_WRITES", false)

	return Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		AutoMigrate:            v.GetBool("AUTO_MIGRATE"),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                atLeast(v.GetInt("REDIS_DB"), 0, 0),
		SummaryCacheTTLSeconds: atLeast(v.GetInt("SUMMARY_CACHE_TTL_SECONDS"), 1, 30),
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  atLeast(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 1, 480),
		LogLevel:               v.GetString("LOG_LEVEL"),
		BusinessTimezone:       strings.TrimSpace(v.GetString("BUSINESS_TIMEZONE")),
		MaxInstallments:        clamp(atLeast(v.GetInt("MAX_INSTALLMENTS"), 2, maxInstallmentsCap), maxInstallmentsCap),
		AtomicSaleWrites:       v.GetBool("ATOMIC_SALE_WRITES"),
		BootstrapOwner:         strings.TrimSpace(v.GetString("BOOTSTRAP_OWNER")),
		BootstrapOwnerPassword: v.GetString("BOOTSTRAP_OWNER_PASSWORD"),
		BootstrapBusinessID:    strings.TrimSpace(v.GetString("BOOTSTRAP_BUSINESS_ID")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) SummaryCacheTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves the timezone that defines "today" for due dates.
func (c Config) Location() (*time.Location, error) {
	if c.BusinessTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.BusinessTimezone)
}

func atLeast(value int, min int, fallback int) int {
	if value < min {
		return fallback
	}
	return value
}

func clamp(value int, max int) int {
	if value > max {
		return max
	}
	return value
}
