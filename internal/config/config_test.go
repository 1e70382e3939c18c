package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret, "AUTH_SECRET must stay empty when unset")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_INSTALLMENTS", "")
	t.Setenv("ATOMIC_SALE_WRITES", "")
	t.Setenv("SUMMARY_CACHE_TTL_SECONDS", "")

	cfg := Load()
	assert.Equal(t, 12, cfg.MaxInstallments)
	assert.False(t, cfg.AtomicSaleWrites)
	assert.Equal(t, 30*time.Second, cfg.SummaryCacheTTL())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_INSTALLMENTS", "6")
	t.Setenv("ATOMIC_SALE_WRITES", "true")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 6, cfg.MaxInstallments)
	assert.True(t, cfg.AtomicSaleWrites)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL())
}

func TestLoadFallsBackOnOutOfRangeValues(t *testing.T) {
	t.Setenv("MAX_INSTALLMENTS", "1")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	assert.Equal(t, 12, cfg.MaxInstallments)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}

func TestLoadClampsMaxInstallmentsToTwelve(t *testing.T) {
	t.Setenv("MAX_INSTALLMENTS", "24")

	cfg := Load()
	assert.Equal(t, 12, cfg.MaxInstallments)
}

func TestLocationDefaultsToUTCWhenEmpty(t *testing.T) {
	loc, err := Config{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = Config{BusinessTimezone: "Not/AZone"}.Location()
	assert.Error(t, err)
}
