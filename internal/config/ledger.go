package config

import (
	"os"
	"strconv"
	"time"
)

// LedgerConfig carries the knobs for the ledger's money-movement paths that
// operators tune per environment.
type LedgerConfig struct {
	SettlementCurrency     string
	SettlementBIC          string
	MinWithdrawalAmount    int64
	IntegrityCheckInterval time.Duration
	BatchTimezone          string
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		SettlementCurrency:     getEnv("SETTLEMENT_CURRENCY", "USD"),
		SettlementBIC:          getEnv("SETTLEMENT_BIC", "TALENTHUB"),
		MinWithdrawalAmount:    getEnvAsInt64("MIN_WITHDRAWAL_AMOUNT", 5000),
		IntegrityCheckInterval: getEnvAsDuration("INTEGRITY_CHECK_INTERVAL", 24*time.Hour),
		BatchTimezone:          getEnv("BATCH_TIMEZONE", "UTC"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
