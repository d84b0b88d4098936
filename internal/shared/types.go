package shared

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// BackoffConfig controls connect retries. The delay starts at Initial and
// is multiplied by Multiplier after each failed attempt. MaxAttempts counts
// dials, not sleeps.
type BackoffConfig struct {
	Initial     time.Duration
	Multiplier  float64
	MaxAttempts int
}

func NormalizeBackoff(cfg BackoffConfig) BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = 2 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return cfg
}
