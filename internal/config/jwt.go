package config

import (
	"fmt"
)

// JWTConfig holds configuration for operator token generation and validation.
// It is read from JWT_SECRET and JWT_EXPIRATION_HOURS (default: 24).
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
