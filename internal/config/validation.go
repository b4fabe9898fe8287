// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/controlplaneio-fluxcd/aegis/internal/schedule"
)

// Validate validates the ConfigSpec configuration.
// It expects the defaults to be applied.
func (c *ConfigSpec) Validate() error {
	if c.Signing.PrivateKeyPath == "" {
		return errors.New("signing.privateKeyPath must be set")
	}
	if c.Signing.KeyID == "" {
		return errors.New("signing.keyID must be set")
	}

	switch c.Database.Driver {
	case DatabaseDriverMemory:
	case DatabaseDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url must be set for the '%s' driver", DatabaseDriverPostgres)
		}
	default:
		return fmt.Errorf("database.driver must be one of '%s' or '%s', got '%s'",
			DatabaseDriverMemory, DatabaseDriverPostgres, c.Database.Driver)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be non-negative, got %d", c.Redis.DB)
	}

	if c.Auth.Secret == "" {
		return errors.New("auth.secret must be set")
	}
	if len(c.Auth.Secret) < MinAuthSecretLength {
		return fmt.Errorf("auth.secret must be at least %d characters long", MinAuthSecretLength)
	}

	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rateLimit.burst must be positive, got %d", c.RateLimit.Burst)
	}

	if c.SweeperEnabled() {
		if _, err := schedule.Parse(c.Sweeper.Schedule, c.Sweeper.TimeZone); err != nil {
			return fmt.Errorf("invalid sweeper.schedule: %w", err)
		}
	}

	if !slices.Contains([]string{"trace", "debug", "info", "error"}, c.Log.Level) {
		return fmt.Errorf("log.level must be one of 'trace', 'debug', 'info' or 'error', got '%s'", c.Log.Level)
	}
	if !slices.Contains([]string{"json", "console"}, c.Log.Encoding) {
		return fmt.Errorf("log.encoding must be one of 'json' or 'console', got '%s'", c.Log.Encoding)
	}

	return nil
}
