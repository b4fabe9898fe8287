// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"time"
)

const (
	// DefaultIssuer is the 'iss' claim used when none is configured.
	DefaultIssuer = "aegis-license-server"

	// DefaultRedisKey is the Redis set holding the revoked license IDs.
	DefaultRedisKey = "aegis:revoked"

	// MinAuthSecretLength is the minimum length of the admin token secret.
	MinAuthSecretLength = 32

	// SweeperDisabled turns off the expired license sweeper.
	SweeperDisabled = "-"
)

// ApplyDefaults applies default values to missing fields.
func (c *ConfigSpec) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Timeout.Duration <= 0 {
		c.Server.Timeout.Duration = 30 * time.Second
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "production"
	}

	if c.License.Issuer == "" {
		c.License.Issuer = DefaultIssuer
	}
	if c.License.DefaultDemoDays <= 0 {
		c.License.DefaultDemoDays = 30
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DatabaseDriverMemory
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 5
	}

	if c.Redis.Key == "" {
		c.Redis.Key = DefaultRedisKey
	}

	if c.Auth.TokenTTL.Duration <= 0 {
		c.Auth.TokenTTL.Duration = time.Hour
	}

	if c.RateLimit.Enabled == nil {
		enabled := true
		c.RateLimit.Enabled = &enabled
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 100
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerMinute
	}

	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "@hourly"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
}

// RateLimitEnabled reports whether the validation endpoint is rate limited.
func (c *ConfigSpec) RateLimitEnabled() bool {
	return c.RateLimit.Enabled == nil || *c.RateLimit.Enabled
}

// SweeperEnabled reports whether the expired license sweeper should run.
func (c *ConfigSpec) SweeperEnabled() bool {
	return c.Sweeper.Schedule != SweeperDisabled
}
