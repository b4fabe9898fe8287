// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"fmt"
)

const (
	// APIVersion is the version of the AEGIS configuration API.
	APIVersion = "aegis.controlplane.io/v1"

	// ConfigKind is the kind of the AEGIS configuration API.
	ConfigKind = "Config"

	// EnvPrefix is the prefix of the environment variables
	// that override the configuration file.
	EnvPrefix = "AEGIS"
)

// Config is the AEGIS license server configuration.
type Config struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`

	// Spec holds the license server configuration.
	Spec ConfigSpec `json:"spec"`
}

// Validate validates the Config configuration.
func (c Config) Validate() error {
	if c.APIVersion != APIVersion || c.Kind != ConfigKind {
		return fmt.Errorf("expected apiVersion '%s' and kind '%s', got '%s' and '%s'",
			APIVersion, ConfigKind, c.APIVersion, c.Kind)
	}
	return nil
}

// ConfigSpec holds the license server configuration.
type ConfigSpec struct {
	// Version identifies where the configuration was loaded from.
	// This field is set internally and is not part of the API.
	Version string `json:"-" ignored:"true"`

	// Server holds the HTTP server settings.
	Server ServerSpec `json:"server"`

	// Signing holds the license signing key settings.
	Signing SigningSpec `json:"signing"`

	// License holds the license issuance settings.
	License LicenseSpec `json:"license"`

	// Database holds the persistence settings.
	Database DatabaseSpec `json:"database"`

	// Redis holds the revocation cache settings.
	// The cache is disabled when the address is empty.
	Redis RedisSpec `json:"redis"`

	// Auth holds the admin API authentication settings.
	Auth AuthSpec `json:"auth"`

	// RateLimit holds the validation endpoint rate limit settings.
	RateLimit RateLimitSpec `json:"rateLimit" split_words:"true"`

	// Sweeper holds the expired license sweeper settings.
	Sweeper SweeperSpec `json:"sweeper"`

	// Log holds the logger settings.
	Log LogSpec `json:"log"`
}

// ServerSpec holds the HTTP server settings.
type ServerSpec struct {
	// Address is the listen address, defaults to ':8080'.
	Address string `json:"address"`

	// Timeout is applied to reads, writes and graceful shutdown, defaults to 30s.
	Timeout Duration `json:"timeout"`

	// Environment is reported by the health and info endpoints.
	Environment string `json:"environment"`
}

// SigningSpec holds the license signing key settings.
type SigningSpec struct {
	// PrivateKeyPath is the path to the Ed25519 private key in PEM format.
	PrivateKeyPath string `json:"privateKeyPath" split_words:"true"`

	// PublicKeyPath is the path to the Ed25519 public key in PEM format.
	// When empty, the public key is derived from the private key.
	PublicKeyPath string `json:"publicKeyPath" split_words:"true"`

	// KeyID is the ID of the signing key, sent in the token 'kid' header.
	KeyID string `json:"keyID" split_words:"true"`
}

// LicenseSpec holds the license issuance settings.
type LicenseSpec struct {
	// Issuer is the 'iss' claim of issued licenses.
	Issuer string `json:"issuer"`

	// DefaultDemoDays is used for demo licenses issued without a duration,
	// defaults to 30.
	DefaultDemoDays int `json:"defaultDemoDays" split_words:"true"`
}

const (
	// DatabaseDriverMemory keeps all records in memory.
	DatabaseDriverMemory = "memory"

	// DatabaseDriverPostgres stores the records in PostgreSQL.
	DatabaseDriverPostgres = "postgres"
)

// DatabaseSpec holds the persistence settings.
type DatabaseSpec struct {
	// Driver is one of 'memory' or 'postgres', defaults to 'memory'.
	Driver string `json:"driver"`

	// URL is the PostgreSQL connection string.
	URL string `json:"url"`

	// MaxConns is the size of the connection pool, defaults to 5.
	MaxConns int32 `json:"maxConns" split_words:"true"`
}

// RedisSpec holds the revocation cache settings.
type RedisSpec struct {
	// Address is the Redis host:port.
	Address string `json:"address"`

	// Password is the Redis password.
	Password string `json:"password"`

	// DB is the Redis database number.
	DB int `json:"db"`

	// Key is the name of the Redis set holding the revoked license IDs,
	// defaults to 'aegis:revoked'.
	Key string `json:"key"`
}

// AuthSpec holds the admin API authentication settings.
type AuthSpec struct {
	// Secret is the HMAC key used to sign and verify admin tokens.
	Secret string `json:"secret"`

	// TokenTTL is the lifetime of admin tokens, defaults to 1h.
	TokenTTL Duration `json:"tokenTTL" split_words:"true"`
}

// RateLimitSpec holds the validation endpoint rate limit settings.
type RateLimitSpec struct {
	// Enabled turns the rate limiter on, defaults to true.
	Enabled *bool `json:"enabled"`

	// RequestsPerMinute is the sustained rate per client IP, defaults to 100.
	RequestsPerMinute int `json:"requestsPerMinute" split_words:"true"`

	// Burst is the maximum burst per client IP, defaults to RequestsPerMinute.
	Burst int `json:"burst"`
}

// SweeperSpec holds the expired license sweeper settings.
type SweeperSpec struct {
	// Schedule is a cron expression, defaults to '@hourly'.
	// The sweeper is disabled when set to '-'.
	Schedule string `json:"schedule"`

	// TimeZone is the IANA time zone of the schedule, defaults to the local time zone.
	TimeZone string `json:"timeZone" split_words:"true"`
}

// LogSpec holds the logger settings.
type LogSpec struct {
	// Level is one of 'trace', 'debug', 'info' or 'error'.
	Level string `json:"level"`

	// Encoding is one of 'json' or 'console'.
	Encoding string `json:"encoding"`
}
