// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a client for a redis:// URL or a host:port address.
func NewRedisClient(address, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(address, "redis://") || strings.HasPrefix(address, "rediss://") {
		opts, err := redis.ParseURL(address)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if password != "" {
			opts.Password = password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), nil
}

// RedisRevocationCache keeps the revoked license IDs in a Redis set
// in front of a fallback checker, usually the Store.
// Cache failures are logged and answered by the fallback.
type RedisRevocationCache struct {
	client   *redis.Client
	key      string
	fallback RevocationChecker
}

// NewRedisRevocationCache returns a cache backed by the Redis set at key.
func NewRedisRevocationCache(client *redis.Client, key string, fallback RevocationChecker) *RedisRevocationCache {
	return &RedisRevocationCache{
		client:   client,
		key:      key,
		fallback: fallback,
	}
}

// IsRevoked checks the Redis set first. On a miss the fallback is
// consulted and a positive answer is written back to the set.
func (r *RedisRevocationCache) IsRevoked(ctx context.Context, licenseID string) (bool, error) {
	log := logr.FromContextOrDiscard(ctx)

	found, err := r.client.SIsMember(ctx, r.key, licenseID).Result()
	if err != nil {
		log.Error(err, "revocation cache lookup failed", "license_id", licenseID)
	} else if found {
		return true, nil
	}

	revoked, err := r.fallback.IsRevoked(ctx, licenseID)
	if err != nil {
		return false, err
	}
	if revoked {
		if err := r.MarkRevoked(ctx, licenseID); err != nil {
			log.Error(err, "revocation cache update failed", "license_id", licenseID)
		}
	}
	return revoked, nil
}

// MarkRevoked adds the license ID to the Redis set.
func (r *RedisRevocationCache) MarkRevoked(ctx context.Context, licenseID string) error {
	return r.client.SAdd(ctx, r.key, licenseID).Err()
}

// Ping checks the Redis connection.
func (r *RedisRevocationCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisRevocationCache) Close() error {
	return r.client.Close()
}
