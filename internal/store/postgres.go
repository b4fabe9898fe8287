// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/controlplaneio-fluxcd/aegis/internal/lkm"
)

// PostgreSQL error codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  email      TEXT NOT NULL DEFAULT '',
  company    TEXT NOT NULL DEFAULT '',
  phone      TEXT NOT NULL DEFAULT '',
  address    TEXT NOT NULL DEFAULT '',
  notes      TEXT NOT NULL DEFAULT '',
  is_active  BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS licenses (
  id                     TEXT PRIMARY KEY,
  customer_id            TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
  module_name            TEXT NOT NULL,
  license_type           TEXT NOT NULL,
  allowed_major_versions TEXT[] NOT NULL,
  issued_at              TIMESTAMPTZ NOT NULL,
  expires_at             TIMESTAMPTZ,
  status                 TEXT NOT NULL,
  revoked_at             TIMESTAMPTZ,
  revoked_reason         TEXT NOT NULL DEFAULT '',
  instance_fingerprint   TEXT NOT NULL DEFAULT '',
  token                  TEXT NOT NULL,
  key_id                 TEXT NOT NULL,
  notes                  TEXT NOT NULL DEFAULT '',
  created_at             TIMESTAMPTZ NOT NULL,
  updated_at             TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS licenses_customer_id_idx ON licenses (customer_id)`,
	`CREATE INDEX IF NOT EXISTS licenses_status_expires_at_idx ON licenses (status, expires_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
  id          BIGSERIAL PRIMARY KEY,
  event_type  TEXT NOT NULL,
  license_id  TEXT,
  customer_id TEXT NOT NULL DEFAULT '',
  module_name TEXT NOT NULL DEFAULT '',
  event_data  TEXT NOT NULL DEFAULT '',
  ip_address  TEXT NOT NULL DEFAULT '',
  user_agent  TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_license_id_idx ON audit_logs (license_id)`,
	`CREATE TABLE IF NOT EXISTS revoked_licenses (
  license_id TEXT PRIMARY KEY,
  revoked_at TIMESTAMPTZ NOT NULL
)`,
}

const licenseColumns = `id, customer_id, module_name, license_type, allowed_major_versions,
issued_at, expires_at, status, revoked_at, revoked_reason, instance_fingerprint,
token, key_id, notes, created_at, updated_at`

const customerColumns = `id, name, email, company, phone, address, notes, is_active, created_at, updated_at`

// PostgresStore stores the records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at the given URL.
func NewPostgresStore(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) CreateCustomer(ctx context.Context, c *Customer) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO customers(`+customerColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, c.ID, c.Name, c.Email, c.Company, c.Phone, c.Address, c.Notes, c.Active, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("customer '%s' %w", c.ID, ErrConflict)
	}
	return err
}

func (p *PostgresStore) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("customer '%s' %w", id, ErrNotFound)
	}
	return c, err
}

func (p *PostgresStore) ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error) {
	page := filter.normalize()
	rows, err := p.pool.Query(ctx, `
SELECT `+customerColumns+` FROM customers
WHERE ($1 = FALSE OR is_active)
ORDER BY id
OFFSET $2 LIMIT $3
`, filter.ActiveOnly, page.Offset, page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func (p *PostgresStore) UpdateCustomer(ctx context.Context, c *Customer) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE customers SET name=$2, email=$3, company=$4, phone=$5, address=$6, notes=$7,
is_active=$8, updated_at=$9
WHERE id=$1
`, c.ID, c.Name, c.Email, c.Company, c.Phone, c.Address, c.Notes, c.Active, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer '%s' %w", c.ID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) DeleteCustomer(ctx context.Context, id string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
UPDATE audit_logs SET license_id=NULL
WHERE license_id IN (SELECT id FROM licenses WHERE customer_id=$1)
`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO revoked_licenses(license_id, revoked_at)
SELECT id, COALESCE(revoked_at, updated_at) FROM licenses WHERE customer_id=$1 AND status=$2
ON CONFLICT (license_id) DO NOTHING
`, id, string(StatusRevoked)); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer '%s' %w", id, ErrNotFound)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) CreateLicense(ctx context.Context, l *License) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO licenses(`+licenseColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`, l.ID, l.CustomerID, l.ProductName, string(l.Kind), l.AllowedVersions,
		l.IssuedAt, l.ExpiresAt, string(l.Status), l.RevokedAt, l.RevokedReason, l.InstanceFingerprint,
		l.Token, l.KeyID, l.Notes, l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("license '%s' %w", l.ID, ErrConflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("customer '%s' %w", l.CustomerID, ErrNotFound)
	}
	return err
}

func (p *PostgresStore) GetLicense(ctx context.Context, id string) (*License, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id=$1`, id)
	l, err := scanLicense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("license '%s' %w", id, ErrNotFound)
	}
	return l, err
}

const licenseFilterClause = `
WHERE ($1 = '' OR customer_id=$1)
  AND ($2 = '' OR module_name=$2)
  AND ($3 = '' OR license_type=$3)
  AND ($4 = '' OR status=$4)`

func (p *PostgresStore) ListLicenses(ctx context.Context, filter LicenseFilter) ([]License, int, error) {
	args := []any{filter.CustomerID, filter.ProductName, filter.Kind, filter.Status}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM licenses`+licenseFilterClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.normalize()
	rows, err := p.pool.Query(ctx, `SELECT `+licenseColumns+` FROM licenses`+licenseFilterClause+`
ORDER BY created_at DESC, id
OFFSET $5 LIMIT $6`, append(args, page.Offset, page.Limit)...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectLicenses(rows)
	return list, total, err
}

func (p *PostgresStore) UpdateLicense(ctx context.Context, l *License) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE licenses SET status=$2, revoked_at=$3, revoked_reason=$4, notes=$5, updated_at=$6
WHERE id=$1
`, l.ID, string(l.Status), l.RevokedAt, l.RevokedReason, l.Notes, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("license '%s' %w", l.ID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) IsRevoked(ctx context.Context, licenseID string) (bool, error) {
	var revoked bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM licenses WHERE id=$1 AND status=$2)
    OR EXISTS(SELECT 1 FROM revoked_licenses WHERE license_id=$1)
`, licenseID, string(StatusRevoked)).Scan(&revoked)
	return revoked, err
}

func (p *PostgresStore) ListExpirable(ctx context.Context, now time.Time) ([]License, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+licenseColumns+` FROM licenses
WHERE status=$1 AND expires_at IS NOT NULL AND expires_at <= $2
ORDER BY id`, string(StatusActive), now)
	if err != nil {
		return nil, err
	}
	return collectLicenses(rows)
}

func (p *PostgresStore) ExpireLicense(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
UPDATE licenses SET status=$2, updated_at=$3
WHERE id=$1 AND status=$4
`, id, string(StatusExpired), at, string(StatusActive))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM licenses WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("license '%s' %w", id, ErrNotFound)
	}
	return false, nil
}

func (p *PostgresStore) AppendAudit(ctx context.Context, e *AuditEvent) error {
	return p.pool.QueryRow(ctx, `
INSERT INTO audit_logs(event_type, license_id, customer_id, module_name, event_data, ip_address, user_agent, created_at)
VALUES($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
RETURNING id
`, e.EventType, e.LicenseID, e.CustomerID, e.ProductName, e.EventData, e.IPAddress, e.UserAgent, e.CreatedAt).Scan(&e.ID)
}

func (p *PostgresStore) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	page := filter.normalize()
	rows, err := p.pool.Query(ctx, `
SELECT id, event_type, COALESCE(license_id, ''), customer_id, module_name, event_data, ip_address, user_agent, created_at
FROM audit_logs
WHERE ($1 = '' OR license_id=$1)
ORDER BY id DESC
OFFSET $2 LIMIT $3
`, filter.LicenseID, page.Offset, page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.LicenseID, &e.CustomerID, &e.ProductName,
			&e.EventData, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (p *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Licenses: newLicenseStats()}

	if err := p.pool.QueryRow(ctx, `
SELECT count(*), count(*) FILTER (WHERE is_active), count(*) FILTER (WHERE NOT is_active)
FROM customers
`).Scan(&stats.Customers.Total, &stats.Customers.Active, &stats.Customers.Inactive); err != nil {
		return nil, err
	}

	if err := p.pool.QueryRow(ctx, `
SELECT count(*), count(*) FILTER (WHERE status=$1), count(*) FILTER (WHERE status=$2)
FROM licenses
`, string(StatusActive), string(StatusRevoked)).Scan(
		&stats.Licenses.Total, &stats.Licenses.Active, &stats.Licenses.Revoked); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `SELECT license_type, count(*) FROM licenses GROUP BY license_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		stats.Licenses.ByKind[lkm.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs`).Scan(&stats.AuditLogs.Total); err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &c.Phone, &c.Address, &c.Notes,
		&c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanLicense(row pgx.Row) (*License, error) {
	var l License
	var kind, status string
	if err := row.Scan(&l.ID, &l.CustomerID, &l.ProductName, &kind, &l.AllowedVersions,
		&l.IssuedAt, &l.ExpiresAt, &status, &l.RevokedAt, &l.RevokedReason, &l.InstanceFingerprint,
		&l.Token, &l.KeyID, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Kind = lkm.Kind(kind)
	l.Status = Status(status)
	return &l, nil
}

func collectLicenses(rows pgx.Rows) ([]License, error) {
	defer rows.Close()

	list := []License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
