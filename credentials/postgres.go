// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed credential store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialColumns = `
	id, tenant_id, name, provider, encrypted_key, status, priority,
	monthly_cap_usd, usage_usd, last_used, last_validated, created_at, updated_at
`

// Create persists a new credential.
func (s *PostgresStore) Create(ctx context.Context, cred *Credential) error {
	if err := ValidateNew(cred); err != nil {
		return err
	}

	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	if cred.Status == "" {
		cred.Status = StatusActive
	}

	query := `
		INSERT INTO credentials (
			id, tenant_id, name, provider, encrypted_key, status, priority,
			monthly_cap_usd, usage_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.TenantID,
		cred.Name,
		cred.Provider,
		cred.EncryptedKey,
		cred.Status,
		cred.Priority,
		cred.MonthlyCapUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// Get retrieves one credential by id, scoped to the tenant.
func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE id = $1 AND tenant_id = $2
	`

	cred, err := scanCredential(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

// List returns all of a tenant's credentials ordered by priority.
func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE tenant_id = $1
		ORDER BY priority, created_at
	`
	return s.queryCredentials(ctx, query, tenantID)
}

// ListActive returns the tenant's active credentials ordered by priority,
// optionally filtered to one provider.
func (s *PostgresStore) ListActive(ctx context.Context, tenantID string, provider Provider) ([]Credential, error) {
	if provider != "" {
		query := `
			SELECT ` + credentialColumns + `
			FROM credentials
			WHERE tenant_id = $1 AND status = $2 AND provider = $3
			ORDER BY priority, created_at
		`
		return s.queryCredentials(ctx, query, tenantID, StatusActive, provider)
	}

	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE tenant_id = $1 AND status = $2
		ORDER BY priority, created_at
	`
	return s.queryCredentials(ctx, query, tenantID, StatusActive)
}

// Delete removes a credential.
func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkQuotaExceeded demotes a credential. Intentionally not tenant-scoped:
// the orchestrator already holds a credential it loaded for the tenant.
func (s *PostgresStore) MarkQuotaExceeded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET status = $1, updated_at = NOW() WHERE id = $2`,
		StatusQuotaExceeded, id)
	if err != nil {
		return fmt.Errorf("failed to mark credential quota exceeded: %w", err)
	}
	return nil
}

// Reactivate resets a credential to active on explicit tenant request.
func (s *PostgresStore) Reactivate(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET status = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`,
		StatusActive, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to reactivate credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastUsed records a successful use.
func (s *PostgresStore) TouchLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET last_used = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch last used: %w", err)
	}
	return nil
}

// TouchLastValidated records a successful live validation.
func (s *PostgresStore) TouchLastValidated(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET last_validated = NOW(), updated_at = NOW() WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to touch last validated: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddUsage accumulates cost onto the credential.
func (s *PostgresStore) AddUsage(ctx context.Context, id string, costUSD float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET usage_usd = usage_usd + $1, updated_at = NOW() WHERE id = $2`,
		costUSD, id)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryCredentials(ctx context.Context, query string, args ...any) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}
	return creds, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var cred Credential
	var lastUsed, lastValidated sql.NullTime

	err := row.Scan(
		&cred.ID,
		&cred.TenantID,
		&cred.Name,
		&cred.Provider,
		&cred.EncryptedKey,
		&cred.Status,
		&cred.Priority,
		&cred.MonthlyCapUSD,
		&cred.UsageUSD,
		&lastUsed,
		&lastValidated,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		cred.LastUsed = &lastUsed.Time
	}
	if lastValidated.Valid {
		cred.LastValidated = &lastValidated.Time
	}
	return &cred, nil
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
