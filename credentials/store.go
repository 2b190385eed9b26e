// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package credentials

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a credential does not exist for the tenant.
var ErrNotFound = errors.New("credential not found")

// Store defines credential persistence. Implementations must filter every
// operation by tenant and order listings by ascending priority.
type Store interface {
	// Create persists a new credential and returns it with its assigned id.
	Create(ctx context.Context, cred *Credential) error

	// Get retrieves one credential by id, scoped to the tenant.
	Get(ctx context.Context, tenantID, id string) (*Credential, error)

	// List returns all of a tenant's credentials ordered by priority.
	List(ctx context.Context, tenantID string) ([]Credential, error)

	// ListActive returns the tenant's active credentials ordered by priority,
	// optionally filtered to one provider (empty provider means all).
	ListActive(ctx context.Context, tenantID string, provider Provider) ([]Credential, error)

	// Delete removes a credential on explicit tenant request.
	Delete(ctx context.Context, tenantID, id string) error

	// MarkQuotaExceeded demotes a credential after a quota or rate-limit
	// failure. The demotion is sticky: subsequent listings skip the key
	// until it is reactivated.
	MarkQuotaExceeded(ctx context.Context, id string) error

	// Reactivate resets a credential to active on explicit request.
	Reactivate(ctx context.Context, tenantID, id string) error

	// TouchLastUsed records a successful use. Last-write-wins is acceptable;
	// the timestamp is advisory.
	TouchLastUsed(ctx context.Context, id string) error

	// TouchLastValidated records a successful live validation.
	TouchLastValidated(ctx context.Context, tenantID, id string) error

	// AddUsage accumulates the cost of a successful call onto the credential.
	AddUsage(ctx context.Context, id string, costUSD float64) error
}

// ValidateNew checks the invariants of a credential before creation.
func ValidateNew(cred *Credential) error {
	if cred == nil {
		return errors.New("credential cannot be nil")
	}
	if cred.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if cred.Name == "" {
		return errors.New("credential name is required")
	}
	if !cred.Provider.Valid() {
		return fmt.Errorf("unsupported provider %q", cred.Provider)
	}
	if cred.EncryptedKey == "" {
		return errors.New("encrypted key is required")
	}
	if cred.Priority < 1 {
		return fmt.Errorf("priority must be a positive integer, got %d", cred.Priority)
	}
	if cred.MonthlyCapUSD < 0 {
		return errors.New("monthly cap cannot be negative")
	}
	return nil
}
