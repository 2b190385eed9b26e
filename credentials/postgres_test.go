// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package credentials

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func credentialRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "provider", "encrypted_key", "status", "priority",
		"monthly_cap_usd", "usage_usd", "last_used", "last_validated", "created_at", "updated_at",
	})
}

func TestCreateValidates(t *testing.T) {
	store, _ := newMockStore(t)

	tests := []struct {
		name string
		cred Credential
	}{
		{"missing tenant", Credential{Name: "k", Provider: ProviderOpenAI, EncryptedKey: "x", Priority: 1}},
		{"missing name", Credential{TenantID: "t1", Provider: ProviderOpenAI, EncryptedKey: "x", Priority: 1}},
		{"bad provider", Credential{TenantID: "t1", Name: "k", Provider: "frontier", EncryptedKey: "x", Priority: 1}},
		{"missing key", Credential{TenantID: "t1", Name: "k", Provider: ProviderOpenAI, Priority: 1}},
		{"zero priority", Credential{TenantID: "t1", Name: "k", Provider: ProviderOpenAI, EncryptedKey: "x"}},
		{"negative cap", Credential{TenantID: "t1", Name: "k", Provider: ProviderOpenAI, EncryptedKey: "x", Priority: 1, MonthlyCapUSD: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := tt.cred
			assert.Error(t, store.Create(context.Background(), &cred))
		})
	}
}

func TestCreateInserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(sqlmock.AnyArg(), "t1", "primary", ProviderOpenAI, "blob", StatusActive, 1, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cred := &Credential{
		TenantID:     "t1",
		Name:         "primary",
		Provider:     ProviderOpenAI,
		EncryptedKey: "blob",
		Priority:     1,
	}
	require.NoError(t, store.Create(context.Background(), cred))
	assert.NotEmpty(t, cred.ID)
	assert.Equal(t, StatusActive, cred.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScansNullableTimestamps(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT .* FROM credentials`).
		WithArgs("c1", "t1").
		WillReturnRows(credentialRows().AddRow(
			"c1", "t1", "primary", "openai", "blob", "active", 1,
			0.0, 2.5, nil, nil, now, now,
		))

	cred, err := store.Get(context.Background(), "t1", "c1")
	require.NoError(t, err)
	assert.Nil(t, cred.LastUsed)
	assert.Nil(t, cred.LastValidated)
	assert.Equal(t, 2.5, cred.UsageUSD)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM credentials`).
		WithArgs("missing", "t1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveFiltersAndOrders(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM credentials\s+WHERE tenant_id = \$1 AND status = \$2\s+ORDER BY priority`).
		WithArgs("t1", StatusActive).
		WillReturnRows(credentialRows().
			AddRow("c1", "t1", "first", "openai", "blob1", "active", 1, 0.0, 0.0, nil, nil, now, now).
			AddRow("c2", "t1", "second", "anthropic", "blob2", "active", 2, 0.0, 0.0, nil, nil, now, now))

	creds, err := store.ListActive(context.Background(), "t1", "")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "c1", creds[0].ID)
	assert.Equal(t, "c2", creds[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveByProvider(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM credentials\s+WHERE tenant_id = \$1 AND status = \$2 AND provider = \$3`).
		WithArgs("t1", StatusActive, ProviderOpenAI).
		WillReturnRows(credentialRows().
			AddRow("c1", "t1", "first", "openai", "blob1", "active", 1, 0.0, 0.0, nil, nil, now, now))

	creds, err := store.ListActive(context.Background(), "t1", ProviderOpenAI)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, ProviderOpenAI, creds[0].Provider)
}

func TestMarkQuotaExceeded(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE credentials SET status = \$1`).
		WithArgs(StatusQuotaExceeded, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkQuotaExceeded(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivateNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE credentials SET status = \$1`).
		WithArgs(StatusActive, "missing", "t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Reactivate(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddUsageAccumulates(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE credentials SET usage_usd = usage_usd \+ \$1`).
		WithArgs(0.0125, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AddUsage(context.Background(), "c1", 0.0125))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs("missing", "t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
