package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"claims-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st := NewWithDB(db)
	require.NoError(t, st.Migrate())

	return st
}

func seedRecord(t *testing.T, st *Store, record *models.InvoiceRecord) {
	t.Helper()
	require.NoError(t, st.db.Create(record).Error)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/claims"
	assert.NoError(t, cfg.Validate())
}

func TestStore_UnmappedPayments(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	mapped := "1"
	records := []*models.InvoiceRecord{
		{ID: "p1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-1", InvoiceAmount: "25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 2, 3)},
		{ID: "p2", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-2", InvoiceAmount: "50.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 2, 1)},
		// Deduction: excluded by sign.
		{ID: "d1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-3", InvoiceAmount: "-25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15)},
		// Wrong currency.
		{ID: "p3", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-4", InvoiceAmount: "75.00", InvoiceCurrency: "EUR", InvoiceDate: date(2024, 2, 1)},
		// Already mapped.
		{ID: "p4", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-5", InvoiceAmount: "10.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 2, 1), PaymentRemittanceID: &mapped},
	}
	for _, r := range records {
		seedRecord(t, st, r)
	}

	payments, err := st.UnmappedPayments(ctx, "USD")
	require.NoError(t, err)
	require.Len(t, payments, 2)

	// Ordered by invoice date, then ID.
	assert.Equal(t, "p2", payments[0].ID)
	assert.Equal(t, "p1", payments[1].ID)
}

func TestStore_UnmappedDeductions(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	records := []*models.InvoiceRecord{
		{ID: "d2", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-1", InvoiceAmount: "-50.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 20)},
		{ID: "d1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-2", InvoiceAmount: "-25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15)},
		{ID: "p1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-3", InvoiceAmount: "25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 2, 1)},
	}
	for _, r := range records {
		seedRecord(t, st, r)
	}

	deductions, err := st.UnmappedDeductions(ctx, "USD")
	require.NoError(t, err)
	require.Len(t, deductions, 2)
	assert.Equal(t, "d1", deductions[0].ID)
	assert.Equal(t, "d2", deductions[1].ID)
}

func TestStore_UnmappedQueriesTolerateMalformedAmounts(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	records := []*models.InvoiceRecord{
		{ID: "p1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-1", InvoiceAmount: "25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 2, 1)},
		{ID: "d1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-2", InvoiceAmount: "-25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15)},
		// Malformed and missing amounts coerce to zero: neither payments nor
		// deductions, and never fatal for the batch.
		{ID: "x1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-3", InvoiceAmount: "not-a-number", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15)},
		{ID: "x2", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-4", InvoiceAmount: "", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15)},
		{ID: "x3", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-5", InvoiceAmount: "0.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15)},
	}
	for _, r := range records {
		seedRecord(t, st, r)
	}

	payments, err := st.UnmappedPayments(ctx, "USD")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "p1", payments[0].ID)

	deductions, err := st.UnmappedDeductions(ctx, "USD")
	require.NoError(t, err)
	require.Len(t, deductions, 1)
	assert.Equal(t, "d1", deductions[0].ID)
}

func TestStore_CasesByIDs(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	valid := true
	require.NoError(t, st.db.Create(&models.CaseReference{ID: "C1", Valid: &valid, VendorID: "V1"}).Error)
	require.NoError(t, st.db.Create(&models.CaseReference{ID: "C2", VendorID: "V2"}).Error)

	cases, err := st.CasesByIDs(ctx, []string{"C1", "C2", "C-missing"})
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.True(t, cases["C1"].HasValidity())
	assert.False(t, cases["C2"].HasValidity())
	assert.NotContains(t, cases, "C-missing")

	empty, err := st.CasesByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_VendorsByIDs(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	rate := decimal.RequireFromString("0.05")
	require.NoError(t, st.db.Create(&models.VendorProfile{ID: "V1", OrganizationID: "ORG1", RateFactor: rate}).Error)

	vendors, err := st.VendorsByIDs(ctx, []string{"V1", "V-missing"})
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, "ORG1", vendors["V1"].OrganizationID)
	assert.True(t, vendors["V1"].RateFactor.Equal(rate))
}

func TestTx_MarkDeductionMapped(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	seedRecord(t, st, &models.InvoiceRecord{
		ID: "d1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-1",
		InvoiceAmount: "-25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15),
	})

	err := st.Atomic(ctx, func(tx *Tx) error {
		claimed, err := tx.MarkDeductionMapped("d1", "p1")
		require.NoError(t, err)
		assert.True(t, claimed)
		return nil
	})
	require.NoError(t, err)

	// A second attempt finds the row already claimed: first committer wins.
	err = st.Atomic(ctx, func(tx *Tx) error {
		claimed, err := tx.MarkDeductionMapped("d1", "p2")
		require.NoError(t, err)
		assert.False(t, claimed)
		return nil
	})
	require.NoError(t, err)

	var record models.InvoiceRecord
	require.NoError(t, st.db.First(&record, "id = ?", "d1").Error)
	require.NotNil(t, record.PaymentRemittanceID)
	assert.Equal(t, "p1", *record.PaymentRemittanceID)
}

func TestTx_LedgerEntryRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	key := models.LedgerKey{
		VendorID:            "V1",
		OrganizationID:      "ORG1",
		BillingKeyPrimary:   "PAY-42",
		BillingKeySecondary: "SC-7",
		KeySource:           models.LedgerKeySource,
	}

	err := st.Atomic(ctx, func(tx *Tx) error {
		existing, err := tx.FindLedgerEntry(key)
		require.NoError(t, err)
		assert.Nil(t, existing)

		return tx.InsertLedgerEntry(&models.LedgerEntry{
			VendorID:            key.VendorID,
			OrganizationID:      key.OrganizationID,
			BillingKeyPrimary:   key.BillingKeyPrimary,
			BillingKeySecondary: key.BillingKeySecondary,
			KeySource:           key.KeySource,
			RawAmount:           decimal.RequireFromString("25.00"),
			Currency:            "USD",
			BillableAmount:      decimal.RequireFromString("1.25"),
			Description:         "Claim settlement for invoice SC-7",
			CaseID:              "C1",
			CreatedBy:           "test",
		})
	})
	require.NoError(t, err)

	err = st.Atomic(ctx, func(tx *Tx) error {
		existing, err := tx.FindLedgerEntry(key)
		require.NoError(t, err)
		require.NotNil(t, existing)
		assert.True(t, existing.RawAmount.Equal(decimal.RequireFromString("25.00")))
		return nil
	})
	require.NoError(t, err)
}

func TestTx_FindLedgerEntry_EmptyKeyComponent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.db.Create(&models.LedgerEntry{
		VendorID:            "V1",
		OrganizationID:      "ORG1",
		BillingKeyPrimary:   "PAY-OTHER",
		BillingKeySecondary: "SC-7",
		KeySource:           models.LedgerKeySource,
	}).Error)

	// An empty key component must still participate in the lookup: a key with
	// no primary billing key matches nothing here, not the PAY-OTHER entry.
	key := models.LedgerKey{
		VendorID:            "V1",
		OrganizationID:      "ORG1",
		BillingKeyPrimary:   "",
		BillingKeySecondary: "SC-7",
		KeySource:           models.LedgerKeySource,
	}

	err := st.Atomic(ctx, func(tx *Tx) error {
		entry, err := tx.FindLedgerEntry(key)
		require.NoError(t, err)
		assert.Nil(t, entry)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_AtomicRollsBackOnError(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	seedRecord(t, st, &models.InvoiceRecord{
		ID: "d1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-1",
		InvoiceAmount: "-25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15),
	})

	failure := fmt.Errorf("simulated failure after write")

	err := st.Atomic(ctx, func(tx *Tx) error {
		claimed, err := tx.MarkDeductionMapped("d1", "p1")
		require.NoError(t, err)
		require.True(t, claimed)

		if err := tx.InsertLedgerEntry(&models.LedgerEntry{
			VendorID: "V1", OrganizationID: "ORG1", BillingKeyPrimary: "PAY-1",
			BillingKeySecondary: "SC-1", KeySource: models.LedgerKeySource,
		}); err != nil {
			return err
		}

		return failure
	})
	require.ErrorIs(t, err, failure)

	// Both writes rolled back together.
	var record models.InvoiceRecord
	require.NoError(t, st.db.First(&record, "id = ?", "d1").Error)
	assert.Nil(t, record.PaymentRemittanceID)

	var count int64
	require.NoError(t, st.db.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTx_InvoiceRecordByID(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	seedRecord(t, st, &models.InvoiceRecord{
		ID: "d1", VendorKey: "V1", RootInvoiceNumber: "INV100", SubInvoiceNumber: "SC-1",
		InvoiceAmount: "-25.00", InvoiceCurrency: "USD", InvoiceDate: date(2024, 1, 15),
	})

	err := st.Atomic(ctx, func(tx *Tx) error {
		record, err := tx.InvoiceRecordByID("d1")
		require.NoError(t, err)
		assert.Equal(t, "V1|INV100", record.CompositeKey())

		_, err = tx.InvoiceRecordByID("missing")
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}
