// Package store implements the data-access layer the reconciliation engine
// depends on: filtered record queries, batch reference resolution, and a
// transactional unit of work with conditional updates and idempotent inserts.
// Backed by GORM; production runs use postgres, tests use in-memory sqlite.
package store

import (
	"context"
	"strings"

	"claims-reconciliation-service/internal/models"
	apperrors "claims-reconciliation-service/pkg/errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds connection options for the store
type Config struct {
	DatabaseURL string
	AutoMigrate bool
}

// Validate validates the store configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return apperrors.ConfigError(apperrors.CodeMissingConfig, "database URL is required")
	}
	return nil
}

// Store provides access to invoice records, case references, vendor profiles
// and ledger entries
type Store struct {
	db *gorm.DB
}

// Open establishes a postgres session and optionally migrates the schema.
// A connection failure here is fatal for the whole run.
func Open(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperrors.SetupError(err, "postgres connection")
	}

	store := &Store{db: db}

	if cfg.AutoMigrate {
		if err := store.Migrate(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// NewWithDB wraps an existing GORM session. Used by tests to run against an
// in-memory sqlite database.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema for all engine models
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&models.InvoiceRecord{},
		&models.CaseReference{},
		&models.VendorProfile{},
		&models.LedgerEntry{},
	)
	if err != nil {
		return apperrors.MigrationError(err)
	}
	return nil
}

// unmappedRecords loads all records without a remittance mapping for the
// given currency, ordered by invoice date then ID. Sign classification
// happens in Go: amounts are stored as text and may be non-numeric, so a SQL
// cast could abort the whole query over one malformed row.
func (s *Store) unmappedRecords(ctx context.Context, currency, operation string) ([]*models.InvoiceRecord, error) {
	var records []*models.InvoiceRecord

	err := s.db.WithContext(ctx).
		Where("payment_remittance_id IS NULL").
		Where("invoice_currency = ?", currency).
		Order("invoice_date ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.QueryError(operation, err)
	}

	return records, nil
}

// UnmappedPayments loads positive-amount records without a remittance mapping
// for the given currency, ordered by invoice date then ID. That ordering
// defines the sequence in which the engine processes payments. Records whose
// amount coerces to zero are neither payments nor deductions and are dropped.
func (s *Store) UnmappedPayments(ctx context.Context, currency string) ([]*models.InvoiceRecord, error) {
	records, err := s.unmappedRecords(ctx, currency, "unmapped payments")
	if err != nil {
		return nil, err
	}

	payments := make([]*models.InvoiceRecord, 0, len(records))
	for _, r := range records {
		if r.IsPayment() {
			payments = append(payments, r)
		}
	}

	return payments, nil
}

// UnmappedDeductions loads negative-amount records without a remittance
// mapping for the given currency, ordered by invoice date then ID. That
// ordering defines candidate order within index groups, which is the
// engine's tie-break rule.
func (s *Store) UnmappedDeductions(ctx context.Context, currency string) ([]*models.InvoiceRecord, error) {
	records, err := s.unmappedRecords(ctx, currency, "unmapped deductions")
	if err != nil {
		return nil, err
	}

	deductions := make([]*models.InvoiceRecord, 0, len(records))
	for _, r := range records {
		if r.IsDeduction() {
			deductions = append(deductions, r)
		}
	}

	return deductions, nil
}

// CasesByIDs batch-loads case references into a map keyed by case ID.
// Missing IDs are simply absent from the result.
func (s *Store) CasesByIDs(ctx context.Context, ids []string) (map[string]*models.CaseReference, error) {
	result := make(map[string]*models.CaseReference, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var cases []*models.CaseReference
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&cases).Error; err != nil {
		return nil, apperrors.QueryError("cases by ids", err)
	}

	for _, c := range cases {
		result[c.ID] = c
	}

	return result, nil
}

// VendorsByIDs batch-loads vendor profiles into a map keyed by vendor ID.
// Missing IDs are simply absent from the result.
func (s *Store) VendorsByIDs(ctx context.Context, ids []string) (map[string]*models.VendorProfile, error) {
	result := make(map[string]*models.VendorProfile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var vendors []*models.VendorProfile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&vendors).Error; err != nil {
		return nil, apperrors.QueryError("vendors by ids", err)
	}

	for _, v := range vendors {
		result[v.ID] = v
	}

	return result, nil
}

// Atomic runs fn inside a database transaction. All writes performed through
// the Tx commit together; any error returned by fn rolls everything back.
// This is the sole concurrency boundary of the engine.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db})
	})
}

// Tx is the transactional view of the store, only valid inside Atomic
type Tx struct {
	db *gorm.DB
}

// InvoiceRecordByID reloads a record inside the transaction, so eligibility
// can be re-validated against live state instead of a stale read.
func (t *Tx) InvoiceRecordByID(id string) (*models.InvoiceRecord, error) {
	var record models.InvoiceRecord
	if err := t.db.Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkDeductionMapped sets the deduction's remittance reference to the
// payment, conditioned on the deduction still being unmapped. Returns false
// when the row was already claimed; first committer wins, the second no-ops.
func (t *Tx) MarkDeductionMapped(deductionID, paymentID string) (bool, error) {
	result := t.db.Model(&models.InvoiceRecord{}).
		Where("id = ? AND payment_remittance_id IS NULL", deductionID).
		Update("payment_remittance_id", paymentID)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// FindLedgerEntry looks up an existing entry by its idempotence key.
// Returns nil without error when no entry exists. The condition is built as
// a map so empty key components still participate in the match; a struct
// condition would drop them and match unrelated entries.
func (t *Tx) FindLedgerEntry(key models.LedgerKey) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := t.db.Where(map[string]interface{}{
		"vendor_id":             key.VendorID,
		"organization_id":       key.OrganizationID,
		"billing_key_primary":   key.BillingKeyPrimary,
		"billing_key_secondary": key.BillingKeySecondary,
		"key_source":            key.KeySource,
	}).First(&entry).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// InsertLedgerEntry creates a new ledger entry inside the transaction
func (t *Tx) InsertLedgerEntry(entry *models.LedgerEntry) error {
	return t.db.Create(entry).Error
}
