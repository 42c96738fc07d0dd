// Package models defines the typed records the reconciliation engine operates on:
// invoice records (payments and deductions), case references, vendor profiles,
// and the ledger entries written for successful matches.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ClaimType represents the claim category encoded in a sub-invoice number.
type ClaimType string

const (
	// ClaimShortage marks a shortage claim ("SC" marker).
	ClaimShortage ClaimType = "SC"
	// ClaimPrice marks a price claim ("PC" marker).
	ClaimPrice ClaimType = "PC"
	// ClaimNone means the record carries no recognizable claim marker.
	ClaimNone ClaimType = ""
)

// String returns the string representation of ClaimType
func (c ClaimType) String() string {
	return string(c)
}

// IsValid checks if the claim type is one of the two matchable categories
func (c ClaimType) IsValid() bool {
	return c == ClaimShortage || c == ClaimPrice
}

// ClaimTypeOf extracts the claim type from a sub-invoice number. A record must
// carry exactly one of the two markers; a number containing neither marker, or
// both, has no claim type and can never take part in matching.
func ClaimTypeOf(subInvoiceNumber string) ClaimType {
	hasShortage := strings.Contains(subInvoiceNumber, string(ClaimShortage))
	hasPrice := strings.Contains(subInvoiceNumber, string(ClaimPrice))

	switch {
	case hasShortage && !hasPrice:
		return ClaimShortage
	case hasPrice && !hasShortage:
		return ClaimPrice
	default:
		return ClaimNone
	}
}

// InvoiceRecord represents a single invoice-level record in the ledger.
// Payments and deductions share this shape and are distinguished by the sign
// of the amount: payments are positive, deductions negative.
type InvoiceRecord struct {
	ID                string `gorm:"primaryKey;size:64" json:"id"`
	VendorKey         string `gorm:"size:64;index:idx_invoice_group" json:"vendorKey"`
	RootInvoiceNumber string `gorm:"size:64;index:idx_invoice_group" json:"rootInvoiceNumber"`
	SubInvoiceNumber  string `gorm:"size:64" json:"subInvoiceNumber"`

	// PaymentNumber is the external payment number assigned upstream. For
	// payments it feeds the primary billing key of the ledger entry.
	PaymentNumber string `gorm:"size:64" json:"paymentNumber"`

	// InvoiceAmount keeps the stored representation of the amount. Upstream
	// systems deliver it as text; AmountValue coerces it to a decimal and
	// treats non-numeric or missing values as zero.
	InvoiceAmount   string    `gorm:"size:32" json:"invoiceAmount"`
	InvoiceCurrency string    `gorm:"size:8;index" json:"invoiceCurrency"`
	InvoiceDate     time.Time `json:"invoiceDate"`

	// PaymentRemittanceID references the payment that settled this deduction.
	// Nil means unmapped. Once set it is never cleared by the engine.
	PaymentRemittanceID *string `gorm:"size:64;index" json:"paymentRemittanceId,omitempty"`

	// CaseID links a deduction to the case record that must be valid for the
	// deduction to be eligible. Payments carry no case link.
	CaseID *string `gorm:"size:64" json:"caseId,omitempty"`
}

// TableName overrides the table name
func (InvoiceRecord) TableName() string {
	return "invoice_records"
}

// AmountValue parses the stored amount into a decimal. Empty or non-numeric
// values coerce to zero rather than failing, matching upstream behavior.
func (r *InvoiceRecord) AmountValue() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(r.InvoiceAmount))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsPayment returns true if the record amount is positive
func (r *InvoiceRecord) IsPayment() bool {
	return r.AmountValue().IsPositive()
}

// IsDeduction returns true if the record amount is negative
func (r *InvoiceRecord) IsDeduction() bool {
	return r.AmountValue().IsNegative()
}

// IsMapped returns true if the record has already been settled by a payment
func (r *InvoiceRecord) IsMapped() bool {
	return r.PaymentRemittanceID != nil
}

// ClaimType extracts the claim category from the record's sub-invoice number
func (r *InvoiceRecord) ClaimType() ClaimType {
	return ClaimTypeOf(r.SubInvoiceNumber)
}

// CompositeKey returns the business key grouping an original invoice with its
// related claims: vendor identity plus root invoice number.
func (r *InvoiceRecord) CompositeKey() string {
	return r.VendorKey + "|" + r.RootInvoiceNumber
}

// Validate performs basic validation on the InvoiceRecord
func (r *InvoiceRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("invoice record ID cannot be empty")
	}

	if strings.TrimSpace(r.VendorKey) == "" {
		return fmt.Errorf("invoice record vendor key cannot be empty")
	}

	if strings.TrimSpace(r.InvoiceCurrency) == "" {
		return fmt.Errorf("invoice record currency cannot be empty")
	}

	if r.InvoiceDate.IsZero() {
		return fmt.Errorf("invoice record date cannot be zero")
	}

	return nil
}

// String returns a string representation of the InvoiceRecord
func (r *InvoiceRecord) String() string {
	return fmt.Sprintf("InvoiceRecord{ID: %s, Key: %s, Sub: %s, Amount: %s %s, Date: %s}",
		r.ID, r.CompositeKey(), r.SubInvoiceNumber, r.InvoiceAmount, r.InvoiceCurrency,
		r.InvoiceDate.Format("2006-01-02"))
}

// CaseReference is the validity record a deduction must resolve to before it
// may be matched. Valid is tri-state: nil means the validity was never
// assessed, which makes the owning deduction ineligible.
type CaseReference struct {
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	Valid    *bool  `json:"valid,omitempty"`
	VendorID string `gorm:"size:64;index" json:"vendorId"`
}

// TableName overrides the table name
func (CaseReference) TableName() string {
	return "case_references"
}

// HasValidity returns true if the validity flag was explicitly assessed
func (c *CaseReference) HasValidity() bool {
	return c.Valid != nil
}

// VendorProfile carries the billing attributes of a vendor: the organization
// it belongs to and the rate factor applied to matched amounts.
type VendorProfile struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	OrganizationID string          `gorm:"size:64" json:"organizationId"`
	RateFactor     decimal.Decimal `gorm:"type:numeric(12,6)" json:"rateFactor"`
}

// TableName overrides the table name
func (VendorProfile) TableName() string {
	return "vendor_profiles"
}

// LedgerKeySource tags ledger entries created by this engine, separating them
// from entries other billing origins write under the same key columns.
const LedgerKeySource = "CLAIM_RECONCILER"

// LedgerEntry is the durable billing record created once per successful match.
// The five key columns form the idempotence key: at most one entry may exist
// per tuple, enforced by a unique index and the writer's check-then-insert.
type LedgerEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	VendorID            string `gorm:"size:64;uniqueIndex:idx_ledger_key" json:"vendorId"`
	OrganizationID      string `gorm:"size:64;uniqueIndex:idx_ledger_key" json:"organizationId"`
	BillingKeyPrimary   string `gorm:"size:64;uniqueIndex:idx_ledger_key" json:"billingKeyPrimary"`
	BillingKeySecondary string `gorm:"size:64;uniqueIndex:idx_ledger_key" json:"billingKeySecondary"`
	KeySource           string `gorm:"size:32;uniqueIndex:idx_ledger_key" json:"keySource"`

	RawAmount      decimal.Decimal `gorm:"type:numeric(14,4)" json:"rawAmount"`
	Currency       string          `gorm:"size:8" json:"currency"`
	BillableAmount decimal.Decimal `gorm:"type:numeric(14,4)" json:"billableAmount"`
	Description    string          `gorm:"size:255" json:"description"`
	CaseID         string          `gorm:"size:64" json:"caseId"`
	CreatedAt      time.Time       `json:"createdAt"`
	CreatedBy      string          `gorm:"size:64" json:"createdBy"`
}

// TableName overrides the table name
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// LedgerKey identifies a ledger entry for idempotence lookups
type LedgerKey struct {
	VendorID            string
	OrganizationID      string
	BillingKeyPrimary   string
	BillingKeySecondary string
	KeySource           string
}

// LedgerKeyFor builds the idempotence key for a payment settled under the
// given vendor: the vendor and organization identity plus the payment's
// external payment number and invoice number.
func LedgerKeyFor(payment *InvoiceRecord, vendor *VendorProfile) LedgerKey {
	return LedgerKey{
		VendorID:            vendor.ID,
		OrganizationID:      vendor.OrganizationID,
		BillingKeyPrimary:   payment.PaymentNumber,
		BillingKeySecondary: payment.SubInvoiceNumber,
		KeySource:           LedgerKeySource,
	}
}

// ComputeBillableAmount derives the billable amount for a matched payment:
// the raw amount multiplied by the vendor rate factor, fixed 4-decimal
// precision.
func ComputeBillableAmount(raw, rateFactor decimal.Decimal) decimal.Decimal {
	return raw.Mul(rateFactor).Round(4)
}
