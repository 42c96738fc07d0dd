package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClaimTypeOf(t *testing.T) {
	tests := []struct {
		name     string
		sub      string
		expected ClaimType
	}{
		{"shortage claim", "SC-001", ClaimShortage},
		{"price claim", "PC-001", ClaimPrice},
		{"shortage marker embedded", "INV-SC-7", ClaimShortage},
		{"price marker embedded", "INV-PC-7", ClaimPrice},
		{"no marker", "INV-001", ClaimNone},
		{"empty", "", ClaimNone},
		{"both markers", "SC-PC-001", ClaimNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClaimTypeOf(tt.sub); got != tt.expected {
				t.Errorf("ClaimTypeOf(%q) = %q, expected %q", tt.sub, got, tt.expected)
			}
		})
	}
}

func TestClaimType_IsValid(t *testing.T) {
	if !ClaimShortage.IsValid() {
		t.Error("Expected shortage claim to be valid")
	}

	if !ClaimPrice.IsValid() {
		t.Error("Expected price claim to be valid")
	}

	if ClaimNone.IsValid() {
		t.Error("Expected empty claim type to be invalid")
	}
}

func TestInvoiceRecord_AmountValue(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		expected string
	}{
		{"positive amount", "25.00", "25"},
		{"negative amount", "-25.00", "-25"},
		{"with whitespace", " 100.50 ", "100.5"},
		{"empty coerces to zero", "", "0"},
		{"non-numeric coerces to zero", "abc", "0"},
		{"high precision", "100.0001", "100.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &InvoiceRecord{InvoiceAmount: tt.amount}
			expected, _ := decimal.NewFromString(tt.expected)
			if !record.AmountValue().Equal(expected) {
				t.Errorf("AmountValue() = %s, expected %s", record.AmountValue(), expected)
			}
		})
	}
}

func TestInvoiceRecord_Sign(t *testing.T) {
	payment := &InvoiceRecord{InvoiceAmount: "25.00"}
	if !payment.IsPayment() {
		t.Error("Expected positive record to be a payment")
	}
	if payment.IsDeduction() {
		t.Error("Expected positive record not to be a deduction")
	}

	deduction := &InvoiceRecord{InvoiceAmount: "-25.00"}
	if !deduction.IsDeduction() {
		t.Error("Expected negative record to be a deduction")
	}
	if deduction.IsPayment() {
		t.Error("Expected negative record not to be a payment")
	}

	// Non-numeric amounts coerce to zero, which is neither sign.
	broken := &InvoiceRecord{InvoiceAmount: "n/a"}
	if broken.IsPayment() || broken.IsDeduction() {
		t.Error("Expected zero-coerced record to be neither payment nor deduction")
	}
}

func TestInvoiceRecord_CompositeKey(t *testing.T) {
	record := &InvoiceRecord{
		VendorKey:         "V1",
		RootInvoiceNumber: "INV100",
	}

	if got := record.CompositeKey(); got != "V1|INV100" {
		t.Errorf("CompositeKey() = %q, expected %q", got, "V1|INV100")
	}
}

func TestInvoiceRecord_IsMapped(t *testing.T) {
	record := &InvoiceRecord{}
	if record.IsMapped() {
		t.Error("Expected record without remittance reference to be unmapped")
	}

	paymentID := "1"
	record.PaymentRemittanceID = &paymentID
	if !record.IsMapped() {
		t.Error("Expected record with remittance reference to be mapped")
	}
}

func TestInvoiceRecord_Validate(t *testing.T) {
	valid := &InvoiceRecord{
		ID:              "1",
		VendorKey:       "V1",
		InvoiceCurrency: "USD",
		InvoiceDate:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid record, got error: %v", err)
	}

	missingID := &InvoiceRecord{VendorKey: "V1", InvoiceCurrency: "USD", InvoiceDate: time.Now()}
	if err := missingID.Validate(); err == nil {
		t.Error("Expected validation error for missing ID")
	}

	missingCurrency := &InvoiceRecord{ID: "1", VendorKey: "V1", InvoiceDate: time.Now()}
	if err := missingCurrency.Validate(); err == nil {
		t.Error("Expected validation error for missing currency")
	}

	zeroDate := &InvoiceRecord{ID: "1", VendorKey: "V1", InvoiceCurrency: "USD"}
	if err := zeroDate.Validate(); err == nil {
		t.Error("Expected validation error for zero date")
	}
}

func TestCaseReference_HasValidity(t *testing.T) {
	unassessed := &CaseReference{ID: "C1"}
	if unassessed.HasValidity() {
		t.Error("Expected case without validity flag to report no validity")
	}

	valid := true
	assessed := &CaseReference{ID: "C1", Valid: &valid}
	if !assessed.HasValidity() {
		t.Error("Expected case with validity flag to report validity")
	}

	// Explicitly invalid still counts as assessed.
	invalid := false
	assessedInvalid := &CaseReference{ID: "C1", Valid: &invalid}
	if !assessedInvalid.HasValidity() {
		t.Error("Expected explicitly invalid case to report validity was assessed")
	}
}

func TestComputeBillableAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		rate     string
		expected string
	}{
		{"simple product", "25.00", "0.05", "1.25"},
		{"rounds to four decimals", "33.33", "0.0151", "0.5033"},
		{"rounds half away from zero", "2.5", "0.0001", "0.0003"},
		{"zero rate", "25.00", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := decimal.NewFromString(tt.raw)
			rate, _ := decimal.NewFromString(tt.rate)
			expected, _ := decimal.NewFromString(tt.expected)

			if got := ComputeBillableAmount(raw, rate); !got.Equal(expected) {
				t.Errorf("ComputeBillableAmount(%s, %s) = %s, expected %s",
					tt.raw, tt.rate, got, expected)
			}
		})
	}
}

func TestLedgerKeyFor(t *testing.T) {
	payment := &InvoiceRecord{
		ID:               "1",
		PaymentNumber:    "PAY-42",
		SubInvoiceNumber: "SC-7",
	}
	vendor := &VendorProfile{
		ID:             "V1",
		OrganizationID: "ORG1",
	}

	key := LedgerKeyFor(payment, vendor)

	if key.VendorID != "V1" {
		t.Errorf("Expected vendor ID V1, got %s", key.VendorID)
	}
	if key.OrganizationID != "ORG1" {
		t.Errorf("Expected organization ID ORG1, got %s", key.OrganizationID)
	}
	if key.BillingKeyPrimary != "PAY-42" {
		t.Errorf("Expected primary billing key PAY-42, got %s", key.BillingKeyPrimary)
	}
	if key.BillingKeySecondary != "SC-7" {
		t.Errorf("Expected secondary billing key SC-7, got %s", key.BillingKeySecondary)
	}
	if key.KeySource != LedgerKeySource {
		t.Errorf("Expected key source %s, got %s", LedgerKeySource, key.KeySource)
	}
}
