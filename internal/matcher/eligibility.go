// Package matcher decides which payment/deduction pairs are allowed to match.
// It provides the deduction index, the pure eligibility rules, and the
// duplicate-amount ambiguity guard. All decisions here are boolean gates:
// there is no scoring and no tolerance, the first eligible candidate wins.
package matcher

import (
	"claims-reconciliation-service/internal/models"
)

// CaseContext carries the case and vendor records a deduction resolved to.
// How the records were loaded (eager join or batch prefetch) is an I/O
// decision made by the caller; eligibility only looks at the content.
type CaseContext struct {
	Case   *models.CaseReference
	Vendor *models.VendorProfile
}

// Complete reports whether the context is sufficient for matching: the case
// exists with an explicitly assessed validity flag, and its owning vendor
// exists with an organization identifier. Anything missing makes the
// deduction ineligible, it is not an error.
func (cc *CaseContext) Complete() bool {
	if cc == nil || cc.Case == nil || cc.Vendor == nil {
		return false
	}

	if !cc.Case.HasValidity() {
		return false
	}

	return cc.Vendor.OrganizationID != ""
}

// Eligible reports whether the payment may settle the deduction. All rules
// must hold:
//
//  1. Both records carry exactly one claim marker (SC or PC).
//  2. The claim types are symmetric: shortage settles shortage, price
//     settles price.
//  3. The payment amount equals the absolute deduction amount, compared as
//     exact decimals. No tolerance.
//  4. The deduction is not dated after the payment.
//  5. The deduction resolves to a complete case context.
func Eligible(payment, deduction *models.InvoiceRecord, caseCtx *CaseContext) bool {
	paymentClaim := payment.ClaimType()
	if !paymentClaim.IsValid() {
		return false
	}

	deductionClaim := deduction.ClaimType()
	if !deductionClaim.IsValid() {
		return false
	}

	if paymentClaim != deductionClaim {
		return false
	}

	if !payment.AmountValue().Equal(deduction.AmountValue().Abs()) {
		return false
	}

	if deduction.InvoiceDate.After(payment.InvoiceDate) {
		return false
	}

	return caseCtx.Complete()
}

// HasAmbiguousAmounts scans a deduction group once and reports whether two
// deductions in it carry the same amount. A payment offsetting such a group
// cannot be attributed to one specific deduction, so the whole group is
// excluded from auto-matching and flagged for manual review.
func HasAmbiguousAmounts(group []*models.InvoiceRecord) bool {
	seen := make(map[string]struct{}, len(group))

	for _, d := range group {
		amountKey := d.AmountValue().String()
		if _, exists := seen[amountKey]; exists {
			return true
		}
		seen[amountKey] = struct{}{}
	}

	return false
}
