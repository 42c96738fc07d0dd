package reconciler

import (
	"context"

	"claims-reconciliation-service/internal/matcher"
	"claims-reconciliation-service/internal/models"
	"claims-reconciliation-service/internal/store"
)

// ContextResolver resolves the case and vendor records a deduction depends
// on. The boolean result reports whether the resolved context is complete
// enough for matching; an incomplete context is an ineligibility, not an
// error.
type ContextResolver interface {
	Resolve(deduction *models.InvoiceRecord) (*matcher.CaseContext, bool)
}

// PrefetchedResolver resolves case contexts from maps loaded in bulk before
// matching starts. Prefetching trades two batch queries for zero per-pair
// I/O during the matching loop.
type PrefetchedResolver struct {
	cases   map[string]*models.CaseReference
	vendors map[string]*models.VendorProfile
}

// NewPrefetchedResolver creates a resolver over already-loaded reference maps
func NewPrefetchedResolver(cases map[string]*models.CaseReference, vendors map[string]*models.VendorProfile) *PrefetchedResolver {
	return &PrefetchedResolver{
		cases:   cases,
		vendors: vendors,
	}
}

// BuildPrefetchedResolver batch-loads every case referenced by the given
// deductions, then every vendor owning one of those cases.
func BuildPrefetchedResolver(ctx context.Context, st *store.Store, deductions []*models.InvoiceRecord) (*PrefetchedResolver, error) {
	caseIDs := make([]string, 0, len(deductions))
	seenCases := make(map[string]struct{}, len(deductions))

	for _, d := range deductions {
		if d.CaseID == nil {
			continue
		}
		if _, dup := seenCases[*d.CaseID]; dup {
			continue
		}
		seenCases[*d.CaseID] = struct{}{}
		caseIDs = append(caseIDs, *d.CaseID)
	}

	cases, err := st.CasesByIDs(ctx, caseIDs)
	if err != nil {
		return nil, err
	}

	vendorIDs := make([]string, 0, len(cases))
	seenVendors := make(map[string]struct{}, len(cases))

	for _, c := range cases {
		if c.VendorID == "" {
			continue
		}
		if _, dup := seenVendors[c.VendorID]; dup {
			continue
		}
		seenVendors[c.VendorID] = struct{}{}
		vendorIDs = append(vendorIDs, c.VendorID)
	}

	vendors, err := st.VendorsByIDs(ctx, vendorIDs)
	if err != nil {
		return nil, err
	}

	return NewPrefetchedResolver(cases, vendors), nil
}

// Resolve implements ContextResolver. Missing case links, case records or
// vendor records resolve to an incomplete context.
func (r *PrefetchedResolver) Resolve(deduction *models.InvoiceRecord) (*matcher.CaseContext, bool) {
	if deduction.CaseID == nil {
		return nil, false
	}

	caseRef, exists := r.cases[*deduction.CaseID]
	if !exists {
		return nil, false
	}

	vendor := r.vendors[caseRef.VendorID]

	caseCtx := &matcher.CaseContext{
		Case:   caseRef,
		Vendor: vendor,
	}

	return caseCtx, caseCtx.Complete()
}
