package matcher

import (
	"claims-reconciliation-service/internal/models"
)

// DeductionIndex groups unmapped deduction records by their composite business
// key (vendor identity + root invoice number), enabling O(1) candidate
// retrieval per payment. The original relative order of deductions within each
// group is preserved: candidate order is the tie-break rule, first eligible
// wins.
type DeductionIndex struct {
	groups map[string][]*models.InvoiceRecord
	total  int
}

// BuildDeductionIndex builds an index over the given deductions. The input
// slice is not modified; building has no side effects.
func BuildDeductionIndex(deductions []*models.InvoiceRecord) *DeductionIndex {
	index := &DeductionIndex{
		groups: make(map[string][]*models.InvoiceRecord),
	}

	for _, d := range deductions {
		key := d.CompositeKey()
		index.groups[key] = append(index.groups[key], d)
		index.total++
	}

	return index
}

// Group returns the candidate deductions sharing the given composite key, in
// their original order. Returns nil when no deductions carry the key.
func (di *DeductionIndex) Group(key string) []*models.InvoiceRecord {
	return di.groups[key]
}

// Remove drops a consumed deduction from its group so it cannot be selected
// for a later payment in the same run.
func (di *DeductionIndex) Remove(key, deductionID string) {
	group, exists := di.groups[key]
	if !exists {
		return
	}

	for i, d := range group {
		if d.ID == deductionID {
			di.groups[key] = append(group[:i], group[i+1:]...)
			di.total--
			break
		}
	}

	if len(di.groups[key]) == 0 {
		delete(di.groups, key)
	}
}

// Len returns the number of deductions currently indexed
func (di *DeductionIndex) Len() int {
	return di.total
}

// GroupCount returns the number of distinct composite keys
func (di *DeductionIndex) GroupCount() int {
	return len(di.groups)
}
