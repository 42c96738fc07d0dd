package reconciler

import (
	"context"
	"fmt"

	"claims-reconciliation-service/internal/matcher"
	"claims-reconciliation-service/internal/models"
	"claims-reconciliation-service/internal/store"
	apperrors "claims-reconciliation-service/pkg/errors"
	"claims-reconciliation-service/pkg/logger"
)

// LedgerWriter converts a confirmed candidate pair into durable writes.
// AttemptMatch returns (false, nil) when the pair is simply ineligible and a
// non-nil error only when the atomic unit itself failed; either way the
// engine moves on to the next candidate.
type LedgerWriter interface {
	AttemptMatch(ctx context.Context, payment, deduction *models.InvoiceRecord) (bool, error)
}

// StoreLedgerWriter commits matches against the backing store. Each call is a
// single transaction: mark the deduction consumed, then insert the ledger
// entry unless an equivalent one already exists. Failure rolls back both.
type StoreLedgerWriter struct {
	store     *store.Store
	resolver  ContextResolver
	createdBy string
	log       logger.Logger
}

// NewStoreLedgerWriter creates a ledger writer over the given store
func NewStoreLedgerWriter(st *store.Store, resolver ContextResolver, createdBy string, log logger.Logger) *StoreLedgerWriter {
	if log == nil {
		log = logger.Discard()
	}

	return &StoreLedgerWriter{
		store:     st,
		resolver:  resolver,
		createdBy: createdBy,
		log:       log.WithComponent("ledger-writer"),
	}
}

// AttemptMatch validates the pair and, if eligible, commits the match as one
// atomic unit of work:
//
//  1. Reload the deduction and re-validate full eligibility against live
//     state, so a stale read cannot drive a write.
//  2. Conditionally set the deduction's remittance reference. Zero rows
//     affected means another run claimed it first; abandon without error.
//  3. Look up the ledger entry by idempotence key; insert one only if
//     absent. An existing entry is treated as already-recorded success.
func (w *StoreLedgerWriter) AttemptMatch(ctx context.Context, payment, deduction *models.InvoiceRecord) (bool, error) {
	caseCtx, ok := w.resolver.Resolve(deduction)
	if !ok {
		return false, nil
	}

	if !matcher.Eligible(payment, deduction, caseCtx) {
		return false, nil
	}

	matched := false

	err := w.store.Atomic(ctx, func(tx *store.Tx) error {
		fresh, err := tx.InvoiceRecordByID(deduction.ID)
		if err != nil {
			return err
		}

		if fresh.IsMapped() {
			w.log.WithField("deduction_id", fresh.ID).
				Debug("deduction already mapped, abandoning attempt")
			return nil
		}

		if !matcher.Eligible(payment, fresh, caseCtx) {
			return nil
		}

		claimed, err := tx.MarkDeductionMapped(fresh.ID, payment.ID)
		if err != nil {
			return err
		}
		if !claimed {
			// Lost the race against a concurrent run.
			return nil
		}

		key := models.LedgerKeyFor(payment, caseCtx.Vendor)

		existing, err := tx.FindLedgerEntry(key)
		if err != nil {
			return err
		}

		if existing == nil {
			rawAmount := payment.AmountValue()
			entry := &models.LedgerEntry{
				VendorID:            key.VendorID,
				OrganizationID:      key.OrganizationID,
				BillingKeyPrimary:   key.BillingKeyPrimary,
				BillingKeySecondary: key.BillingKeySecondary,
				KeySource:           key.KeySource,
				RawAmount:           rawAmount,
				Currency:            payment.InvoiceCurrency,
				BillableAmount:      models.ComputeBillableAmount(rawAmount, caseCtx.Vendor.RateFactor),
				Description:         fmt.Sprintf("Claim settlement for invoice %s", payment.SubInvoiceNumber),
				CaseID:              caseCtx.Case.ID,
				CreatedBy:           w.createdBy,
			}

			if err := tx.InsertLedgerEntry(entry); err != nil {
				return err
			}
		} else {
			w.log.WithFields(logger.Fields{
				"payment_id": payment.ID,
				"ledger_id":  existing.ID,
			}).Debug("ledger entry already recorded, skipping insert")
		}

		matched = true
		return nil
	})

	if err != nil {
		return false, apperrors.MatchAttemptError(payment.ID, deduction.ID, err)
	}

	return matched, nil
}

// DryRunLedgerWriter evaluates eligibility without touching the store.
// Used by dry runs to preview what a real run would match.
type DryRunLedgerWriter struct {
	resolver ContextResolver
}

// NewDryRunLedgerWriter creates a writer that commits nothing
func NewDryRunLedgerWriter(resolver ContextResolver) *DryRunLedgerWriter {
	return &DryRunLedgerWriter{resolver: resolver}
}

// AttemptMatch reports whether the pair would match, with no side effects
func (w *DryRunLedgerWriter) AttemptMatch(_ context.Context, payment, deduction *models.InvoiceRecord) (bool, error) {
	caseCtx, ok := w.resolver.Resolve(deduction)
	if !ok {
		return false, nil
	}

	return matcher.Eligible(payment, deduction, caseCtx), nil
}
