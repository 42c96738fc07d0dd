// Package reconciler orchestrates one batch reconciliation run: it walks the
// unmapped payments in order, pulls candidate deductions from the index,
// applies the ambiguity guard and eligibility rules, and hands confirmed
// pairs to the ledger writer for an atomic commit.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"claims-reconciliation-service/internal/matcher"
	"claims-reconciliation-service/internal/models"
	"claims-reconciliation-service/pkg/logger"
)

// Engine drives a single reconciliation run. It holds no state between runs;
// all tallies live in the RunReport returned by Run.
type Engine struct {
	writer LedgerWriter
	log    logger.Logger
}

// NewEngine creates a reconciliation engine over the given ledger writer
func NewEngine(writer LedgerWriter, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}

	return &Engine{
		writer: writer,
		log:    log.WithComponent("engine"),
	}
}

// FailedPair records a match attempt whose atomic unit failed. The pair is
// treated as unmatched; the failure never aborts the run.
type FailedPair struct {
	PaymentID   string `json:"paymentId"`
	DeductionID string `json:"deductionId"`
	Reason      string `json:"reason"`
}

// RunReport aggregates the outcome of one reconciliation run
type RunReport struct {
	PaymentsSeen    int `json:"paymentsSeen"`
	PaymentsMatched int `json:"paymentsMatched"`
	SkippedNoClaim  int `json:"skippedNoClaim"`

	// AmbiguousKeys lists composite keys whose deduction groups contained
	// duplicate amounts and therefore need manual review.
	AmbiguousKeys []string `json:"ambiguousKeys,omitempty"`

	FailedPairs []FailedPair `json:"failedPairs,omitempty"`

	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Summary returns a one-line human-readable summary of the run
func (r *RunReport) Summary() string {
	return fmt.Sprintf("processed %d payments, matched %d, skipped %d without claim marker, %d ambiguous groups, %d failed attempts in %v",
		r.PaymentsSeen, r.PaymentsMatched, r.SkippedNoClaim,
		len(r.AmbiguousKeys), len(r.FailedPairs), r.Elapsed.Round(time.Millisecond))
}

func (r *RunReport) addAmbiguousKey(key string) {
	for _, k := range r.AmbiguousKeys {
		if k == key {
			return
		}
	}
	r.AmbiguousKeys = append(r.AmbiguousKeys, key)
}

// Run reconciles the given payments against the deduction index. Payments
// are processed in input order; within a group, candidates are tried in
// their original order and the first successful commit wins. A consumed
// deduction is removed from the index so no later payment can select it.
//
// Individual match failures are contained and tallied. Run only returns an
// error when the context is cancelled mid-run.
func (e *Engine) Run(ctx context.Context, payments []*models.InvoiceRecord, index *matcher.DeductionIndex) (*RunReport, error) {
	report := &RunReport{StartedAt: time.Now()}

	e.log.WithFields(logger.Fields{
		"payments":   len(payments),
		"deductions": index.Len(),
		"groups":     index.GroupCount(),
	}).Info("starting reconciliation run")

	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(report.StartedAt)
			return report, err
		}

		report.PaymentsSeen++

		if !payment.ClaimType().IsValid() {
			report.SkippedNoClaim++
			e.log.WithField("payment_id", payment.ID).
				Debug("payment carries no claim marker, skipping")
			continue
		}

		key := payment.CompositeKey()

		group := index.Group(key)
		if len(group) == 0 {
			continue
		}

		if matcher.HasAmbiguousAmounts(group) {
			report.addAmbiguousKey(key)
			e.log.WithFields(logger.Fields{
				"payment_id":    payment.ID,
				"composite_key": key,
				"candidates":    len(group),
			}).Warn("duplicate amounts in deduction group, manual review required")
			continue
		}

		e.matchPayment(ctx, payment, key, group, index, report)
	}

	report.Elapsed = time.Since(report.StartedAt)

	e.log.Info(report.Summary())

	return report, nil
}

// matchPayment tries candidates for one payment in order, stopping at the
// first successful commit. At most one deduction is consumed per payment.
func (e *Engine) matchPayment(ctx context.Context, payment *models.InvoiceRecord, key string, group []*models.InvoiceRecord, index *matcher.DeductionIndex, report *RunReport) {
	for _, deduction := range group {
		// Cheap filter before attempting the transactional commit.
		if deduction.InvoiceDate.After(payment.InvoiceDate) {
			continue
		}

		matched, err := e.writer.AttemptMatch(ctx, payment, deduction)
		if err != nil {
			report.FailedPairs = append(report.FailedPairs, FailedPair{
				PaymentID:   payment.ID,
				DeductionID: deduction.ID,
				Reason:      err.Error(),
			})
			e.log.WithError(err).WithFields(logger.Fields{
				"payment_id":   payment.ID,
				"deduction_id": deduction.ID,
			}).Warn("match attempt failed, continuing")
			continue
		}

		if matched {
			index.Remove(key, deduction.ID)
			report.PaymentsMatched++
			e.log.WithFields(logger.Fields{
				"payment_id":   payment.ID,
				"deduction_id": deduction.ID,
			}).Debug("payment matched")
			return
		}
	}
}
