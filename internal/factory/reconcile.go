package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/subforge-io/subforge/internal/host"
	"github.com/subforge-io/subforge/internal/ledger"
	"github.com/subforge-io/subforge/internal/logging"
)

// Summary reports what a reconcile or sweep pass did.
type Summary struct {
	Activated int
	Failed    int
	Orphaned  int
	Skipped   int
}

// Reconcile collects outstanding receipts from the host and resolves the
// matching pending records. Receipts for unknown or already-resolved records
// are logged and skipped, so re-delivery is harmless. Failed deployments
// refund the deposit to the record's owner when the host can move funds.
func (s *Service) Reconcile(ctx context.Context) (Summary, error) {
	var sum Summary

	receipts, err := s.host.CollectReceipts(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to collect receipts: %w", err)
	}

	for _, r := range receipts {
		rec, ok := s.ledger.Get(r.CallID)
		if !ok {
			logging.Warn("receipt for unknown record", "id", r.CallID)
			sum.Skipped++
			continue
		}

		switch r.Outcome {
		case host.OutcomeSuccess:
			// A receipt that cannot yield a usable address is a delivery
			// fault: skip it and leave the record for the sweep. Failing the
			// whole pass here would lose the rest of the drained batch.
			var result host.DeployResult
			if err := json.Unmarshal(r.Result, &result); err != nil {
				logging.Error("receipt carries malformed result", "id", r.CallID, "error", err)
				sum.Skipped++
				continue
			}
			if result.Address == "" {
				logging.Error("receipt carries no deployed address", "id", r.CallID)
				sum.Skipped++
				continue
			}
			if _, err := s.ledger.Resolve(r.CallID, ledger.StateActive, result.Address, r.Height); err != nil {
				if errors.Is(err, ledger.ErrAlreadyResolved) {
					logging.Warn("ignoring receipt for resolved record", "id", r.CallID, "state", rec.State)
					sum.Skipped++
					continue
				}
				return sum, err
			}
			logging.Info("resource activated", "id", r.CallID, "address", result.Address)
			sum.Activated++

		case host.OutcomeFailure:
			if _, err := s.ledger.Resolve(r.CallID, ledger.StateFailed, "", r.Height); err != nil {
				if errors.Is(err, ledger.ErrAlreadyResolved) {
					logging.Warn("ignoring receipt for resolved record", "id", r.CallID, "state", rec.State)
					sum.Skipped++
					continue
				}
				return sum, err
			}
			logging.Info("resource deployment failed", "id", r.CallID, "reason", r.FailureReason)
			s.refund(ctx, rec)
			sum.Failed++

		default:
			logging.Warn("receipt carries unknown outcome", "id", r.CallID, "outcome", r.Outcome)
			sum.Skipped++
		}
	}
	return sum, nil
}

// refund returns the deposit of a failed deployment to its owner. The host
// has already bounced the deposit back to the factory account; hosts without
// native balances skip the refund.
func (s *Service) refund(ctx context.Context, rec *ledger.Record) {
	bank, ok := s.host.(host.Bank)
	if !ok {
		logging.Debug("host has no balances, skipping refund", "id", rec.ID)
		return
	}
	if rec.Deposit == 0 {
		return
	}
	if err := bank.Transfer(ctx, s.account, rec.Owner, rec.Deposit); err != nil {
		logging.Error("failed to refund deposit", "id", rec.ID, "owner", rec.Owner,
			"amount", rec.Deposit, "error", err)
		return
	}
	logging.Info("refunded deposit", "id", rec.ID, "owner", rec.Owner, "amount", rec.Deposit)
}

// Sweep marks pending records older than the orphan threshold as orphaned.
// A stalled deploy call never produces a receipt, so without the sweep such
// records would stay pending forever.
func (s *Service) Sweep(ctx context.Context) (Summary, error) {
	var sum Summary

	height, err := s.host.Height(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to read host height: %w", err)
	}

	for _, rec := range s.ledger.Pending() {
		if height < rec.CreatedAt || height-rec.CreatedAt < s.orphanAfter {
			continue
		}
		if _, err := s.ledger.Resolve(rec.ID, ledger.StateOrphaned, "", height); err != nil {
			if errors.Is(err, ledger.ErrAlreadyResolved) {
				continue
			}
			return sum, err
		}
		logging.Warn("orphaned stalled deployment", "id", rec.ID, "pending_since", rec.CreatedAt)
		sum.Orphaned++
	}
	return sum, nil
}
