// Package ledger owns every balance-affecting operation. Balances are
// never written directly: each mutation appends a ledger entry and
// adjusts the account inside the same transaction, and the partial
// unique indexes on (job_id, kind) make charge and refund at-most-once.
package ledger

import (
	"context"
	"fmt"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

type Ledger struct {
	SQL    infra.TxRunner
	Logger infra.Logger
}

func New(sql infra.TxRunner, logger infra.Logger) *Ledger {
	return &Ledger{SQL: sql, Logger: logger}
}

// Balance returns the owner's spendable balance; owners without an
// account row simply have zero credit.
func (l *Ledger) Balance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	row := l.SQL.QueryRow(ctx, sqlinline.QSelectBalance, ownerID)
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger: read balance: %w", err)
	}
	return balance, nil
}

// HasSufficientCredit is the read-only admission check run before a job
// is allowed into the pipeline.
func (l *Ledger) HasSufficientCredit(ctx context.Context, ownerID string, amount int64) (bool, error) {
	balance, err := l.Balance(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Grant credits the owner's account and appends a grant entry in one
// transaction, creating the account row on first use.
func (l *Ledger) Grant(ctx context.Context, ownerID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("ledger: grant amount must be positive, got %d", amount)
	}
	var entryID string
	err := l.SQL.WithTx(ctx, func(q infra.SQLExecutor) error {
		if _, err := q.Exec(ctx, sqlinline.QEnsureAccount, ownerID); err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
		if err := q.QueryRow(ctx, sqlinline.QInsertGrantEntry, ownerID, amount).Scan(&entryID); err != nil {
			return fmt.Errorf("append grant entry: %w", err)
		}
		if _, err := q.Exec(ctx, sqlinline.QCreditBalance, ownerID, amount); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	l.Logger.Info().Str("owner_id", ownerID).Int64("amount", amount).Str("entry_id", entryID).Msg("ledger: grant")
	return entryID, nil
}

// ChargeIn debits the owner for the job within the caller's transaction.
// Calling it again for the same job returns the existing entry id with
// domain.ErrAlreadyCharged, which callers treat as a logged no-op.
// domain.ErrInsufficientCredit means the balance no longer covers the
// amount; the caller must abort the transaction.
func (l *Ledger) ChargeIn(ctx context.Context, q infra.SQLExecutor, ownerID, jobID string, amount int64) (string, error) {
	var entryID string
	err := q.QueryRow(ctx, sqlinline.QInsertChargeEntry, ownerID, amount, jobID).Scan(&entryID)
	if err != nil {
		if !infra.IsNoRows(err) {
			return "", fmt.Errorf("ledger: append charge entry: %w", err)
		}
		var existing string
		var existingAmount int64
		if err := q.QueryRow(ctx, sqlinline.QSelectChargeEntry, jobID).Scan(&existing, &existingAmount); err != nil {
			return "", fmt.Errorf("ledger: load existing charge: %w", err)
		}
		return existing, domain.ErrAlreadyCharged
	}

	tag, err := q.Exec(ctx, sqlinline.QDebitBalance, ownerID, amount)
	if err != nil {
		return "", fmt.Errorf("ledger: debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", domain.ErrInsufficientCredit
	}
	return entryID, nil
}

// RefundIn mirrors a job's charge back to the owner within the caller's
// transaction. domain.ErrNoCharge means nothing was ever charged (the
// common deferred-charge failure path); domain.ErrAlreadyRefunded means
// a retry raced an earlier refund. Both resolve to no-ops for callers.
func (l *Ledger) RefundIn(ctx context.Context, q infra.SQLExecutor, jobID string) (string, int64, error) {
	var (
		entryID string
		ownerID string
		amount  int64
	)
	err := q.QueryRow(ctx, sqlinline.QInsertRefundEntry, jobID).Scan(&entryID, &ownerID, &amount)
	if err != nil {
		if !infra.IsNoRows(err) {
			return "", 0, fmt.Errorf("ledger: append refund entry: %w", err)
		}
		var chargeID string
		var chargeAmount int64
		chargeErr := q.QueryRow(ctx, sqlinline.QSelectChargeEntry, jobID).Scan(&chargeID, &chargeAmount)
		if chargeErr != nil {
			if infra.IsNoRows(chargeErr) {
				return "", 0, domain.ErrNoCharge
			}
			return "", 0, fmt.Errorf("ledger: load charge for refund: %w", chargeErr)
		}
		return "", 0, domain.ErrAlreadyRefunded
	}

	if _, err := q.Exec(ctx, sqlinline.QCreditBalance, ownerID, amount); err != nil {
		return "", 0, fmt.Errorf("ledger: credit balance: %w", err)
	}
	return entryID, amount, nil
}

// History returns the owner's most recent ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, ownerID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.SQL.Query(ctx, sqlinline.QSelectLedgerEntries, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.OwnerID, &kind, &e.Amount, &e.JobID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
