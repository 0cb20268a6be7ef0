package domain

import "time"

// EntryKind enumerates balance-affecting ledger event kinds.
type EntryKind string

const (
	EntryCharge EntryKind = "charge"
	EntryRefund EntryKind = "refund"
	EntryGrant  EntryKind = "grant"
)

// LedgerEntry is one append-only row in the credit ledger. JobID is set
// for charge/refund entries and empty for grants.
type LedgerEntry struct {
	ID        string
	OwnerID   string
	Kind      EntryKind
	Amount    int64
	JobID     string
	CreatedAt time.Time
}

// CreditAccount holds one owner's spendable balance. The balance is
// mutated only inside ledger operations, never directly.
type CreditAccount struct {
	OwnerID   string
	Balance   int64
	UpdatedAt time.Time
}
