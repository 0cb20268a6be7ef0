package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/infra"
	"server/internal/sqlinline"
)

// simpleRow adapts a scan func to pgx.Row for handler tests.
type simpleRow func(dest ...any) error

func (s simpleRow) Scan(dest ...any) error { return s(dest...) }

type errRow struct{ err error }

func (e errRow) Scan(dest ...any) error { return e.err }

func scanInto(dest []any, vals ...any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			switch n := v.(type) {
			case int:
				*d = n
			case int64:
				*d = int(n)
			}
		case *int64:
			switch n := v.(type) {
			case int:
				*d = int64(n)
			case int64:
				*d = n
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

type fakeStatusRow struct {
	state       string
	progress    int
	errMessage  string
	artifactRef string
}

type fakeLedgerRow struct {
	id     string
	kind   string
	amount int64
	jobID  string
}

// fakeSQL covers the queries the HTTP handlers issue. Everything else
// errors loudly so a new handler query shows up in the tests.
type fakeSQL struct {
	now       time.Time
	statuses  map[string]fakeStatusRow
	balances  map[string]int64
	entries   map[string][]fakeLedgerRow
	submitted int
	events    []string
	summary   [5]int64
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		statuses: map[string]fakeStatusRow{},
		balances: map[string]int64{},
		entries:  map[string][]fakeLedgerRow{},
	}
}

func (f *fakeSQL) WithTx(ctx context.Context, fn func(q infra.SQLExecutor) error) error {
	return fn(f)
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	switch query {
	case sqlinline.QEnsureAccount:
		owner := args[0].(string)
		if _, ok := f.balances[owner]; !ok {
			f.balances[owner] = 0
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case sqlinline.QCreditBalance:
		f.balances[args[0].(string)] += args[1].(int64)
		return pgconn.NewCommandTag("UPDATE 1"), nil
	case sqlinline.QInsertUsageEvent:
		f.events = append(f.events, args[2].(string))
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("fakeSQL: unexpected exec %.40q", query)
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	switch query {
	case sqlinline.QInsertJob:
		f.submitted++
		id := fmt.Sprintf("5b1c1d26-0000-4000-8000-%012d", f.submitted)
		f.statuses[id] = fakeStatusRow{state: "pending"}
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, id, f.now)
		})
	case sqlinline.QSelectJobStatus:
		st, ok := f.statuses[args[0].(string)]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		id := args[0].(string)
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, id, st.state, st.progress, st.errMessage, st.artifactRef)
		})
	case sqlinline.QSelectBalance:
		balance, ok := f.balances[args[0].(string)]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, balance)
		})
	case sqlinline.QInsertGrantEntry:
		owner := args[0].(string)
		entry := fakeLedgerRow{
			id:     fmt.Sprintf("grant-%d", len(f.entries[owner])+1),
			kind:   "grant",
			amount: args[1].(int64),
		}
		f.entries[owner] = append(f.entries[owner], entry)
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, entry.id)
		})
	case sqlinline.QStatsSummary:
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, f.summary[0], f.summary[1], f.summary[2], f.summary[3], f.summary[4])
		})
	}
	return errRow{fmt.Errorf("fakeSQL: unexpected query row %.40q", query)}
}

func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	switch query {
	case sqlinline.QSelectLedgerEntries:
		owner := args[0].(string)
		limit := args[1].(int)
		entries := f.entries[owner]
		var out [][]any
		for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
			e := entries[i]
			out = append(out, []any{e.id, owner, e.kind, e.amount, e.jobID, f.now})
		}
		return &sliceRows{rows: out}, nil
	}
	return nil, fmt.Errorf("fakeSQL: unexpected query %.40q", query)
}

var _ infra.TxRunner = (*fakeSQL)(nil)

type sliceRows struct {
	rows [][]any
	idx  int
}

func (r *sliceRows) Close()                                       {}
func (r *sliceRows) Err() error                                   { return nil }
func (r *sliceRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *sliceRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *sliceRows) Values() ([]any, error)                       { return nil, nil }
func (r *sliceRows) RawValues() [][]byte                          { return nil }
func (r *sliceRows) Conn() *pgx.Conn                              { return nil }

func (r *sliceRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	return scanInto(dest, r.rows[r.idx-1]...)
}
