package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/infra"
	"server/internal/sqlinline"
)

// fakeDB is an in-memory stand-in for the SQL runner. It matches calls
// against the inline query constants and mimics their row semantics,
// including rows-affected counts for the compare-and-set updates and
// rollback of everything written inside a failed WithTx.
type fakeDB struct {
	now      time.Time
	jobs     map[string]*fakeJob
	balances map[string]int64
	charges  map[string]*fakeCharge
	refunds  map[string]bool
	stats    fakeStats
	events   []string
}

type fakeJob struct {
	id, ownerID  string
	price        int64
	state        string
	progress     int
	imageRef     string
	audioRef     string
	text         string
	speechRef    string
	videoRef     string
	artifactRef  string
	errorMessage string
	chargeID     string
	createdAt    time.Time
	updatedAt    time.Time
	purged       bool
}

type fakeCharge struct {
	id      string
	ownerID string
	amount  int64
}

type fakeStats struct {
	completed, failed int64
	charged, refunded int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		jobs:     map[string]*fakeJob{},
		balances: map[string]int64{},
		charges:  map[string]*fakeCharge{},
		refunds:  map[string]bool{},
	}
}

func (f *fakeDB) addJob(j *fakeJob) *fakeJob {
	if j.state == "" {
		j.state = "pending"
	}
	if j.createdAt.IsZero() {
		j.createdAt = f.now
	}
	if j.updatedAt.IsZero() {
		j.updatedAt = f.now
	}
	f.jobs[j.id] = j
	return j
}

func (f *fakeDB) snapshot() *fakeDB {
	cp := newFakeDB()
	cp.now = f.now
	for id, j := range f.jobs {
		jc := *j
		cp.jobs[id] = &jc
	}
	for k, v := range f.balances {
		cp.balances[k] = v
	}
	for k, v := range f.charges {
		vc := *v
		cp.charges[k] = &vc
	}
	for k, v := range f.refunds {
		cp.refunds[k] = v
	}
	cp.stats = f.stats
	cp.events = append([]string(nil), f.events...)
	return cp
}

func (f *fakeDB) restore(s *fakeDB) {
	f.jobs = s.jobs
	f.balances = s.balances
	f.charges = s.charges
	f.refunds = s.refunds
	f.stats = s.stats
	f.events = s.events
}

func (f *fakeDB) WithTx(ctx context.Context, fn func(q infra.SQLExecutor) error) error {
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func tag(rows int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", rows))
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	switch query {
	case sqlinline.QAdmitJob:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != "pending" {
			return tag(0), nil
		}
		j.state = "processing_audio"
		j.progress = args[1].(int)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QAdvanceJobState:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != args[1].(string) {
			return tag(0), nil
		}
		j.state = args[2].(string)
		j.progress = args[3].(int)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QUpdateJobProgress:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != args[1].(string) {
			return tag(0), nil
		}
		j.progress = args[2].(int)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QSetJobSpeechRef:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != args[1].(string) {
			return tag(0), nil
		}
		j.speechRef = args[2].(string)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QSetJobVideoRef:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != args[1].(string) {
			return tag(0), nil
		}
		j.videoRef = args[2].(string)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QCompleteJob:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != "uploading" {
			return tag(0), nil
		}
		j.state = "completed"
		j.progress = 100
		j.artifactRef = args[1].(string)
		j.chargeID = args[2].(string)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QFailJob:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != args[1].(string) {
			return tag(0), nil
		}
		j.state = "failed"
		j.errorMessage = args[2].(string)
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QMarkJobPurged:
		j := f.jobs[args[0].(string)]
		if j == nil || j.state != "failed" || j.purged {
			return tag(0), nil
		}
		j.speechRef = ""
		j.videoRef = ""
		j.purged = true
		j.updatedAt = f.now
		return tag(1), nil

	case sqlinline.QEnsureAccount:
		owner := args[0].(string)
		if _, ok := f.balances[owner]; !ok {
			f.balances[owner] = 0
		}
		return tag(1), nil

	case sqlinline.QDebitBalance:
		owner, amount := args[0].(string), args[1].(int64)
		if f.balances[owner] < amount {
			return tag(0), nil
		}
		f.balances[owner] -= amount
		return tag(1), nil

	case sqlinline.QCreditBalance:
		owner, amount := args[0].(string), args[1].(int64)
		f.balances[owner] += amount
		return tag(1), nil

	case sqlinline.QStatsRecordOutcome:
		f.stats.completed += args[0].(int64)
		f.stats.failed += args[1].(int64)
		f.stats.charged += args[2].(int64)
		f.stats.refunded += args[3].(int64)
		return tag(1), nil

	case sqlinline.QInsertUsageEvent:
		f.events = append(f.events, args[2].(string))
		return tag(1), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("fakeDB: unexpected exec %q", firstLine(query))
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	switch query {
	case sqlinline.QLockNextPendingJob:
		var oldest *fakeJob
		for _, j := range f.jobs {
			if j.state != "pending" {
				continue
			}
			if oldest == nil || j.createdAt.Before(oldest.createdAt) {
				oldest = j
			}
		}
		if oldest == nil {
			return errRow{pgx.ErrNoRows}
		}
		j := oldest
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, j.id, j.ownerID, j.price, j.imageRef, j.audioRef, j.text, f.balances[j.ownerID])
		})

	case sqlinline.QInsertChargeEntry:
		owner, amount, jobID := args[0].(string), args[1].(int64), args[2].(string)
		if _, ok := f.charges[jobID]; ok {
			return errRow{pgx.ErrNoRows}
		}
		c := &fakeCharge{id: "charge-" + jobID, ownerID: owner, amount: amount}
		f.charges[jobID] = c
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, c.id)
		})

	case sqlinline.QInsertRefundEntry:
		jobID := args[0].(string)
		c, ok := f.charges[jobID]
		if !ok || f.refunds[jobID] {
			return errRow{pgx.ErrNoRows}
		}
		f.refunds[jobID] = true
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, "refund-"+jobID, c.ownerID, c.amount)
		})

	case sqlinline.QSelectChargeEntry:
		c, ok := f.charges[args[0].(string)]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, c.id, c.amount)
		})

	case sqlinline.QSelectBalance:
		balance, ok := f.balances[args[0].(string)]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, balance)
		})

	case sqlinline.QSelectJobStatus:
		j := f.jobs[args[0].(string)]
		if j == nil {
			return errRow{pgx.ErrNoRows}
		}
		return simpleRow(func(dest ...any) error {
			return scanInto(dest, j.id, j.state, j.progress, j.errorMessage, j.artifactRef)
		})
	}
	return errRow{fmt.Errorf("fakeDB: unexpected query row %q", firstLine(query))}
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	switch query {
	case sqlinline.QSelectStaleJobs:
		state := args[0].(string)
		cutoff := f.now.Add(-time.Duration(args[1].(int64)) * time.Second)
		var out [][]any
		for _, j := range sortedJobs(f.jobs) {
			if j.state == state && j.updatedAt.Before(cutoff) {
				out = append(out, []any{j.id, j.ownerID})
			}
		}
		return &sliceRows{rows: out}, nil

	case sqlinline.QSelectExpiredFailedJobs:
		cutoff := f.now.Add(-time.Duration(args[0].(int64)) * 24 * time.Hour)
		var out [][]any
		for _, j := range sortedJobs(f.jobs) {
			if j.state == "failed" && !j.purged && j.updatedAt.Before(cutoff) {
				out = append(out, []any{j.id, j.ownerID, j.speechRef, j.videoRef})
			}
		}
		return &sliceRows{rows: out}, nil
	}
	return nil, fmt.Errorf("fakeDB: unexpected query %q", firstLine(query))
}

func sortedJobs(m map[string]*fakeJob) []*fakeJob {
	out := make([]*fakeJob, 0, len(m))
	for _, j := range m {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].updatedAt.Before(out[k].updatedAt) })
	return out
}

func firstLine(q string) string {
	for i := 0; i < len(q); i++ {
		if q[i] == '\n' {
			return q[:i]
		}
	}
	return q
}

var _ infra.TxRunner = (*fakeDB)(nil)

// simpleRow adapts a scan func to pgx.Row.
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
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

// sliceRows adapts a slice of value rows to pgx.Rows.
type sliceRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *sliceRows) Close()                                       {}
func (r *sliceRows) Err() error                                   { return r.err }
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
