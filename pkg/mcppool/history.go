package mcppool

import (
	"context"
	"sync"
	"time"
)

// CallStatus is the lifecycle of one invocation record.
type CallStatus string

const (
	CallExecuting CallStatus = "executing"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

// CallRecord is one audited tool call attempt. Records are created in
// CallExecuting state before the remote call is made and finalized exactly
// once with a terminal status, result or error, and duration.
type CallRecord struct {
	ID         string
	ServerID   string
	ServerName string
	Tool       string
	Arguments  map[string]any
	StartedAt  time.Time
	Status     CallStatus
	Result     string
	Error      string
	Duration   time.Duration
}

func (r CallRecord) snapshot() CallRecord {
	out := r
	if r.Arguments != nil {
		out.Arguments = make(map[string]any, len(r.Arguments))
		for k, v := range r.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// Sink receives invocation records as they start and finish, for mirroring
// the in-memory history into durable storage. Sink failures are logged by
// the manager and never affect the call itself.
type Sink interface {
	CallStarted(ctx context.Context, rec CallRecord) error
	CallFinished(ctx context.Context, rec CallRecord) error
}

// callLog is the append-only invocation history, globally ordered by call
// start. Readers always get copies; records are finalized in place under the
// lock so no partially updated record is ever observable.
type callLog struct {
	mu      sync.Mutex
	records []*CallRecord
}

func (l *callLog) start(rec CallRecord) *CallRecord {
	stored := rec.snapshot()
	l.mu.Lock()
	l.records = append(l.records, &stored)
	l.mu.Unlock()
	return &stored
}

func (l *callLog) complete(rec *CallRecord, result string, d time.Duration) CallRecord {
	l.mu.Lock()
	rec.Status = CallCompleted
	rec.Result = result
	rec.Duration = d
	out := rec.snapshot()
	l.mu.Unlock()
	return out
}

func (l *callLog) fail(rec *CallRecord, msg string, d time.Duration) CallRecord {
	l.mu.Lock()
	rec.Status = CallFailed
	rec.Error = msg
	rec.Duration = d
	out := rec.snapshot()
	l.mu.Unlock()
	return out
}

// recent returns up to limit of the newest records in start order, plus the
// total number of records ever logged. limit <= 0 returns everything.
func (l *callLog) recent(limit int) ([]CallRecord, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := len(l.records)
	from := 0
	if limit > 0 && total > limit {
		from = total - limit
	}
	out := make([]CallRecord, 0, total-from)
	for _, rec := range l.records[from:] {
		out = append(out, rec.snapshot())
	}
	return out, total
}
