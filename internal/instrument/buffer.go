package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"select-plus/internal/store"
)

var eventColumns = []string{"id", "trace_id", "span_id", "parent_span_id", "event_type", "source", "component", "action", "entity", "record_id", "duration_ms", "status", "metadata"}

// maxEventsPerInsert keeps one INSERT under SQLite's bound-parameter limit.
const maxEventsPerInsert = 32766 / 13

// EventBuffer collects events in memory and writes them to _events in
// batches, on a timer or once maxSize events are waiting.
type EventBuffer struct {
	db      *sql.DB
	dialect store.Dialect
	maxSize int

	mu     sync.Mutex
	events []Event

	flushMu  sync.Mutex
	stop     chan struct{}
	stopped  sync.WaitGroup
	stopOnce sync.Once
}

// NewEventBuffer starts a buffer flushing every flushIntervalMs.
func NewEventBuffer(db *sql.DB, dialect store.Dialect, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{db: db, dialect: dialect, maxSize: maxSize, stop: make(chan struct{})}

	eb.stopped.Add(1)
	go func() {
		defer eb.stopped.Done()
		ticker := time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-eb.stop:
				return
			case <-ticker.C:
				eb.Flush()
			}
		}
	}()
	return eb
}

// Enqueue adds an event; a full buffer is flushed in the background.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		go eb.Flush()
	}
}

// Pending is the number of events not yet written.
func (eb *EventBuffer) Pending() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes everything buffered so far. Events of a failed batch are
// dropped and logged; tracing never blocks a request.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	eb.flushMu.Lock()
	defer eb.flushMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eb.write(ctx, batch); err != nil {
		log.Printf("ERROR: event buffer dropped %d events: %v", len(batch), err)
	}
}

func (eb *EventBuffer) write(ctx context.Context, batch []Event) error {
	tx, err := eb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if stmt := eb.dialect.SyncCommitOff(); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set sync commit: %w", err)
		}
	}
	for start := 0; start < len(batch); start += maxEventsPerInsert {
		end := min(start+maxEventsPerInsert, len(batch))
		query, args := insertEventsSQL(eb.dialect, batch[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	return tx.Commit()
}

func insertEventsSQL(dialect store.Dialect, events []Event) (string, []any) {
	pb := dialect.NewParamBuilder()
	rows := make([]string, len(events))
	for i, e := range events {
		var meta any
		if e.Metadata != nil {
			if b, err := json.Marshal(e.Metadata); err == nil {
				meta = string(b)
			}
		}
		values := []any{e.ID, e.TraceID, e.SpanID, e.ParentSpanID, e.EventType, e.Source, e.Component, e.Action, e.Entity, e.RecordID, e.DurationMs, e.Status, meta}
		phs := make([]string, len(values))
		for j, v := range values {
			phs[j] = pb.Add(v)
		}
		rows[i] = "(" + strings.Join(phs, ",") + ")"
	}
	return fmt.Sprintf("INSERT INTO _events (%s) VALUES %s", strings.Join(eventColumns, ","), strings.Join(rows, ",")), pb.Params()
}

// Stop ends the background flushing and writes what is left. It is safe to
// call more than once.
func (eb *EventBuffer) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.stop)
		eb.stopped.Wait()
		eb.Flush()
	})
}
