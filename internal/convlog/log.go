// Package convlog is the ordered record of completed exchanges. It keeps an
// in-memory mirror for reads and persists every append through a Persister;
// a failed write is reported but never loses the entry from memory.
package convlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/jarvis/internal/logging"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("conversation log closed")

// Persister is the durable backing store.
type Persister interface {
	InsertEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context) ([]Entry, error)
	DeleteEntries(ctx context.Context) (int64, error)
}

// PersistenceError reports a failed durable write. The in-memory log is
// still authoritative when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("conversation log %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// writeTimeout bounds a single persistence call, detached from the caller's
// context so a cancelled request still records its exchange.
const writeTimeout = 5 * time.Second

// Log is safe for concurrent use. Appends are serialised; readers get copies.
type Log struct {
	store Persister
	now   func() time.Time
	log   *logging.Logger

	mu      sync.RWMutex
	entries []Entry
	closed  bool
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Log) {
		l.log = lg.WithComponent("convlog")
	}
}

// Open loads existing entries from store. A nil store gives a memory-only log.
func Open(ctx context.Context, store Persister, opts ...Option) (*Log, error) {
	l := &Log{
		store: store,
		now:   time.Now,
		log:   logging.Global().WithComponent("convlog"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if store != nil {
		entries, err := store.ListEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("load conversation history: %w", err)
		}
		l.entries = entries
		l.log.Debug("loaded %d entries", len(entries))
	}
	return l, nil
}

// Append records e, assigning its ID and timestamp. Timestamps never go
// backwards relative to the previous entry. On a persistence failure the
// entry is kept in memory and a *PersistenceError is returned with it.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Entry{}, ErrClosed
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	ts := l.now().UTC()
	if n := len(l.entries); n > 0 && ts.Before(l.entries[n-1].Timestamp) {
		ts = l.entries[n-1].Timestamp
	}
	e.Timestamp = ts

	l.entries = append(l.entries, e)

	if l.store == nil {
		return e, nil
	}

	wctx, cancel := logging.Detach(ctx, writeTimeout)
	defer cancel()
	if err := l.store.InsertEntry(wctx, e); err != nil {
		l.log.Error("persist entry %s failed, keeping in memory: %v", e.ID, err)
		return e, &PersistenceError{Op: "append", Err: err}
	}
	return e, nil
}

// ReadAll returns a copy of every entry in append order.
func (l *Log) ReadAll() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Recent returns up to the last k entries, oldest first.
func (l *Log) Recent(k int) []Entry {
	if k <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.entries) - k
	if start < 0 {
		start = 0
	}
	return append([]Entry(nil), l.entries[start:]...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Labeled returns the entries carrying an intent label, in append order.
func (l *Log) Labeled() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Labeled() {
			out = append(out, e)
		}
	}
	return out
}

// Clear removes every entry. This is the only way entries leave the log.
func (l *Log) Clear(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	l.entries = nil

	if l.store != nil {
		if _, err := l.store.DeleteEntries(ctx); err != nil {
			return n, &PersistenceError{Op: "clear", Err: err}
		}
	}
	l.log.Info("cleared %d entries", n)
	return n, nil
}

// Export writes the whole log as an indented JSON array.
func (l *Log) Export(w io.Writer) error {
	entries := l.ReadAll()
	if entries == nil {
		entries = []Entry{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("export conversation: %w", err)
	}
	return nil
}

// Close rejects further appends.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
