// Package ledger keeps a local journal of uploaded recordings.
//
// Each successful submission is appended as an Entry, msgpack-encoded and
// keyed by upload time, so the journal lists in chronological order:
//
//	sub:{uploaded_at_unix_nano:020d}:{id}  → msgpack-encoded Entry
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "sub:"

// Entry records one uploaded recording.
type Entry struct {
	ID           string    `json:"id" yaml:"id" msgpack:"id"`
	Affiliated   bool      `json:"affiliated" yaml:"affiliated" msgpack:"affiliated"`
	Organization string    `json:"organization,omitempty" yaml:"organization,omitempty" msgpack:"organization,omitempty"`
	Category     string    `json:"category" yaml:"category" msgpack:"category"`
	Phrase       string    `json:"phrase" yaml:"phrase" msgpack:"phrase"`
	Path         string    `json:"path" yaml:"path" msgpack:"path"`
	Locator      string    `json:"locator" yaml:"locator" msgpack:"locator"`
	MIMEType     string    `json:"mime_type" yaml:"mime_type" msgpack:"mime_type"`
	Size         int       `json:"size" yaml:"size" msgpack:"size"`
	Duration     float64   `json:"duration_seconds" yaml:"duration_seconds" msgpack:"duration_seconds"`
	RecordedAt   time.Time `json:"recorded_at" yaml:"recorded_at" msgpack:"recorded_at"`
	UploadedAt   time.Time `json:"uploaded_at" yaml:"uploaded_at" msgpack:"uploaded_at"`
}

// Ledger is a journal of submissions on top of a Store.
type Ledger struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// Options configures a Ledger.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Ledger on store. The ledger does not own the store.
func New(store Store, opts Options) *Ledger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{store: store, log: opts.Logger, now: opts.Now}
}

// Append stores e and returns it with ID and UploadedAt filled in when they
// were empty.
func (l *Ledger) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: new id: %w", err)
		}
		e.ID = id.String()
	}
	if e.UploadedAt.IsZero() {
		e.UploadedAt = l.now()
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: encode: %w", err)
	}
	if err := l.store.Set(ctx, entryKey(e), data); err != nil {
		return Entry{}, err
	}
	l.log.Debug("ledger: appended", "id", e.ID, "path", e.Path)
	return e, nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all entries.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Entry, error) {
	var all []Entry
	for rec, err := range l.store.Scan(ctx, []byte(keyPrefix)) {
		if err != nil {
			return nil, err
		}
		var e Entry
		if err := msgpack.Unmarshal(rec.Value, &e); err != nil {
			l.log.Warn("ledger: skip malformed entry", "key", string(rec.Key), "error", err)
			continue
		}
		all = append(all, e)
	}

	// Scan is ascending; reverse to get newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Get returns the entry with the given ID, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	e, _, err := l.find(ctx, id)
	return e, err
}

// Delete removes the entry with the given ID. Deleting a missing entry is
// not an error.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	_, key, err := l.find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return l.store.Delete(ctx, key)
}

// find scans for id. Keys are time-based, so lookups by ID are linear; the
// journal of a single collector stays small.
func (l *Ledger) find(ctx context.Context, id string) (Entry, []byte, error) {
	for rec, err := range l.store.Scan(ctx, []byte(keyPrefix)) {
		if err != nil {
			return Entry{}, nil, err
		}
		var e Entry
		if err := msgpack.Unmarshal(rec.Value, &e); err != nil {
			continue
		}
		if e.ID == id {
			return e, rec.Key, nil
		}
	}
	return Entry{}, nil, ErrNotFound
}

func entryKey(e Entry) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", keyPrefix, e.UploadedAt.UnixNano(), e.ID)
}
