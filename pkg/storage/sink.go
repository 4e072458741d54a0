package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/voicecollect/pkg/metrics"
)

var (
	// ErrEmptyPayload is wrapped by the UploadError of a transfer with no data.
	ErrEmptyPayload = errors.New("storage: empty payload")

	// ErrObjectExists is wrapped by the UploadError of a transfer whose path
	// is already taken. Sink never replaces a stored recording.
	ErrObjectExists = errors.New("storage: object already exists")
)

// Payload is the data to upload.
type Payload struct {
	Data        []byte
	ContentType string
}

// Progress is a snapshot of an in-flight transfer.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
}

// Fraction returns the completed share in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes)
}

// SinkOptions configures a Sink.
type SinkOptions struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// ProgressBuffer is the capacity of each transfer's progress channel.
	// Progress events are dropped rather than blocking the upload when the
	// channel is full. Default is 16.
	ProgressBuffer int
}

// Sink uploads payloads to an ObjectStore. It never retries: a failed
// transfer reports its error and the caller decides whether to upload again.
type Sink struct {
	store   ObjectStore
	log     *slog.Logger
	metrics *metrics.Metrics
	buf     int
}

// NewSink creates a Sink on store.
func NewSink(store ObjectStore, opts SinkOptions) *Sink {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProgressBuffer <= 0 {
		opts.ProgressBuffer = 16
	}
	return &Sink{store: store, log: opts.Logger, metrics: opts.Metrics, buf: opts.ProgressBuffer}
}

// Upload starts storing p under path and returns immediately. The path is
// passed to the store unchanged. An object already stored under path is left
// alone and the transfer fails with ErrObjectExists.
func (s *Sink) Upload(ctx context.Context, p Payload, path string) *Transfer {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		path:     path,
		total:    int64(len(p.Data)),
		cancel:   cancel,
		progress: make(chan Progress, s.buf),
		done:     make(chan struct{}),
		last:     -1,
	}
	go s.run(ctx, t, p)
	return t
}

func (s *Sink) run(ctx context.Context, t *Transfer, p Payload) {
	defer t.finish()
	defer t.cancel()

	start := time.Now()
	s.metrics.RecordUploadStarted()
	s.log.Info("storage: upload started", "path", t.path, "bytes", t.total)

	fail := func(op string, err error) {
		t.err = &UploadError{Path: t.path, Op: op, Err: err}
		reason := "error"
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		s.metrics.RecordUploadFailure(reason, time.Since(start))
		s.log.Warn("storage: upload failed", "path", t.path, "op", op, "error", err)
	}

	if t.total == 0 {
		fail("put", ErrEmptyPayload)
		return
	}

	exists, err := s.store.Exists(ctx, t.path)
	if err != nil {
		fail("exists", err)
		return
	}
	if exists {
		fail("exists", ErrObjectExists)
		return
	}

	t.report(0)
	body := &progressReader{r: bytes.NewReader(p.Data), report: t.report}
	if err := s.store.Put(ctx, t.path, body, t.total, p.ContentType); err != nil {
		fail("put", err)
		return
	}
	t.report(t.total)

	loc, err := s.store.Resolve(ctx, t.path)
	if err != nil {
		fail("resolve", err)
		return
	}
	t.locator = loc
	s.metrics.RecordUploadSuccess(t.total, time.Since(start))
	s.log.Info("storage: upload complete", "path", t.path, "locator", loc, "elapsed", time.Since(start))
}

// Transfer is one upload started by Sink.Upload.
type Transfer struct {
	path   string
	total  int64
	cancel context.CancelFunc

	mu       sync.Mutex
	progress chan Progress
	closed   bool
	last     int64

	done    chan struct{}
	locator string
	err     error
}

// Path returns the destination path.
func (t *Transfer) Path() string { return t.path }

// Progress returns a channel of progress snapshots. It is closed before the
// outcome becomes available from Wait.
func (t *Transfer) Progress() <-chan Progress { return t.progress }

// Done is closed when the transfer has an outcome.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Wait blocks until the transfer ends and returns the locator of the stored
// object, or an *UploadError.
func (t *Transfer) Wait() (string, error) {
	<-t.done
	return t.locator, t.err
}

// Cancel aborts the transfer. Wait then reports an *UploadError wrapping
// context.Canceled, unless the upload had already completed.
func (t *Transfer) Cancel() { t.cancel() }

// report publishes a progress snapshot without blocking. Repeated values are
// suppressed.
func (t *Transfer) report(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || n == t.last {
		return
	}
	t.last = n
	select {
	case t.progress <- Progress{BytesTransferred: n, TotalBytes: t.total}:
	default:
	}
}

func (t *Transfer) finish() {
	t.mu.Lock()
	t.closed = true
	close(t.progress)
	t.mu.Unlock()
	close(t.done)
}

// progressReader reports the read position of an in-memory body. It stays
// seekable so an SDK retry can rewind it.
type progressReader struct {
	r      *bytes.Reader
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.report(p.r.Size() - int64(p.r.Len()))
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}

var _ io.ReadSeeker = (*progressReader)(nil)
