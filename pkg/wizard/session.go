package wizard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/voicecollect/pkg/capture"
	"github.com/haivivi/voicecollect/pkg/ledger"
	"github.com/haivivi/voicecollect/pkg/metrics"
	"github.com/haivivi/voicecollect/pkg/playback"
	"github.com/haivivi/voicecollect/pkg/storage"
)

// SampleLibrary resolves the reference sample for a phrase.
// *assets.Catalog satisfies this interface.
type SampleLibrary interface {
	Sample(phrase string) (playback.Source, error)
}

// Player plays one source at a time. *playback.Controller satisfies this
// interface.
type Player interface {
	Play(ctx context.Context, src playback.Source) *playback.Handle
	Stop()
}

// Uploader starts an upload. *storage.Sink satisfies this interface.
type Uploader interface {
	Upload(ctx context.Context, p storage.Payload, path string) *storage.Transfer
}

// Journal records successful submissions. *ledger.Ledger satisfies this
// interface.
type Journal interface {
	Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
}

// Options configures a Session.
type Options struct {
	Microphone capture.Microphone
	Player     Player
	Samples    SampleLibrary
	Uploader   Uploader

	// Journal is optional. Append failures are logged, not returned.
	Journal Journal

	// Metrics is optional.
	Metrics *metrics.Metrics

	// RecordDuration is the countdown length in seconds. Default is
	// capture.DefaultDuration.
	RecordDuration int

	// TickInterval overrides the countdown interval. Default is one second.
	TickInterval time.Duration

	// OnEvent receives lifecycle notifications. It may be called from any
	// goroutine and must not block for long.
	OnEvent func(Event)

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is one collection wizard.
type Session struct {
	id   string
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	st       state
	transfer *storage.Transfer
}

// New creates a session on the Info step.
func New(opts Options) *Session {
	if opts.RecordDuration <= 0 {
		opts.RecordDuration = capture.DefaultDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	id := uuid.NewString()
	return &Session{
		id:   id,
		opts: opts,
		log:  opts.Logger.With("session", id),
		st:   &infoState{},
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Step returns the current step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.step()
}

// Metadata returns the draft on Info and the submitted metadata elsewhere.
func (s *Session) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st := s.st.(type) {
	case *infoState:
		return st.draft
	case *sampleState:
		return st.meta
	case *recordState:
		return st.meta
	case *successState:
		return st.meta
	}
	return Metadata{}
}

// Artifact returns the current recording, or nil.
func (s *Session) Artifact() *capture.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st := s.st.(type) {
	case *sampleState:
		return st.kept
	case *recordState:
		return st.artifact
	}
	return nil
}

// Recording reports whether a capture is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.st.(*recordState)
	return ok && rec.recording()
}

// Locator returns the locator of the uploaded recording on Success, or "".
func (s *Session) Locator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.st.(*successState); ok {
		return st.locator
	}
	return ""
}

// Path returns the upload path of the recording on Success, or "".
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.st.(*successState); ok {
		return st.path
	}
	return ""
}

// SetDraft replaces the metadata being edited on Info.
func (s *Session) SetDraft(m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.st.(*infoState)
	if !ok {
		return invalid("edit metadata", s.st.step())
	}
	info.draft = m
	return nil
}

// SubmitInfo validates m and moves from Info to Sample. On a
// *ValidationError the step is unchanged and m is kept as the draft.
func (s *Session) SubmitInfo(m Metadata) error {
	s.mu.Lock()
	info, ok := s.st.(*infoState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return invalid("submit info", from)
	}
	info.draft = m
	if err := m.Validate(); err != nil {
		s.mu.Unlock()
		s.log.Debug("wizard: metadata rejected", "error", err)
		return err
	}
	s.st = &sampleState{meta: m}
	s.mu.Unlock()

	s.log.Info("wizard: metadata submitted", "affiliated", m.Affiliated, "category", m.Category, "phrase", m.Phrase)
	s.stepChanged(StepInfo, StepSample)
	return nil
}

// Advance moves from Sample to Record, restoring a recording kept from an
// earlier visit.
func (s *Session) Advance() error {
	s.mu.Lock()
	smp, ok := s.st.(*sampleState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return invalid("advance", from)
	}
	s.st = &recordState{meta: smp.meta, artifact: smp.kept}
	s.mu.Unlock()

	s.stopPlayback()
	s.stepChanged(StepSample, StepRecord)
	return nil
}

// Retreat moves from Record to Sample or from Sample to Info. Leaving Record
// keeps the recording; leaving Sample discards it and reopens the submitted
// metadata as a draft. Retreat returns ErrBusy while a recording or upload
// is in flight.
func (s *Session) Retreat() error {
	s.mu.Lock()
	var from, to Step
	switch st := s.st.(type) {
	case *recordState:
		if st.uploading || st.recording() {
			s.mu.Unlock()
			return ErrBusy
		}
		s.st = &sampleState{meta: st.meta, kept: st.artifact}
		from, to = StepRecord, StepSample
	case *sampleState:
		s.st = &infoState{draft: st.meta}
		from, to = StepSample, StepInfo
	default:
		from := s.st.step()
		s.mu.Unlock()
		return invalid("retreat", from)
	}
	s.mu.Unlock()

	s.stopPlayback()
	s.stepChanged(from, to)
	return nil
}

// PlaySample plays the reference sample for the submitted phrase. Playback
// errors are reported by the handle and as an EventPlaybackEnded.
func (s *Session) PlaySample(ctx context.Context) (*playback.Handle, error) {
	s.mu.Lock()
	smp, ok := s.st.(*sampleState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return nil, invalid("play sample", from)
	}
	phrase := smp.meta.Phrase
	s.mu.Unlock()

	src, err := s.opts.Samples.Sample(phrase)
	if err != nil {
		perr := &playback.Error{Source: phrase, Err: err}
		s.log.Warn("wizard: sample unavailable", "phrase", phrase, "error", err)
		s.emit(Event{Kind: EventNotice, Step: StepSample, Err: perr})
		return nil, perr
	}
	return s.play(ctx, src), nil
}

// PlayRecording replays the current recording on Record.
func (s *Session) PlayRecording(ctx context.Context) (*playback.Handle, error) {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return nil, invalid("play recording", from)
	}
	a := rec.artifact
	s.mu.Unlock()

	if a == nil {
		return nil, ErrNoRecording
	}
	return s.play(ctx, playback.Bytes{Label: "recording", Data: a.Data}), nil
}

// StartRecording opens the microphone and starts the countdown. It is a no-op
// while a recording is in progress. An existing recording is discarded once
// the microphone is open. If the microphone is unavailable it returns a
// *capture.PermissionError and the session, including any earlier
// recording, is unchanged.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return invalid("start recording", from)
	}
	if rec.uploading {
		s.mu.Unlock()
		return ErrBusy
	}
	if rec.recording() {
		s.mu.Unlock()
		return nil
	}

	var cs *capture.Session
	cs = capture.New(s.opts.Microphone, capture.Options{
		Duration:     s.opts.RecordDuration,
		TickInterval: s.opts.TickInterval,
		OnStarted:    func() { s.onStarted(cs) },
		OnTick:       func(remaining int) { s.onTick(cs, remaining) },
		OnFinalized:  func(a *capture.Artifact) { s.onFinalized(cs, a) },
		OnError:      func(err error) { s.onCaptureError(cs, err) },
		Logger:       s.log,
		Now:          s.opts.Now,
	})
	rec.capture = cs
	s.mu.Unlock()

	s.stopPlayback()

	if err := cs.Start(ctx); err != nil {
		s.mu.Lock()
		if rec, ok := s.st.(*recordState); ok && rec.capture == cs {
			rec.capture = nil
		}
		s.mu.Unlock()
		s.opts.Metrics.RecordRecordingError("permission")
		s.emit(Event{Kind: EventNotice, Step: StepRecord, Err: err})
		return err
	}

	if !s.owns(cs) {
		// Reset or Retake while the device was opening.
		cs.Cancel()
	}
	return nil
}

// StopRecording ends an in-progress recording early. A stop while the
// microphone is opening takes effect as soon as it opens. It is a no-op when
// nothing is recording.
func (s *Session) StopRecording() {
	s.mu.Lock()
	var cs *capture.Session
	if rec, ok := s.st.(*recordState); ok {
		cs = rec.capture
	}
	s.mu.Unlock()
	if cs != nil {
		cs.Stop()
	}
}

// WaitRecording blocks until the current capture ends, by countdown expiry
// or StopRecording, and returns its artifact. With no capture in progress it
// returns the existing recording or ErrNoRecording.
func (s *Session) WaitRecording(ctx context.Context) (*capture.Artifact, error) {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return nil, invalid("wait recording", from)
	}
	cs, a := rec.capture, rec.artifact
	s.mu.Unlock()

	if cs == nil {
		if a == nil {
			return nil, ErrNoRecording
		}
		return a, nil
	}
	select {
	case <-cs.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	a = cs.Artifact()
	if a == nil {
		return nil, ErrNoRecording
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok = s.st.(*recordState)
	if !ok || rec.capture != cs {
		return nil, ErrNoRecording
	}
	rec.artifact = a
	return a, nil
}

// Retake discards the recording, cancels a capture in progress and stops
// playback, leaving the session on Record ready to record again.
func (s *Session) Retake() error {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return invalid("retake", from)
	}
	if rec.uploading {
		s.mu.Unlock()
		return ErrBusy
	}
	cs := rec.capture
	rec.capture = nil
	rec.artifact = nil
	s.mu.Unlock()

	if cs != nil {
		cs.Cancel()
	}
	s.stopPlayback()
	s.log.Debug("wizard: recording discarded")
	s.emit(Event{Kind: EventRecordingDiscarded, Step: StepRecord})
	return nil
}

// Submit uploads the recording to its destination path and moves to Success.
// Upload progress is delivered as events. On failure it returns a
// *storage.UploadError and the session stays on Record with the recording
// intact, so Submit can be called again. A Submit while another is in
// flight returns ErrBusy.
func (s *Session) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok {
		from := s.st.step()
		s.mu.Unlock()
		return "", invalid("submit", from)
	}
	if rec.uploading || rec.recording() {
		s.mu.Unlock()
		return "", ErrBusy
	}
	a := rec.artifact
	if a == nil {
		s.mu.Unlock()
		s.emit(Event{Kind: EventNotice, Step: StepRecord, Err: ErrNoRecording})
		return "", ErrNoRecording
	}
	rec.uploading = true
	meta := rec.meta
	path := Destination(meta, s.opts.Now(), a.Ext())
	s.mu.Unlock()

	t := s.opts.Uploader.Upload(ctx, storage.Payload{Data: a.Data, ContentType: a.MIMEType}, path)
	if !s.track(rec, t) {
		t.Cancel()
	}
	for p := range t.Progress() {
		s.emit(Event{Kind: EventUploadProgress, Step: StepRecord, Path: path, Progress: p})
	}
	loc, err := t.Wait()

	s.mu.Lock()
	if s.transfer == t {
		s.transfer = nil
	}
	if s.st != rec {
		// Reset while uploading; the session has moved on.
		s.mu.Unlock()
		if err == nil {
			s.log.Warn("wizard: upload finished after reset", "path", path, "locator", loc)
		}
		return loc, err
	}
	rec.uploading = false
	if err != nil {
		s.mu.Unlock()
		s.emit(Event{Kind: EventNotice, Step: StepRecord, Err: err})
		return "", err
	}
	s.st = &successState{meta: meta, path: path, locator: loc}
	s.mu.Unlock()

	s.log.Info("wizard: recording uploaded", "path", path, "locator", loc)
	s.journal(ctx, meta, a, path, loc)
	s.stepChanged(StepRecord, StepSuccess)
	s.emit(Event{Kind: EventUploaded, Step: StepSuccess, Path: path, Locator: loc})
	return loc, nil
}

// Reset cancels any countdown and open microphone stream, aborts an upload
// in flight, stops playback and returns to Info with empty metadata.
func (s *Session) Reset() {
	s.mu.Lock()
	from := s.st.step()
	var cs *capture.Session
	if rec, ok := s.st.(*recordState); ok {
		cs = rec.capture
	}
	t := s.transfer
	s.transfer = nil
	s.st = &infoState{}
	s.mu.Unlock()

	if cs != nil {
		cs.Cancel()
	}
	if t != nil {
		t.Cancel()
	}
	s.stopPlayback()
	s.log.Info("wizard: reset", "from", from.String())
	s.stepChanged(from, StepInfo)
}

// track registers t for cancellation by Reset. It reports false if the
// session already left rec.
func (s *Session) track(rec *recordState, t *storage.Transfer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != rec {
		return false
	}
	s.transfer = t
	return true
}

// owns reports whether cs is still the session's active capture.
func (s *Session) owns(cs *capture.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.st.(*recordState)
	return ok && rec.capture == cs
}

// onStarted drops the previous take once the new capture is running.
func (s *Session) onStarted(cs *capture.Session) {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok || rec.capture != cs {
		s.mu.Unlock()
		return
	}
	discarded := rec.artifact != nil
	rec.artifact = nil
	s.mu.Unlock()

	if discarded {
		s.emit(Event{Kind: EventRecordingDiscarded, Step: StepRecord})
	}
	s.emit(Event{Kind: EventRecordingStarted, Step: StepRecord, Remaining: s.opts.RecordDuration})
}

func (s *Session) onTick(cs *capture.Session, remaining int) {
	if !s.owns(cs) {
		return
	}
	s.emit(Event{Kind: EventCountdown, Step: StepRecord, Remaining: remaining})
}

func (s *Session) onFinalized(cs *capture.Session, a *capture.Artifact) {
	s.mu.Lock()
	rec, ok := s.st.(*recordState)
	if !ok || rec.capture != cs {
		s.mu.Unlock()
		return
	}
	rec.artifact = a
	s.mu.Unlock()

	s.opts.Metrics.RecordRecording(a.Duration)
	s.emit(Event{Kind: EventRecordingFinalized, Step: StepRecord, Artifact: a})
}

func (s *Session) onCaptureError(cs *capture.Session, err error) {
	if !s.owns(cs) {
		return
	}
	s.opts.Metrics.RecordRecordingError("device")
	s.emit(Event{Kind: EventNotice, Step: StepRecord, Err: err})
}

func (s *Session) play(ctx context.Context, src playback.Source) *playback.Handle {
	h := s.opts.Player.Play(ctx, src)
	go func() {
		err := h.Wait()
		if errors.Is(err, playback.ErrStopped) {
			return
		}
		s.emit(Event{Kind: EventPlaybackEnded, Step: s.Step(), Source: h.Source(), Err: err})
	}()
	return h
}

func (s *Session) stopPlayback() {
	if s.opts.Player != nil {
		s.opts.Player.Stop()
	}
}

func (s *Session) journal(ctx context.Context, meta Metadata, a *capture.Artifact, path, loc string) {
	if s.opts.Journal == nil {
		return
	}
	_, err := s.opts.Journal.Append(ctx, ledger.Entry{
		Affiliated:   meta.Affiliated,
		Organization: meta.OrganizationName(),
		Category:     meta.Category,
		Phrase:       meta.Phrase,
		Path:         path,
		Locator:      loc,
		MIMEType:     a.MIMEType,
		Size:         a.Size(),
		Duration:     a.Duration.Seconds(),
		RecordedAt:   a.CreatedAt,
		UploadedAt:   s.opts.Now(),
	})
	if err != nil {
		s.log.Warn("wizard: journal append failed", "path", path, "error", err)
	}
}

func (s *Session) stepChanged(from, to Step) {
	s.opts.Metrics.RecordStep(to.String())
	s.log.Debug("wizard: step changed", "from", from.String(), "to", to.String())
	s.emit(Event{Kind: EventStepChanged, From: from, Step: to})
}

func (s *Session) emit(e Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(e)
	}
}
