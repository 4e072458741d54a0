package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/voicecollect/cmd/voicecollect/internal/config"
	"github.com/haivivi/voicecollect/pkg/assets"
	"github.com/haivivi/voicecollect/pkg/audio/wav"
	"github.com/haivivi/voicecollect/pkg/capture"
	"github.com/haivivi/voicecollect/pkg/cli"
	"github.com/haivivi/voicecollect/pkg/ledger"
	"github.com/haivivi/voicecollect/pkg/playback"
	"github.com/haivivi/voicecollect/pkg/storage"
	"github.com/haivivi/voicecollect/pkg/wizard"
)

type fakeMic struct{}

func (fakeMic) Open(context.Context) (capture.Stream, error) {
	return &fakeStream{closed: make(chan struct{})}, nil
}

type fakeStream struct {
	once   sync.Once
	closed chan struct{}
}

func (s *fakeStream) Format() wav.Format { return wav.L16Mono16K }

func (s *fakeStream) ReadChunk() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	case <-time.After(time.Millisecond):
		return make([]byte, 320), nil
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeSpeaker struct{}

func (fakeSpeaker) Play(_ context.Context, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// syncBuffer is written by the UI goroutine and polled by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type uiHarness struct {
	t       *testing.T
	ui      *recordUI
	w       *wizard.Session
	lines   chan string
	out     *syncBuffer
	store   *storage.Local
	journal *ledger.Ledger
	done    chan error
}

func newUIHarness(t *testing.T, preset *wizard.Metadata) *uiHarness {
	t.Helper()
	samples := t.TempDir()
	writeFile(t, filepath.Join(samples, "hello.wav"), "RIFF")

	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &uiHarness{
		t:       t,
		lines:   make(chan string),
		out:     &syncBuffer{},
		store:   store,
		journal: ledger.New(ledger.NewMemory(), ledger.Options{}),
		done:    make(chan error, 1),
	}
	p := &cli.Printer{Out: h.out, Err: h.out, Styles: cli.NewStyles(cli.DefaultTheme)}
	h.ui = newRecordUI(p, h.lines)
	h.ui.preset = preset
	h.w = wizard.New(wizard.Options{
		Microphone:     fakeMic{},
		Player:         playback.NewController(fakeSpeaker{}, nil),
		Samples:        assets.NewDir(samples),
		Uploader:       storage.NewSink(store, storage.SinkOptions{}),
		Journal:        h.journal,
		RecordDuration: 100,
		OnEvent:        h.ui.onEvent,
	})
	h.ui.w = h.w
	go func() { h.done <- h.ui.run(context.Background()) }()
	return h
}

func (h *uiHarness) send(line string) {
	h.t.Helper()
	select {
	case h.lines <- line:
	case <-time.After(2 * time.Second):
		h.t.Fatalf("UI did not read %q", line)
	}
}

func (h *uiHarness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; output:\n%s", what, h.out.String())
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *uiHarness) waitStep(step wizard.Step) {
	h.t.Helper()
	h.waitFor("step "+step.String(), func() bool { return h.w.Step() == step })
}

func (h *uiHarness) finish() {
	h.t.Helper()
	close(h.lines)
	select {
	case err := <-h.done:
		if err != nil {
			h.t.Fatalf("run = %v", err)
		}
	case <-time.After(2 * time.Second):
		h.t.Fatal("UI did not exit")
	}
}

func TestRecordUIEndToEnd(t *testing.T) {
	h := newUIHarness(t, &wizard.Metadata{
		Affiliated:   true,
		Organization: " Acme ",
		Category:     "Female",
		Phrase:       "Hello",
	})

	h.waitStep(wizard.StepSample)
	h.send("p")
	h.send("n")
	h.waitStep(wizard.StepRecord)

	h.send("r")
	h.waitFor("recording", h.w.Recording)
	h.send("")
	h.waitFor("artifact", func() bool { return h.w.Artifact() != nil })

	h.send("u")
	h.waitStep(wizard.StepSuccess)
	h.waitFor("download line", func() bool { return strings.Contains(h.out.String(), "download:") })

	path := h.w.Path()
	if !strings.HasPrefix(path, "dataset/acme/female/hello/audio_") || !strings.HasSuffix(path, ".wav") {
		t.Fatalf("path = %q", path)
	}
	if _, err := os.Stat(filepath.Join(h.store.Root(), filepath.FromSlash(path))); err != nil {
		t.Fatalf("uploaded file: %v", err)
	}
	entries, err := h.journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != path || entries[0].Organization != "Acme" {
		t.Fatalf("journal = %+v", entries)
	}

	// Another phrase keeps who is recording.
	h.send("n")
	h.waitStep(wizard.StepInfo)
	h.waitFor("draft", func() bool { return h.w.Metadata().Category == "Female" })
	if m := h.w.Metadata(); m.Phrase != "" || m.Organization != " Acme " {
		t.Fatalf("draft = %+v", m)
	}
	h.finish()
}

func TestRecordUIPromptsForInfo(t *testing.T) {
	h := newUIHarness(t, nil)

	h.send("y")
	h.send("")
	h.send("male")
	h.send("thanks")
	h.waitFor("validation warning", func() bool {
		return strings.Contains(h.out.String(), "please fill in: organization")
	})
	if h.w.Step() != wizard.StepInfo {
		t.Fatalf("step = %v, want info", h.w.Step())
	}

	h.send("")
	h.send("Acme")
	h.send("")
	h.send("")
	h.waitStep(wizard.StepSample)
	want := wizard.Metadata{Affiliated: true, Organization: "Acme", Category: "male", Phrase: "thanks"}
	if m := h.w.Metadata(); m != want {
		t.Fatalf("metadata = %+v, want %+v", m, want)
	}
	h.finish()
}

func TestRecordUIMissingSample(t *testing.T) {
	h := newUIHarness(t, &wizard.Metadata{Category: "male", Phrase: "unknown"})

	h.waitStep(wizard.StepSample)
	h.send("p")
	h.waitFor("playback warning", func() bool {
		return strings.Contains(h.out.String(), "playback failed")
	})
	h.send("b")
	h.waitStep(wizard.StepInfo)
	h.finish()
}

func TestRecordUIUploadWithoutRecording(t *testing.T) {
	h := newUIHarness(t, &wizard.Metadata{Category: "male", Phrase: "hello"})

	h.waitStep(wizard.StepSample)
	h.send("n")
	h.waitStep(wizard.StepRecord)
	h.send("u")
	h.waitFor("no recording warning", func() bool {
		return strings.Contains(h.out.String(), wizard.ErrNoRecording.Error())
	})
	if h.w.Step() != wizard.StepRecord {
		t.Fatalf("step = %v", h.w.Step())
	}
	h.send("q")
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("UI did not quit")
	}
}

func TestLoadRecordSettingsDryRun(t *testing.T) {
	cfg, _ := config.LoadFrom(t.TempDir())
	t.Cleanup(func() { recordDryRun, recordSamples, recordDuration = "", "", 0 })
	recordDryRun, recordSamples, recordDuration = t.TempDir(), "/samples", 7

	s, err := loadRecordSettings(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s.storage.BackendName() != config.BackendLocal || s.storage.LocalDir != recordDryRun {
		t.Fatalf("storage = %+v", s.storage)
	}
	if s.assets.SampleDir != "/samples" {
		t.Fatalf("assets = %+v", s.assets)
	}
	if s.recorder.Duration != 7 || s.recorder.SampleRate != config.DefaultSampleRate {
		t.Fatalf("recorder = %+v", s.recorder)
	}

	store, err := newObjectStore(s.storage)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*storage.Local); !ok {
		t.Fatalf("store = %T, want *storage.Local", store)
	}
}

func TestLoadRecordSettingsFromContext(t *testing.T) {
	cfg, _ := config.LoadFrom(t.TempDir())
	cfg.AddContext("dev")
	cfg.UseContext("dev")
	dir := cfg.ContextDir("dev")
	writeFile(t, filepath.Join(dir, "storage.yaml"), "bucket: voices\npresign_ttl: 24h\n")
	writeFile(t, filepath.Join(dir, "assets.yaml"), "sample_dir: samples\n")
	writeFile(t, filepath.Join(dir, "recorder.yaml"), "duration: 4\n")
	t.Setenv("AWS_REGION", "ap-southeast-1")

	s, err := loadRecordSettings(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s.storage.Bucket != "voices" || s.storage.Region != "ap-southeast-1" {
		t.Fatalf("storage = %+v", s.storage)
	}
	if s.assets.SampleDir != filepath.Join(dir, "samples") {
		t.Fatalf("assets = %+v", s.assets)
	}
	if s.recorder.Duration != 4 {
		t.Fatalf("recorder = %+v", s.recorder)
	}

	store, err := newObjectStore(s.storage)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*storage.S3Store); !ok {
		t.Fatalf("store = %T, want *storage.S3Store", store)
	}
}

func TestLoadRecordSettingsErrors(t *testing.T) {
	cfg, _ := config.LoadFrom(t.TempDir())
	if _, err := loadRecordSettings(cfg); err == nil {
		t.Fatal("expected error without a context")
	}

	cfg.AddContext("dev")
	cfg.UseContext("dev")
	if _, err := loadRecordSettings(cfg); err == nil || !strings.Contains(err.Error(), "sample_dir") {
		t.Fatalf("err = %v, want missing assets", err)
	}

	writeFile(t, filepath.Join(cfg.ContextDir("dev"), "assets.yaml"), "sample_dir: s\n")
	if _, err := loadRecordSettings(cfg); err == nil || !strings.Contains(err.Error(), "storage") {
		t.Fatalf("err = %v, want missing storage", err)
	}
}

func TestPresetMetadata(t *testing.T) {
	t.Cleanup(func() { recordAffiliated, recordOrg, recordCategory, recordPhrase = false, "", "", "" })

	if presetMetadata() != nil {
		t.Fatal("preset without flags")
	}
	recordOrg, recordPhrase = "Acme", "hi"
	m := presetMetadata()
	if m == nil || !m.Affiliated || m.Organization != "Acme" || m.Phrase != "hi" {
		t.Fatalf("preset = %+v", m)
	}
}
