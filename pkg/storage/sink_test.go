package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haivivi/voicecollect/pkg/metrics"
)

func drain(t *testing.T, tr *Transfer) []Progress {
	t.Helper()
	var got []Progress
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p, ok := <-tr.Progress():
			if !ok {
				return got
			}
			got = append(got, p)
		case <-timeout:
			t.Fatal("progress channel not closed")
		}
	}
}

func TestSinkUploadS3(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, S3Options{Bucket: "voice", PublicBaseURL: "https://cdn.example.com"})
	m := metrics.New()
	sink := NewSink(store, SinkOptions{Metrics: m})

	data := bytes.Repeat([]byte{7}, 4096)
	tr := sink.Upload(context.Background(), Payload{Data: data, ContentType: "audio/wav"}, "dataset/male/x/a.wav")

	progress := drain(t, tr)
	loc, err := tr.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if loc != "https://cdn.example.com/dataset/male/x/a.wav" {
		t.Fatalf("locator = %q", loc)
	}
	if len(progress) < 2 {
		t.Fatalf("progress = %v, want at least start and end", progress)
	}
	if first := progress[0]; first.BytesTransferred != 0 || first.TotalBytes != 4096 {
		t.Fatalf("first progress = %+v", first)
	}
	if last := progress[len(progress)-1]; last.BytesTransferred != 4096 || last.Fraction() != 1 {
		t.Fatalf("last progress = %+v", last)
	}
	obj, ok := mock.get("dataset/male/x/a.wav")
	if !ok || len(obj.data) != 4096 || obj.contentType != "audio/wav" {
		t.Fatalf("stored object = %d bytes, %q", len(obj.data), obj.contentType)
	}
	if got := testutil.ToFloat64(m.UploadsSucceeded); got != 1 {
		t.Fatalf("uploads succeeded = %v", got)
	}
}

func TestSinkUploadLocal(t *testing.T) {
	store := newTestLocal(t)
	sink := NewSink(store, SinkOptions{})

	tr := sink.Upload(context.Background(), Payload{Data: []byte("RIFF"), ContentType: "audio/wav"}, "dataset/a.wav")
	loc, err := tr.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(loc, "file://") {
		t.Fatalf("locator = %q", loc)
	}
	if ok, _ := store.Exists(context.Background(), "dataset/a.wav"); !ok {
		t.Fatal("object not written")
	}
}

func TestSinkPutFailure(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("network unreachable")
	m := metrics.New()
	sink := NewSink(NewS3(mock, S3Options{Bucket: "voice"}), SinkOptions{Metrics: m})

	tr := sink.Upload(context.Background(), Payload{Data: []byte{1}}, "a.wav")
	loc, err := tr.Wait()
	if loc != "" {
		t.Fatalf("locator = %q on failure", loc)
	}
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *UploadError", err)
	}
	if uerr.Op != "put" || uerr.Path != "a.wav" || !errors.Is(err, mock.putErr) {
		t.Fatalf("UploadError = %+v", uerr)
	}
	if got := testutil.ToFloat64(m.UploadsFailed.WithLabelValues("error")); got != 1 {
		t.Fatalf("uploads failed = %v", got)
	}
}

func TestSinkResolveFailure(t *testing.T) {
	cause := errors.New("expired credentials")
	sink := NewSink(NewS3(newMockS3(), S3Options{Bucket: "voice", Presigner: &mockPresigner{err: cause}}), SinkOptions{})

	_, err := sink.Upload(context.Background(), Payload{Data: []byte{1}}, "a.wav").Wait()
	var uerr *UploadError
	if !errors.As(err, &uerr) || uerr.Op != "resolve" || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want resolve UploadError", err)
	}
}

func TestSinkRefusesExistingObject(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, S3Options{Bucket: "voice"})
	ctx := context.Background()
	if err := store.Put(ctx, "a.wav", strings.NewReader("first"), 5, "audio/wav"); err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	sink := NewSink(store, SinkOptions{Metrics: m})

	_, err := sink.Upload(ctx, Payload{Data: []byte("second")}, "a.wav").Wait()
	var uerr *UploadError
	if !errors.As(err, &uerr) || uerr.Op != "exists" || !errors.Is(err, ErrObjectExists) {
		t.Fatalf("err = %v, want exists UploadError", err)
	}
	if obj, _ := mock.get("a.wav"); string(obj.data) != "first" {
		t.Fatalf("stored object = %q, want first upload kept", obj.data)
	}
	if got := testutil.ToFloat64(m.UploadsFailed.WithLabelValues("error")); got != 1 {
		t.Fatalf("uploads failed = %v", got)
	}
}

func TestSinkExistsFailure(t *testing.T) {
	mock := newMockS3()
	mock.headErr = &apiError{code: "AccessDenied", msg: "denied"}
	sink := NewSink(NewS3(mock, S3Options{Bucket: "voice"}), SinkOptions{})

	_, err := sink.Upload(context.Background(), Payload{Data: []byte{1}}, "a.wav").Wait()
	var uerr *UploadError
	if !errors.As(err, &uerr) || uerr.Op != "exists" || !errors.Is(err, mock.headErr) {
		t.Fatalf("err = %v, want exists UploadError", err)
	}
	if _, ok := mock.get("a.wav"); ok {
		t.Fatal("object stored after failed existence check")
	}
}

func TestSinkEmptyPayload(t *testing.T) {
	sink := NewSink(newTestLocal(t), SinkOptions{})
	_, err := sink.Upload(context.Background(), Payload{}, "a.wav").Wait()
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}
}

func TestSinkCancel(t *testing.T) {
	mock := newMockS3()
	mock.putGate = make(chan struct{})
	m := metrics.New()
	sink := NewSink(NewS3(mock, S3Options{Bucket: "voice"}), SinkOptions{Metrics: m})

	tr := sink.Upload(context.Background(), Payload{Data: []byte{1, 2}}, "a.wav")
	tr.Cancel()

	_, err := tr.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, ok := mock.get("a.wav"); ok {
		t.Fatal("cancelled upload stored an object")
	}
	if got := testutil.ToFloat64(m.UploadsFailed.WithLabelValues("cancelled")); got != 1 {
		t.Fatalf("cancelled uploads = %v", got)
	}
}

func TestSinkProgressNeverBlocks(t *testing.T) {
	sink := NewSink(newTestLocal(t), SinkOptions{ProgressBuffer: 1})

	// Nobody reads Progress; the transfer must still finish.
	tr := sink.Upload(context.Background(), Payload{Data: bytes.Repeat([]byte{1}, 1<<16)}, "big.wav")
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transfer blocked on progress")
	}
	if _, err := tr.Wait(); err != nil {
		t.Fatal(err)
	}
}
