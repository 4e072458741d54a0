package wizard

import (
	"github.com/haivivi/voicecollect/pkg/capture"
	"github.com/haivivi/voicecollect/pkg/storage"
)

// EventKind identifies an Event.
type EventKind int

const (
	// EventStepChanged: From and Step are set.
	EventStepChanged EventKind = iota + 1

	// EventRecordingStarted: the microphone is open and the countdown armed.
	EventRecordingStarted

	// EventCountdown: Remaining seconds before the recording stops itself.
	EventCountdown

	// EventRecordingFinalized: Artifact is set.
	EventRecordingFinalized

	// EventRecordingDiscarded: the artifact or open capture was dropped by
	// Retake.
	EventRecordingDiscarded

	// EventPlaybackEnded: Source is set; Err is set if playback failed.
	EventPlaybackEnded

	// EventUploadProgress: Progress is set.
	EventUploadProgress

	// EventUploaded: Locator and Path are set.
	EventUploaded

	// EventNotice: a recoverable error the collector should see. Err is set.
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventStepChanged:
		return "step_changed"
	case EventRecordingStarted:
		return "recording_started"
	case EventCountdown:
		return "countdown"
	case EventRecordingFinalized:
		return "recording_finalized"
	case EventRecordingDiscarded:
		return "recording_discarded"
	case EventPlaybackEnded:
		return "playback_ended"
	case EventUploadProgress:
		return "upload_progress"
	case EventUploaded:
		return "uploaded"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification. Step is the session's step when the
// event was produced; the other fields depend on Kind.
type Event struct {
	Kind EventKind
	Step Step
	From Step

	Remaining int
	Artifact  *capture.Artifact
	Source    string
	Progress  storage.Progress
	Path      string
	Locator   string
	Err       error
}
