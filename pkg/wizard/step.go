package wizard

import (
	"encoding/json"
	"fmt"

	"github.com/haivivi/voicecollect/pkg/capture"
)

// Step is a wizard step.
type Step int

const (
	StepInfo Step = iota
	StepSample
	StepRecord
	StepSuccess
)

// Steps lists the steps in order.
var Steps = []Step{StepInfo, StepSample, StepRecord, StepSuccess}

// String returns the string representation of the step.
func (s Step) String() string {
	switch s {
	case StepInfo:
		return "info"
	case StepSample:
		return "sample"
	case StepRecord:
		return "record"
	case StepSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Title returns the label shown in progress indicators.
func (s Step) Title() string {
	switch s {
	case StepInfo:
		return "Info"
	case StepSample:
		return "Sample"
	case StepRecord:
		return "Record"
	case StepSuccess:
		return "Success"
	default:
		return "?"
	}
}

// MarshalJSON implements json.Marshaler.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Step) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for _, st := range Steps {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("wizard: unknown step %q", name)
}

// state is the step pointer. Each step carries only its own data, so an
// artifact cannot exist while the collector is on Info.
type state interface {
	step() Step
}

// infoState holds the metadata being edited.
type infoState struct {
	draft Metadata
}

// sampleState holds submitted metadata. kept is a recording made before the
// collector stepped back from Record; it is restored on Advance.
type sampleState struct {
	meta Metadata
	kept *capture.Artifact
}

// recordState owns at most one capture session and at most one artifact.
type recordState struct {
	meta      Metadata
	capture   *capture.Session
	artifact  *capture.Artifact
	uploading bool
}

// successState is terminal until Reset.
type successState struct {
	meta    Metadata
	path    string
	locator string
}

func (*infoState) step() Step    { return StepInfo }
func (*sampleState) step() Step  { return StepSample }
func (*recordState) step() Step  { return StepRecord }
func (*successState) step() Step { return StepSuccess }

// recording reports whether the capture session is acquiring the device or
// recording.
func (r *recordState) recording() bool {
	if r.capture == nil {
		return false
	}
	select {
	case <-r.capture.Done():
		return false
	default:
		return true
	}
}
