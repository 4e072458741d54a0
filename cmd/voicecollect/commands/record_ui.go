package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/haivivi/voicecollect/pkg/capture"
	"github.com/haivivi/voicecollect/pkg/cli"
	"github.com/haivivi/voicecollect/pkg/playback"
	"github.com/haivivi/voicecollect/pkg/wizard"
)

// errQuit ends the wizard at the collector's request or at end of input.
var errQuit = errors.New("quit")

// readLines delivers trimmed input lines until r is exhausted.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- strings.TrimSpace(sc.Text())
		}
	}()
	return ch
}

var stepTitles = func() []string {
	titles := make([]string, len(wizard.Steps))
	for i, s := range wizard.Steps {
		titles[i] = s.Title()
	}
	return titles
}()

// recordUI drives a wizard session from line-oriented terminal input.
// All output happens on the goroutine calling run.
type recordUI struct {
	w      *wizard.Session
	p      *cli.Printer
	lines  <-chan string
	events chan wizard.Event
	closed chan struct{}

	// preset pre-fills the first Info step.
	preset *wizard.Metadata

	uploading bool
	submitted chan error
}

func newRecordUI(p *cli.Printer, lines <-chan string) *recordUI {
	return &recordUI{
		p:         p,
		lines:     lines,
		events:    make(chan wizard.Event, 64),
		closed:    make(chan struct{}),
		submitted: make(chan error, 1),
	}
}

// onEvent is the session's event callback.
func (r *recordUI) onEvent(e wizard.Event) {
	select {
	case r.events <- e:
	case <-r.closed:
	}
}

// run loops until the collector quits, input ends or ctx is cancelled.
func (r *recordUI) run(ctx context.Context) error {
	defer func() {
		close(r.closed)
		r.w.Reset()
	}()

	r.stepBar()
	for {
		if r.w.Step() == wizard.StepInfo {
			r.drain()
			if err := r.collectInfo(ctx); err != nil {
				return quitErr(err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-r.events:
			r.render(e)
		case err := <-r.submitted:
			r.uploading = false
			if err != nil {
				r.p.Info("press u to retry the upload")
			}
		case line, ok := <-r.lines:
			if !ok {
				return nil
			}
			if err := r.handle(ctx, line); err != nil {
				return quitErr(err)
			}
		}
	}
}

func quitErr(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// drain renders the events already queued.
func (r *recordUI) drain() {
	for {
		select {
		case e := <-r.events:
			r.render(e)
		default:
			return
		}
	}
}

// ask prompts for a value. An empty answer keeps def.
func (r *recordUI) ask(ctx context.Context, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(r.p.Out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(r.p.Out, "%s: ", label)
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case e := <-r.events:
			r.render(e)
		case line, ok := <-r.lines:
			if !ok {
				return "", errQuit
			}
			if line == "" {
				return def, nil
			}
			return line, nil
		}
	}
}

// collectInfo fills in the metadata and submits it, re-prompting until it
// validates.
func (r *recordUI) collectInfo(ctx context.Context) error {
	if r.preset != nil {
		m := *r.preset
		r.preset = nil
		err := r.w.SubmitInfo(m)
		if err == nil {
			return nil
		}
		r.reportValidation(err)
	}

	m := r.w.Metadata()
	for {
		yn := "n"
		if m.Affiliated {
			yn = "y"
		}
		answer, err := r.ask(ctx, "Recording for an organization? (y/n)", yn)
		if err != nil {
			return err
		}
		m.Affiliated = strings.HasPrefix(strings.ToLower(answer), "y")
		if m.Affiliated {
			if m.Organization, err = r.ask(ctx, "Organization", m.Organization); err != nil {
				return err
			}
		}
		if m.Category, err = r.ask(ctx, "Category", m.Category); err != nil {
			return err
		}
		if m.Phrase, err = r.ask(ctx, "Phrase", m.Phrase); err != nil {
			return err
		}

		err = r.w.SubmitInfo(m)
		if err == nil {
			return nil
		}
		if !r.reportValidation(err) {
			return err
		}
	}
}

func (r *recordUI) reportValidation(err error) bool {
	var verr *wizard.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	if len(verr.Missing) > 0 {
		r.p.Warn("please fill in: %s", strings.Join(verr.Missing, ", "))
	}
	if len(verr.Invalid) > 0 {
		r.p.Warn("no '/', '\\' or '..' allowed in: %s", strings.Join(verr.Invalid, ", "))
	}
	return true
}

// handle runs one command line on the Sample, Record or Success step.
func (r *recordUI) handle(ctx context.Context, line string) error {
	cmd := strings.ToLower(line)
	if cmd == "q" || cmd == "quit" {
		return errQuit
	}

	var err error
	switch r.w.Step() {
	case wizard.StepSample:
		switch cmd {
		case "p":
			// A missing sample is reported as a notice event.
			r.w.PlaySample(ctx)
		case "", "n":
			err = r.w.Advance()
		case "b":
			err = r.w.Retreat()
		default:
			r.menu()
		}

	case wizard.StepRecord:
		if r.uploading {
			r.p.Warn("upload in progress; q cancels it and quits")
			return nil
		}
		if r.w.Recording() {
			if cmd == "" || cmd == "s" {
				r.w.StopRecording()
			}
			return nil
		}
		switch cmd {
		case "r":
			// Permission failures are reported as notice events.
			if err := r.w.StartRecording(ctx); err != nil {
				var perr *capture.PermissionError
				if errors.As(err, &perr) {
					r.p.Info("check that a microphone is connected and allowed, then press r")
				}
			}
		case "l":
			_, err = r.w.PlayRecording(ctx)
		case "t":
			err = r.w.Retake()
		case "u":
			if r.w.Artifact() == nil {
				err = wizard.ErrNoRecording
				break
			}
			r.uploading = true
			go func() {
				_, err := r.w.Submit(ctx)
				r.submitted <- err
			}()
		case "b":
			err = r.w.Retreat()
		default:
			r.menu()
		}

	case wizard.StepSuccess:
		switch cmd {
		case "", "n":
			last := r.w.Metadata()
			r.w.Reset()
			// Keep who is recording; ask for the next phrase.
			last.Phrase = ""
			r.w.SetDraft(last)
		default:
			r.menu()
		}
	}

	if err != nil {
		r.p.Warn("%v", err)
	}
	return nil
}

// render prints one session event.
func (r *recordUI) render(e wizard.Event) {
	s := r.p.Styles
	switch e.Kind {
	case wizard.EventStepChanged:
		r.stepBar()
		r.menu()
	case wizard.EventRecordingStarted:
		fmt.Fprintln(r.p.Out, s.Active.Render("● recording")+" "+s.Help.Render("(Enter stops)"))
		fmt.Fprintln(r.p.Out, cli.Countdown(s, e.Remaining))
	case wizard.EventCountdown:
		fmt.Fprintln(r.p.Out, cli.Countdown(s, e.Remaining))
	case wizard.EventRecordingFinalized:
		r.p.Success("recorded %s (%s)", cli.FormatDuration(e.Artifact.Duration), cli.FormatBytes(int64(e.Artifact.Size())))
		r.menu()
	case wizard.EventRecordingDiscarded:
		r.p.Info("recording discarded")
	case wizard.EventPlaybackEnded:
		if e.Err != nil {
			r.p.Warn("playback failed: %v", e.Err)
		}
	case wizard.EventUploadProgress:
		fmt.Fprintf(r.p.Out, "uploading %s %s\n", e.Path, cli.ProgressBar(s, 20, e.Progress.Fraction()))
	case wizard.EventUploaded:
		r.p.Success("uploaded %s", e.Path)
		r.p.Info("download: %s", e.Locator)
	case wizard.EventNotice:
		var perr *playback.Error
		if errors.As(e.Err, &perr) {
			r.p.Warn("sample unavailable: %v", perr.Err)
			return
		}
		r.p.Warn("%v", e.Err)
	}
}

func (r *recordUI) stepBar() {
	step := r.w.Step()
	fmt.Fprintln(r.p.Out)
	fmt.Fprintln(r.p.Out, cli.StepBar{Styles: r.p.Styles, Steps: stepTitles, Current: int(step)}.Render())
	if step != wizard.StepInfo {
		m := r.w.Metadata()
		fmt.Fprintln(r.p.Out, r.p.Styles.Title.Render(fmt.Sprintf("%q", m.Phrase))+" "+
			r.p.Styles.Help.Render(wizard.Folder(m)))
	}
}

func (r *recordUI) menu() {
	var help string
	switch r.w.Step() {
	case wizard.StepSample:
		help = "p play sample · n next · b back · q quit"
	case wizard.StepRecord:
		if r.w.Artifact() != nil {
			help = "l listen · t retake · r record again · u upload · b back · q quit"
		} else {
			help = "r record · b back · q quit"
		}
	case wizard.StepSuccess:
		help = "n record another phrase · q quit"
	default:
		return
	}
	fmt.Fprintln(r.p.Out, r.p.Styles.Help.Render(help))
}
