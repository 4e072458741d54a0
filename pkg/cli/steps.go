package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StepBar renders a linear progress indicator such as
//
//	✓ Info ── ✓ Sample ── ● Record ── ○ Success
type StepBar struct {
	Styles Styles
	Steps  []string

	// Current is the index of the active step. Steps before it are done.
	// When Current is the last step it is rendered as done.
	Current int
}

// Render renders the bar on one line.
func (b StepBar) Render() string {
	parts := make([]string, len(b.Steps))
	last := len(b.Steps) - 1
	for i, name := range b.Steps {
		switch {
		case i < b.Current, i == b.Current && i == last:
			parts[i] = b.Styles.Done.Render("✓ " + name)
		case i == b.Current:
			parts[i] = b.Styles.Active.Render("● " + name)
		default:
			parts[i] = b.Styles.Pending.Render("○ " + name)
		}
	}
	return strings.Join(parts, b.Styles.Pending.Render(" ── "))
}

// ProgressBar renders "[█████░░░░░]  50%" with the bar width cells wide.
// The fraction is clamped to [0, 1].
func ProgressBar(s Styles, width int, fraction float64) string {
	if width < 1 {
		width = 1
	}
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	fraction = min(fraction, 1)
	filled := int(fraction * float64(width))
	bar := s.Done.Render(strings.Repeat("█", filled)) +
		s.Pending.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("[%s] %3d%%", bar, int(fraction*100))
}

// Countdown renders the remaining recording seconds, e.g. "● REC 2s".
func Countdown(s Styles, remaining int) string {
	return s.Error.Render("● REC") + " " + lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%ds", remaining))
}
