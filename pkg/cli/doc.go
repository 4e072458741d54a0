// Package cli provides terminal helpers for the voicecollect command:
// structured output (YAML, JSON), lipgloss styles, the wizard's progress
// steps indicator and an upload progress bar.
package cli
