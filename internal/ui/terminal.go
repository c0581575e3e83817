// Package ui provides terminal styling for vg CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor reports whether output should be colored.
// NO_COLOR always wins, CLICOLOR_FORCE forces color on even without a
// TTY, CLICOLOR=0 turns it off, and otherwise the terminal decides.
func ShouldUseColor() bool {
	return termenv.EnvColorProfile() != termenv.Ascii
}

// ShouldUseEmoji reports whether status icons render as emoji.
// VIGIL_NO_EMOJI turns them off; otherwise emoji follow the TTY state.
func ShouldUseEmoji() bool {
	if os.Getenv("VIGIL_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// IsAgentMode reports whether output is being consumed by an
// integration rather than a person: VIGIL_AGENT is set, or stdout is
// not a terminal. Agent mode skips markdown rendering and decoration
// so the output stays parseable.
func IsAgentMode() bool {
	if os.Getenv("VIGIL_AGENT") != "" {
		return true
	}
	return !IsTerminal()
}
