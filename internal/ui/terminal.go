package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ShouldUseColor reports whether output should be colorized, honoring the
// conventional env vars in precedence order:
//
//	CLICOLOR_FORCE=1  force color even without a TTY
//	NO_COLOR=1        disable color
//	CLICOLOR=0        disable color
//
// Otherwise color is used when stdout is a terminal that supports it.
func ShouldUseColor() bool {
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
}

// Configure applies the detected color capability to the style renderer.
// Call once at startup, before any Render* helper.
func Configure() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
