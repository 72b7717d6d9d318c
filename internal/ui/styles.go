package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorDone    = 107 // green
	colorPending = 179 // amber
	colorAlert   = 167 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderDone returns s styled as a completed step (green).
func RenderDone(s string) string { return render(colorDone, s) }

// RenderPending returns s styled as an incomplete step (amber).
func RenderPending(s string) string { return render(colorPending, s) }

// RenderAlert returns s styled as an error or expiry (red).
func RenderAlert(s string) string { return render(colorAlert, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
