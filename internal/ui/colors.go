// Package ui styles terminal output.
package ui

import "os"

// ANSI styles for CLI output. Disable blanks them.
var (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

// Disable turns every style into the empty string.
func Disable() {
	ColorReset, ColorBold, ColorDim = "", "", ""
	ColorCyan, ColorGreen, ColorYellow, ColorWhite, ColorRed = "", "", "", "", ""
}

// NoColor reports whether the environment asks for plain output
// (https://no-color.org).
func NoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

func Bold(s string) string {
	return ColorBold + s + ColorReset
}

func Success(s string) string {
	return ColorGreen + s + ColorReset
}

func Warn(s string) string {
	return ColorYellow + s + ColorReset
}

func Error(s string) string {
	return ColorRed + s + ColorReset
}
