package main

import (
	"fmt"
	"os"
)

// ANSI escape codes, disabled wholesale by --no-color.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// report writes one tagged line to stderr, keeping stdout clean for data
// output such as history listings and config dumps.
func report(color, tag, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, tag+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { report(colorGreen, "✓", format, args...) }

func printError(format string, args ...any) { report(colorRed, "✗", format, args...) }

func printWarning(format string, args ...any) { report(colorYellow, "⚠", format, args...) }

func printStep(format string, args ...any) { report(colorCyan, "→", format, args...) }

// printStatus renders one "label: value" line of the status report.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), val)
}

// outcomeMark is the per-delivery glyph shown in history listings.
func outcomeMark(success bool) string {
	if success {
		return colorize(colorGreen, "✓")
	}
	return colorize(colorRed, "✗")
}

// truncateTitle keeps a meeting title within one history column.
func truncateTitle(title string, max int) string {
	if len(title) <= max {
		return title
	}
	return title[:max] + "..."
}
