package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ragloop banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"                 _                   ", "#818cf8"},
		{"  _ __ __ _  __ _| | ___   ___  _ __  ", "#a78bfa"},
		{" | '__/ _` |/ _` | |/ _ \\ / _ \\| '_ \\ ", "#c084fc"},
		{" | | | (_| | (_| | | (_) | (_) | |_) |", "#e879f9"},
		{" |_|  \\__,_|\\__, |_|\\___/ \\___/| .__/ ", "#f472b6"},
		{"            |___/              |_|    ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  corrective RAG "+version).Faint())
	fmt.Fprintln(w)
}
