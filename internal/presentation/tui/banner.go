package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"      _                               ", "#818cf8"},
	{"  ___| | ___   _ ___  ___ ___  _ __   ___ ", "#a78bfa"},
	{" / __| |/ / | | / __|/ __/ _ \\| '_ \\ / _ \\", "#c084fc"},
	{" \\__ \\   <| |_| \\__ \\ (_| (_) | |_) |  __/", "#e879f9"},
	{" |___/_|\\_\\\\__, |___/\\___\\___/| .__/ \\___|", "#f472b6"},
	{"           |___/              |_|          ", "#fb7185"},
}

// PrintBanner writes the ASCII art banner followed by the backend it talks to.
func PrintBanner(w io.Writer, p termenv.Profile, backend string) {
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
	if backend != "" {
		fmt.Fprintln(w, p.String("  backend: "+backend).Faint())
		fmt.Fprintln(w)
	}
}
