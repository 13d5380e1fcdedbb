package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/skyscope/internal/presentation/tui"
	"github.com/aretw0/skyscope/pkg/highlight"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowPrinter_Ascii(t *testing.T) {
	rp := tui.NewRowPrinter(termenv.Ascii)
	row := highlight.Row{
		Hash: "h1",
		Type: "File",
		Segments: []highlight.Segment{
			{Kind: highlight.Context, Text: "[/src]/"},
			{Kind: highlight.Highlight, Text: "lib"},
			{Kind: highlight.Context, Text: "/BUILD"},
		},
	}

	assert.Equal(t, "  1 [ ] File [/src]/lib/BUILD", rp.Row(1, row))
	row.Visible = true
	assert.Equal(t, " 12 [x] File [/src]/lib/BUILD", rp.Row(12, row))
}

func TestRowPrinter_Rows(t *testing.T) {
	rp := tui.NewRowPrinter(termenv.Ascii)
	out := rp.Rows([]highlight.Row{
		{Type: "A", Segments: []highlight.Segment{{Text: "a"}}},
		{Type: "B", Segments: []highlight.Segment{{Text: "b"}}},
	}, "2 nodes")
	assert.Equal(t, "  1 [ ] A a\n  2 [ ] B b\n2 nodes\n", out)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, termenv.Ascii, "http://localhost:8080/")
	assert.Contains(t, buf.String(), "backend: http://localhost:8080/")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestRenderer(t *testing.T) {
	render := tui.NewRenderer()
	out, err := render(tui.HelpMarkdown)
	require.NoError(t, err)
	assert.Contains(t, out, "Skyframe")
}
