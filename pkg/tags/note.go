package tags

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/CTAG07/markus/pkg/markus"
)

var defaultTitles = map[string]string{
	"note":    "Please note:",
	"warning": "Warning:",
	"tip":     "Did you know?",
}

var paragraphs = goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe()))

func renderNote(c *markus.Call) (string, error) {
	title := c.Attr("title")
	if title == "" {
		title = defaultTitles[strings.ToLower(c.Node.Name())]
	}
	body, err := formatParagraphs(c.Content)
	if err != nil {
		return "", err
	}
	return `<div class="note"><b>` + c.Encode(title) + `</b>` + body + `<div class="text-end"></div></div>`, nil
}

// formatParagraphs splits text on blank lines into <p> elements. Inline HTML
// produced by nested tags is kept as is.
func formatParagraphs(text string) (string, error) {
	var buf bytes.Buffer
	if err := paragraphs.Convert([]byte(strings.TrimSpace(text)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
