package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var previewRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// RenderHTML renders a planner text as an HTML fragment. Checkbox lines
// become GFM task list items. Raw HTML in the input is not passed through.
func RenderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := previewRenderer.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
