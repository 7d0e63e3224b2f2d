package format

import (
	"strings"

	"github.com/gomarkdown/markdown"
)

// PreprocessAssistantText normalizes LLM output.
// Performs basic text cleanup for better readability.
func PreprocessAssistantText(text string) string {
	if text == "" {
		return text
	}

	// Replace curly quotes (helps readability)
	text = strings.NewReplacer(
		"“", "\"", // left double
		"”", "\"", // right double
		"‘", "'", // left single
		"’", "'", // right single
	).Replace(text)

	return text
}

// RenderHTML converts the assistant's markdown answer to HTML for the chat
// widget.
func RenderHTML(text string) string {
	md := []byte(PreprocessAssistantText(text))
	return string(markdown.ToHTML(md, nil, nil))
}
