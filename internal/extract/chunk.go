package extract

import (
	"strings"
	"unicode/utf8"
)

// splitChunks cuts a section into pieces of at most maxChars, preferring to
// break after a table end, then at a blank line, so tables and paragraphs
// stay whole. A boundary is only taken from the back half of the window to
// avoid degenerate tiny chunks.
func splitChunks(text string, maxChars int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxChars {
		cut := boundary(text[:maxChars])
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = text[cut:]
	}
	if rest := strings.TrimSpace(text); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func boundary(window string) int {
	floor := len(window) / 2

	if idx := strings.LastIndex(window, "</table>"); idx >= floor {
		return idx + len("</table>")
	}
	if idx := strings.LastIndex(window, "</TABLE>"); idx >= floor {
		return idx + len("</TABLE>")
	}
	if idx := strings.LastIndex(window, "\n\n"); idx >= floor {
		return idx + 2
	}
	if idx := strings.LastIndex(window, "\n"); idx >= floor {
		return idx + 1
	}
	return len(window)
}
