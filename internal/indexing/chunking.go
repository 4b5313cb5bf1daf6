package indexing

import (
	"strings"
	"unicode/utf8"
)

// ForceSplitText splits text by character count at word boundaries.
// Consecutive parts share overlapChars characters when the parts are large
// enough to carry them.
func ForceSplitText(text string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		chunkSize := maxChars
		if len(text) < chunkSize {
			chunkSize = len(text)
		}

		// Try to break at word boundary
		if chunkSize < len(text) {
			for i := chunkSize; i > chunkSize-100 && i > 0; i-- {
				if text[i] == ' ' || text[i] == '\n' {
					chunkSize = i
					break
				}
			}
		}

		chunkSize = runeBoundary(text, chunkSize)
		if chunkSize == 0 {
			// maxChars is smaller than the first rune
			_, chunkSize = utf8.DecodeRuneInString(text)
		}

		parts = append(parts, strings.TrimSpace(text[:chunkSize]))

		next := chunkSize
		if chunkSize+overlapChars < len(text) && chunkSize > 2*overlapChars {
			if start := runeBoundary(text, chunkSize-overlapChars); start > 0 {
				next = start
			}
		}
		text = text[next:]
	}

	return parts
}

// runeBoundary moves i back to the start of the rune it falls in
func runeBoundary(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// SubdivideText splits a long docstring into parts of roughly
// TargetEntryTokens, keeping paragraphs whole where possible.
// Text within MaxEntryTokens is returned as a single part.
func SubdivideText(text string) []string {
	if EstimateTokens(text) <= MaxEntryTokens {
		return []string{text}
	}

	maxChars := MaxEntryTokens * CharsPerToken
	overlapChars := OverlapTokens * CharsPerToken

	var parts []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// A single oversized paragraph is force-split on its own
		if EstimateTokens(para) > MaxEntryTokens {
			flush()
			parts = append(parts, ForceSplitText(para, maxChars, overlapChars)...)
			continue
		}

		if current.Len() > 0 && EstimateTokens(current.String())+EstimateTokens(para) > TargetEntryTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	if len(parts) == 0 {
		return []string{text}
	}
	return parts
}
