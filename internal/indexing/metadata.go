package indexing

import (
	"regexp"
	"strings"
)

var (
	refLinkRegex      = regexp.MustCompile(`\[([^\]]+)\]\(@ref[^\)]*\)`)
	markdownLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	blankRunRegex     = regexp.MustCompile(`\n{3,}`)
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"it": true, "be": true, "with": true, "from": true, "that": true,
	"any": true, "are": true, "if": true, "this": true, "its": true,
}

// SplitLocation separates a record location into its page path and anchor
// Example: "api/PowerAnalytics/#Index" -> ("api/PowerAnalytics/", "Index")
func SplitLocation(location string) (pagePath, anchor string) {
	pagePath, anchor, _ = strings.Cut(location, "#")
	return pagePath, anchor
}

// BuildURL joins the documentation site root with a record location.
// Returns "" when no base URL is configured.
func BuildURL(baseURL, location string) string {
	if baseURL == "" {
		return ""
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + strings.TrimPrefix(location, "/")
}

// StripMarkdownLinks removes markdown link syntax, keeping only the text
// Example: "[`compute`](@ref)" -> "`compute`"
func StripMarkdownLinks(text string) string {
	text = refLinkRegex.ReplaceAllString(text, "$1")
	return markdownLinkRegex.ReplaceAllString(text, "$1")
}

// CleanText prepares a record snippet for indexing. Docstrings end with a
// run of blank lines, which is dropped along with link targets.
func CleanText(text string) string {
	text = StripMarkdownLinks(text)
	text = blankRunRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// EstimateTokens estimates the token count for a text string
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// BuildBreadcrumb renders "Page > Title", collapsing equal parts
func BuildBreadcrumb(page, title string) string {
	switch {
	case page == "":
		return title
	case title == "" || title == page:
		return page
	default:
		return page + " > " + title
	}
}

// ExtractKeywords extracts key terms from a title and the start of the text.
// Qualified names are kept whole and also split, so
// "PowerAnalytics.weighted_mean" yields "poweranalytics.weighted_mean",
// "poweranalytics" and "weighted_mean".
func ExtractKeywords(title, text string) []string {
	var words []string
	for _, field := range strings.Fields(strings.ToLower(title)) {
		field = strings.Trim(field, "`\"'()[]{},:;")
		if strings.Contains(field, ".") {
			words = append(words, field)
		}
		words = append(words, splitIdentifier(field)...)
	}

	preview := text
	if len(preview) > 200 {
		preview = preview[:200]
	}
	for _, field := range strings.Fields(strings.ToLower(preview)) {
		words = append(words, splitIdentifier(field)...)
	}

	seen := make(map[string]bool)
	keywords := make([]string, 0, MaxKeywords)
	for _, word := range words {
		if len(word) <= 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

// splitIdentifier breaks s on anything that cannot appear in an identifier
func splitIdentifier(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '!')
	})
}
