package indexing

import (
	"fmt"

	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
)

// FromRecord converts one dataset record into index entries. Most records
// produce a single entry with ID "rec_<ordinal>"; long docstrings produce
// "rec_<ordinal>_sub<i>" parts that share the record's location metadata.
func FromRecord(rec searchindex.Record, ordinal int, baseURL string) []DocEntry {
	pagePath, anchor := SplitLocation(rec.Location)
	base := DocEntry{
		ID:         fmt.Sprintf("rec_%d", ordinal),
		Ordinal:    ordinal,
		Location:   rec.Location,
		PagePath:   pagePath,
		Anchor:     anchor,
		Page:       rec.Page,
		Title:      rec.Title,
		Category:   string(rec.Category),
		URL:        BuildURL(baseURL, rec.Location),
		Breadcrumb: BuildBreadcrumb(rec.Page, rec.Title),
	}

	parts := SubdivideText(CleanText(rec.Text))
	if len(parts) == 1 {
		base.Text = parts[0]
		enrich(&base)
		return []DocEntry{base}
	}

	entries := make([]DocEntry, 0, len(parts))
	for i, part := range parts {
		entry := base
		entry.ID = fmt.Sprintf("%s_sub%d", base.ID, i)
		entry.Text = part
		enrich(&entry)
		entries = append(entries, entry)
	}
	return entries
}

// BuildEntries converts every record of ds, in dataset order
func BuildEntries(ds *searchindex.Dataset, baseURL string) []DocEntry {
	records := ds.Load()
	entries := make([]DocEntry, 0, len(records))
	for i, rec := range records {
		entries = append(entries, FromRecord(rec, i, baseURL)...)
	}
	return entries
}

func enrich(entry *DocEntry) {
	entry.Keywords = ExtractKeywords(entry.Title, entry.Text)
	entry.TokenCount = EstimateTokens(entry.Text)
}

// AverageTokens calculates the average token count across entries
func AverageTokens(entries []DocEntry) int {
	if len(entries) == 0 {
		return 0
	}
	total := 0
	for _, entry := range entries {
		total += entry.TokenCount
	}
	return total / len(entries)
}

// CountOversized counts entries that exceed MaxEntryTokens
func CountOversized(entries []DocEntry) int {
	count := 0
	for _, entry := range entries {
		if entry.TokenCount > MaxEntryTokens {
			count++
		}
	}
	return count
}
