package indexing

// Entry sizing constants
const (
	// TargetEntryTokens is the preferred size of a subdivided docstring (~1200 chars)
	TargetEntryTokens = 300

	// MaxEntryTokens is the size above which a docstring is subdivided (~2000 chars)
	MaxEntryTokens = 500

	// OverlapTokens is carried between force-split parts (~160 chars)
	OverlapTokens = 40

	// CharsPerToken is the approximation for token estimation
	CharsPerToken = 4

	// MaxKeywords caps keywords stored per entry
	MaxKeywords = 10

	// IndexSchemaVersion increments when the DocEntry layout or mapping changes
	// v1: one entry per record, v2: subdivided docstrings and keyword fields
	IndexSchemaVersion = 2
)
