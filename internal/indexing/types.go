package indexing

// DocEntry is a search index record prepared for the full-text index
type DocEntry struct {
	ID         string   `json:"id"`
	Ordinal    int      `json:"ordinal"`             // Position of the source record in the dataset
	Location   string   `json:"location"`            // Original location, e.g. "api/PowerAnalytics/#Index"
	PagePath   string   `json:"page_path"`           // Location before "#"
	Anchor     string   `json:"anchor,omitempty"`    // Location after "#"
	Page       string   `json:"page"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Text       string   `json:"text"`
	URL        string   `json:"url,omitempty"`
	Breadcrumb string   `json:"breadcrumb,omitempty"`  // "Page > Title"
	Keywords   []string `json:"keywords,omitempty"`    // Key terms from title and text
	TokenCount int      `json:"token_count,omitempty"` // Estimated token count for monitoring
}
