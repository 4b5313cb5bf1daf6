package searchindex

// Category is the kind of documentation entry a record points at
type Category string

// Categories emitted by Documenter. Docstring categories follow the
// binding kind; "section" and "page" come from rendered markdown.
const (
	CategorySection  Category = "section"
	CategoryPage     Category = "page"
	CategoryModule   Category = "module"
	CategoryConstant Category = "constant"
	CategoryType     Category = "type"
	CategoryFunction Category = "function"
	CategoryMethod   Category = "method"
	CategoryMacro    Category = "macro"
	CategoryKeyword  Category = "keyword"
)

var knownCategories = []Category{
	CategorySection,
	CategoryPage,
	CategoryModule,
	CategoryConstant,
	CategoryType,
	CategoryFunction,
	CategoryMethod,
	CategoryMacro,
	CategoryKeyword,
}

// KnownCategories returns the closed set of accepted categories
func KnownCategories() []Category {
	out := make([]Category, len(knownCategories))
	copy(out, knownCategories)
	return out
}

// Valid reports whether c belongs to the closed category set
func (c Category) Valid() bool {
	for _, known := range knownCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Record is one entry of the documentation search index.
// Field order matches the generator's output and must not change:
// serialization relies on it to reproduce the file byte for byte.
type Record struct {
	Location string   `json:"location"` // URL fragment, e.g. "api/PowerAnalytics/#Index"
	Page     string   `json:"page"`     // Human-readable page name
	Title    string   `json:"title"`    // Section or binding title at Location
	Text     string   `json:"text"`     // Snippet, may be empty
	Category Category `json:"category"`
}

// recordFields lists the exact key set of a serialized record
var recordFields = []string{"location", "page", "title", "text", "category"}
