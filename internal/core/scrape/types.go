package scrape

// Params describe one scrape request.
type Params struct {
	URL          string `json:"url"`
	Fresh        bool   `json:"fresh,omitempty"`
	IncludeHTML  bool   `json:"include_html,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Metadata is the page-level metadata returned alongside content.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
	OgTitle     string `json:"og_title,omitempty"`
	OgImage     string `json:"og_image,omitempty"`
	SourceURL   string `json:"source_url"`
	StatusCode  int    `json:"status_code"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// Result is the full outcome of a scrape, and the value cached between
// requests for the same URL and parameters.
type Result struct {
	Success     bool     `json:"success"`
	URL         string   `json:"url"`
	Content     string   `json:"content,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Links       []string `json:"links,omitempty"`
	Discovered  int      `json:"discovered"`
	Transformed string   `json:"transformed,omitempty"`
	Truncated   bool     `json:"truncated,omitempty"`
	Metadata    Metadata `json:"metadata"`
	Cached      bool     `json:"cached"`
	Error       string   `json:"error,omitempty"`
}
