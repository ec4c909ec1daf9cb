package model

// PageChunk is a page-addressable slice of the source document, created once
// by the splitter and consumed by the acquisition tier. Immutable.
type PageChunk struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	FirstPage int    `json:"first_page"` // 1-indexed, inclusive
	LastPage  int    `json:"last_page"`
	Path      string `json:"path"` // chunk PDF written to the run work dir
	Size      int64  `json:"size"`
}

// Pages returns the number of pages covered by the chunk.
func (c PageChunk) Pages() int {
	return c.LastPage - c.FirstPage + 1
}
