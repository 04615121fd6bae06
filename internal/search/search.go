package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCaption ResultType = "caption"
	ResultContent ResultType = "content"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type          ResultType `json:"type"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Snippet       string     `json:"snippet"`
	ContentItemID string     `json:"contentItemId"`
	Status        string     `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Status     string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// CaptionRecord is the data we index for a caption.
type CaptionRecord struct {
	ID            string `json:"id"`
	ContentItemID string `json:"contentItemId"`
	Filename      string `json:"filename"`
	Tone          string `json:"tone"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	Version       int    `json:"version"`
}

// ContentRecord is the data we index for a content item.
type ContentRecord struct {
	ID          string `json:"id"`
	DriveFileID string `json:"driveFileId"`
	Filename    string `json:"filename"`
	FileType    string `json:"fileType"`
	Status      string `json:"status"`
}
