package ingest

import "github.com/swasthyasetu/corpus-engine/engine/domain"

// Result reports the outcome of an ingestion. Created is false when the
// content deduplicated against an existing active document.
type Result struct {
	DocumentID string `json:"document_id"`
	Created    bool   `json:"created"`
}

// URLRequest asks for a remote page to be fetched and ingested.
type URLRequest struct {
	URL      string          `json:"url"`
	DocType  domain.DocType  `json:"doc_type"`
	Language domain.Language `json:"language"`
	Category string          `json:"category,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
}

// Task is the message published to the ingestion subject. Either URL or the
// embedded request's Content is set.
type Task struct {
	URL string `json:"url,omitempty"`
	domain.IngestRequest
}
