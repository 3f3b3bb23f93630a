// Package domain defines the corpus types, enumerations, and validation
// shared by the ingestion pipeline and the search service. It acts as the
// validation gate at pipeline entry points.
package domain

import "time"

// DocType classifies a corpus document.
type DocType string

const (
	DocTypeLegal   DocType = "legal"
	DocTypeMedical DocType = "medical"
	DocTypePolicy  DocType = "policy"
	DocTypeGeneral DocType = "general"
)

// ValidDocTypes is the set of recognised document types.
var ValidDocTypes = map[DocType]bool{
	DocTypeLegal: true, DocTypeMedical: true,
	DocTypePolicy: true, DocTypeGeneral: true,
}

// Language is a supported corpus language code.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
)

// ValidLanguages is the set of recognised language codes.
var ValidLanguages = map[Language]bool{
	LanguageEnglish: true,
	LanguageHindi:   true,
}

// Status is the lifecycle state of a document.
//
// A document is created pending, flipped to active once all of its chunk
// vectors are stored, and may be marked inactive by an operator. Only active
// documents participate in deduplication and search.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Document is a corpus document. Checksum is unique among active documents:
// at most one stored copy exists per distinct content body, regardless of
// title or metadata differences.
type Document struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	ContentHTML  string     `json:"content_html,omitempty"`
	DocType      DocType    `json:"doc_type"`
	Category     string     `json:"category,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Language     Language   `json:"language"`
	SourceURL    string     `json:"source_url,omitempty"`
	Checksum     string     `json:"checksum"`
	Status       Status     `json:"status"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
	FetchedAt    time.Time  `json:"fetched_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// Chunk is a bounded-size, sentence-aligned slice of a document's text, the
// unit of embedding and semantic retrieval. ChunkIndex values for a document
// are contiguous integers starting at 0.
type Chunk struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	ChunkIndex    int       `json:"chunk_index"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"-"`
	TokenEstimate int       `json:"token_estimate"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchType tags which strategy produced a search result.
type SearchType string

const (
	SearchTypeSemantic SearchType = "semantic"
	SearchTypeKeyword  SearchType = "keyword"
	SearchTypeHybrid   SearchType = "hybrid"
)

// SearchResult is a transient search hit with denormalized document
// metadata. RankScore is populated only on fused (hybrid-merged) results.
type SearchResult struct {
	DocumentID  string     `json:"document_id"`
	ChunkIndex  int        `json:"chunk_index"`
	Content     string     `json:"content"`
	Score       float64    `json:"score"`
	RankScore   int        `json:"rank_score,omitempty"`
	SearchType  SearchType `json:"search_type"`
	Title       string     `json:"title"`
	DocType     DocType    `json:"doc_type"`
	Category    string     `json:"category,omitempty"`
	Language    Language   `json:"language"`
	SourceURL   string     `json:"source_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// SearchFilters restricts search to documents matching every set field.
// An unset field matches everything.
type SearchFilters struct {
	DocType  DocType  `json:"doc_type,omitempty"`
	Category string   `json:"category,omitempty"`
	Language Language `json:"language,omitempty"`
}

// IngestRequest is the transport-agnostic ingestion payload accepted by the
// HTTP API and the NATS intake subject.
type IngestRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	DocType   DocType  `json:"doc_type"`
	Language  Language `json:"language"`
	Category  string   `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
}
