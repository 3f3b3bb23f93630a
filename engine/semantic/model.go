package semantic

import "github.com/swasthyasetu/corpus-engine/engine/domain"

// ChunkPayload is the typed metadata stored alongside each chunk vector.
// Document metadata is denormalized here so search hits need no second
// lookup.
type ChunkPayload struct {
	Content       string
	DocumentID    string
	ChunkIndex    int
	TokenEstimate int
	Title         string
	DocType       domain.DocType
	Category      string
	Language      domain.Language
	SourceURL     string
}

// ChunkRecord is a single chunk vector to store.
type ChunkRecord struct {
	ID        string
	Embedding []float32
	Payload   ChunkPayload
}

// Hit is a single similarity search result.
type Hit struct {
	ID      string
	Score   float64
	Payload ChunkPayload
}

// toSearchResult converts a hit into the shared search result shape.
func (h Hit) toSearchResult() domain.SearchResult {
	return domain.SearchResult{
		DocumentID: h.Payload.DocumentID,
		ChunkIndex: h.Payload.ChunkIndex,
		Content:    h.Payload.Content,
		Score:      h.Score,
		SearchType: domain.SearchTypeSemantic,
		Title:      h.Payload.Title,
		DocType:    h.Payload.DocType,
		Category:   h.Payload.Category,
		Language:   h.Payload.Language,
		SourceURL:  h.Payload.SourceURL,
	}
}
