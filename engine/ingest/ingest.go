// Package ingest is the document ingestion pipeline: content normalization,
// validation, checksum deduplication, chunking, embedding, and the two-phase
// commit that flips a document from pending to active once its chunk vectors
// are stored.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/engine/embed"
	"github.com/swasthyasetu/corpus-engine/engine/semantic"
	"github.com/swasthyasetu/corpus-engine/pkg/fn"
)

// DefaultEmbedWorkers bounds concurrent embedding calls per document.
const DefaultEmbedWorkers = 4

// DocumentStore is the document persistence the pipeline needs.
type DocumentStore interface {
	Create(ctx context.Context, doc domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	FindActiveByChecksum(ctx context.Context, checksum string) (domain.Document, bool, error)
	Activate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// VectorStore is the chunk vector persistence the pipeline needs.
type VectorStore interface {
	Upsert(ctx context.Context, records []semantic.ChunkRecord) error
	DeleteByDocumentID(ctx context.Context, docID string) error
}

// Deps holds the external dependencies of the pipeline.
type Deps struct {
	Docs     DocumentStore
	Vectors  VectorStore
	Embedder embed.Embedder
	Fetcher  *Fetcher

	// MaxTokens per chunk; DefaultMaxTokens when zero.
	MaxTokens int
	// EmbedWorkers bounds concurrent embedding calls; DefaultEmbedWorkers
	// when zero. Chunk order in the stored records is by position, never by
	// completion.
	EmbedWorkers int
	Logger       *slog.Logger
}

// Pipeline ingests documents. Each call is independent; the pipeline holds no
// per-request state.
type Pipeline struct {
	deps Deps
}

// NewPipeline creates a Pipeline, applying defaults for unset knobs.
func NewPipeline(deps Deps) *Pipeline {
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = DefaultMaxTokens
	}
	if deps.EmbedWorkers <= 0 {
		deps.EmbedWorkers = DefaultEmbedWorkers
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Fetcher == nil {
		deps.Fetcher = NewFetcher(0)
	}
	return &Pipeline{deps: deps}
}

// Ingest runs the full pipeline for one document.
//
// Duplicate content is a success: if an active document already carries the
// same checksum, its id is returned with Created false and nothing is
// written. Otherwise the document is created pending, chunked, embedded, and
// activated only after every chunk vector is stored. Any failure after the
// pending insert triggers a compensating delete so no orphaned document
// survives.
func (p *Pipeline) Ingest(ctx context.Context, req domain.IngestRequest) (Result, error) {
	log := p.deps.Logger

	norm, err := normalizeContent(req.Title, req.Content)
	if err != nil {
		return Result{}, err
	}
	if err := domain.ValidateIngest(req, norm.Text, norm.Placeholder); err != nil {
		return Result{}, err
	}

	checksum := domain.Checksum(norm.Text)
	if existing, found, err := p.deps.Docs.FindActiveByChecksum(ctx, checksum); err != nil {
		return Result{}, fmt.Errorf("ingest: dedup lookup: %w", err)
	} else if found {
		log.Info("ingest: duplicate content", "document_id", existing.ID, "checksum", checksum[:12])
		return Result{DocumentID: existing.ID, Created: false}, nil
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Content:     norm.Text,
		ContentHTML: norm.HTML,
		DocType:     req.DocType,
		Category:    req.Category,
		Tags:        fn.Unique(req.Tags),
		Language:    req.Language,
		SourceURL:   req.SourceURL,
		Checksum:    checksum,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.deps.Docs.Create(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("ingest: create document: %w", err)
	}

	texts := ChunkText(norm.Text, p.deps.MaxTokens)
	if len(texts) == 0 {
		texts = []string{norm.Text}
	}
	chunks := buildChunks(doc, texts)

	records, err := p.embedChunks(ctx, doc, chunks)
	if err != nil {
		p.compensate(ctx, doc.ID)
		return Result{}, err
	}
	if err := p.deps.Vectors.Upsert(ctx, records); err != nil {
		p.compensate(ctx, doc.ID)
		return Result{}, fmt.Errorf("ingest: store chunk vectors: %w", err)
	}
	if err := p.deps.Docs.Activate(ctx, doc.ID); err != nil {
		p.compensate(ctx, doc.ID)
		return Result{}, fmt.Errorf("ingest: activate document: %w", err)
	}

	log.Info("ingest: document stored",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"doc_type", doc.DocType,
		"language", doc.Language,
	)
	return Result{DocumentID: doc.ID, Created: true}, nil
}

// IngestURL fetches a remote page and ingests its text content.
func (p *Pipeline) IngestURL(ctx context.Context, req URLRequest) (Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return Result{}, domain.NewValidationError("url", req.URL, domain.ErrMissingURL)
	}

	pg, err := p.deps.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return Result{}, err
	}

	return p.Ingest(ctx, domain.IngestRequest{
		Title:     pg.Title,
		Content:   pg.Text,
		DocType:   req.DocType,
		Language:  req.Language,
		Category:  req.Category,
		Tags:      req.Tags,
		SourceURL: req.URL,
	})
}

// Delete removes a document and all of its chunk vectors. Vectors go first so
// a partial failure leaves the document findable and the delete retryable.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if _, err := p.deps.Docs.Get(ctx, id); err != nil {
		return err
	}
	if err := p.deps.Vectors.DeleteByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("ingest: delete chunk vectors for %s: %w", id, err)
	}
	if err := p.deps.Docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("ingest: delete document %s: %w", id, err)
	}
	p.deps.Logger.Info("ingest: document deleted", "document_id", id)
	return nil
}

// buildChunks materializes a document's chunk rows: contiguous zero-based
// indices, deterministic point ids, and per-chunk token estimates.
func buildChunks(doc domain.Document, texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:            chunkPointID(doc.ID, i),
			DocumentID:    doc.ID,
			ChunkIndex:    i,
			Content:       text,
			TokenEstimate: EstimateTokens(text),
			CreatedAt:     doc.CreatedAt,
		}
	}
	return chunks
}

// embedChunks embeds every chunk with bounded concurrency. One failed chunk
// fails the whole document; a partial-chunk document is never a valid
// terminal state.
func (p *Pipeline) embedChunks(ctx context.Context, doc domain.Document, chunks []domain.Chunk) ([]semantic.ChunkRecord, error) {
	embedded := fn.ParMapResult(chunks, p.deps.EmbedWorkers, func(chunk domain.Chunk) fn.Result[[]float32] {
		return fn.FromPair(p.deps.Embedder.Embed(ctx, chunk.Content))
	})
	vectors, err := fn.Collect(embedded).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("ingest: embed chunks for %s: %w", doc.ID, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	records := fn.Map(chunks, func(chunk domain.Chunk) semantic.ChunkRecord {
		return semantic.ChunkRecord{
			ID:        chunk.ID,
			Embedding: chunk.Embedding,
			Payload: semantic.ChunkPayload{
				Content:       chunk.Content,
				DocumentID:    chunk.DocumentID,
				ChunkIndex:    chunk.ChunkIndex,
				TokenEstimate: chunk.TokenEstimate,
				Title:         doc.Title,
				DocType:       doc.DocType,
				Category:      doc.Category,
				Language:      doc.Language,
				SourceURL:     doc.SourceURL,
			},
		}
	})
	return records, nil
}

// chunkPointID derives a deterministic vector point id from the document id
// and chunk position, so re-ingesting overwrites rather than duplicates.
func chunkPointID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", docID, index))).String()
}

// compensate undoes a failed ingestion: vectors first, then the pending
// document. Best effort; a stuck pending row is swept by the cleanup job.
func (p *Pipeline) compensate(ctx context.Context, docID string) {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := p.deps.Vectors.DeleteByDocumentID(cleanupCtx, docID); err != nil {
		p.deps.Logger.Warn("ingest: compensating vector delete failed", "document_id", docID, "error", err)
	}
	if err := p.deps.Docs.Delete(cleanupCtx, docID); err != nil {
		p.deps.Logger.Warn("ingest: compensating document delete failed", "document_id", docID, "error", err)
	}
}
