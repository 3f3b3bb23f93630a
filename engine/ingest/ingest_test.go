package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/engine/semantic"
)

// --- Fakes ---

type fakeDocs struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	createErr error
	actErr    error
	activated []string
	deleted   []string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]domain.Document{}}
}

func (f *fakeDocs) Create(_ context.Context, doc domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocs) Get(_ context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

func (f *fakeDocs) FindActiveByChecksum(_ context.Context, checksum string) (domain.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.Checksum == checksum && d.Status == domain.StatusActive {
			return d, true, nil
		}
	}
	return domain.Document{}, false, nil
}

func (f *fakeDocs) Activate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actErr != nil {
		return f.actErr
	}
	doc := f.docs[id]
	doc.Status = domain.StatusActive
	f.docs[id] = doc
	f.activated = append(f.activated, id)
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeVectors struct {
	mu        sync.Mutex
	records   []semantic.ChunkRecord
	upsertErr error
	deleted   []string
}

func (f *fakeVectors) Upsert(_ context.Context, records []semantic.ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectors) DeleteByDocumentID(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, docID)
	var kept []semantic.ChunkRecord
	for _, r := range f.records {
		if r.Payload.DocumentID != docID {
			kept = append(kept, r)
		}
	}
	f.records = kept
	return nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

func testPipeline(docs *fakeDocs, vecs *fakeVectors, emb *fakeEmbedder) *Pipeline {
	return NewPipeline(Deps{
		Docs:     docs,
		Vectors:  vecs,
		Embedder: emb,
		Logger:   slog.New(slog.DiscardHandler),
	})
}

func validRequest() domain.IngestRequest {
	return domain.IngestRequest{
		Title:    "Emergency care obligations",
		Content:  "No hospital may refuse emergency treatment. Stabilization is mandatory before any transfer. Payment cannot be demanded first.",
		DocType:  domain.DocTypeLegal,
		Language: domain.LanguageEnglish,
	}
}

// --- Tests ---

func TestIngest_CreatesAndActivates(t *testing.T) {
	docs, vecs, emb := newFakeDocs(), &fakeVectors{}, &fakeEmbedder{}
	p := testPipeline(docs, vecs, emb)

	res, err := p.Ingest(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !res.Created || res.DocumentID == "" {
		t.Fatalf("result = %+v", res)
	}

	doc, err := docs.Get(context.Background(), res.DocumentID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Status != domain.StatusActive {
		t.Errorf("status = %s, want active", doc.Status)
	}
	if doc.Checksum == "" {
		t.Error("checksum not set")
	}
	if len(vecs.records) == 0 {
		t.Fatal("no chunk vectors stored")
	}
}

func TestIngest_ChunkIndicesContiguous(t *testing.T) {
	docs, vecs, emb := newFakeDocs(), &fakeVectors{}, &fakeEmbedder{}
	p := NewPipeline(Deps{
		Docs: docs, Vectors: vecs, Embedder: emb,
		MaxTokens: 10,
		Logger:    slog.New(slog.DiscardHandler),
	})

	req := validRequest()
	req.Content = strings.Repeat("This sentence pads the document out to several chunks. ", 10)
	if _, err := p.Ingest(context.Background(), req); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(vecs.records) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(vecs.records))
	}
	for i, r := range vecs.records {
		if r.Payload.ChunkIndex != i {
			t.Errorf("record %d has chunk_index %d", i, r.Payload.ChunkIndex)
		}
		if r.ID == "" {
			t.Error("missing point id")
		}
		if r.Payload.TokenEstimate != EstimateTokens(r.Payload.Content) {
			t.Errorf("record %d token estimate %d for %d-char content",
				i, r.Payload.TokenEstimate, len(r.Payload.Content))
		}
	}
}

func TestBuildChunks(t *testing.T) {
	doc := domain.Document{ID: "doc-1"}
	chunks := buildChunks(doc, []string{"Care is a right", "Payment comes later"})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.DocumentID != "doc-1" {
			t.Errorf("chunk %d document id = %q", i, c.DocumentID)
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, c.ChunkIndex)
		}
		if c.ID != chunkPointID("doc-1", i) {
			t.Errorf("chunk %d id = %q, want deterministic point id", i, c.ID)
		}
		if c.TokenEstimate != EstimateTokens(c.Content) {
			t.Errorf("chunk %d token estimate = %d", i, c.TokenEstimate)
		}
	}
}

func TestIngest_DuplicateReturnsExistingID(t *testing.T) {
	docs, vecs, emb := newFakeDocs(), &fakeVectors{}, &fakeEmbedder{}
	p := testPipeline(docs, vecs, emb)

	first, err := p.Ingest(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	storedVectors := len(vecs.records)

	// Same content under a different title is the same document.
	req := validRequest()
	req.Title = "A different title"
	second, err := p.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if second.Created {
		t.Error("duplicate ingest reported Created")
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("duplicate returned %s, want %s", second.DocumentID, first.DocumentID)
	}
	if len(vecs.records) != storedVectors {
		t.Errorf("duplicate ingest stored %d new vectors", len(vecs.records)-storedVectors)
	}
	if len(docs.docs) != 1 {
		t.Errorf("duplicate ingest stored a second document")
	}
}

func TestIngest_ValidationRejected(t *testing.T) {
	p := testPipeline(newFakeDocs(), &fakeVectors{}, &fakeEmbedder{})

	req := validRequest()
	req.Content = "too short"
	_, err := p.Ingest(context.Background(), req)
	if !errors.Is(err, domain.ErrContentTooShort) {
		t.Fatalf("expected ErrContentTooShort, got %v", err)
	}
}

func TestIngest_EmbedFailureCompensates(t *testing.T) {
	docs, vecs := newFakeDocs(), &fakeVectors{}
	emb := &fakeEmbedder{err: errors.New("provider unavailable")}
	p := testPipeline(docs, vecs, emb)

	_, err := p.Ingest(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(docs.docs) != 0 {
		t.Error("pending document not cleaned up after embed failure")
	}
	if len(docs.deleted) != 1 || len(vecs.deleted) != 1 {
		t.Errorf("compensating deletes = docs:%v vectors:%v", docs.deleted, vecs.deleted)
	}
	if len(docs.activated) != 0 {
		t.Error("failed ingest must never activate")
	}
}

func TestIngest_UpsertFailureCompensates(t *testing.T) {
	docs := newFakeDocs()
	vecs := &fakeVectors{upsertErr: errors.New("qdrant down")}
	p := testPipeline(docs, vecs, &fakeEmbedder{})

	_, err := p.Ingest(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(docs.docs) != 0 {
		t.Error("pending document not cleaned up after upsert failure")
	}
}

func TestIngest_PlaceholderContentAccepted(t *testing.T) {
	docs, vecs, emb := newFakeDocs(), &fakeVectors{}, &fakeEmbedder{}
	p := testPipeline(docs, vecs, emb)

	req := validRequest()
	req.Content = "data:application/pdf;base64,JVBERi0xLjQ="
	res, err := p.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	doc, _ := docs.Get(context.Background(), res.DocumentID)
	if !strings.Contains(doc.Content, "application/pdf") {
		t.Errorf("stored content = %q, want placeholder", doc.Content)
	}
}

func TestIngestURL_MissingURL(t *testing.T) {
	p := testPipeline(newFakeDocs(), &fakeVectors{}, &fakeEmbedder{})
	_, err := p.IngestURL(context.Background(), URLRequest{DocType: domain.DocTypeLegal, Language: domain.LanguageEnglish})
	if !errors.Is(err, domain.ErrMissingURL) {
		t.Fatalf("expected ErrMissingURL, got %v", err)
	}
}

func TestDelete_Cascades(t *testing.T) {
	docs, vecs, emb := newFakeDocs(), &fakeVectors{}, &fakeEmbedder{}
	p := testPipeline(docs, vecs, emb)

	res, err := p.Ingest(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := p.Delete(context.Background(), res.DocumentID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(docs.docs) != 0 {
		t.Error("document survived delete")
	}
	if len(vecs.records) != 0 {
		t.Error("chunk vectors survived delete")
	}
}

func TestDelete_NotFound(t *testing.T) {
	p := testPipeline(newFakeDocs(), &fakeVectors{}, &fakeEmbedder{})
	err := p.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChunkPointID_Deterministic(t *testing.T) {
	a := chunkPointID("doc-1", 0)
	b := chunkPointID("doc-1", 0)
	c := chunkPointID("doc-1", 1)
	if a != b {
		t.Error("same document and index must give the same id")
	}
	if a == c {
		t.Error("different indices must give different ids")
	}
}
