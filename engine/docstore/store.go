// Package docstore persists corpus documents in Neo4j. It owns the checksum
// lookup used for deduplication, the pending→active status flip of the
// two-phase ingest commit, and the Lucene full-text index that serves the
// keyword side of hybrid search.
package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/pkg/fn"
)

// SnippetLength is how many characters of document content a keyword search
// result carries. The snippet is the head of the document, not a
// match-centered excerpt.
const SnippetLength = 500

// fulltextIndex is the name of the Lucene index over title and content.
const fulltextIndex = "document_content"

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store is the Neo4j-backed document store.
type Store struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
}

// New creates a Store over an existing driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// EnsureSchema creates the id constraint, checksum index, and full-text
// index if missing. Called once at service startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT document_id IF NOT EXISTS
		 FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		`CREATE INDEX document_checksum IF NOT EXISTS
		 FOR (d:Document) ON (d.checksum)`,
		`CREATE FULLTEXT INDEX ` + fulltextIndex + ` IF NOT EXISTS
		 FOR (d:Document) ON EACH [d.title, d.content]`,
	}
	for _, stmt := range stmts {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("docstore: ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new document node.
func (s *Store) Create(ctx context.Context, doc domain.Document) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `CREATE (d:Document) SET d = $props`, map[string]any{
		"props": documentToMap(doc),
	})
	if err != nil {
		return fmt.Errorf("docstore: create %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document by id.
func (s *Store) Get(ctx context.Context, id string) (domain.Document, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (d:Document {id: $id}) RETURN d`, map[string]any{"id": id})
	if err != nil {
		return domain.Document{}, fmt.Errorf("docstore: get %s: %w", id, err)
	}
	if !res.Next(ctx) {
		return domain.Document{}, fmt.Errorf("docstore: document %s: %w", id, domain.ErrNotFound)
	}
	return documentFromRecord(res.Record())
}

// FindActiveByChecksum returns the active document with the given checksum,
// if any. This is the deduplication lookup: pending and inactive documents
// do not count.
func (s *Store) FindActiveByChecksum(ctx context.Context, checksum string) (domain.Document, bool, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (d:Document {checksum: $checksum, status: $status}) RETURN d LIMIT 1`,
		map[string]any{"checksum": checksum, "status": string(domain.StatusActive)})
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("docstore: find by checksum: %w", err)
	}
	if !res.Next(ctx) {
		return domain.Document{}, false, nil
	}
	doc, err := documentFromRecord(res.Record())
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

// Activate flips a pending document to active once its chunks are stored.
func (s *Store) Activate(ctx context.Context, id string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MATCH (d:Document {id: $id})
		 SET d.status = $status, d.updated_at = $now`,
		map[string]any{
			"id":     id,
			"status": string(domain.StatusActive),
			"now":    time.Now().UTC().Format(time.RFC3339),
		})
	if err != nil {
		return fmt.Errorf("docstore: activate %s: %w", id, err)
	}
	return nil
}

// ListStalePending returns ids of pending documents created before cutoff.
// These are leftovers of ingestions that died between the pending insert and
// activation; the sweep in the ingest worker removes them.
func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	// created_at is stored RFC3339 UTC, so string comparison orders by time.
	res, err := sess.Run(ctx,
		`MATCH (d:Document {status: $status})
		 WHERE d.created_at < $cutoff
		 RETURN d.id AS id LIMIT $limit`,
		map[string]any{
			"status": string(domain.StatusPending),
			"cutoff": cutoff.UTC().Format(time.RFC3339),
			"limit":  limit,
		})
	if err != nil {
		return nil, fmt.Errorf("docstore: list stale pending: %w", err)
	}

	var ids []string
	for res.Next(ctx) {
		id, _, err := neo4j.GetRecordValue[string](res.Record(), "id")
		if err != nil {
			return nil, fmt.Errorf("docstore: list stale pending: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a document node. Chunk vectors live in the vector store
// and are cascaded by the caller.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `MATCH (d:Document {id: $id}) DETACH DELETE d`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", id, err)
	}
	return nil
}

// SearchFullText runs a keyword query against the full-text index,
// restricted to active documents matching the filters. Results carry the
// head of the document content as a snippet and chunk_index 0: keyword
// search operates at document granularity.
func (s *Store) SearchFullText(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.SearchResult, error) {
	lucene := buildFulltextQuery(query)
	if lucene == "" {
		return nil, nil
	}

	sess := s.session(ctx)
	defer sess.Close(ctx)

	var conds []string
	params := map[string]any{
		"query":  lucene,
		"status": string(domain.StatusActive),
		"limit":  limit,
	}
	conds = append(conds, "node.status = $status")
	if filters.DocType != "" {
		conds = append(conds, "node.doc_type = $doc_type")
		params["doc_type"] = string(filters.DocType)
	}
	if filters.Category != "" {
		conds = append(conds, "node.category = $category")
		params["category"] = filters.Category
	}
	if filters.Language != "" {
		conds = append(conds, "node.language = $language")
		params["language"] = string(filters.Language)
	}

	cypher := fmt.Sprintf(
		`CALL db.index.fulltext.queryNodes('%s', $query) YIELD node, score
		 WHERE %s
		 RETURN node, score
		 ORDER BY score DESC
		 LIMIT $limit`,
		fulltextIndex, strings.Join(conds, " AND "))

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("docstore: fulltext search: %w", err)
	}

	var results []domain.SearchResult
	for res.Next(ctx) {
		rec := res.Record()
		doc, err := documentFromRecord(rec)
		if err != nil {
			return nil, err
		}
		score, _, _ := neo4j.GetRecordValue[float64](rec, "score")
		results = append(results, domain.SearchResult{
			DocumentID:  doc.ID,
			ChunkIndex:  0,
			Content:     snippet(doc.Content),
			Score:       score,
			SearchType:  domain.SearchTypeKeyword,
			Title:       doc.Title,
			DocType:     doc.DocType,
			Category:    doc.Category,
			Language:    doc.Language,
			SourceURL:   doc.SourceURL,
			PublishedAt: doc.PublishedAt,
		})
	}
	return results, nil
}

// buildFulltextQuery turns a user query into a Lucene query with implicit
// AND between terms. Quoted phrases pass through as phrase queries; Lucene
// operator characters in terms are escaped.
func buildFulltextQuery(query string) string {
	terms := splitQueryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " AND ")
}

// splitQueryTerms tokenizes a query, keeping quoted phrases intact.
func splitQueryTerms(query string) []string {
	var terms []string
	var current strings.Builder
	inQuote := false

	flush := func() {
		t := strings.TrimSpace(current.String())
		current.Reset()
		if t == "" {
			return
		}
		if inQuote {
			terms = append(terms, `"`+escapeLucene(t)+`"`)
			return
		}
		terms = append(terms, escapeLucene(t))
	}

	for _, r := range query {
		switch {
		case r == '"':
			flush()
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	// An unterminated quote is treated as if it were closed.
	flush()
	return terms
}

var luceneEscaper = strings.NewReplacer(
	`+`, `\+`, `-`, `\-`, `&`, `\&`, `|`, `\|`, `!`, `\!`,
	`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`^`, `\^`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `\`, `\\`, `/`, `\/`,
)

func escapeLucene(term string) string {
	return luceneEscaper.Replace(term)
}

func snippet(content string) string {
	if len(content) <= SnippetLength {
		return content
	}
	return content[:SnippetLength]
}

// --- node mapping ---

func documentToMap(d domain.Document) map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"title":      d.Title,
		"content":    d.Content,
		"doc_type":   string(d.DocType),
		"language":   string(d.Language),
		"checksum":   d.Checksum,
		"status":     string(d.Status),
		"created_at": d.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": d.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if d.ContentHTML != "" {
		m["content_html"] = d.ContentHTML
	}
	if d.Category != "" {
		m["category"] = d.Category
	}
	if len(d.Tags) > 0 {
		m["tags"] = strings.Join(d.Tags, ",")
	}
	if d.SourceURL != "" {
		m["source_url"] = d.SourceURL
	}
	if d.Jurisdiction != "" {
		m["jurisdiction"] = d.Jurisdiction
	}
	if !d.FetchedAt.IsZero() {
		m["fetched_at"] = d.FetchedAt.UTC().Format(time.RFC3339)
	}
	if d.PublishedAt != nil {
		m["published_at"] = d.PublishedAt.UTC().Format(time.RFC3339)
	}
	return m
}

func documentFromRecord(rec *neo4j.Record) (domain.Document, error) {
	node, err := getNode(rec)
	if err != nil {
		return domain.Document{}, err
	}
	props := node.Props
	doc := domain.Document{
		ID:           strProp(props, "id"),
		Title:        strProp(props, "title"),
		Content:      strProp(props, "content"),
		ContentHTML:  strProp(props, "content_html"),
		DocType:      domain.DocType(strProp(props, "doc_type")),
		Category:     strProp(props, "category"),
		Language:     domain.Language(strProp(props, "language")),
		SourceURL:    strProp(props, "source_url"),
		Checksum:     strProp(props, "checksum"),
		Status:       domain.Status(strProp(props, "status")),
		Jurisdiction: strProp(props, "jurisdiction"),
		CreatedAt:    timeProp(props, "created_at"),
		UpdatedAt:    timeProp(props, "updated_at"),
		FetchedAt:    timeProp(props, "fetched_at"),
	}
	if tags := strProp(props, "tags"); tags != "" {
		doc.Tags = fn.Filter(strings.Split(tags, ","), func(t string) bool { return t != "" })
	}
	if pub := timeProp(props, "published_at"); !pub.IsZero() {
		doc.PublishedAt = &pub
	}
	return doc, nil
}

// getNode extracts the document node from either a "d" or "node" column.
func getNode(rec *neo4j.Record) (dbtype.Node, error) {
	for _, key := range []string{"d", "node"} {
		if node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, key); err == nil {
			return node, nil
		}
	}
	return dbtype.Node{}, fmt.Errorf("docstore: record has no document node")
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func timeProp(props map[string]any, key string) time.Time {
	s := strProp(props, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
