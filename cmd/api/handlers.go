package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/engine/ingest"
	"github.com/swasthyasetu/corpus-engine/engine/search"
	"github.com/swasthyasetu/corpus-engine/pkg/metrics"
	"github.com/swasthyasetu/corpus-engine/pkg/natsutil"
)

// ingestService is the slice of the ingestion pipeline the handlers use.
type ingestService interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (ingest.Result, error)
	IngestURL(ctx context.Context, req ingest.URLRequest) (ingest.Result, error)
	Delete(ctx context.Context, id string) error
}

// searchService is the slice of the search service the handlers use.
type searchService interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
}

type handlers struct {
	ingest ingestService
	search searchService
	nats   *nats.Conn
	log    *slog.Logger
	met    *metrics.Registry
}

func newMux(h handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("POST /api/ingest", h.handleIngest)
	mux.HandleFunc("POST /api/ingest/url", h.handleIngestURL)
	mux.HandleFunc("POST /api/search", h.handleSearch)
	mux.HandleFunc("DELETE /api/documents/{id}", h.handleDelete)
	if h.met != nil {
		mux.Handle("GET /metrics", h.met.Handler())
	}
	return mux
}

// ingestResponse distinguishes new documents from deduplicated ones with a
// boolean; the message is for humans only.
type ingestResponse struct {
	DocumentID string `json:"document_id"`
	Created    bool   `json:"created"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	// async=1 queues the document and returns immediately.
	if r.URL.Query().Get("async") == "1" && h.nats != nil {
		if err := natsutil.Publish(r.Context(), h.nats, ingest.IngestSubject, ingest.Task{IngestRequest: req}); err != nil {
			h.log.Error("async ingest publish failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to queue document"})
			return
		}
		h.counter("corpus_api_ingest_queued_total").Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "document queued for ingestion"})
		return
	}

	start := time.Now()
	res, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.histogram("corpus_api_ingest_seconds").Since(start)
	h.counter("corpus_api_ingest_total").Inc()

	writeJSON(w, http.StatusOK, ingestResponse{
		DocumentID: res.DocumentID,
		Created:    res.Created,
		Message:    ingestMessage(res),
	})
}

func (h handlers) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingest.URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.ingest.IngestURL(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.counter("corpus_api_ingest_url_total").Inc()

	writeJSON(w, http.StatusOK, ingestResponse{
		DocumentID: res.DocumentID,
		Created:    res.Created,
		Message:    ingestMessage(res),
	})
}

func (h handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	start := time.Now()
	resp, err := h.search.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.histogram("corpus_api_search_seconds").Since(start)
	h.counter("corpus_api_search_total").Inc()

	writeJSON(w, http.StatusOK, resp)
}

func (h handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ingest.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.counter("corpus_api_delete_total").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

func ingestMessage(res ingest.Result) string {
	if res.Created {
		return "document ingested successfully"
	}
	return "document already exists"
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (h handlers) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrFetchFailed):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h handlers) counter(name string) *metrics.Counter {
	return h.met.Counter(name, "")
}

func (h handlers) histogram(name string) *metrics.Histogram {
	return h.met.Histogram(name, "", nil)
}
