// Command api serves the corpus HTTP API: document ingestion, hybrid search,
// and document deletion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/swasthyasetu/corpus-engine/engine/docstore"
	"github.com/swasthyasetu/corpus-engine/engine/embed"
	"github.com/swasthyasetu/corpus-engine/engine/ingest"
	"github.com/swasthyasetu/corpus-engine/engine/search"
	"github.com/swasthyasetu/corpus-engine/engine/semantic"
	"github.com/swasthyasetu/corpus-engine/pkg/metrics"
	"github.com/swasthyasetu/corpus-engine/pkg/mid"
)

// maxRequestBody bounds ingestion payloads, base64 uploads included.
const maxRequestBody = 16 << 20

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	QdrantURL   string
	Collection  string
	EmbedURL    string
	EmbedAPIKey string
	EmbedModel  string
	EmbedDims   int
	NATSURL     string
	CORSOrigin  string
	MetricsAddr string
}

func loadConfig() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		Neo4jURL:    envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		Collection:  envOr("QDRANT_COLLECTION", "corpus"),
		EmbedURL:    envOr("EMBED_URL", "https://api.openai.com"),
		EmbedAPIKey: os.Getenv("EMBED_API_KEY"),
		EmbedModel:  envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDims:   envIntOr("EMBED_DIMS", 1536),
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	met.ServeAsync(cfg.MetricsAddr, func(err error) {
		logger.Error("metrics server failed", "err", err)
	})

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	docs := docstore.New(driver)
	if err := docs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("neo4j schema: %w", err)
	}

	vectors, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, cfg.EmbedDims); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}

	embedOpts := embed.DefaultOpts()
	embedOpts.BaseURL = cfg.EmbedURL
	embedOpts.APIKey = cfg.EmbedAPIKey
	embedOpts.Model = cfg.EmbedModel
	embedOpts.Dimensions = cfg.EmbedDims
	embedder := embed.NewClient(embedOpts)

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("corpus-api"))
	if err != nil {
		// Async intake is optional; the synchronous API still works.
		logger.Warn("nats unavailable, async ingestion disabled", "err", err)
		nc = nil
	} else {
		defer nc.Close()
	}

	pipeline := ingest.NewPipeline(ingest.Deps{
		Docs:     docs,
		Vectors:  vectors,
		Embedder: embedder,
		Logger:   logger,
	})
	searcher := search.New(vectors, docs, embedder, search.Opts{}, logger)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: mid.Chain(newMux(handlers{
			ingest: pipeline,
			search: searcher,
			nats:   nc,
			log:    logger,
			met:    met,
		}),
			mid.Recover(logger),
			mid.Logger(logger),
			mid.OTel("corpus-api"),
			mid.CORS(cfg.CORSOrigin),
			mid.MaxBody(maxRequestBody),
		),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
