// Command ingestd consumes ingestion tasks from NATS, runs them through the
// pipeline, and sweeps stale pending documents left behind by ingestions that
// died before activation.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/swasthyasetu/corpus-engine/engine/docstore"
	"github.com/swasthyasetu/corpus-engine/engine/embed"
	"github.com/swasthyasetu/corpus-engine/engine/ingest"
	"github.com/swasthyasetu/corpus-engine/engine/semantic"
	"github.com/swasthyasetu/corpus-engine/pkg/metrics"
)

var met = metrics.New()

var (
	mSweepRuns    = met.Counter("corpus_ingestd_sweep_runs_total", "Pending sweeps executed")
	mSweptDocs    = met.Counter("corpus_ingestd_swept_docs_total", "Stale pending documents removed")
	mSweepErrors  = met.Counter("corpus_ingestd_sweep_errors_total", "Sweep failures")
	mTasksSeen    = met.Gauge("corpus_ingestd_tasks_delivered", "Tasks delivered to the consumer")
	mSweepBacklog = met.Gauge("corpus_ingestd_sweep_backlog", "Stale pending documents found in the last sweep")
)

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "corpus", "Qdrant collection name")
		embedURL    = flag.String("embed-url", "https://api.openai.com", "embedding provider base URL")
		embedModel  = flag.String("embed-model", "text-embedding-3-small", "embedding model")
		embedDims   = flag.Int("embed-dims", 1536, "embedding vector size")
		sweepEvery  = flag.Duration("sweep-interval", 5*time.Minute, "pending sweep interval")
		sweepAge    = flag.Duration("sweep-age", 30*time.Minute, "age before a pending document is stale")
		metricsAddr = flag.String("metrics", ":9091", "metrics listen address")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met.ServeAsync(*metricsAddr, func(err error) {
		log.Error("metrics server failed", "error", err)
	})

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}

	docs := docstore.New(driver)
	if err := docs.EnsureSchema(ctx); err != nil {
		log.Error("neo4j schema failed", "error", err)
		os.Exit(1)
	}

	vectors, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, *embedDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected", "collection", *collection, "dims", *embedDims)

	embedOpts := embed.DefaultOpts()
	embedOpts.BaseURL = *embedURL
	embedOpts.APIKey = os.Getenv("EMBED_API_KEY")
	embedOpts.Model = *embedModel
	embedOpts.Dimensions = *embedDims
	embedder := embed.NewClient(embedOpts)

	nc, err := nats.Connect(*natsURL, nats.Name("corpus-ingestd"))
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	pipeline := ingest.NewPipeline(ingest.Deps{
		Docs:     docs,
		Vectors:  vectors,
		Embedder: embedder,
		Logger:   log,
	})

	sub, err := ingest.StartConsumer(nc, pipeline, log)
	if err != nil {
		log.Error("consumer start failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()
	log.Info("consuming ingestion tasks", "subject", ingest.IngestSubject)

	ticker := time.NewTicker(*sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			if delivered, err := sub.Delivered(); err == nil {
				mTasksSeen.Set(delivered)
			}
			sweepPending(ctx, docs, vectors, *sweepAge, log)
		}
	}
}

// sweepPending removes pending documents older than age, vectors first. A
// pending document this old belongs to an ingestion that will never finish.
func sweepPending(ctx context.Context, docs *docstore.Store, vectors *semantic.VectorStore, age time.Duration, log *slog.Logger) {
	mSweepRuns.Inc()

	ids, err := docs.ListStalePending(ctx, time.Now().Add(-age), 500)
	if err != nil {
		mSweepErrors.Inc()
		log.Error("sweep: list stale pending failed", "error", err)
		return
	}
	mSweepBacklog.Set(int64(len(ids)))
	if len(ids) == 0 {
		return
	}

	swept := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := vectors.DeleteByDocumentID(ctx, id); err != nil {
			mSweepErrors.Inc()
			log.Warn("sweep: vector delete failed", "document_id", id, "error", err)
			continue
		}
		if err := docs.Delete(ctx, id); err != nil {
			mSweepErrors.Inc()
			log.Warn("sweep: document delete failed", "document_id", id, "error", err)
			continue
		}
		swept++
	}
	mSweptDocs.Add(int64(swept))
	log.Info("sweep: stale pending documents removed", "count", swept)
}
