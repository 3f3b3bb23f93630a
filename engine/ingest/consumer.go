package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/pkg/natsutil"
)

const (
	// IngestSubject is the NATS subject for asynchronous ingestion tasks.
	IngestSubject = "corpus.ingest"
	// DLQSubject receives tasks that exhausted their retries.
	DLQSubject = "corpus.ingest.dlq"
	// MaxRetries before a task is sent to the DLQ.
	MaxRetries = 3
)

// retryHeader carries the attempt count across republished tasks.
const retryHeader = "X-Retry-Count"

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Task    Task   `json:"task"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to the ingestion subject and runs each task
// through the pipeline with retry and DLQ support. Validation errors are
// terminal and go straight to the DLQ; retrying malformed input cannot
// succeed.
func StartConsumer(nc *nats.Conn, p *Pipeline, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return nc.Subscribe(IngestSubject, consumeMsg(nc, p, log))
}

// consumeMsg builds the subscription callback. The trace context injected by
// the publisher is extracted from the message headers so pipeline spans join
// the producing request's trace.
func consumeMsg(nc *nats.Conn, p *Pipeline, log *slog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var task Task
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			log.Error("consumer: unmarshal failed", "error", err)
			return
		}

		ctx := natsutil.ExtractContext(msg)

		res, err := runTask(ctx, p, task)
		if err == nil {
			log.Info("consumer: task done", "document_id", res.DocumentID, "created", res.Created)
			ack(msg)
			return
		}

		retries := retryCount(msg) + 1
		log.Error("consumer: task failed",
			"error", err,
			"title", task.Title,
			"url", task.URL,
			"retry", retries,
		)

		var verr *domain.ValidationError
		terminal := errors.As(err, &verr) || retries >= MaxRetries

		if terminal {
			dlq := dlqMessage{Task: task, Error: err.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if err := nc.Publish(DLQSubject, data); err != nil {
				log.Error("consumer: DLQ publish failed", "error", err)
			}
		} else {
			retry := nats.NewMsg(IngestSubject)
			retry.Data = msg.Data
			retry.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
			if err := nc.PublishMsg(retry); err != nil {
				log.Error("consumer: retry publish failed", "error", err)
			}
		}
		ack(msg)
	}
}

func runTask(ctx context.Context, p *Pipeline, task Task) (Result, error) {
	if task.URL != "" && task.Content == "" {
		return p.IngestURL(ctx, URLRequest{
			URL:      task.URL,
			DocType:  task.DocType,
			Language: task.Language,
			Category: task.Category,
			Tags:     task.Tags,
		})
	}
	return p.Ingest(ctx, task.IngestRequest)
}

func retryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n := 0
	fmt.Sscanf(msg.Header.Get(retryHeader), "%d", &n)
	return n
}

// ack acknowledges JetStream deliveries; plain subscriptions have no reply.
func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
