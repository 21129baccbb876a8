package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/congress-qa/pkg/natsutil"
)

const (
	// ReindexSubject is the NATS subject that triggers a run.
	ReindexSubject = "engine.reindex"
	// ProgressSubject receives a ProgressEvent after every page and at the end.
	ProgressSubject = "engine.reindex.progress"
	// DLQSubject is the dead letter queue subject for failed triggers.
	DLQSubject = "engine.reindex.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// RetryHeader carries the number of failed attempts.
	RetryHeader = "X-Retry-Count"
)

// ProgressEvent is published on ProgressSubject.
type ProgressEvent struct {
	RunID string `json:"run_id"`
	Progress
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Request Request `json:"request"`
	Error   string  `json:"error"`
	Retries int     `json:"retries"`
}

type consumer struct {
	pub    natsutil.Publisher
	r      *Reindexer
	logger *slog.Logger
}

// StartConsumer subscribes r to ReindexSubject. Failed runs are re-published
// with an incremented retry header, then sent to DLQSubject after MaxRetries.
func StartConsumer(nc *nats.Conn, r *Reindexer) (*nats.Subscription, error) {
	c := &consumer{pub: nc, r: r, logger: r.logger}
	return nc.Subscribe(ReindexSubject, c.handle)
}

func (c *consumer) handle(msg *nats.Msg) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.logger.Error("ingest: unmarshal failed", "err", err)
		return
	}
	ctx := natsutil.Context(msg)
	runID := uuid.NewString()

	retries := 0
	if msg.Header != nil {
		if v := msg.Header.Get(RetryHeader); v != "" {
			retries, _ = strconv.Atoi(v)
		}
	}

	req.Report = func(p Progress) {
		c.publishProgress(ctx, ProgressEvent{RunID: runID, Progress: p})
	}
	prog, err := c.r.Run(ctx, req)
	if err != nil {
		retries++
		c.logger.Error("ingest: reindex failed", "run_id", runID, "err", err, "retry", retries)
		c.publishProgress(ctx, ProgressEvent{RunID: runID, Progress: prog, Done: true, Error: err.Error()})

		if retries >= MaxRetries {
			req.Report = nil
			if perr := natsutil.Publish(ctx, c.pub, DLQSubject, dlqMessage{Request: req, Error: err.Error(), Retries: retries}); perr != nil {
				c.logger.Error("ingest: DLQ publish failed", "err", perr)
			}
		} else {
			retryMsg := nats.NewMsg(ReindexSubject)
			retryMsg.Data = msg.Data
			for k, v := range msg.Header {
				retryMsg.Header[k] = v
			}
			retryMsg.Header.Set(RetryHeader, strconv.Itoa(retries))
			if perr := c.pub.PublishMsg(retryMsg); perr != nil {
				c.logger.Error("ingest: retry publish failed", "err", perr)
			}
		}
	} else {
		c.publishProgress(ctx, ProgressEvent{RunID: runID, Progress: prog, Done: true})
	}

	// Ack if JetStream.
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}

func (c *consumer) publishProgress(ctx context.Context, ev ProgressEvent) {
	if err := natsutil.Publish(ctx, c.pub, ProgressSubject, ev); err != nil {
		c.logger.Warn("ingest: progress publish failed", "run_id", ev.RunID, "err", err)
	}
}
