package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/capagrader/internal/model"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

// Source hands out pending submissions of one queue.
type Source interface {
	Pop(ctx context.Context, queueName string, timeout time.Duration) (*model.ExternalGraderDetail, error)
}

// Scorer grades one submission.
type Scorer interface {
	Grade(ctx context.Context, d model.ExternalGraderDetail) (model.ScoreMessage, error)
}

// Reporter delivers a grader reply for d.
type Reporter interface {
	Report(ctx context.Context, d model.ExternalGraderDetail, reply []byte) error
}

// failedReply is not a score object, so it moves the submission to failed.
var failedReply = []byte("null")

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Queue       string
	Concurrency int
	// PollTimeout bounds each blocking Pop.
	PollTimeout time.Duration
	// RetryDelay is the pause after a failed Pop.
	RetryDelay time.Duration
}

// Worker runs a pool of goroutines that pop, grade and report.
type Worker struct {
	cfg      WorkerConfig
	source   Source
	scorer   Scorer
	reporter Reporter
}

// NewWorker fills in defaults for unset config fields.
func NewWorker(cfg WorkerConfig, source Source, scorer Scorer, reporter Reporter) *Worker {
	if cfg.Queue == "" {
		cfg.Queue = xqueue.DefaultQueue
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Worker{cfg: cfg, source: source, scorer: scorer, reporter: reporter}
}

// Run processes submissions until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("external grader started", "queue", w.cfg.Queue, "concurrency", w.cfg.Concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := range w.cfg.Concurrency {
		g.Go(func() error { return w.loop(ctx, i) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context, id int) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d, err := w.source.Pop(ctx, w.cfg.Queue, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("pop submission", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.RetryDelay):
			}
			continue
		}
		if d == nil {
			continue
		}
		w.Process(ctx, *d)
	}
}

// Process grades d and reports the outcome. Failures are logged; a grading
// failure is reported so the submission does not stay pending.
func (w *Worker) Process(ctx context.Context, d model.ExternalGraderDetail) {
	log := slog.With("submission", d.UUID, "queue", d.QueueName, "student_id", d.StudentItem.StudentID)

	reply := failedReply
	msg, err := w.scorer.Grade(ctx, d)
	if err != nil {
		log.Error("grade submission", "error", err)
	} else if reply, err = json.Marshal(msg); err != nil {
		log.Error("encode score", "error", err)
		reply = failedReply
	}

	graded := err == nil
	err = w.reporter.Report(ctx, d, reply)
	switch {
	case graded && err != nil:
		log.Error("report score", "error", err)
	case graded:
		log.Info("submission graded", "score", msg.Score, "correct", msg.Correct)
	default:
		log.Warn("submission marked failed", "report_error", err)
	}
}

// HTTPReporter posts replies to the submission's callback URL.
type HTTPReporter struct {
	QueueBase string
	Client    *http.Client
}

// Report posts reply as the JSON request body.
func (r *HTTPReporter) Report(ctx context.Context, d model.ExternalGraderDetail, reply []byte) error {
	block := &xqueue.Block{CourseID: d.StudentItem.CourseID, ItemID: d.StudentItem.ItemID}
	url := xqueue.CallbackURLFor(r.QueueBase, block, d.StudentItem.StudentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reply))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback %s: status %d: %s", url, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// BridgeReporter applies replies directly through a bridge sharing the
// worker's store.
type BridgeReporter struct {
	Bridge *xqueue.Bridge
}

// Report applies reply to d's identity.
func (r *BridgeReporter) Report(ctx context.Context, d model.ExternalGraderDetail, reply []byte) error {
	target := xqueue.CallbackTarget{
		CourseID:  d.StudentItem.CourseID,
		StudentID: d.StudentItem.StudentID,
		ItemID:    d.StudentItem.ItemID,
		ItemType:  d.StudentItem.ItemType,
	}
	_, err := r.Bridge.UpdateScoreFor(ctx, target, reply)
	return err
}
