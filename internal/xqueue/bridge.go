// Package xqueue hands learner submissions to a durable external grading
// queue and matches grader replies back to the submission they score.
package xqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/capagrader/internal/model"
)

// DefaultQueue is used when neither the header nor the configuration names a queue.
const DefaultQueue = "default"

var (
	// ErrUnknownSubmission is returned by a Queue when no submission has the identity.
	ErrUnknownSubmission = errors.New("unknown submission")
	// ErrInvalidTransition is returned by a Queue asked to score a submission
	// that is not awaiting a score.
	ErrInvalidTransition = errors.New("invalid submission state transition")
)

// Queue is the external-submission façade. Implementations must be durable
// and idempotent on the submission identity: creating a detail whose
// StudentItem already exists returns the stored detail and created=false.
type Queue interface {
	CreateExternalGraderDetail(ctx context.Context, d model.ExternalGraderDetail) (stored model.ExternalGraderDetail, created bool, err error)
	SetScore(ctx context.Context, item model.StudentItem, status model.SubmissionStatus, score *model.ScoreMessage) error
}

// Config holds the bridge settings.
type Config struct {
	// QueueBase is the LMS root that callback URLs are built on.
	QueueBase string
	// DefaultQueue overrides DefaultQueue for headers without queue_name.
	DefaultQueue string
}

// SubmissionHandle identifies an accepted submission.
type SubmissionHandle struct {
	ID          string                 `json:"id"`
	StudentItem model.StudentItem      `json:"student_item"`
	QueueName   string                 `json:"queue_name"`
	CallbackURL string                 `json:"callback_url"`
	Status      model.SubmissionStatus `json:"status"`
	// Duplicate is set when the identity was already queued.
	Duplicate bool `json:"duplicate"`
}

// Result is the outcome of Submit. Exactly one of Handle and Report is set.
type Result struct {
	Handle *SubmissionHandle
	Report map[string]string
}

// Bridge validates submission envelopes and dispatches them to a Queue.
type Bridge struct {
	cfg   Config
	queue Queue
	now   func() time.Time
}

// New creates a bridge over the given queue façade.
func New(cfg Config, q Queue) *Bridge {
	return &Bridge{cfg: cfg, queue: q, now: time.Now}
}

// Submit validates the envelope and hands it to the queue. Envelope problems
// are returned as Result.Report and never as an error; a failing façade is
// logged and returned as *RuntimeErrorSubmission.
func (b *Bridge) Submit(ctx context.Context, block *Block, header, body any, files map[string]string) (Result, error) {
	detail, err := b.prepare(block, header, body, files)
	if err != nil {
		slog.Error("xqueue submission rejected", "error", err)
		return Result{Report: ErrorReport(err)}, nil
	}

	if !detail.Status.CanTransition(model.StatusSubmitted) {
		return Result{}, &RuntimeErrorSubmission{Detail: fmt.Sprintf("submission in state %s cannot be submitted", detail.Status)}
	}
	detail.Status = model.StatusSubmitted
	stored, created, err := b.queue.CreateExternalGraderDetail(ctx, detail)
	if err != nil {
		slog.Error("xqueue dispatch failed",
			"course_id", detail.StudentItem.CourseID,
			"item_id", detail.StudentItem.ItemID,
			"queue", detail.QueueName,
			"error", err,
		)
		return Result{}, &RuntimeErrorSubmission{Detail: err.Error(), Err: err}
	}

	return Result{Handle: &SubmissionHandle{
		ID:          stored.UUID,
		StudentItem: stored.StudentItem,
		QueueName:   stored.QueueName,
		CallbackURL: CallbackURLFor(b.cfg.QueueBase, block, stored.StudentItem.StudentID),
		Status:      stored.Status,
		Duplicate:   !created,
	}}, nil
}

// prepare runs the validation pipeline and builds the draft detail.
func (b *Bridge) prepare(block *Block, header, body any, files map[string]string) (model.ExternalGraderDetail, error) {
	if block == nil {
		return model.ExternalGraderDetail{}, GetSubmissionParamsError{}
	}
	env, err := parseEnvelope(header, body, files, block.AllowEmpty)
	if err != nil {
		return model.ExternalGraderDetail{}, err
	}

	canonical, err := ParseCallbackURL(CallbackURLFor(b.cfg.QueueBase, block, env.StudentID))
	if err != nil {
		return model.ExternalGraderDetail{}, err
	}
	item := model.StudentItem{
		CourseID:  canonical.CourseID,
		ItemType:  canonical.ItemType,
		ItemID:    canonical.ItemID,
		StudentID: canonical.StudentID,
	}
	if env.CallbackURL != "" {
		target, err := ParseCallbackURL(env.CallbackURL)
		if err != nil {
			return model.ExternalGraderDetail{}, err
		}
		if target != canonical {
			return model.ExternalGraderDetail{}, &ValidationError{
				Field:  "lms_callback_url",
				Reason: "lms_callback_url does not address this problem and student",
			}
		}
	}

	queueName := env.QueueName
	if queueName == "" {
		queueName = b.cfg.DefaultQueue
	}
	if queueName == "" {
		queueName = DefaultQueue
	}

	now := b.now().UTC()
	return model.ExternalGraderDetail{
		UUID:           uuid.NewString(),
		StudentItem:    item,
		Answer:         env.Response,
		QueueName:      queueName,
		GraderFileName: env.GraderFileName,
		GraderPayload:  env.GraderPayload,
		PointsPossible: block.MaxScore,
		Files:          env.Files,
		Status:         model.StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateScore applies a grader reply delivered to callbackURL. A reply that
// cannot be parsed moves the submission to failed and returns the parse error.
func (b *Bridge) UpdateScore(ctx context.Context, callbackURL string, reply []byte) (model.ScoreMessage, error) {
	target, err := ParseCallbackURL(callbackURL)
	if err != nil {
		return model.ScoreMessage{}, err
	}
	return b.UpdateScoreFor(ctx, target, reply)
}

// UpdateScoreFor is UpdateScore with an already parsed callback target.
func (b *Bridge) UpdateScoreFor(ctx context.Context, target CallbackTarget, reply []byte) (model.ScoreMessage, error) {
	item := model.StudentItem{
		CourseID:  target.CourseID,
		ItemType:  target.ItemType,
		ItemID:    target.ItemID,
		StudentID: target.StudentID,
	}

	msg, perr := ParseScoreMessage(reply)
	if perr != nil {
		slog.Error("invalid grader reply", "item_id", item.ItemID, "student_id", item.StudentID, "error", perr)
		if err := b.queue.SetScore(ctx, item, model.StatusFailed, nil); err != nil {
			return model.ScoreMessage{}, fmt.Errorf("mark submission failed: %w", err)
		}
		return model.ScoreMessage{}, perr
	}
	if err := b.queue.SetScore(ctx, item, model.StatusScored, &msg); err != nil {
		return model.ScoreMessage{}, fmt.Errorf("record score: %w", err)
	}
	return msg, nil
}
