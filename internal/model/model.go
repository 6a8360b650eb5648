package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus is the lifecycle state of an externally graded submission.
type SubmissionStatus string

const (
	// StatusDraft is a submission that has not been handed to a queue yet.
	StatusDraft SubmissionStatus = "draft"
	// StatusSubmitted is a submission accepted by the queue and awaiting a score.
	StatusSubmitted SubmissionStatus = "submitted"
	// StatusScored is a submission for which a grader replied with a valid score.
	StatusScored SubmissionStatus = "scored"
	// StatusFailed is a submission whose grader reply could not be used.
	StatusFailed SubmissionStatus = "failed"
)

// Terminal reports whether no further transition can leave the status.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusScored || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed:
// draft -> submitted -> scored | failed.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusScored || next == StatusFailed
	}
	return false
}

// StudentItem identifies one learner's attempt at one problem. It is the
// primary key of a submission in every queue backend.
type StudentItem struct {
	CourseID  string `json:"course_id"`
	ItemType  string `json:"item_type"`
	ItemID    string `json:"item_id"`
	StudentID string `json:"student_id"`
}

// Key returns a stable string form of the identity, usable as a storage key.
func (si StudentItem) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", si.CourseID, si.ItemType, si.ItemID, si.StudentID)
}

// ScoreMessage is the reply an external grader posts to the callback URL.
type ScoreMessage struct {
	Correct bool    `json:"correct"`
	Score   float64 `json:"score"`
	Msg     string  `json:"msg"`
}

// ExternalGraderDetail is a submission as handed to the durable queue.
type ExternalGraderDetail struct {
	UUID           string            `json:"uuid"`
	StudentItem    StudentItem       `json:"student_item"`
	Answer         string            `json:"answer"`
	QueueName      string            `json:"queue_name"`
	GraderFileName string            `json:"grader_file_name,omitempty"`
	GraderPayload  json.RawMessage   `json:"grader_payload,omitempty"`
	PointsPossible float64           `json:"points_possible"`
	Files          map[string]string `json:"files,omitempty"`
	Status         SubmissionStatus  `json:"status"`
	Score          *ScoreMessage     `json:"score,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ProblemRecord is a converted problem tree kept in the problem library.
type ProblemRecord struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Source     string          `json:"source"`
	Tree       json.RawMessage `json:"tree"`
	ImportedAt time.Time       `json:"imported_at"`
}

// LibraryInfo describes the last problem library import.
type LibraryInfo struct {
	SourceFile string
	FileHash   string
	ImportedAt string
	Count      int
}
