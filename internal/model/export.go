package model

import "time"

// SubmissionExport is the top-level JSON structure for a grading report.
type SubmissionExport struct {
	QueueName   string             `json:"queue_name,omitempty"`
	ExportedAt  time.Time          `json:"exported_at"`
	Total       int                `json:"total"`
	Scored      int                `json:"scored"`
	Failed      int                `json:"failed"`
	Pending     int                `json:"pending"`
	Submissions []SubmissionResult `json:"submissions"`
}

// SubmissionResult holds one submission's outcome for export.
type SubmissionResult struct {
	UUID           string           `json:"uuid"`
	CourseID       string           `json:"course_id"`
	ItemID         string           `json:"item_id"`
	StudentID      string           `json:"student_id"`
	Status         SubmissionStatus `json:"status"`
	PointsPossible float64          `json:"points_possible"`
	Score          *float64         `json:"score,omitempty"`
	Correct        *bool            `json:"correct,omitempty"`
	Msg            string           `json:"msg,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
}

// NewSubmissionExport summarizes details into an export document.
func NewSubmissionExport(queueName string, details []ExternalGraderDetail, now time.Time) SubmissionExport {
	exp := SubmissionExport{
		QueueName:   queueName,
		ExportedAt:  now,
		Total:       len(details),
		Submissions: make([]SubmissionResult, 0, len(details)),
	}
	for _, d := range details {
		r := SubmissionResult{
			UUID:           d.UUID,
			CourseID:       d.StudentItem.CourseID,
			ItemID:         d.StudentItem.ItemID,
			StudentID:      d.StudentItem.StudentID,
			Status:         d.Status,
			PointsPossible: d.PointsPossible,
			SubmittedAt:    d.CreatedAt,
		}
		switch d.Status {
		case StatusScored:
			exp.Scored++
		case StatusFailed:
			exp.Failed++
		default:
			exp.Pending++
		}
		if d.Score != nil {
			score, correct := d.Score.Score, d.Score.Correct
			r.Score, r.Correct, r.Msg = &score, &correct, d.Score.Msg
		}
		exp.Submissions = append(exp.Submissions, r)
	}
	return exp
}
