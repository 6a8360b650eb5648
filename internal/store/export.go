package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/capagrader/internal/model"
)

// ExportSubmissions builds an export-ready report of the submissions on
// queueName, or on every queue when it is empty.
func (s *Store) ExportSubmissions(ctx context.Context, queueName string) (model.SubmissionExport, error) {
	details, err := s.ListExternalGraderDetails(ctx, queueName)
	if err != nil {
		return model.SubmissionExport{}, fmt.Errorf("list submissions: %w", err)
	}
	return model.NewSubmissionExport(queueName, details, time.Now().UTC()), nil
}
