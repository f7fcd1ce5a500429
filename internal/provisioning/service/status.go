package service

import (
	"context"
	"errors"

	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
)

// StatusReporter serves point-in-time views of a provisioning record for
// polling clients.
type StatusReporter struct {
	records RecordStore
}

func NewStatusReporter(records RecordStore) *StatusReporter {
	return &StatusReporter{records: records}
}

// GetStatus looks up the record by its project identifier. An unknown
// identifier is a distinct non-error result (found=false), so callers can
// tell "never existed" apart from "exists but not yet active".
func (s *StatusReporter) GetStatus(ctx context.Context, projectID string) (*domain.StatusReport, bool, error) {
	rep, err := s.records.GetStatus(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rep, true, nil
}
