package service

import (
	"context"
	"fmt"
	"io"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

const maxHistory = 100

// History lists the user's stored records, newest first. limit is clamped to
// [1, 100].
func (s *EnhancementService) History(ctx context.Context, userID string, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	rows, err := s.records.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]domain.JobRecord, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// OpenOriginal streams the stored original of a record owned by userID. Records
// of other users are reported as not found.
func (s *EnhancementService) OpenOriginal(ctx context.Context, userID, recordID string) (io.ReadCloser, string, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, "", err
	}
	if rec.UserID != userID {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrRecordNotFound, recordID)
	}
	body, err := s.storage.Download(ctx, rec.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("download original: %w", err)
	}
	return body, rec.ContentType, nil
}
