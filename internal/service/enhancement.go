package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/feed"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/repository"
	"github.com/saedlagr/foodio-beta-sub000/internal/storage"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

// EnhancementService registers uploaded photos in the record store and cleans up
// their artifacts.
type EnhancementService struct {
	records   *repository.RecordRepository
	storage   storage.ObjectStorage
	publisher feed.Publisher
	logger    *logger.Logger
}

// NewEnhancementService creates a new enhancement service.
// Parameters:
//   - records: record store repository.
//   - store: object storage for originals.
//   - publisher: announces workflow updates; may be nil.
//   - log: service logger.
//
// Returns:
//   - *EnhancementService: initialized service.
func NewEnhancementService(records *repository.RecordRepository, store storage.ObjectStorage, publisher feed.Publisher, log *logger.Logger) *EnhancementService {
	return &EnhancementService{
		records:   records,
		storage:   store,
		publisher: publisher,
		logger:    log.WithField(logger.FieldComponent, "enhancement"),
	}
}

// Register uploads the original and creates its record, debiting one token.
// The upload is removed again when the record cannot be created.
func (s *EnhancementService) Register(ctx context.Context, reg tracker.Registration) (tracker.Receipt, error) {
	recordID := uuid.NewString()
	key := storage.OriginalKey(reg.UserID, recordID, reg.Extension)
	log := s.logger.WithJob(reg.JobID, recordID)

	if err := s.storage.Upload(ctx, key, bytes.NewReader(reg.Data), int64(len(reg.Data)), reg.ContentType); err != nil {
		return tracker.Receipt{}, fmt.Errorf("upload original: %w", err)
	}

	url := s.storage.GetURL(key)
	rec := &repository.ProcessedImage{
		ID:          recordID,
		UserID:      reg.UserID,
		FileName:    reg.FileName,
		StorageKey:  key,
		OriginalURL: url,
		ContentType: reg.ContentType,
		Width:       reg.Width,
		Height:      reg.Height,
	}
	if err := s.records.CreateWithDebit(ctx, rec); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.WithError(delErr).Warn("Failed to remove orphaned upload")
		}
		return tracker.Receipt{}, err
	}

	log.WithFields(logger.Fields{logger.FieldSize: len(reg.Data)}).Info("Original registered")
	return tracker.Receipt{RecordID: recordID, OriginalURL: url}, nil
}

// DeleteArtifact removes an object this deployment stored. URLs pointing
// elsewhere are left alone.
func (s *EnhancementService) DeleteArtifact(ctx context.Context, locator string) error {
	key, ok := s.storage.KeyFromURL(locator)
	if !ok {
		s.logger.WithField("locator", locator).Debug("Skipping artifact outside managed storage")
		return nil
	}
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check artifact: %w", err)
	}
	if !exists {
		return nil
	}
	return s.storage.Delete(ctx, key)
}

// ErrEmptyUpdate is returned for a workflow update without any metadata.
var ErrEmptyUpdate = errors.New("empty workflow update")

// ApplyWorkflowUpdate merges a status report from the enhancement workflow into
// the record's metadata and announces the change.
func (s *EnhancementService) ApplyWorkflowUpdate(ctx context.Context, recordID string, patch map[string]interface{}) (*domain.JobRecord, error) {
	if len(patch) == 0 {
		return nil, ErrEmptyUpdate
	}
	rec, err := s.records.MergeMetadata(ctx, recordID, patch)
	if err != nil {
		return nil, err
	}
	out := rec.ToDomain()

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *out); err != nil {
			// Polling still picks the change up.
			s.logger.WithError(err).WithField(logger.FieldRecordID, recordID).Warn("Failed to publish record change")
		}
	}
	s.logger.WithField(logger.FieldRecordID, recordID).
		WithField(logger.FieldStatus, domain.Classify(out.Metadata).Kind.String()).
		Info("Workflow update applied")
	return out, nil
}
