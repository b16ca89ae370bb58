package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordRepository handles processed image rows.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *RecordRepository: repository instance bound to db.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// CreateWithDebit inserts a record and takes one token from its owner in the same
// transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to persist; Metadata may be nil.
//
// Returns:
//   - error: wraps domain.ErrInsufficientTokens when the owner cannot pay.
func (r *RecordRepository) CreateWithDebit(ctx context.Context, rec *ProcessedImage) error {
	if rec.Metadata == nil {
		rec.Metadata = datatypes.JSONMap{}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Profile{}).
			Where("user_id = ? AND tokens >= ?", rec.UserID, 1).
			UpdateColumn("tokens", gorm.Expr("tokens - ?", 1))
		if res.Error != nil {
			return fmt.Errorf("debit tokens: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: user %s", domain.ErrInsufficientTokens, rec.UserID)
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a record row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//
// Returns:
//   - *ProcessedImage: record if found.
//   - error: wraps domain.ErrRecordNotFound when missing.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*ProcessedImage, error) {
	var rec ProcessedImage
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
		}
		return nil, err
	}
	return &rec, nil
}

// FetchRecord returns the record in domain form for status checks.
func (r *RecordRepository) FetchRecord(ctx context.Context, id string) (*domain.JobRecord, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.ToDomain(), nil
}

// MergeMetadata overlays patch onto a record's metadata document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//   - patch: keys to set; existing keys not in patch are kept.
//
// Returns:
//   - *ProcessedImage: the updated record.
//   - error: wraps domain.ErrRecordNotFound when missing.
func (r *RecordRepository) MergeMetadata(ctx context.Context, id string, patch map[string]interface{}) (*ProcessedImage, error) {
	var out *ProcessedImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec ProcessedImage
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
			}
			return err
		}
		if rec.Metadata == nil {
			rec.Metadata = datatypes.JSONMap{}
		}
		for k, v := range patch {
			rec.Metadata[k] = v
		}
		if err := tx.Model(&rec).Update("metadata", rec.Metadata).Error; err != nil {
			return fmt.Errorf("update metadata: %w", err)
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByUser retrieves a user's records, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owner.
//   - limit: maximum number of records to return.
//
// Returns:
//   - []ProcessedImage: matching records.
//   - error: non-nil if the query fails.
func (r *RecordRepository) ListByUser(ctx context.Context, userID string, limit int) ([]ProcessedImage, error) {
	var recs []ProcessedImage
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
