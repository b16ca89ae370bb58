package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository handles token balances.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Balance returns the user's tokens. Users without a profile have none.
func (r *ProfileRepository) Balance(ctx context.Context, userID string) (int, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.Tokens, nil
}

// Credit adds tokens to a user, creating the profile if needed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: profile owner.
//   - tokens: number of tokens to add.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ProfileRepository) Credit(ctx context.Context, userID string, tokens int) error {
	p := Profile{UserID: userID, Tokens: tokens}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tokens": gorm.Expr("profiles.tokens + ?", tokens),
		}),
	}).Create(&p).Error
}
