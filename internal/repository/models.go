package repository

import (
	"time"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"gorm.io/datatypes"
)

// ProcessedImage is one row of the record store: an uploaded original and the
// metadata document the enhancement workflow writes back.
type ProcessedImage struct {
	ID          string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	FileName    string            `gorm:"type:varchar(255)" json:"file_name"`
	StorageKey  string            `gorm:"type:varchar(512);not null" json:"storage_key"`
	OriginalURL string            `gorm:"type:text;not null" json:"original_url"`
	ContentType string            `gorm:"type:varchar(64)" json:"content_type"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedAt   time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (ProcessedImage) TableName() string {
	return "processed_images"
}

// ToDomain converts the row into the record shape the tracker reads.
func (p *ProcessedImage) ToDomain() *domain.JobRecord {
	meta := domain.Metadata{}
	for k, v := range p.Metadata {
		meta[k] = v
	}
	return &domain.JobRecord{
		ID:          p.ID,
		UserID:      p.UserID,
		OriginalURL: p.OriginalURL,
		Metadata:    meta,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Profile holds a user's token balance. One token pays for one enhancement.
type Profile struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	Tokens    int       `gorm:"not null;default:0" json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}
