package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

// changePayload is the JSON row shape carried by both transports.
type changePayload struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	OriginalURL string                 `json:"original_url"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func decodeChange(data []byte) (domain.RecordChange, error) {
	var p changePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.RecordChange{}, fmt.Errorf("decode change: %w", err)
	}
	if p.ID == "" {
		return domain.RecordChange{}, fmt.Errorf("decode change: missing record id")
	}
	return domain.RecordChange{Record: domain.JobRecord{
		ID:          p.ID,
		UserID:      p.UserID,
		OriginalURL: p.OriginalURL,
		Metadata:    domain.Metadata(p.Metadata),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}}, nil
}

func encodeChange(rec domain.JobRecord) ([]byte, error) {
	return json.Marshal(changePayload{
		ID:          rec.ID,
		UserID:      rec.UserID,
		OriginalURL: rec.OriginalURL,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
}
