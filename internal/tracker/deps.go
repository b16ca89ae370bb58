package tracker

import (
	"context"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

// RecordFetcher reads one job record from the record store.
// Implementations return domain.ErrRecordNotFound for unknown ids.
type RecordFetcher interface {
	FetchRecord(ctx context.Context, recordID string) (*domain.JobRecord, error)
}

// ChangeFeed delivers best-effort change notifications for one user's records.
// The returned channel is closed when ctx ends or the subscription breaks.
type ChangeFeed interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.RecordChange, error)
}

// BalanceFetcher returns the user's current token balance.
type BalanceFetcher interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// Registration is everything the submission endpoint needs for one image.
type Registration struct {
	JobID       string
	UserID      string
	FileName    string
	ContentType string
	Extension   string
	Width       int
	Height      int
	Data        []byte
}

// Receipt is returned by a successful registration.
type Receipt struct {
	RecordID    string
	OriginalURL string
}

// Registrar uploads the original, writes the initial record and debits tokens server-side.
// It returns an error wrapping domain.ErrInsufficientTokens when the authoritative
// balance check rejects the submission.
type Registrar interface {
	Register(ctx context.Context, reg Registration) (Receipt, error)
}

// Handoff identifies a registered job for the remote enhancement workflow.
type Handoff struct {
	JobID       string
	RecordID    string
	UserID      string
	OriginalURL string
}

// Workflow starts remote processing of a registered job.
type Workflow interface {
	Trigger(ctx context.Context, h Handoff) error
}

// ArtifactDeleter removes a stored artifact by its public locator. Best-effort.
type ArtifactDeleter interface {
	DeleteArtifact(ctx context.Context, locator string) error
}
