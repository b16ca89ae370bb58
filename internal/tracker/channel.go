package tracker

import (
	"context"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

// ChannelAdapter turns push notifications about record changes into job events.
// Delivery is best-effort; the poller remains the guarantee.
type ChannelAdapter struct {
	store  *Store
	feed   ChangeFeed
	logger *logger.Logger
}

// NewChannelAdapter creates an adapter over feed.
func NewChannelAdapter(store *Store, feed ChangeFeed, log *logger.Logger) *ChannelAdapter {
	return &ChannelAdapter{store: store, feed: feed, logger: log}
}

// Run subscribes once for userID and applies changes until ctx ends or the feed
// closes. It does not resubscribe.
func (a *ChannelAdapter) Run(ctx context.Context, userID string) error {
	changes, err := a.feed.Subscribe(ctx, userID)
	if err != nil {
		return err
	}
	a.logger.WithField(logger.FieldUserID, userID).Info("Change feed subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				a.logger.WithField(logger.FieldUserID, userID).Warn("Change feed closed, relying on polling")
				return nil
			}
			a.Handle(userID, change)
		}
	}
}

// Handle applies one change. It returns true when the change moved a job.
func (a *ChannelAdapter) Handle(userID string, change domain.RecordChange) bool {
	rec := change.Record
	if rec.UserID != "" && rec.UserID != userID {
		return false
	}

	job, ok := a.store.FindByRecord(rec.ID)
	if !ok {
		return false
	}

	ev, ok := domain.Classify(rec.Metadata).Event()
	if !ok {
		return false
	}

	_, changed, err := a.store.Apply(job.ID, ev)
	if err != nil {
		return false
	}
	if changed {
		a.logger.WithJob(job.ID, rec.ID).WithField(logger.FieldStatus, string(ev.Kind)).Debug("Applied pushed change")
	}
	return changed
}
