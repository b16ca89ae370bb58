// Package feed implements the push side of job tracking: transports that
// announce record store changes to subscribed sessions.
package feed

import (
	"context"
	"fmt"

	"github.com/saedlagr/foodio-beta-sub000/internal/config"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

const changeBuffer = 16

// Publisher announces a record change written outside the database trigger.
type Publisher interface {
	Publish(ctx context.Context, rec domain.JobRecord) error
}

// Feed bundles the configured transport.
type Feed struct {
	// Source is nil when push updates are disabled.
	Source    tracker.ChangeFeed
	Publisher Publisher
	close     func() error
}

// Close releases transport resources.
func (f *Feed) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.JobRecord) error { return nil }

// New builds the feed selected by cfg.Type.
func New(ctx context.Context, cfg config.FeedConfig, db config.DatabaseConfig, log *logger.Logger) (*Feed, error) {
	switch cfg.Type {
	case "postgres":
		// The trigger publishes, so writers have nothing to do.
		return &Feed{
			Source:    NewPostgresFeed(db.URL(), cfg.Channel, log),
			Publisher: nopPublisher{},
		}, nil
	case "redis":
		rf, err := NewRedisFeed(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Channel,
		}, log)
		if err != nil {
			return nil, err
		}
		return &Feed{Source: rf, Publisher: rf, close: rf.Close}, nil
	case "none", "":
		return &Feed{Publisher: nopPublisher{}}, nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Type)
	}
}
