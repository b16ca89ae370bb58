package feed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

// PostgresFeed listens on a NOTIFY channel fed by the processed_images trigger.
// Each subscription holds its own connection.
type PostgresFeed struct {
	connString string
	channel    string
	logger     *logger.Logger
}

// NewPostgresFeed creates a feed for channel on the database at connString.
func NewPostgresFeed(connString, channel string, log *logger.Logger) *PostgresFeed {
	return &PostgresFeed{
		connString: connString,
		channel:    channel,
		logger:     log.WithField(logger.FieldComponent, "pg_feed"),
	}
}

// Subscribe starts listening and returns the changes belonging to userID. The
// channel closes when ctx ends or the connection drops.
func (f *PostgresFeed) Subscribe(ctx context.Context, userID string) (<-chan domain.RecordChange, error) {
	conn, err := pgx.Connect(ctx, f.connString)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", f.channel, err)
	}

	out := make(chan domain.RecordChange, changeBuffer)
	go func() {
		defer close(out)
		defer conn.Close(context.Background())

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.logger.WithError(err).Warn("Listener connection lost")
				}
				return
			}
			change, err := decodeChange([]byte(n.Payload))
			if err != nil {
				f.logger.WithError(err).Debug("Skipping malformed notification")
				continue
			}
			if change.Record.UserID != userID {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
