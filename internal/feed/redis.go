package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

// RedisOptions configures the redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisFeed delivers record changes over per-user pub/sub channels. It also
// publishes them, for writers that have no database trigger.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

// NewRedisFeed connects and pings redis.
func NewRedisFeed(ctx context.Context, opts RedisOptions, log *logger.Logger) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisFeedWithClient(client, opts.Prefix, log), nil
}

// NewRedisFeedWithClient wraps an existing client.
func NewRedisFeedWithClient(client *redis.Client, prefix string, log *logger.Logger) *RedisFeed {
	return &RedisFeed{
		client: client,
		prefix: prefix,
		logger: log.WithField(logger.FieldComponent, "redis_feed"),
	}
}

func (f *RedisFeed) channelFor(userID string) string {
	return f.prefix + ":" + userID
}

// Subscribe returns the changes published for userID until ctx ends.
func (f *RedisFeed) Subscribe(ctx context.Context, userID string) (<-chan domain.RecordChange, error) {
	ps := f.client.Subscribe(ctx, f.channelFor(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channelFor(userID), err)
	}

	out := make(chan domain.RecordChange, changeBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					f.logger.Warn("Subscription closed")
					return
				}
				change, err := decodeChange([]byte(msg.Payload))
				if err != nil {
					f.logger.WithError(err).Debug("Skipping malformed message")
					continue
				}
				if change.Record.UserID != "" && change.Record.UserID != userID {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish announces a record change to its owner's channel.
func (f *RedisFeed) Publish(ctx context.Context, rec domain.JobRecord) error {
	payload, err := encodeChange(rec)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channelFor(rec.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Close releases the client.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}
