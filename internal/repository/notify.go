package repository

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var channelName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// InstallChangeNotify creates a trigger that publishes every processed_images
// insert or update on the given postgres NOTIFY channel as a JSON row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - db: postgres database handle.
//   - channel: NOTIFY channel name (lowercase identifier).
//
// Returns:
//   - error: non-nil if the channel name is invalid or the DDL fails.
func InstallChangeNotify(ctx context.Context, db *gorm.DB, channel string) error {
	if !channelName.MatchString(channel) {
		return fmt.Errorf("invalid notify channel %q", channel)
	}

	fn := fmt.Sprintf(`
CREATE OR REPLACE FUNCTION notify_processed_images_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('%s', json_build_object(
		'id', NEW.id,
		'user_id', NEW.user_id,
		'original_url', NEW.original_url,
		'metadata', NEW.metadata,
		'created_at', NEW.created_at,
		'updated_at', NEW.updated_at
	)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`, channel)

	trigger := `
DROP TRIGGER IF EXISTS processed_images_change ON processed_images;
CREATE TRIGGER processed_images_change
	AFTER INSERT OR UPDATE ON processed_images
	FOR EACH ROW EXECUTE FUNCTION notify_processed_images_change();`

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fn).Error; err != nil {
			return fmt.Errorf("create notify function: %w", err)
		}
		if err := tx.Exec(trigger).Error; err != nil {
			return fmt.Errorf("create notify trigger: %w", err)
		}
		return nil
	})
}
