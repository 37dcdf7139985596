// Package imagestore archives generated images so interaction logs can
// reference a durable object key instead of a short-lived vendor URL.
package imagestore

import (
	"context"

	"github.com/google/uuid"
)

// Store archives a generated image and returns a storage reference
type Store interface {
	// Save fetches the image at imageURL and archives it, returning the
	// reference to store in the interaction log
	Save(ctx context.Context, exerciseID, interactionID uuid.UUID, imageURL string) (string, error)
}

// NoopStore passes the vendor URL through unchanged. Used when archival
// is disabled.
type NoopStore struct{}

// Save returns the vendor URL as the stored reference
func (NoopStore) Save(ctx context.Context, exerciseID, interactionID uuid.UUID, imageURL string) (string, error) {
	return imageURL, nil
}
