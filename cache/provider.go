package cache

import (
	"context"
	"time"
)

// Provider is the pluggable key/value store the persona clients cache into.
// Implementations must be safe for concurrent use; the clients do no locking
// of their own.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type Provider interface {
	// Fetch returns the stored value and true, or false on a miss.
	Fetch(ctx context.Context, key string) ([]byte, bool, error)
	// Save stores value under key for ttl. A zero ttl means no expiry.
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
