package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	casAttempts    = 5
	casBackoffBase = 25 * time.Millisecond
)

// UpdateDoc runs a bounded read-modify-publish loop against one document.
//
// fn receives the current value (nil when the document does not exist yet)
// and returns the value to publish. A publish rejected with ErrStaleRevision
// triggers a re-read and retry with exponential backoff; after casAttempts
// losses the loop surfaces ErrRetriesExhausted instead of spinning forever.
// Any other error from the store or from fn aborts immediately.
func UpdateDoc(ctx context.Context, s Store, key string, fn func(cur []byte) ([]byte, error)) (int64, error) {
	backoff := casBackoffBase

	for attempt := 0; attempt < casAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var cur []byte
		var rev int64
		doc, err := s.GetDoc(ctx, key)
		switch {
		case err == nil:
			cur, rev = doc.Value, doc.Revision
		case errors.Is(err, ErrNotFound):
			// rev 0 publishes as a create.
		default:
			return 0, err
		}

		next, err := fn(cur)
		if err != nil {
			return 0, err
		}

		newRev, err := s.PublishDoc(ctx, key, next, rev)
		if err == nil {
			return newRev, nil
		}
		if !errors.Is(err, ErrStaleRevision) {
			return 0, err
		}
	}

	return 0, fmt.Errorf("update %s after %d attempts: %w", key, casAttempts, ErrRetriesExhausted)
}
