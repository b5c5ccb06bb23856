package credential

import "context"

// Store is durable key/value persistence of one Record per subject.
//
// Implementations must:
//   - make Put an idempotent upsert replacing any existing record
//   - return ErrNotFound from Get when no record exists
//   - make Delete succeed when no record exists
//   - never expose a partially written record to a concurrent Get
//   - wrap backend failures with StorageError
type Store interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, subjectID string) (Record, error)
	Delete(ctx context.Context, subjectID string) error
	Close() error
}
