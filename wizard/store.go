/*
store.go - Draft persistence contract

PURPOSE:
  One in-progress draft per session key, age-stamped. The medium is out of
  scope; only these four idempotent operations are part of the contract.
  Implementations: wizard/store (memory, for tests and dev) and
  store/sqlite (production).

IDEMPOTENCE:
  Save overwrites, Clear on a missing key is a no-op, Load and
  PeekTimestamp never mutate. A newer autosave simply supersedes the
  previous snapshot.

SEE ALSO:
  - autosave.go: schedules the debounced Save calls
  - wizard/store/memory.go: in-memory implementation
  - store/sqlite/sqlite.go: SQLite implementation
*/
package wizard

import (
	"context"
	"time"
)

// DraftStore persists wizard snapshots keyed by browser session.
type DraftStore interface {
	// Save overwrites the snapshot for the key, stamping it with now.
	Save(ctx context.Context, key string, draft *PolicyDraft) error

	// Load returns the snapshot for the key, or ok=false when none exists.
	Load(ctx context.Context, key string) (*PolicyDraft, bool, error)

	// Clear removes the snapshot. Missing keys are a no-op.
	Clear(ctx context.Context, key string) error

	// PeekTimestamp returns when the snapshot was last saved, or ok=false
	// when none exists. Used to ask the operator about restoring.
	PeekTimestamp(ctx context.Context, key string) (time.Time, bool, error)
}
