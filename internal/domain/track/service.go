package track

import (
	"context"
	"time"
)

// Pipeline validates, classifies, and persists incoming position
// samples and hands accepted work to the broadcast gateway.
type Pipeline interface {
	// IngestSingle processes one live sample. The current position is
	// always overwritten; a trail point is persisted only when the
	// throttle spacing allows.
	IngestSingle(ctx context.Context, missionID, userID string, sample Sample) error

	// IngestBulk drains an offline buffer batch. Points are sorted by
	// resolved timestamp before processing; points outside the
	// retention window or more than FutureSlack in the future are
	// silently dropped. Returns the number of trail points persisted.
	IngestBulk(ctx context.Context, missionID, userID string, samples []Sample) (int, error)

	// ClearPosition removes the caller's current position and
	// announces the clear to the room.
	ClearPosition(ctx context.Context, missionID, userID string) error

	// PurgeTrail removes every trail point of a mission and announces
	// the purge to the room.
	PurgeTrail(ctx context.Context, missionID string) error
}

// SnapshotBuilder reconstructs a mission's state for a client joining
// a room or explicitly resynchronizing. requestedSeconds < 0 means the
// client did not ask for a specific window; the effective window is
// always clamped to [0, mission retention].
type SnapshotBuilder interface {
	BuildSnapshot(ctx context.Context, missionID string, requestedSeconds int) (*Snapshot, error)
}

// Store is the trail document store: one current-position row per
// mission/user plus the append-only, time-indexed trail collection.
// Concurrency control on rows is the store's concern; current-position
// writes are last-writer-wins on purpose.
type Store interface {
	UpsertCurrentPosition(ctx context.Context, p CurrentPosition) error
	DeleteCurrentPosition(ctx context.Context, missionID, userID string) error

	InsertTrailPoints(ctx context.Context, points []TrailPoint) error

	// CurrentPositions returns the mission's live positions with a
	// sample timestamp at or after since.
	CurrentPositions(ctx context.Context, missionID string, since time.Time) ([]CurrentPosition, error)

	// TrailPoints returns the mission's trail points created at or
	// after since, ordered by user and ascending creation time.
	TrailPoints(ctx context.Context, missionID string, since time.Time) ([]TrailPoint, error)

	PurgeMissionTrail(ctx context.Context, missionID string) error

	// DeleteExpiredTrailPoints removes points whose expiry has passed
	// and reports how many were removed.
	DeleteExpiredTrailPoints(ctx context.Context, now time.Time) (int64, error)
}

// Ledger is the throttle state, one entry per mission/user pair,
// holding the timestamp of the last trail point actually persisted.
// Lock serializes the whole check-insert-advance sequence for a pair;
// concurrent single and bulk ingest for the same pair must not
// interleave. Losing this state on restart is safe: the worst case is
// one extra trail point.
type Ledger interface {
	// Lock acquires the pair's entry. The caller must Unlock it.
	Lock(missionID, userID string) LedgerEntry

	// Forget drops the pair's entry, e.g. after a position clear.
	Forget(missionID, userID string)
}

// LedgerEntry is a locked throttle entry.
type LedgerEntry interface {
	// LastTimestamp is the epoch-ms timestamp of the last persisted
	// trail point. ok is false when the pair has none recorded.
	LastTimestamp() (ts int64, ok bool)

	// Advance moves the entry forward. It never regresses; calls with
	// an older timestamp are ignored.
	Advance(ts int64)

	Unlock()
}

// Broadcaster fans an event out to every connection in a mission's
// room. Implemented by the broadcast gateway; the pipeline publishes
// only after the corresponding store write is durable.
type Broadcaster interface {
	Publish(missionID, event string, payload interface{})
}
