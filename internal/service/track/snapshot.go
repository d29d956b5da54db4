package track

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fieldtrace/internal/domain/mission"
	"fieldtrace/internal/domain/track"
)

// SnapshotBuilder reconstructs a point-in-time view of a mission's
// current positions and recent trails for a client joining a room or
// explicitly resynchronizing.
type SnapshotBuilder struct {
	store     track.Store
	directory mission.Directory
	now       func() time.Time
}

// NewSnapshotBuilder creates a snapshot builder.
func NewSnapshotBuilder(store track.Store, directory mission.Directory) *SnapshotBuilder {
	return &SnapshotBuilder{
		store:     store,
		directory: directory,
		now:       time.Now,
	}
}

// BuildSnapshot computes the effective window — the requested seconds,
// defaulted when negative, clamped to [0, mission retention] — and
// reads current positions and trail points from the cutoff forward.
// The two range reads are independent and run concurrently. Expiry is
// applied here at read time; the background sweeper is not relied on.
func (b *SnapshotBuilder) BuildSnapshot(ctx context.Context, missionID string, requestedSeconds int) (*track.Snapshot, error) {
	if missionID == "" {
		return nil, track.ErrMissionRequired
	}

	missionRetention, err := b.directory.RetentionSeconds(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("mission retention: %w", err)
	}

	effective := requestedSeconds
	if effective < 0 {
		effective = track.DefaultSnapshotRetentionSeconds
	}
	if effective > missionRetention {
		effective = missionRetention
	}
	if effective < 0 {
		effective = 0
	}

	cutoff := b.now().Add(-time.Duration(effective) * time.Second)

	var (
		wg        sync.WaitGroup
		positions []track.CurrentPosition
		points    []track.TrailPoint
		posErr    error
		trailErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		positions, posErr = b.store.CurrentPositions(ctx, missionID, cutoff)
	}()
	go func() {
		defer wg.Done()
		points, trailErr = b.store.TrailPoints(ctx, missionID, cutoff)
	}()
	wg.Wait()

	if posErr != nil {
		return nil, fmt.Errorf("read current positions: %w", posErr)
	}
	if trailErr != nil {
		return nil, fmt.Errorf("read trail points: %w", trailErr)
	}

	snapshot := &track.Snapshot{
		MissionID:        missionID,
		RetentionSeconds: effective,
		Positions:        make(map[string]track.PositionUpdate, len(positions)),
		Traces:           make(map[string][]track.TracePoint),
	}

	for _, p := range positions {
		snapshot.Positions[p.UserID] = track.PositionUpdate{
			MissionID: p.MissionID,
			UserID:    p.UserID,
			Lng:       p.Lng,
			Lat:       p.Lat,
			Speed:     p.Speed,
			Heading:   p.Heading,
			Accuracy:  p.Accuracy,
			Timestamp: p.Timestamp.UnixMilli(),
		}
	}

	// The store returns points ordered by user and ascending creation
	// time; grouping preserves the per-user order.
	for _, pt := range points {
		snapshot.Traces[pt.UserID] = append(snapshot.Traces[pt.UserID], track.TracePoint{
			Lng:       pt.Lng,
			Lat:       pt.Lat,
			Color:     pt.Color,
			Timestamp: pt.CreatedAt.UnixMilli(),
		})
	}

	return snapshot, nil
}
