package track

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"fieldtrace/internal/domain/mission"
	"fieldtrace/internal/domain/track"
	"fieldtrace/internal/logging"
)

// TrackPipeline is the ingest pipeline: it validates and classifies
// incoming samples, maintains current positions, grows trails under
// the throttle rule, and hands accepted work to the broadcast gateway.
type TrackPipeline struct {
	store       track.Store
	ledger      track.Ledger
	directory   mission.Directory
	broadcaster track.Broadcaster
	now         func() time.Time
}

// NewTrackPipeline creates a pipeline over the given collaborators.
func NewTrackPipeline(
	store track.Store,
	ledger track.Ledger,
	directory mission.Directory,
	broadcaster track.Broadcaster,
) *TrackPipeline {
	return &TrackPipeline{
		store:       store,
		ledger:      ledger,
		directory:   directory,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// IngestSingle processes one live sample. The current position is
// always overwritten (last-writer-wins by sample timestamp); a trail
// point is persisted only when the throttle spacing allows. The
// broadcast goes out after the writes so a concurrent snapshot can
// never show less than what was delivered live.
func (p *TrackPipeline) IngestSingle(ctx context.Context, missionID, userID string, sample track.Sample) error {
	if missionID == "" {
		return track.ErrMissionRequired
	}
	if userID == "" {
		return track.ErrInvalidUserID
	}
	if !validCoordinates(sample.Lng, sample.Lat) {
		return track.ErrInvalidPosition
	}

	if err := p.requireMember(ctx, missionID, userID); err != nil {
		return err
	}

	ts := sample.Timestamp
	if ts == 0 {
		ts = p.now().UnixMilli()
	}

	if err := p.store.UpsertCurrentPosition(ctx, currentFromSample(missionID, userID, sample, ts)); err != nil {
		return fmt.Errorf("upsert current position: %w", err)
	}

	entry := p.ledger.Lock(missionID, userID)
	last, seeded := entry.LastTimestamp()
	if !seeded || ts-last >= track.TrailPointSpacingMs {
		point, err := p.resolveTrailPoint(ctx, missionID, userID, sample.Lng, sample.Lat, ts)
		if err != nil {
			entry.Unlock()
			return err
		}
		if err := p.store.InsertTrailPoints(ctx, []track.TrailPoint{point}); err != nil {
			entry.Unlock()
			return fmt.Errorf("insert trail point: %w", err)
		}
		entry.Advance(ts)
	}
	entry.Unlock()

	p.broadcaster.Publish(missionID, track.EventPositionUpdate, track.PositionUpdate{
		MissionID: missionID,
		UserID:    userID,
		Lng:       sample.Lng,
		Lat:       sample.Lat,
		Speed:     sample.Speed,
		Heading:   sample.Heading,
		Accuracy:  sample.Accuracy,
		Timestamp: ts,
	})

	return nil
}

// IngestBulk drains an offline buffer batch. Points are sorted by
// resolved timestamp before processing; submission order is not
// trusted. Points outside the retention window or further than
// FutureSlack in the future are dropped silently to tolerate clock
// skew. Throttle decisions use a batch-local running timestamp seeded
// from the ledger so points inside one batch keep the spacing between
// each other, not just against pre-batch state. The ledger is only
// advanced after the accepted points are durable.
func (p *TrackPipeline) IngestBulk(ctx context.Context, missionID, userID string, samples []track.Sample) (int, error) {
	if missionID == "" {
		return 0, track.ErrMissionRequired
	}
	if userID == "" {
		return 0, track.ErrInvalidUserID
	}
	if len(samples) > track.MaxBulkPoints {
		return 0, track.ErrBulkTooLarge
	}
	if len(samples) == 0 {
		return 0, nil
	}

	if err := p.requireMember(ctx, missionID, userID); err != nil {
		return 0, err
	}

	retention, err := p.directory.RetentionSeconds(ctx, missionID)
	if err != nil {
		return 0, fmt.Errorf("mission retention: %w", err)
	}
	color, err := p.memberColor(ctx, missionID, userID)
	if err != nil {
		return 0, err
	}

	nowMs := p.now().UnixMilli()
	cutoffMs := nowMs - int64(retention)*1000
	futureMs := nowMs + track.FutureSlack.Milliseconds()

	resolved := make([]track.Sample, 0, len(samples))
	for _, s := range samples {
		if !validCoordinates(s.Lng, s.Lat) {
			continue
		}
		ts := s.Timestamp
		if ts == 0 {
			ts = nowMs
		}
		if ts < cutoffMs || ts > futureMs {
			continue
		}
		s.Timestamp = ts
		resolved = append(resolved, s)
	}
	if len(resolved) == 0 {
		return 0, nil
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Timestamp < resolved[j].Timestamp
	})

	entry := p.ledger.Lock(missionID, userID)
	local, seeded := entry.LastTimestamp()

	var accepted []track.TrailPoint
	for _, s := range resolved {
		if seeded && s.Timestamp-local < track.TrailPointSpacingMs {
			continue
		}
		accepted = append(accepted, trailPoint(missionID, userID, color, s.Lng, s.Lat, s.Timestamp, retention))
		local = s.Timestamp
		seeded = true
	}

	if len(accepted) > 0 {
		if err := p.store.InsertTrailPoints(ctx, accepted); err != nil {
			entry.Unlock()
			return 0, fmt.Errorf("insert trail points: %w", err)
		}
		entry.Advance(accepted[len(accepted)-1].CreatedAt.UnixMilli())
	}
	entry.Unlock()

	// Current position comes from the last point in sorted order, not
	// the last point in request order.
	latest := resolved[len(resolved)-1]
	if err := p.store.UpsertCurrentPosition(ctx, currentFromSample(missionID, userID, latest, latest.Timestamp)); err != nil {
		return len(accepted), fmt.Errorf("upsert current position: %w", err)
	}

	points := make([]track.TracePoint, 0, len(resolved))
	for _, s := range resolved {
		points = append(points, track.TracePoint{
			Lng:       s.Lng,
			Lat:       s.Lat,
			Color:     color,
			Timestamp: s.Timestamp,
		})
	}
	p.broadcaster.Publish(missionID, track.EventPositionBulk, track.PositionBulk{
		MissionID: missionID,
		UserID:    userID,
		Points:    points,
	})

	return len(accepted), nil
}

// ClearPosition removes the caller's current position row, drops the
// pair's throttle entry, and announces the clear to the room. Trail
// points are untouched; they disappear through retention or an
// explicit mission-wide purge.
func (p *TrackPipeline) ClearPosition(ctx context.Context, missionID, userID string) error {
	if missionID == "" {
		return track.ErrMissionRequired
	}
	if userID == "" {
		return track.ErrInvalidUserID
	}
	if err := p.requireMember(ctx, missionID, userID); err != nil {
		return err
	}

	if err := p.store.DeleteCurrentPosition(ctx, missionID, userID); err != nil {
		return fmt.Errorf("delete current position: %w", err)
	}
	p.ledger.Forget(missionID, userID)

	p.broadcaster.Publish(missionID, track.EventPositionClear, track.PositionClear{
		MissionID: missionID,
		UserID:    userID,
	})

	return nil
}

// PurgeTrail removes every trail point of a mission and announces the
// purge to the room.
func (p *TrackPipeline) PurgeTrail(ctx context.Context, missionID string) error {
	if missionID == "" {
		return track.ErrMissionRequired
	}

	if err := p.store.PurgeMissionTrail(ctx, missionID); err != nil {
		return fmt.Errorf("purge mission trail: %w", err)
	}

	logging.Info().Str("mission_id", missionID).Msg("mission trail purged")

	p.broadcaster.Publish(missionID, track.EventTracePurged, track.TracePurged{
		MissionID: missionID,
	})

	return nil
}

func (p *TrackPipeline) requireMember(ctx context.Context, missionID, userID string) error {
	ok, err := p.directory.IsActiveMember(ctx, missionID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return track.ErrForbidden
	}
	return nil
}

func (p *TrackPipeline) memberColor(ctx context.Context, missionID, userID string) (string, error) {
	color, err := p.directory.MemberColor(ctx, missionID, userID)
	if err != nil {
		return "", fmt.Errorf("member color: %w", err)
	}
	if color == "" {
		color = mission.DefaultMemberColor
	}
	return color, nil
}

func (p *TrackPipeline) resolveTrailPoint(ctx context.Context, missionID, userID string, lng, lat float64, ts int64) (track.TrailPoint, error) {
	retention, err := p.directory.RetentionSeconds(ctx, missionID)
	if err != nil {
		return track.TrailPoint{}, fmt.Errorf("mission retention: %w", err)
	}
	color, err := p.memberColor(ctx, missionID, userID)
	if err != nil {
		return track.TrailPoint{}, err
	}
	return trailPoint(missionID, userID, color, lng, lat, ts, retention), nil
}

func trailPoint(missionID, userID, color string, lng, lat float64, ts int64, retentionSeconds int) track.TrailPoint {
	createdAt := time.UnixMilli(ts).UTC()
	return track.TrailPoint{
		MissionID: missionID,
		UserID:    userID,
		Color:     color,
		Lng:       lng,
		Lat:       lat,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(time.Duration(retentionSeconds) * time.Second),
	}
}

func currentFromSample(missionID, userID string, s track.Sample, ts int64) track.CurrentPosition {
	return track.CurrentPosition{
		MissionID: missionID,
		UserID:    userID,
		Lng:       s.Lng,
		Lat:       s.Lat,
		Speed:     s.Speed,
		Heading:   s.Heading,
		Accuracy:  s.Accuracy,
		Timestamp: time.UnixMilli(ts).UTC(),
	}
}

func validCoordinates(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return false
	}
	return true
}
