package track

import (
	"context"
	"testing"
	"time"

	"fieldtrace/internal/domain/track"
)

func newTestSnapshotBuilder(store *fakeStore, dir *fakeDirectory) *SnapshotBuilder {
	b := NewSnapshotBuilder(store, dir)
	b.now = func() time.Time { return base }
	return b
}

func trailAt(userID string, offset time.Duration, lng float64) track.TrailPoint {
	created := base.Add(offset)
	return track.TrailPoint{
		MissionID: testMission,
		UserID:    userID,
		Color:     "#123456",
		Lng:       lng,
		Lat:       1,
		CreatedAt: created,
		ExpiresAt: created.Add(3600 * time.Second),
	}
}

func TestBuildSnapshotEffectiveRetention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		missionRetention int
		requested        int
		want             int
	}{
		{"default below mission", 3600, -1, 1800},
		{"default clamped by mission", 900, -1, 900},
		{"requested honored", 3600, 600, 600},
		{"requested clamped", 3600, 7200, 3600},
		{"zero allowed", 3600, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestSnapshotBuilder(newFakeStore(), &fakeDirectory{retention: tc.missionRetention})
			snap, err := b.BuildSnapshot(context.Background(), testMission, tc.requested)
			if err != nil {
				t.Fatal(err)
			}
			if snap.RetentionSeconds != tc.want {
				t.Errorf("retention = %d, want %d", snap.RetentionSeconds, tc.want)
			}
		})
	}
}

func TestBuildSnapshotRetentionBoundary(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	retention := 3600
	store.points = append(store.points,
		trailAt("u1", -time.Duration(retention)*time.Second-time.Second, 1), // just outside
		trailAt("u1", -time.Duration(retention)*time.Second+time.Second, 2), // just inside
	)

	b := newTestSnapshotBuilder(store, &fakeDirectory{retention: retention})
	snap, err := b.BuildSnapshot(context.Background(), testMission, retention)
	if err != nil {
		t.Fatal(err)
	}

	points := snap.Traces["u1"]
	if len(points) != 1 {
		t.Fatalf("expected exactly the inside point, got %d", len(points))
	}
	if points[0].Lng != 2 {
		t.Errorf("wrong point survived the boundary: lng = %v", points[0].Lng)
	}
}

func TestBuildSnapshotGroupsAndOrdersTraces(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.points = append(store.points,
		trailAt("u2", -10*time.Second, 20),
		trailAt("u1", -30*time.Second, 1),
		trailAt("u1", -20*time.Second, 2),
		trailAt("u2", -5*time.Second, 21),
		trailAt("u1", -10*time.Second, 3),
	)

	b := newTestSnapshotBuilder(store, &fakeDirectory{retention: 3600})
	snap, err := b.BuildSnapshot(context.Background(), testMission, -1)
	if err != nil {
		t.Fatal(err)
	}

	if len(snap.Traces) != 2 {
		t.Fatalf("expected 2 users, got %d", len(snap.Traces))
	}
	u1 := snap.Traces["u1"]
	if len(u1) != 3 {
		t.Fatalf("u1 has %d points, want 3", len(u1))
	}
	for i := 1; i < len(u1); i++ {
		if u1[i].Timestamp < u1[i-1].Timestamp {
			t.Error("u1 trace not ascending")
		}
	}
}

func TestBuildSnapshotPositionsWithinWindow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.current[currentKey{testMission, "fresh"}] = track.CurrentPosition{
		MissionID: testMission, UserID: "fresh", Lng: 1, Lat: 1,
		Timestamp: base.Add(-10 * time.Minute),
	}
	store.current[currentKey{testMission, "stale"}] = track.CurrentPosition{
		MissionID: testMission, UserID: "stale", Lng: 2, Lat: 2,
		Timestamp: base.Add(-2 * time.Hour),
	}

	b := newTestSnapshotBuilder(store, &fakeDirectory{retention: 3600})
	snap, err := b.BuildSnapshot(context.Background(), testMission, -1) // effective 1800s
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := snap.Positions["fresh"]; !ok {
		t.Error("fresh position missing")
	}
	if _, ok := snap.Positions["stale"]; ok {
		t.Error("stale position should be outside the window")
	}
	if got := snap.Positions["fresh"].Timestamp; got != base.Add(-10*time.Minute).UnixMilli() {
		t.Errorf("position timestamp = %d", got)
	}
}

func TestBuildSnapshotCompleteness(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dir := &fakeDirectory{active: true, retention: 3600}
	bc := &fakeBroadcaster{}
	p := newTestPipeline(store, dir, bc)
	ctx := context.Background()

	// Accepted singles inside the window; the throttled one must not
	// appear in the trace but must win the position.
	for _, s := range []track.Sample{
		sampleAt(-10000, 1, 1),
		sampleAt(-7000, 2, 2),
		sampleAt(-6500, 3, 3), // throttled
	} {
		if err := p.IngestSingle(ctx, testMission, testUser, s); err != nil {
			t.Fatal(err)
		}
	}

	b := newTestSnapshotBuilder(store, dir)
	snap, err := b.BuildSnapshot(ctx, testMission, -1)
	if err != nil {
		t.Fatal(err)
	}

	pos, ok := snap.Positions[testUser]
	if !ok {
		t.Fatal("position missing")
	}
	if pos.Lng != 3 {
		t.Errorf("position lng = %v, want last update 3", pos.Lng)
	}

	trace := snap.Traces[testUser]
	if len(trace) != 2 {
		t.Fatalf("trace has %d points, want the 2 throttle-accepted ones", len(trace))
	}
	if trace[0].Lng != 1 || trace[1].Lng != 2 {
		t.Errorf("trace points = %v", trace)
	}
}

func TestBuildSnapshotRequiresMission(t *testing.T) {
	t.Parallel()

	b := newTestSnapshotBuilder(newFakeStore(), &fakeDirectory{retention: 3600})
	if _, err := b.BuildSnapshot(context.Background(), "", -1); err != track.ErrMissionRequired {
		t.Fatalf("error = %v, want ErrMissionRequired", err)
	}
}
