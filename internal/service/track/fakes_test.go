package track

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"fieldtrace/internal/domain/track"
	"fieldtrace/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

type currentKey struct {
	missionID string
	userID    string
}

// fakeStore is an in-memory track.Store for pipeline and snapshot
// tests.
type fakeStore struct {
	mu      sync.Mutex
	current map[currentKey]track.CurrentPosition
	points  []track.TrailPoint

	insertErr error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{current: make(map[currentKey]track.CurrentPosition)}
}

func (s *fakeStore) UpsertCurrentPosition(_ context.Context, p track.CurrentPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.current[currentKey{p.MissionID, p.UserID}] = p
	return nil
}

func (s *fakeStore) DeleteCurrentPosition(_ context.Context, missionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, currentKey{missionID, userID})
	return nil
}

func (s *fakeStore) InsertTrailPoints(_ context.Context, points []track.TrailPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.points = append(s.points, points...)
	return nil
}

func (s *fakeStore) CurrentPositions(_ context.Context, missionID string, since time.Time) ([]track.CurrentPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []track.CurrentPosition
	for _, p := range s.current {
		if p.MissionID == missionID && !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) TrailPoints(_ context.Context, missionID string, since time.Time) ([]track.TrailPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []track.TrailPoint
	for _, p := range s.points {
		if p.MissionID == missionID && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *fakeStore) PurgeMissionTrail(_ context.Context, missionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.points[:0]
	for _, p := range s.points {
		if p.MissionID != missionID {
			kept = append(kept, p)
		}
	}
	s.points = kept
	return nil
}

func (s *fakeStore) DeleteExpiredTrailPoints(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.points[:0]
	for _, p := range s.points {
		if p.ExpiresAt.After(now) {
			kept = append(kept, p)
		} else {
			removed++
		}
	}
	s.points = kept
	return removed, nil
}

// userPoints returns the user's persisted trail sorted by creation
// time.
func (s *fakeStore) userPoints(missionID, userID string) []track.TrailPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []track.TrailPoint
	for _, p := range s.points {
		if p.MissionID == missionID && p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *fakeStore) currentOf(missionID, userID string) (track.CurrentPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.current[currentKey{missionID, userID}]
	return p, ok
}

// fakeDirectory is a canned mission.Directory.
type fakeDirectory struct {
	active    bool
	activeErr error
	retention int
	color     string
}

func (d *fakeDirectory) IsActiveMember(context.Context, string, string) (bool, error) {
	return d.active, d.activeErr
}

func (d *fakeDirectory) RetentionSeconds(context.Context, string) (int, error) {
	return d.retention, nil
}

func (d *fakeDirectory) MemberColor(context.Context, string, string) (string, error) {
	return d.color, nil
}

type publishedEvent struct {
	missionID string
	event     string
	payload   interface{}
}

// fakeBroadcaster records published events.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *fakeBroadcaster) Publish(missionID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{missionID, event, payload})
}

func (b *fakeBroadcaster) published() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedEvent(nil), b.events...)
}
