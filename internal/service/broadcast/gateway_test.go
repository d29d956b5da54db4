package broadcast

import (
	"io"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"fieldtrace/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

type delivered struct {
	event   string
	payload string
}

// recorder is a DeliverFunc capturing everything a connection receives.
type recorder struct {
	mu     sync.Mutex
	frames []delivered
}

func (r *recorder) deliver(event string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, delivered{event, string(payload)})
}

func (r *recorder) received() []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivered(nil), r.frames...)
}

func TestGatewayPublishReachesRoomMembers(t *testing.T) {
	t.Parallel()

	g := NewGateway(NewMemoryBus())
	a, b, other := &recorder{}, &recorder{}, &recorder{}

	if err := g.Join("conn-a", "m1", -1, a.deliver); err != nil {
		t.Fatal(err)
	}
	if err := g.Join("conn-b", "m1", -1, b.deliver); err != nil {
		t.Fatal(err)
	}
	if err := g.Join("conn-c", "m2", -1, other.deliver); err != nil {
		t.Fatal(err)
	}

	g.Publish("m1", "position:update", map[string]string{"userId": "u1"})

	for name, r := range map[string]*recorder{"conn-a": a, "conn-b": b} {
		frames := r.received()
		if len(frames) != 1 {
			t.Fatalf("%s received %d frames, want 1", name, len(frames))
		}
		if frames[0].event != "position:update" {
			t.Errorf("%s event = %q", name, frames[0].event)
		}
		var payload map[string]string
		if err := json.Unmarshal([]byte(frames[0].payload), &payload); err != nil {
			t.Fatalf("%s payload: %v", name, err)
		}
		if payload["userId"] != "u1" {
			t.Errorf("%s payload = %v", name, payload)
		}
	}

	if got := other.received(); len(got) != 0 {
		t.Errorf("other room received %d frames, want 0", len(got))
	}
}

func TestGatewayPublishExceptSkipsOrigin(t *testing.T) {
	t.Parallel()

	g := NewGateway(NewMemoryBus())
	sender, peer := &recorder{}, &recorder{}

	if err := g.Join("conn-s", "m1", -1, sender.deliver); err != nil {
		t.Fatal(err)
	}
	if err := g.Join("conn-p", "m1", -1, peer.deliver); err != nil {
		t.Fatal(err)
	}

	g.PublishExcept("m1", "conn-s", "position:update", map[string]int{"t": 1})

	if got := sender.received(); len(got) != 0 {
		t.Errorf("origin received %d frames, want 0", len(got))
	}
	if got := peer.received(); len(got) != 1 {
		t.Errorf("peer received %d frames, want 1", len(got))
	}
}

func TestGatewayRejoinLeavesOldRoom(t *testing.T) {
	t.Parallel()

	g := NewGateway(NewMemoryBus())
	r := &recorder{}

	if err := g.Join("conn-a", "m1", -1, r.deliver); err != nil {
		t.Fatal(err)
	}
	if err := g.Join("conn-a", "m2", 600, r.deliver); err != nil {
		t.Fatal(err)
	}

	g.Publish("m1", "position:update", map[string]int{"t": 1})
	g.Publish("m2", "position:update", map[string]int{"t": 2})

	frames := r.received()
	if len(frames) != 1 {
		t.Fatalf("received %d frames, want only the new room's", len(frames))
	}

	mission, ok := g.MissionOf("conn-a")
	if !ok || mission != "m2" {
		t.Errorf("MissionOf = %q, %v", mission, ok)
	}
	retention, ok := g.RetentionOf("conn-a")
	if !ok || retention != 600 {
		t.Errorf("RetentionOf = %d, %v", retention, ok)
	}
}

func TestGatewayLeave(t *testing.T) {
	t.Parallel()

	g := NewGateway(NewMemoryBus())
	r := &recorder{}

	if err := g.Join("conn-a", "m1", -1, r.deliver); err != nil {
		t.Fatal(err)
	}
	g.Leave("conn-a")

	g.Publish("m1", "position:update", map[string]int{"t": 1})

	if got := r.received(); len(got) != 0 {
		t.Errorf("received %d frames after leave, want 0", len(got))
	}
	if _, ok := g.MissionOf("conn-a"); ok {
		t.Error("membership should be gone after leave")
	}
}

func TestGatewayLeaveUnknownConnectionIsNoop(t *testing.T) {
	t.Parallel()

	g := NewGateway(NewMemoryBus())
	g.Leave("never-joined")
}

func TestGatewayPreservesPublishOrder(t *testing.T) {
	t.Parallel()

	g := NewGateway(NewMemoryBus())
	r := &recorder{}

	if err := g.Join("conn-a", "m1", -1, r.deliver); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		g.Publish("m1", "position:update", map[string]int{"seq": i})
	}

	frames := r.received()
	if len(frames) != 10 {
		t.Fatalf("received %d frames, want 10", len(frames))
	}
	for i, f := range frames {
		var payload map[string]int
		if err := json.Unmarshal([]byte(f.payload), &payload); err != nil {
			t.Fatal(err)
		}
		if payload["seq"] != i {
			t.Fatalf("frame %d carries seq %d", i, payload["seq"])
		}
	}
}

func TestGatewayDropsMalformedBusData(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus()
	g := NewGateway(bus)
	r := &recorder{}

	if err := g.Join("conn-a", "m1", -1, r.deliver); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish("mission.m1.track", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	g.Publish("m1", "position:update", map[string]int{"t": 1})

	frames := r.received()
	if len(frames) != 1 {
		t.Fatalf("received %d frames, want the valid one only", len(frames))
	}
}
