package offline

import (
	"context"
	"sync"
	"time"
)

// maxBatch mirrors the server's bulk ingest bound.
const maxBatch = 200

// backoffLadder is the retry delay progression, capped at its last
// entry.
var backoffLadder = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}

// State is the flusher's position in its retry state machine.
type State int

const (
	StateIdle State = iota
	StateFlushing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFlushing:
		return "flushing"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Sender pushes one batch through the server's bulk ingest path. An
// error covers transport failures and failed acks alike; a missing
// ack is indistinguishable from a disconnect and is treated the same.
type Sender interface {
	SendBulk(ctx context.Context, samples []Sample) error
}

// Flusher drains the queue in bounded batches. One ingest call is
// atomic from the buffer's point of view: an acked batch is dropped
// from the front, a failed one is retried in full after a backoff.
// Replayed points the server already applied are throttled away there,
// which is harmless, in exchange for no per-point ack bookkeeping.
type Flusher struct {
	queue  *Queue
	sender Sender

	// sleep is injectable so tests can observe the ladder without
	// waiting it out.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   State
	retries int
}

// NewFlusher creates a flusher over the queue and sender.
func NewFlusher(queue *Queue, sender Sender) *Flusher {
	return &Flusher{
		queue:  queue,
		sender: sender,
		sleep:  sleepCtx,
	}
}

// State returns the current state machine position.
func (f *Flusher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Flush drains the queue until it is empty or the context ends.
// Called on reconnect and on the periodic flush schedule; concurrent
// calls are serialized by the queue itself and converge on an empty
// queue.
func (f *Flusher) Flush(ctx context.Context) error {
	for {
		batch := f.queue.Peek(maxBatch)
		if len(batch) == 0 {
			f.setState(StateIdle, true)
			return nil
		}

		f.setState(StateFlushing, false)
		err := f.sender.SendBulk(ctx, batch)
		if err == nil {
			if err := f.queue.Drop(len(batch)); err != nil {
				return err
			}
			f.resetRetries()
			continue
		}

		delay := f.nextDelay()
		f.setState(StateBackoff, false)
		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (f *Flusher) setState(s State, resetRetries bool) {
	f.mu.Lock()
	f.state = s
	if resetRetries {
		f.retries = 0
	}
	f.mu.Unlock()
}

func (f *Flusher) resetRetries() {
	f.mu.Lock()
	f.retries = 0
	f.mu.Unlock()
}

// nextDelay walks the ladder and sticks at its cap.
func (f *Flusher) nextDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.retries
	if idx >= len(backoffLadder) {
		idx = len(backoffLadder) - 1
	}
	f.retries++
	return backoffLadder[idx]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
