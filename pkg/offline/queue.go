// Package offline implements the client-side reconciliation buffer:
// position samples captured while the real-time channel is down are
// queued, persisted across restarts, and drained through bulk ingest
// on reconnect.
package offline

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// Sample is one buffered position sample. Timestamps are epoch
// milliseconds, matching the ingest wire format.
type Sample struct {
	Lng      float64  `json:"lng"`
	Lat      float64  `json:"lat"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	T        int64    `json:"t"`
}

// Queue is a bounded FIFO of samples persisted as JSON lines so the
// buffer survives app restarts. When full, the oldest samples are
// dropped; the freshest positions are the ones worth keeping.
type Queue struct {
	mu      sync.Mutex
	path    string
	max     int
	samples []Sample
}

// OpenQueue loads the queue from path, creating an empty one when the
// file does not exist. Malformed lines are skipped, not fatal: a
// partially written tail after a crash must not strand the rest.
func OpenQueue(path string, max int) (*Queue, error) {
	q := &Queue{path: path, max: max}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(line, &s); err != nil {
			continue
		}
		q.samples = append(q.samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}

	q.trim()
	return q, nil
}

// Append adds a sample and persists the queue.
func (q *Queue) Append(s Sample) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.samples = append(q.samples, s)
	q.trim()
	return q.persist()
}

// Peek returns up to n samples from the front without removing them.
func (q *Queue) Peek(n int) []Sample {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.samples) {
		n = len(q.samples)
	}
	out := make([]Sample, n)
	copy(out, q.samples[:n])
	return out
}

// Drop removes n samples from the front and persists the remainder.
func (q *Queue) Drop(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.samples) {
		n = len(q.samples)
	}
	q.samples = append([]Sample(nil), q.samples[n:]...)
	return q.persist()
}

// Len returns the number of buffered samples.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.samples)
}

// trim must be called with q.mu held.
func (q *Queue) trim() {
	if q.max > 0 && len(q.samples) > q.max {
		q.samples = append([]Sample(nil), q.samples[len(q.samples)-q.max:]...)
	}
}

// persist writes the whole queue to a temp file and renames it into
// place. Must be called with q.mu held.
func (q *Queue) persist() error {
	tmp := q.path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create queue file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, s := range q.samples {
		line, err := json.Marshal(s)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal sample: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush queue file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close queue file: %w", err)
	}

	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
