package offline

import (
	"os"
	"path/filepath"
	"testing"
)

func sample(t int64, lng float64) Sample {
	return Sample{Lng: lng, Lat: 1, T: t}
}

func TestQueueAppendPeekDrop(t *testing.T) {
	t.Parallel()

	q, err := OpenQueue(filepath.Join(t.TempDir(), "queue.jsonl"), 100)
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(0); i < 5; i++ {
		if err := q.Append(sample(i*1000, float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	batch := q.Peek(3)
	if len(batch) != 3 {
		t.Fatalf("peeked %d, want 3", len(batch))
	}
	if batch[0].T != 0 || batch[2].T != 2000 {
		t.Errorf("peek out of order: %v", batch)
	}
	if q.Len() != 5 {
		t.Errorf("peek must not consume, len = %d", q.Len())
	}

	if err := q.Drop(3); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Errorf("len after drop = %d, want 2", q.Len())
	}
	if rest := q.Peek(10); rest[0].T != 3000 {
		t.Errorf("front after drop = %v", rest[0])
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queue.jsonl")

	q, err := OpenQueue(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	speed := 4.2
	if err := q.Append(Sample{Lng: 1, Lat: 2, Speed: &speed, T: 7000}); err != nil {
		t.Fatal(err)
	}
	if err := q.Append(sample(8000, 3)); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenQueue(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened len = %d, want 2", reopened.Len())
	}
	first := reopened.Peek(1)[0]
	if first.T != 7000 || first.Speed == nil || *first.Speed != 4.2 {
		t.Errorf("first sample = %+v", first)
	}
}

func TestQueueMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	q, err := OpenQueue(filepath.Join(t.TempDir(), "absent.jsonl"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
}

func TestQueueSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queue.jsonl")
	content := `{"lng":1,"lat":1,"t":1000}
{torn write
{"lng":2,"lat":2,"t":2000}

{"lng":3,"lat":3,"t":3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	q, err := OpenQueue(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, want the 2 intact lines", q.Len())
	}
	batch := q.Peek(2)
	if batch[0].T != 1000 || batch[1].T != 2000 {
		t.Errorf("kept samples = %v", batch)
	}
}

func TestQueueBoundDropsOldest(t *testing.T) {
	t.Parallel()

	q, err := OpenQueue(filepath.Join(t.TempDir(), "queue.jsonl"), 3)
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(0); i < 5; i++ {
		if err := q.Append(sample(i*1000, float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	if q.Len() != 3 {
		t.Fatalf("len = %d, want bound 3", q.Len())
	}
	batch := q.Peek(3)
	if batch[0].T != 2000 || batch[2].T != 4000 {
		t.Errorf("bound kept wrong samples: %v", batch)
	}
}

func TestQueueDropMoreThanLen(t *testing.T) {
	t.Parallel()

	q, err := OpenQueue(filepath.Join(t.TempDir(), "queue.jsonl"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Append(sample(1000, 1)); err != nil {
		t.Fatal(err)
	}

	if err := q.Drop(10); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
}
