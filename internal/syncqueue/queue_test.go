package syncqueue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ogorman/cardbox/internal/storage"
)

type note struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func testQueue(t *testing.T, maxRetries int) *Queue[note] {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, "notes", func(n note) string { return n.ID }, maxRetries)
}

func TestEnqueueOrder(t *testing.T) {
	q := testQueue(t, 0)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Create(note{ID: "a"})); err != nil {
		t.Fatalf("Enqueue() returned an unexpected error: %v", err)
	}
	if err := q.Enqueue(ctx, Update(note{ID: "b"})); err != nil {
		t.Fatalf("Enqueue() returned an unexpected error: %v", err)
	}
	if err := q.Enqueue(ctx, Delete[note]("c")); err != nil {
		t.Fatalf("Enqueue() returned an unexpected error: %v", err)
	}

	ops, err := q.Ops(ctx)
	if err != nil {
		t.Fatalf("Ops() returned an unexpected error: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("Expected 3 pending ops, got %d", len(ops))
	}
	wantKinds := []Kind{KindCreate, KindUpdate, KindDelete}
	wantIDs := []string{"a", "b", "c"}
	for i, op := range ops {
		if op.Kind != wantKinds[i] {
			t.Errorf("Op %d: expected kind %s, got %s", i, wantKinds[i], op.Kind)
		}
		if q.id(op) != wantIDs[i] {
			t.Errorf("Op %d: expected id %s, got %s", i, wantIDs[i], q.id(op))
		}
		if op.Attempts != 0 {
			t.Errorf("Op %d: expected zero attempts, got %d", i, op.Attempts)
		}
	}
}

func TestProcessDeliversAndEmpties(t *testing.T) {
	q := testQueue(t, 0)
	ctx := context.Background()

	q.Enqueue(ctx, Create(note{ID: "a", Body: "one"}))
	q.Enqueue(ctx, Update(note{ID: "b", Body: "two"}))
	q.Enqueue(ctx, Delete[note]("c"))

	var created, updated, deleted []string
	err := q.Process(ctx, Handlers[note]{
		Create: func(ctx context.Context, n note) error {
			created = append(created, n.ID)
			return nil
		},
		Update: func(ctx context.Context, n note) error {
			updated = append(updated, n.ID)
			return nil
		},
		Delete: func(ctx context.Context, id string) error {
			deleted = append(deleted, id)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Process() returned an unexpected error: %v", err)
	}

	if len(created) != 1 || created[0] != "a" {
		t.Errorf("Expected one create for a, got %v", created)
	}
	if len(updated) != 1 || updated[0] != "b" {
		t.Errorf("Expected one update for b, got %v", updated)
	}
	if len(deleted) != 1 || deleted[0] != "c" {
		t.Errorf("Expected one delete for c, got %v", deleted)
	}

	ops, err := q.Ops(ctx)
	if err != nil {
		t.Fatalf("Ops() returned an unexpected error: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("Expected the queue to drain, got %d pending ops", len(ops))
	}
}

func TestProcessDropsAfterRetriesExhausted(t *testing.T) {
	q := testQueue(t, 2)
	ctx := context.Background()

	q.Enqueue(ctx, Create(note{ID: "a"}))

	failing := Handlers[note]{
		Create: func(ctx context.Context, n note) error {
			return errors.New("server unreachable")
		},
	}

	// First failure keeps the op with one attempt recorded.
	if err := q.Process(ctx, failing); err != nil {
		t.Fatalf("Process() returned an unexpected error: %v", err)
	}
	ops, _ := q.Ops(ctx)
	if len(ops) != 1 || ops[0].Attempts != 1 {
		t.Fatalf("Expected one op with one attempt, got %+v", ops)
	}

	// Second failure reaches the bound and drops the op.
	if err := q.Process(ctx, failing); err != nil {
		t.Fatalf("Process() returned an unexpected error: %v", err)
	}
	ops, _ = q.Ops(ctx)
	if len(ops) != 0 {
		t.Errorf("Expected the op to be dropped after exhausting retries, got %+v", ops)
	}
}

func TestProcessKeepsFailedBehindDelivered(t *testing.T) {
	q := testQueue(t, 5)
	ctx := context.Background()

	q.Enqueue(ctx, Create(note{ID: "bad"}))
	q.Enqueue(ctx, Create(note{ID: "good"}))

	err := q.Process(ctx, Handlers[note]{
		Create: func(ctx context.Context, n note) error {
			if n.ID == "bad" {
				return errors.New("rejected")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Process() returned an unexpected error: %v", err)
	}

	ops, _ := q.Ops(ctx)
	if len(ops) != 1 || q.id(ops[0]) != "bad" {
		t.Fatalf("Expected only the failed op to remain, got %+v", ops)
	}
}

func TestRemoveByID(t *testing.T) {
	q := testQueue(t, 0)
	ctx := context.Background()

	q.Enqueue(ctx, Create(note{ID: "a"}))
	q.Enqueue(ctx, Update(note{ID: "a"}))
	q.Enqueue(ctx, Delete[note]("a"))
	q.Enqueue(ctx, Create(note{ID: "b"}))

	if err := q.RemoveByID(ctx, "a"); err != nil {
		t.Fatalf("RemoveByID() returned an unexpected error: %v", err)
	}
	ops, _ := q.Ops(ctx)
	if len(ops) != 1 || q.id(ops[0]) != "b" {
		t.Errorf("Expected only b's op to survive, got %+v", ops)
	}

	// Removing an absent id is a no-op.
	if err := q.RemoveByID(ctx, "a"); err != nil {
		t.Errorf("Expected a repeated removal to succeed, got %v", err)
	}

	has, err := q.Has(ctx, "b")
	if err != nil || !has {
		t.Errorf("Expected Has(b) to be true, got has=%v err=%v", has, err)
	}
	has, err = q.Has(ctx, "a")
	if err != nil || has {
		t.Errorf("Expected Has(a) to be false, got has=%v err=%v", has, err)
	}
}

func TestQueuePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")
	ctx := context.Background()

	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	q := New(db, "notes", func(n note) string { return n.ID }, 0)
	q.Enqueue(ctx, Create(note{ID: "a", Body: "survives"}))
	db.Close()

	db, err = storage.Open(path)
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	defer db.Close()
	q = New(db, "notes", func(n note) string { return n.ID }, 0)

	ops, err := q.Ops(ctx)
	if err != nil {
		t.Fatalf("Ops() returned an unexpected error: %v", err)
	}
	if len(ops) != 1 || ops[0].Item == nil || ops[0].Item.Body != "survives" {
		t.Errorf("Expected the op to survive a reopen, got %+v", ops)
	}
}
