// Package syncqueue persists pending remote mutations per entity type and
// replays them with bounded retry.
package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ogorman/cardbox/internal/storage"
)

// DefaultMaxRetries is the attempt bound after which an op is dropped.
const DefaultMaxRetries = 2

// Kind tags the variant of a pending operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Op is one pending mutation. Create and Update carry the item; Delete
// carries only the item id. Use the constructors so each variant carries
// exactly the fields it needs.
type Op[T any] struct {
	Kind     Kind   `json:"kind"`
	Item     *T     `json:"item,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	Attempts int    `json:"attempts"`
}

// Create returns a pending create op for item.
func Create[T any](item T) Op[T] {
	return Op[T]{Kind: KindCreate, Item: &item}
}

// Update returns a pending update op for item.
func Update[T any](item T) Op[T] {
	return Op[T]{Kind: KindUpdate, Item: &item}
}

// Delete returns a pending delete op for the given id.
func Delete[T any](id string) Op[T] {
	return Op[T]{Kind: KindDelete, ItemID: id}
}

// Handlers holds the per-variant delivery callbacks used by Process.
// A nil error means the op was delivered and is removed from the queue.
type Handlers[T any] struct {
	Create func(ctx context.Context, item T) error
	Update func(ctx context.Context, item T) error
	Delete func(ctx context.Context, id string) error
}

// Queue is a persisted FIFO of pending ops for one entity type, stored
// whole under a single storage key.
type Queue[T any] struct {
	mu         sync.Mutex
	ops        *storage.Collection[Op[T]]
	idOf       func(T) string
	maxRetries int
}

// New returns a queue persisted under the given name. idOf extracts the
// entity id from item-carrying ops. maxRetries <= 0 selects the default.
func New[T any](db *storage.DB, name string, idOf func(T) string, maxRetries int) *Queue[T] {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue[T]{
		ops:        storage.NewCollection[Op[T]](db, storage.QueueKey(name)),
		idOf:       idOf,
		maxRetries: maxRetries,
	}
}

// id returns the entity id an op refers to, regardless of variant.
func (q *Queue[T]) id(op Op[T]) string {
	if op.Kind == KindDelete {
		return op.ItemID
	}
	if op.Item == nil {
		return ""
	}
	return q.idOf(*op.Item)
}

// Enqueue appends op to the tail of the queue with zero attempts.
func (q *Queue[T]) Enqueue(ctx context.Context, op Op[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	op.Attempts = 0
	return q.ops.Update(ctx, func(pending []Op[T]) []Op[T] {
		return append(pending, op)
	})
}

// RemoveByID deletes every pending op, of any variant, referencing the
// given id. Removing an absent id is a no-op.
func (q *Queue[T]) RemoveByID(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ops.Update(ctx, func(pending []Op[T]) []Op[T] {
		kept := pending[:0]
		for _, op := range pending {
			if q.id(op) != id {
				kept = append(kept, op)
			}
		}
		return kept
	})
}

// Has reports whether any pending op references the given id.
func (q *Queue[T]) Has(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending, err := q.ops.All(ctx)
	if err != nil {
		return false, err
	}
	for _, op := range pending {
		if q.id(op) == id {
			return true, nil
		}
	}
	return false, nil
}

// Ops returns the pending ops in order.
func (q *Queue[T]) Ops(ctx context.Context) ([]Op[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ops.All(ctx)
}

// Process attempts delivery of every pending op in order. Delivered ops are
// removed; failed ops have their attempt count incremented and survive at
// the end of the queue until the retry bound is reached, after which they
// are dropped with a log line. Handler errors never propagate: the queue is
// the retry mechanism, not exceptions.
func (q *Queue[T]) Process(ctx context.Context, h Handlers[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.ops.All(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	var remaining []Op[T]
	for _, op := range pending {
		if err := q.deliver(ctx, op, h); err == nil {
			continue
		} else {
			op.Attempts++
			if op.Attempts >= q.maxRetries {
				slog.Warn("dropping sync op after retries exhausted",
					"kind", op.Kind, "id", q.id(op), "attempts", op.Attempts, "error", err)
				continue
			}
			slog.Info("sync op failed, will retry",
				"kind", op.Kind, "id", q.id(op), "attempts", op.Attempts, "error", err)
			remaining = append(remaining, op)
		}
	}

	return q.ops.Replace(ctx, remaining)
}

// deliver invokes the handler matching the op's variant.
func (q *Queue[T]) deliver(ctx context.Context, op Op[T], h Handlers[T]) error {
	switch op.Kind {
	case KindCreate:
		if op.Item == nil || h.Create == nil {
			return fmt.Errorf("create op for %s has no item or handler", q.id(op))
		}
		return h.Create(ctx, *op.Item)
	case KindUpdate:
		if op.Item == nil || h.Update == nil {
			return fmt.Errorf("update op for %s has no item or handler", q.id(op))
		}
		return h.Update(ctx, *op.Item)
	case KindDelete:
		if h.Delete == nil {
			return fmt.Errorf("delete op for %s has no handler", op.ItemID)
		}
		return h.Delete(ctx, op.ItemID)
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}
