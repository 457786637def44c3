// Package sync pushes local mutations to the remote store and reconciles
// the local collections against server snapshots. All mutations happen
// locally first; the queue, not exceptions, is the retry mechanism.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ogorman/cardbox/internal/storage"
	"github.com/ogorman/cardbox/internal/syncqueue"
)

// FetchFunc performs an authenticated HTTP request. Implementations are
// expected to attach credentials and transparently refresh on 401; this
// package treats the capability as opaque.
type FetchFunc func(ctx context.Context, method, url string, body io.Reader) (*http.Response, error)

// Descriptor tells a Manager how to handle one entity type without
// reflecting on its shape.
type Descriptor[T any] struct {
	// ID extracts the entity id.
	ID func(T) string
	// Synced reports whether the entity id was issued by the server.
	Synced func(T) bool
	// AdoptID returns a copy carrying the server-issued id, marked synced.
	AdoptID func(T, string) T
	// MarkSynced returns a copy marked as confirmed by the server.
	MarkSynced func(T) T
	// Merge combines a local and a server record, preferring local-only
	// fields and overlaying server fields. It must be idempotent: merging
	// an already-merged record with the same server record is a no-op.
	// nil means the server record wins outright.
	Merge func(local, remote T) T
	// MatchKey is an alternate identity used to pair local-only records
	// with server records whose id differs (e.g. a content hash).
	// nil means match by ID only.
	MatchKey func(T) string
	// CreateBody and UpdateBody transform the entity into the request
	// payload. nil means the entity itself is sent.
	CreateBody func(T) any
	UpdateBody func(T) any
}

// Manager orchestrates remote persistence for one entity type: immediate
// calls first, queue fallback on failure, authoritative merge on fetch.
type Manager[T any] struct {
	name     string
	resource string
	local    *storage.Collection[T]
	queue    *syncqueue.Queue[T]
	desc     Descriptor[T]
	fetch    FetchFunc
}

// NewManager wires a manager for one entity type. resource is the full
// collection URL, e.g. "https://api.example.com/decks".
func NewManager[T any](name, resource string, local *storage.Collection[T], queue *syncqueue.Queue[T], desc Descriptor[T], fetch FetchFunc) (*Manager[T], error) {
	if desc.ID == nil || desc.Synced == nil || desc.AdoptID == nil || desc.MarkSynced == nil {
		return nil, fmt.Errorf("sync manager %s: descriptor is missing required accessors", name)
	}
	if fetch == nil {
		return nil, fmt.Errorf("sync manager %s: fetch function is required", name)
	}
	return &Manager[T]{
		name:     name,
		resource: resource,
		local:    local,
		queue:    queue,
		desc:     desc,
		fetch:    fetch,
	}, nil
}

// Name identifies the manager in logs.
func (m *Manager[T]) Name() string {
	return m.name
}

// Items reads the local collection fresh from the store.
func (m *Manager[T]) Items(ctx context.Context) ([]T, error) {
	return m.local.All(ctx)
}

// EnqueueCreate attempts an immediate create against the remote store,
// falling back to the queue. On success the local record adopts the
// server-issued id and any queued op for the old local id is removed.
// The result is reported as a boolean; failures never propagate.
func (m *Manager[T]) EnqueueCreate(ctx context.Context, item T) bool {
	serverID, err := m.remoteCreate(ctx, item)
	if err != nil {
		slog.Info("create failed, queueing", "manager", m.name, "id", m.desc.ID(item), "error", err)
		if qErr := m.queue.Enqueue(ctx, syncqueue.Create(item)); qErr != nil {
			slog.Warn("failed to queue create", "manager", m.name, "error", qErr)
		}
		return false
	}
	return m.adoptCreated(ctx, item, serverID)
}

// EnqueueUpdate attempts an immediate update. An entity whose id was never
// confirmed by the server has nothing to PUT yet, so the change is routed
// through the create path instead.
func (m *Manager[T]) EnqueueUpdate(ctx context.Context, item T) bool {
	if !m.desc.Synced(item) {
		return m.EnqueueCreate(ctx, item)
	}
	if err := m.remoteUpdate(ctx, item); err != nil {
		slog.Info("update failed, queueing", "manager", m.name, "id", m.desc.ID(item), "error", err)
		if qErr := m.queue.Enqueue(ctx, syncqueue.Update(item)); qErr != nil {
			slog.Warn("failed to queue update", "manager", m.name, "error", qErr)
		}
		return false
	}
	// Any older queued op for this id is now stale; replaying it would
	// resurrect the payload this call just replaced.
	if err := m.queue.RemoveByID(ctx, m.desc.ID(item)); err != nil {
		slog.Warn("failed to clear stale queued ops", "manager", m.name, "id", m.desc.ID(item), "error", err)
	}
	return m.storeSynced(ctx, m.desc.MarkSynced(item))
}

// EnqueueDelete attempts an immediate delete, falling back to the queue.
// Only server-confirmed ids are meaningful here; the caller removes the
// local record itself.
func (m *Manager[T]) EnqueueDelete(ctx context.Context, itemID string) bool {
	if err := m.remoteDelete(ctx, itemID); err != nil {
		slog.Info("delete failed, queueing", "manager", m.name, "id", itemID, "error", err)
		if qErr := m.queue.Enqueue(ctx, syncqueue.Delete[T](itemID)); qErr != nil {
			slog.Warn("failed to queue delete", "manager", m.name, "error", qErr)
		}
		return false
	}
	if err := m.queue.RemoveByID(ctx, itemID); err != nil {
		slog.Warn("failed to clear stale queued ops", "manager", m.name, "id", itemID, "error", err)
	}
	return true
}

// ProcessQueue replays the pending ops through the same remote calls the
// immediate paths use. Handlers never touch the queue: Process holds the
// queue lock while they run and removes delivered ops itself, so handler-side
// removal would deadlock and then be clobbered by the final rewrite anyway.
// Server ids issued during the pass are tracked so that a queued op behind a
// delivered create reuses the adopted id instead of creating a second copy.
func (m *Manager[T]) ProcessQueue(ctx context.Context) bool {
	adopted := make(map[string]string)
	err := m.queue.Process(ctx, syncqueue.Handlers[T]{
		Create: func(ctx context.Context, item T) error {
			localID := m.desc.ID(item)
			if _, ok := adopted[localID]; ok {
				return nil
			}
			serverID, err := m.remoteCreate(ctx, item)
			if err != nil {
				return err
			}
			adopted[localID] = serverID
			m.adoptLocal(ctx, item, serverID)
			return nil
		},
		Update: func(ctx context.Context, item T) error {
			if !m.desc.Synced(item) {
				serverID, ok := adopted[m.desc.ID(item)]
				if !ok {
					var err error
					serverID, err = m.remoteCreate(ctx, item)
					if err != nil {
						return err
					}
					adopted[m.desc.ID(item)] = serverID
					m.adoptLocal(ctx, item, serverID)
					return nil
				}
				item = m.desc.AdoptID(item, serverID)
			}
			if err := m.remoteUpdate(ctx, item); err != nil {
				return err
			}
			m.storeSynced(ctx, m.desc.MarkSynced(item))
			return nil
		},
		Delete: m.remoteDelete,
	})
	if err != nil {
		slog.Warn("queue processing failed", "manager", m.name, "error", err)
		return false
	}
	return true
}

// FetchAndMerge pulls the full remote collection and reconciles it into the
// local store. Server records are authoritative: each is merged over its
// local match and marked synced. A local record absent from the server
// survives only while a pending op for it is still in flight; otherwise its
// create is assumed abandoned and the record is dropped. The merge is
// idempotent under an unchanged server snapshot.
func (m *Manager[T]) FetchAndMerge(ctx context.Context) bool {
	remote, err := m.remoteList(ctx)
	if err != nil {
		slog.Info("fetch failed", "manager", m.name, "error", err)
		return false
	}

	local, err := m.local.All(ctx)
	if err != nil {
		slog.Warn("failed to read local collection", "manager", m.name, "error", err)
		return false
	}

	merged := make([]T, 0, len(remote))
	claimed := make(map[int]bool, len(local))

	for _, r := range remote {
		item := r
		if idx, ok := m.findMatch(local, r); ok {
			claimed[idx] = true
			if m.desc.Merge != nil {
				item = m.desc.Merge(local[idx], r)
			}
			// A key-matched record may have carried a stale local id;
			// its queued create is now redundant.
			if oldID := m.desc.ID(local[idx]); oldID != m.desc.ID(r) {
				if err := m.queue.RemoveByID(ctx, oldID); err != nil {
					slog.Warn("failed to drop stale queue entry", "manager", m.name, "id", oldID, "error", err)
				}
			}
		}
		merged = append(merged, m.desc.MarkSynced(item))
	}

	for idx, l := range local {
		if claimed[idx] {
			continue
		}
		pending, err := m.queue.Has(ctx, m.desc.ID(l))
		if err != nil {
			slog.Warn("failed to check queue", "manager", m.name, "error", err)
			return false
		}
		if pending {
			merged = append(merged, l)
		} else {
			slog.Info("dropping local record absent from server", "manager", m.name, "id", m.desc.ID(l))
		}
	}

	if err := m.local.Replace(ctx, merged); err != nil {
		slog.Warn("failed to persist merged collection", "manager", m.name, "error", err)
		return false
	}
	return true
}

// findMatch locates the local record corresponding to a server record,
// first by id, then by the alternate match key.
func (m *Manager[T]) findMatch(local []T, remote T) (int, bool) {
	rid := m.desc.ID(remote)
	for i, l := range local {
		if m.desc.ID(l) == rid {
			return i, true
		}
	}
	if m.desc.MatchKey == nil {
		return 0, false
	}
	rkey := m.desc.MatchKey(remote)
	if rkey == "" {
		return 0, false
	}
	for i, l := range local {
		if m.desc.MatchKey(l) == rkey {
			return i, true
		}
	}
	return 0, false
}

// adoptCreated rewrites the local record under its server-issued id and
// clears any queued op that still references the old local id. An in-flight
// request whose queue entry is already gone resolves as a harmless no-op.
// Only the immediate create path may use this; replay handlers run under the
// queue lock and must use adoptLocal.
func (m *Manager[T]) adoptCreated(ctx context.Context, item T, serverID string) bool {
	localID := m.desc.ID(item)
	if !m.adoptLocal(ctx, item, serverID) {
		return false
	}
	if err := m.queue.RemoveByID(ctx, localID); err != nil {
		slog.Warn("failed to clear queued op", "manager", m.name, "id", localID, "error", err)
		return false
	}
	return true
}

// adoptLocal rewrites only the local record under its server-issued id.
func (m *Manager[T]) adoptLocal(ctx context.Context, item T, serverID string) bool {
	localID := m.desc.ID(item)
	adopted := m.desc.AdoptID(item, serverID)

	err := m.local.Update(ctx, func(items []T) []T {
		for i := range items {
			if m.desc.ID(items[i]) == localID || m.desc.ID(items[i]) == serverID {
				items[i] = adopted
				return items
			}
		}
		return append(items, adopted)
	})
	if err != nil {
		slog.Warn("failed to adopt server id", "manager", m.name, "id", serverID, "error", err)
		return false
	}
	return true
}

// storeSynced persists the confirmed version of an existing local record.
func (m *Manager[T]) storeSynced(ctx context.Context, item T) bool {
	id := m.desc.ID(item)
	err := m.local.Update(ctx, func(items []T) []T {
		for i := range items {
			if m.desc.ID(items[i]) == id {
				items[i] = item
			}
		}
		return items
	})
	if err != nil {
		slog.Warn("failed to persist synced record", "manager", m.name, "id", id, "error", err)
		return false
	}
	return true
}

func (m *Manager[T]) remoteCreate(ctx context.Context, item T) (string, error) {
	body := any(item)
	if m.desc.CreateBody != nil {
		body = m.desc.CreateBody(item)
	}
	resp, err := m.do(ctx, http.MethodPost, m.resource, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create response missing id")
	}
	return created.ID, nil
}

func (m *Manager[T]) remoteUpdate(ctx context.Context, item T) error {
	body := any(item)
	if m.desc.UpdateBody != nil {
		body = m.desc.UpdateBody(item)
	}
	resp, err := m.do(ctx, http.MethodPut, m.resource+"/"+m.desc.ID(item), body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (m *Manager[T]) remoteDelete(ctx context.Context, itemID string) error {
	resp, err := m.do(ctx, http.MethodDelete, m.resource+"/"+itemID, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (m *Manager[T]) remoteList(ctx context.Context) ([]T, error) {
	resp, err := m.do(ctx, http.MethodGet, m.resource+"/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []T
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	return items, nil
}

// do issues one request through the injected fetch capability and maps
// non-2xx statuses to errors.
func (m *Manager[T]) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	resp, err := m.fetch(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	return resp, nil
}
