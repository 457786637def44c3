package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogorman/cardbox/internal/domain"
	"github.com/ogorman/cardbox/internal/fsrs"
	"github.com/ogorman/cardbox/internal/storage"
)

type recordingSink struct {
	created []domain.Card
	deleted []string
}

func (s *recordingSink) EnqueueCreate(ctx context.Context, card domain.Card) bool {
	s.created = append(s.created, card)
	return true
}

func (s *recordingSink) EnqueueDelete(ctx context.Context, itemID string) bool {
	s.deleted = append(s.deleted, itemID)
	return true
}

func newTestImporter(t *testing.T) (*Importer, *storage.Collection[domain.Card], *recordingSink) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p := fsrs.DefaultParams()
	p.DisableFuzz = true
	engine, err := fsrs.New(p)
	if err != nil {
		t.Fatalf("New() returned an unexpected error: %v", err)
	}

	cards := storage.NewCollection[domain.Card](db, storage.CardsKey("d1"))
	sink := &recordingSink{}
	im := New(db, cards, sink, engine, "d1", t.TempDir())
	im.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return im, cards, sink
}

func writeMarkdown(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
}

func TestAddSourceDetectsType(t *testing.T) {
	im, _, _ := newTestImporter(t)
	ctx := context.Background()

	testCases := []struct {
		path     string
		expected string
	}{
		{"/home/user/notes", "local"},
		{"https://github.com/user/cards.git", "git"},
		{"https://github.com/user/cards", "git"},
		{"git@github.com:user/cards.git", "git"},
		{"./relative/notes.git", "git"},
	}
	for _, tc := range testCases {
		src, err := im.AddSource(ctx, tc.path)
		if err != nil {
			t.Fatalf("AddSource(%s) returned an unexpected error: %v", tc.path, err)
		}
		if src.Type != tc.expected {
			t.Errorf("AddSource(%s): expected type %s, got %s", tc.path, tc.expected, src.Type)
		}
		if src.ID == "" {
			t.Errorf("AddSource(%s): expected a generated id", tc.path)
		}
	}

	sources, err := im.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() returned an unexpected error: %v", err)
	}
	if len(sources) != len(testCases) {
		t.Errorf("Expected %d sources, got %d", len(testCases), len(sources))
	}
}

func TestRunCreatesCardsFromLocalSource(t *testing.T) {
	im, cards, sink := newTestImporter(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeMarkdown(t, dir, "go.md", "Q: What is Go?\nA: A language.\n\nQ: Who made it?\nA: Google.\n")
	writeMarkdown(t, dir, "notes.txt", "Q: Not markdown\nA: Ignored\n")

	src, err := im.AddSource(ctx, dir)
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}

	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	stored, err := cards.All(ctx)
	if err != nil {
		t.Fatalf("All() returned an unexpected error: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 cards from the markdown file, got %d", len(stored))
	}
	for _, c := range stored {
		if c.DeckID != "d1" {
			t.Errorf("Expected deck d1, got %s", c.DeckID)
		}
		if c.SourceID != src.ID {
			t.Errorf("Expected source %s, got %s", src.ID, c.SourceID)
		}
		if c.ContentHash == "" {
			t.Error("Expected a content hash")
		}
		if c.Schedule.State != domain.New {
			t.Errorf("Expected a fresh schedule, got state %v", c.Schedule.State)
		}
	}
	if len(sink.created) != 2 {
		t.Errorf("Expected 2 creates pushed to the sink, got %d", len(sink.created))
	}

	sources, _ := im.Sources(ctx)
	if sources[0].LastScanned == nil {
		t.Error("Expected the source to record its scan time")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	im, cards, sink := newTestImporter(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeMarkdown(t, dir, "cards.md", "Q: One\nA: 1\n")
	if _, err := im.AddSource(ctx, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}

	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}
	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	stored, _ := cards.All(ctx)
	if len(stored) != 1 {
		t.Errorf("Expected re-import to create nothing, got %d cards", len(stored))
	}
	if len(sink.created) != 1 {
		t.Errorf("Expected a single create, got %d", len(sink.created))
	}

	// Reformatting the content must not create a duplicate either.
	writeMarkdown(t, dir, "cards.md", "Q:   ONE  \nA: 1\n")
	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}
	stored, _ = cards.All(ctx)
	if len(stored) != 1 {
		t.Errorf("Expected a reformatted card to dedup by content hash, got %d cards", len(stored))
	}
}

func TestRunRemovesOrphanedCards(t *testing.T) {
	im, cards, sink := newTestImporter(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeMarkdown(t, dir, "keep.md", "Q: Keep\nA: Yes\n")
	writeMarkdown(t, dir, "drop.md", "Q: Drop\nA: Soon\n")
	if _, err := im.AddSource(ctx, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	// One of the two landed on the server in the meantime.
	var droppedID string
	err := cards.Update(ctx, func(all []domain.Card) []domain.Card {
		for i := range all {
			if all[i].Question == "Drop" {
				all[i].Synced = true
				droppedID = all[i].ID
			}
		}
		return all
	})
	if err != nil {
		t.Fatalf("Update() returned an unexpected error: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "drop.md")); err != nil {
		t.Fatalf("Failed to remove fixture: %v", err)
	}
	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	stored, _ := cards.All(ctx)
	if len(stored) != 1 || stored[0].Question != "Keep" {
		t.Fatalf("Expected only the surviving card, got %+v", stored)
	}
	if len(sink.deleted) != 1 || sink.deleted[0] != droppedID {
		t.Errorf("Expected a remote delete for the synced orphan, got %v", sink.deleted)
	}
}

func TestRunKeepsCardsFromOtherSources(t *testing.T) {
	im, cards, _ := newTestImporter(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeMarkdown(t, dir, "cards.md", "Q: Mine\nA: Yes\n")
	if _, err := im.AddSource(ctx, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}

	// A card created by hand, not owned by any source.
	manual := domain.Card{ID: "manual-1", DeckID: "d1", Question: "Manual", Answer: "Card"}
	if err := cards.Replace(ctx, []domain.Card{manual}); err != nil {
		t.Fatalf("Replace() returned an unexpected error: %v", err)
	}

	if err := im.Run(ctx); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	stored, _ := cards.All(ctx)
	if len(stored) != 2 {
		t.Errorf("Expected the manual card to survive reconciliation, got %+v", stored)
	}
}

func TestGitURLToLocalPath(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
		wantErr  bool
	}{
		{url: "https://github.com/user/cards.git", expected: filepath.Join("base", "github.com", "user", "cards")},
		{url: "https://github.com/user/cards", expected: filepath.Join("base", "github.com", "user", "cards")},
		{url: "git@github.com:user/cards.git", expected: filepath.Join("base", "github.com", "user", "cards")},
		{url: "not a url at all", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := gitURLToLocalPath("base", tc.url)
		if tc.wantErr {
			if err == nil {
				t.Errorf("gitURLToLocalPath(%s): expected an error", tc.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("gitURLToLocalPath(%s) returned an unexpected error: %v", tc.url, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("gitURLToLocalPath(%s): expected %s, got %s", tc.url, tc.expected, got)
		}
	}
}
