// Package importer reconciles a deck's cards against its registered
// markdown sources: local directories or git repositories.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogorman/cardbox/internal/domain"
	"github.com/ogorman/cardbox/internal/fsrs"
	"github.com/ogorman/cardbox/internal/gitsource"
	"github.com/ogorman/cardbox/internal/parser"
	"github.com/ogorman/cardbox/internal/storage"
)

// Source is one origin of cards, a local path or a git URL.
type Source struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"` // "local" or "git"
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

// CardSink receives the remote-persistence side effects of an import.
type CardSink interface {
	EnqueueCreate(ctx context.Context, card domain.Card) bool
	EnqueueDelete(ctx context.Context, itemID string) bool
}

// Importer pulls cards from registered sources into one deck.
type Importer struct {
	db       *storage.DB
	sources  *storage.Collection[Source]
	cards    *storage.Collection[domain.Card]
	sink     CardSink
	engine   *fsrs.Engine
	deckID   string
	reposDir string
	now      func() time.Time
}

// New creates an importer for the given deck. reposDir is where git
// sources are checked out.
func New(db *storage.DB, cards *storage.Collection[domain.Card], sink CardSink, engine *fsrs.Engine, deckID, reposDir string) *Importer {
	return &Importer{
		db:       db,
		sources:  storage.NewCollection[Source](db, storage.KeySources),
		cards:    cards,
		sink:     sink,
		engine:   engine,
		deckID:   deckID,
		reposDir: reposDir,
		now:      time.Now,
	}
}

// AddSource registers a new source path or URL, detecting its type.
func (im *Importer) AddSource(ctx context.Context, path string) (Source, error) {
	sourceType := "local"
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") {
		sourceType = "git"
	}

	src := Source{ID: uuid.NewString(), Path: path, Type: sourceType}
	err := im.sources.Update(ctx, func(sources []Source) []Source {
		return append(sources, src)
	})
	if err != nil {
		return Source{}, err
	}
	slog.Info("source added", "id", src.ID, "type", src.Type, "path", src.Path)
	return src, nil
}

// Sources lists the registered sources.
func (im *Importer) Sources(ctx context.Context) ([]Source, error) {
	return im.sources.All(ctx)
}

// Run iterates over all sources and reconciles each into the deck.
func (im *Importer) Run(ctx context.Context) error {
	sources, err := im.sources.All(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil
	}

	for _, source := range sources {
		slog.Info("importing source", "id", source.ID, "type", source.Type, "path", source.Path)

		scanPath := source.Path
		if source.Type == "git" {
			localRepoPath, err := gitURLToLocalPath(im.reposDir, source.Path)
			if err != nil {
				slog.Error("could not determine local path for git repo", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath); err != nil {
				slog.Error("failed to sync git repo", "url", source.Path, "error", err)
				continue
			}
			scanPath = localRepoPath
		}

		if err := im.reconcileSource(ctx, source, scanPath); err != nil {
			slog.Error("failed to reconcile source", "id", source.ID, "error", err)
		}
	}
	return nil
}

// reconcileSource scans a checked-out source directory, creating cards for
// unseen content hashes and removing cards whose content disappeared.
func (im *Importer) reconcileSource(ctx context.Context, source Source, scanPath string) error {
	var parsed []domain.Card
	var parseErrors []error

	walkErr := filepath.WalkDir(scanPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		parsed = append(parsed, fileCards...)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk %s: %w", scanPath, walkErr)
	}

	existing, err := im.cards.All(ctx)
	if err != nil {
		return err
	}
	byHash := make(map[string]domain.Card, len(existing))
	for _, c := range existing {
		if c.ContentHash != "" {
			byHash[c.ContentHash] = c
		}
	}

	now := im.now()
	foundHashes := make(map[string]bool, len(parsed))
	var created, orphaned int

	for _, pc := range parsed {
		hash := ContentHash(pc)
		foundHashes[hash] = true
		if _, ok := byHash[hash]; ok {
			continue
		}

		card := domain.Card{
			ID:          uuid.NewString(),
			DeckID:      im.deckID,
			Question:    pc.Question,
			Answer:      pc.Answer,
			Context:     pc.Context,
			ContentHash: hash,
			SourceID:    source.ID,
			Schedule:    im.engine.NewSchedule(now),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := im.cards.Update(ctx, func(cards []domain.Card) []domain.Card {
			return append(cards, card)
		})
		if err != nil {
			return err
		}
		byHash[hash] = card
		created++
		im.sink.EnqueueCreate(ctx, card)
	}

	// Cards from this source whose content vanished are orphans.
	for _, c := range existing {
		if c.SourceID != source.ID || foundHashes[c.ContentHash] {
			continue
		}
		orphaned++
		err := im.cards.Update(ctx, func(cards []domain.Card) []domain.Card {
			kept := cards[:0]
			for _, k := range cards {
				if k.ID != c.ID {
					kept = append(kept, k)
				}
			}
			return kept
		})
		if err != nil {
			return err
		}
		if c.Synced {
			im.sink.EnqueueDelete(ctx, c.ID)
		}
	}

	if err := im.stampScanned(ctx, source.ID, now); err != nil {
		slog.Warn("failed to update last scanned", "source", source.ID, "error", err)
	}

	slog.Info("source reconciled",
		"path", source.Path,
		"parsed", len(parsed),
		"created", created,
		"orphaned", orphaned,
		"errors", len(parseErrors),
	)
	return nil
}

func (im *Importer) stampScanned(ctx context.Context, sourceID string, t time.Time) error {
	return im.sources.Update(ctx, func(sources []Source) []Source {
		for i := range sources {
			if sources[i].ID == sourceID {
				sources[i].LastScanned = &t
			}
		}
		return sources
	})
}

// gitURLToLocalPath maps a git URL onto a stable checkout path under
// baseDir, handling both https and scp-like ssh forms.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
