package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/ogorman/cardbox/internal/config"
	"github.com/ogorman/cardbox/internal/domain"
	"github.com/ogorman/cardbox/internal/fsrs"
	"github.com/ogorman/cardbox/internal/importer"
	"github.com/ogorman/cardbox/internal/session"
	"github.com/ogorman/cardbox/internal/storage"
	"github.com/ogorman/cardbox/internal/sync"
	"github.com/ogorman/cardbox/internal/syncqueue"
)

func main() {
	flags := pflag.NewFlagSet("cardbox", pflag.ExitOnError)
	// Flag defaults mirror config.Default(); posflag falls back to them
	// when neither the file nor the environment sets the key.
	defaults := config.Default()
	configPath := flags.String("config", "", "Path to the YAML config file")
	flags.String("database.path", defaults.Database.Path, "Path to the sqlite database file")
	flags.String("api.base_url", defaults.API.BaseURL, "Base URL of the remote store")
	flags.Duration("sync.interval", defaults.Sync.Interval, "Background sync interval")
	once := flags.Bool("once", false, "Run a single sync pass and exit")
	runImport := flags.Bool("import", false, "Import cards from the registered sources")
	addSource := flags.String("add-source", "", "Register a new card source (path or git URL)")
	studyMode := flags.String("study", "", "Start an interactive study session (review, new or all)")
	maxCards := flags.Int("max-cards", 0, "Limit how many cards a study session selects")
	flags.Parse(os.Args[1:])

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		TimeFormat: time.Kitchen,
	})))

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	params := fsrs.DefaultParams()
	params.DesiredRetention = cfg.Scheduler.DesiredRetention
	params.MaximumInterval = cfg.Scheduler.MaximumInterval
	params.DisableFuzz = cfg.Scheduler.DisableFuzz
	engine, err := fsrs.New(params)
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, db, engine)
	if err != nil {
		slog.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	switch {
	case *addSource != "":
		if _, err := app.importer.AddSource(ctx, *addSource); err != nil {
			slog.Error("failed to add source", "error", err)
			os.Exit(1)
		}
	case *runImport:
		if err := app.importer.Run(ctx); err != nil {
			slog.Error("import failed", "error", err)
			os.Exit(1)
		}
		app.runner.RunOnce(ctx)
	case *studyMode != "":
		if err := runStudy(ctx, app.session, session.Mode(*studyMode), *maxCards); err != nil {
			slog.Error("study session failed", "error", err)
			os.Exit(1)
		}
		app.runner.RunOnce(ctx)
	case *once:
		app.runner.RunOnce(ctx)
	default:
		app.runner.Run(ctx)
	}
}

// app holds the wired-together long-lived pieces.
type app struct {
	runner   *sync.Runner
	importer *importer.Importer
	session  *session.Session
}

// newApp builds the sync managers for the deck collection and every
// deck's card collection, plus the importer and study session for the
// default deck.
func newApp(ctx context.Context, cfg config.Config, db *storage.DB, engine *fsrs.Engine) (*app, error) {
	fetch := authedFetch(&http.Client{Timeout: cfg.API.Timeout}, cfg.API.Token)

	deckMgr, err := sync.NewManager(
		"decks",
		cfg.API.BaseURL+"/decks",
		storage.NewCollection[domain.Deck](db, storage.KeyDecks),
		syncqueue.New(db, "decks", func(d domain.Deck) string { return d.ID }, cfg.Sync.MaxRetries),
		deckDescriptor(),
		fetch,
	)
	if err != nil {
		return nil, err
	}

	runner := sync.NewRunner(cfg.Sync.Interval, deckMgr)

	deck, err := ensureDefaultDeck(ctx, db, deckMgr)
	if err != nil {
		return nil, err
	}

	decks, err := deckMgr.Items(ctx)
	if err != nil {
		return nil, err
	}

	var defaultCards *storage.Collection[domain.Card]
	var defaultSink *sync.Manager[domain.Card]
	for _, d := range decks {
		cards := storage.NewCollection[domain.Card](db, storage.CardsKey(d.ID))
		cardMgr, err := sync.NewManager(
			"cards/"+d.ID,
			cfg.API.BaseURL+"/decks/"+d.ID+"/cards",
			cards,
			syncqueue.New(db, "cards/"+d.ID, func(c domain.Card) string { return c.ID }, cfg.Sync.MaxRetries),
			cardDescriptor(),
			fetch,
		)
		if err != nil {
			return nil, err
		}
		runner.Register(cardMgr)
		if d.ID == deck.ID {
			defaultCards = cards
			defaultSink = cardMgr
		}
	}

	return &app{
		runner:   runner,
		importer: importer.New(db, defaultCards, defaultSink, engine, deck.ID, cfg.Import.ReposDir),
		session: session.New(engine, db, defaultCards, defaultSink, deck.ID, session.Options{
			DailyLimit: cfg.Study.DailyNewLimit,
			Debounce:   cfg.Study.Debounce,
		}),
	}, nil
}

// ensureDefaultDeck creates a local default deck on first run so imports
// and sessions have somewhere to land.
func ensureDefaultDeck(ctx context.Context, db *storage.DB, deckMgr *sync.Manager[domain.Deck]) (domain.Deck, error) {
	decks, err := deckMgr.Items(ctx)
	if err != nil {
		return domain.Deck{}, err
	}
	if len(decks) > 0 {
		return decks[0], nil
	}

	now := time.Now()
	deck := domain.Deck{
		ID:        uuid.NewString(),
		Name:      "Default",
		CreatedAt: now,
		UpdatedAt: now,
	}
	col := storage.NewCollection[domain.Deck](db, storage.KeyDecks)
	if err := col.Replace(ctx, []domain.Deck{deck}); err != nil {
		return domain.Deck{}, err
	}
	slog.Info("created default deck", "id", deck.ID)
	deckMgr.EnqueueCreate(ctx, deck)

	// The create may have adopted a server id already.
	decks, err = deckMgr.Items(ctx)
	if err != nil || len(decks) == 0 {
		return deck, err
	}
	return decks[0], nil
}

// deckDescriptor tells the sync manager how to handle decks.
func deckDescriptor() sync.Descriptor[domain.Deck] {
	return sync.Descriptor[domain.Deck]{
		ID:     func(d domain.Deck) string { return d.ID },
		Synced: func(d domain.Deck) bool { return d.Synced },
		AdoptID: func(d domain.Deck, serverID string) domain.Deck {
			d.ID = serverID
			d.Synced = true
			return d
		},
		MarkSynced: func(d domain.Deck) domain.Deck {
			d.Synced = true
			return d
		},
		Merge: func(local, remote domain.Deck) domain.Deck {
			merged := remote
			if merged.Description == "" {
				merged.Description = local.Description
			}
			if merged.CreatedAt.IsZero() {
				merged.CreatedAt = local.CreatedAt
			}
			return merged
		},
		MatchKey: func(d domain.Deck) string { return d.Name },
	}
}

// cardDescriptor tells the sync manager how to handle cards. The server is
// authoritative for content; scheduling state is local-only and survives
// the merge when the server does not carry it.
func cardDescriptor() sync.Descriptor[domain.Card] {
	return sync.Descriptor[domain.Card]{
		ID:     func(c domain.Card) string { return c.ID },
		Synced: func(c domain.Card) bool { return c.Synced },
		AdoptID: func(c domain.Card, serverID string) domain.Card {
			c.ID = serverID
			c.Synced = true
			return c
		},
		MarkSynced: func(c domain.Card) domain.Card {
			c.Synced = true
			return c
		},
		Merge: func(local, remote domain.Card) domain.Card {
			merged := remote
			if merged.Schedule.Due.IsZero() {
				merged.Schedule = local.Schedule
			}
			if merged.ContentHash == "" {
				merged.ContentHash = local.ContentHash
			}
			if merged.SourceID == "" {
				merged.SourceID = local.SourceID
			}
			if merged.CreatedAt.IsZero() {
				merged.CreatedAt = local.CreatedAt
			}
			return merged
		},
		MatchKey: func(c domain.Card) string { return c.ContentHash },
	}
}

// authedFetch wraps an HTTP client into the fetch capability the sync
// layer consumes. Token refresh, when needed, belongs inside this
// function's replacement; the sync layer never sees it.
func authedFetch(client *http.Client, token string) sync.FetchFunc {
	return func(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return client.Do(req)
	}
}
