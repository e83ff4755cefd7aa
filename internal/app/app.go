// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands and the server.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/clock/system"
	"github.com/JakeFAU/cbcr-finder/internal/config"
	collyfetcher "github.com/JakeFAU/cbcr-finder/internal/fetcher/colly"
	"github.com/JakeFAU/cbcr-finder/internal/finder"
	"github.com/JakeFAU/cbcr-finder/internal/id/uuid"
	"github.com/JakeFAU/cbcr-finder/internal/pdf"
	"github.com/JakeFAU/cbcr-finder/internal/policy/ratelimit"
	"github.com/JakeFAU/cbcr-finder/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/cbcr-finder/internal/publisher/pubsub"
	"github.com/JakeFAU/cbcr-finder/internal/runs"
	"github.com/JakeFAU/cbcr-finder/internal/search/google"
	"github.com/JakeFAU/cbcr-finder/internal/storage"
	"github.com/JakeFAU/cbcr-finder/internal/storage/dropbox"
	"github.com/JakeFAU/cbcr-finder/internal/storage/gcs"
	"github.com/JakeFAU/cbcr-finder/internal/storage/local"
	"github.com/JakeFAU/cbcr-finder/internal/storage/memory"
	"github.com/JakeFAU/cbcr-finder/internal/storage/postgres"
)

type closer interface {
	Close() error
}

// ledgerMirror is a finder.Mirror that holds a connection pool.
type ledgerMirror interface {
	finder.Mirror
	Close()
}

// documentPublisher is a publisher.Publisher that holds a client.
type documentPublisher interface {
	publisher.Publisher
	Close() error
}

var openMirror = func(ctx context.Context, cfg config.DBConfig) (ledgerMirror, error) {
	mirror, err := postgres.NewLedgerStore(ctx, postgres.LedgerStoreConfig{
		DSN:      cfg.DSN,
		Table:    cfg.Table,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init ledger mirror: %w", err)
	}
	if err := mirror.EnsureSchema(ctx); err != nil {
		mirror.Close()
		return nil, fmt.Errorf("init ledger mirror schema: %w", err)
	}
	return mirror, nil
}

var openPublisher = func(ctx context.Context, cfg config.PubSubConfig) (documentPublisher, error) {
	pub, err := pubsubpublisher.Open(ctx, cfg.ProjectID, cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}
	return pub, nil
}

// App holds the shared services. The blob store is opened eagerly; the
// search, fetch and notification stack is built on the first call to Finder
// so commands that only touch the store need no search credentials.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  storage.Store

	mu        sync.Mutex
	finder    *finder.Finder
	mirror    ledgerMirror
	publisher documentPublisher
}

// New opens the configured blob store.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return &App{cfg: cfg, logger: logger, store: store}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Provider {
	case "memory":
		logger.Info("using in-memory storage; payloads are discarded on exit")
		return memory.NewBlobStore(), nil
	case "local":
		logger.Info("using local storage", zap.String("dir", cfg.LocalDir))
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		return store, nil
	case "gcs":
		logger.Info("using GCS storage", zap.String("bucket", cfg.GCSBucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket}, logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("open gcs store: %w", err)
		}
		return store, nil
	case "dropbox":
		logger.Info("using Dropbox storage")
		store, err := dropbox.New(dropbox.Config{Token: cfg.DropboxToken}, logger.Named("dropbox"))
		if err != nil {
			return nil, fmt.Errorf("open dropbox store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the blob store holding payloads, the ledger and the blacklist.
func (a *App) Store() storage.Store {
	return a.store
}

// FinderConfig maps the configuration onto finder.Config.
func (a *App) FinderConfig() finder.Config {
	return finder.Config{
		Root:            a.cfg.Storage.Root,
		LedgerName:      a.cfg.Finder.LedgerName,
		BlacklistName:   a.cfg.Finder.BlacklistName,
		RelabelByDomain: a.cfg.Finder.RelabelByDomain,
		RetryFailed:     a.cfg.Finder.RetryFailed,
		RequirePDF:      a.cfg.Fetch.RequirePDF,
	}
}

// LedgerPath returns the ledger location for scope.
func (a *App) LedgerPath(scope string) string {
	return a.FinderConfig().LedgerPath(scope)
}

// BlacklistPath returns the blacklist location.
func (a *App) BlacklistPath() string {
	return a.FinderConfig().BlacklistPath()
}

// Finder builds the finder on first use. It fails with
// config.ErrMissingCredentials when the search key or engine ID is absent.
func (a *App) Finder(ctx context.Context) (*finder.Finder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finder != nil {
		return a.finder, nil
	}
	if err := a.cfg.ValidateSearch(); err != nil {
		return nil, fmt.Errorf("%w: %w", finder.ErrConfiguration, err)
	}

	searcher, err := google.New(ctx, google.Config{
		APIKey:   a.cfg.Search.APIKey,
		EngineID: a.cfg.Search.EngineID,
		Endpoint: a.cfg.Search.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init search client: %w", err)
	}
	fetch := collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.Fetch.UserAgent,
		MaxBodySize: a.cfg.Fetch.MaxBodyBytes,
	})
	searchLimit := ratelimit.New(ratelimit.Config{RPS: a.cfg.Search.RPS})
	hostLimit := ratelimit.New(ratelimit.Config{RPS: a.cfg.Fetch.HostRPS, Burst: a.cfg.Fetch.HostBurst})
	deps := finder.Dependencies{
		Store:     a.store,
		Searcher:  ratelimit.NewSearcher(searcher, searchLimit),
		Fetcher:   ratelimit.NewFetcher(fetch, hostLimit),
		Validator: pdf.Validate,
		Clock:     system.New(),
		Logger:    a.logger.Named("finder"),
	}

	// A failed build closes whatever it opened.
	var (
		mirror ledgerMirror
		pub    documentPublisher
	)
	release := func() {
		if pub != nil {
			if err := pub.Close(); err != nil {
				a.logger.Warn("error closing publisher", zap.Error(err))
			}
		}
		if mirror != nil {
			mirror.Close()
		}
	}

	if a.cfg.Database.DSN != "" {
		if mirror, err = openMirror(ctx, a.cfg.Database); err != nil {
			return nil, err
		}
		deps.Mirror = mirror
		a.logger.Info("mirroring ledger rows to postgres", zap.String("table", a.cfg.Database.Table))
	}

	if a.cfg.PubSub.Topic != "" {
		if pub, err = openPublisher(ctx, a.cfg.PubSub); err != nil {
			release()
			return nil, err
		}
		deps.Publisher = pub
		a.logger.Info("publishing stored documents", zap.String("topic", a.cfg.PubSub.Topic))
	}

	f, err := finder.New(deps, a.FinderConfig())
	if err != nil {
		release()
		return nil, err
	}
	a.finder = f
	a.mirror = mirror
	a.publisher = pub
	return f, nil
}

// Manager builds a run manager over the finder. Runs observe ctx.
func (a *App) Manager(ctx context.Context) (*runs.Manager, error) {
	f, err := a.Finder(ctx)
	if err != nil {
		return nil, err
	}
	return runs.NewManager(ctx, f, uuid.New(), system.New(), a.logger.Named("runs")), nil
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("error closing publisher", zap.Error(err))
		}
	}
	if a.mirror != nil {
		a.mirror.Close()
	}
	if c, ok := a.store.(closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing storage", zap.Error(err))
		}
	}
}
