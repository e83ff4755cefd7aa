// Package finder runs the search, filter, download and record loop. A run
// walks every target and period, pages through search results, and for each
// new candidate downloads the payload, stores it, and appends a ledger row
// that is written back immediately.
package finder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/blacklist"
	"github.com/JakeFAU/cbcr-finder/internal/clock/system"
	"github.com/JakeFAU/cbcr-finder/internal/fetcher"
	"github.com/JakeFAU/cbcr-finder/internal/hash/sha256"
	"github.com/JakeFAU/cbcr-finder/internal/ledger"
	"github.com/JakeFAU/cbcr-finder/internal/metrics"
	"github.com/JakeFAU/cbcr-finder/internal/publisher"
	"github.com/JakeFAU/cbcr-finder/internal/search"
	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

// TopicDocumentStored is the event name attached to stored-document notifications.
const TopicDocumentStored = "document.stored"

const defaultFetchTimeout = 60 * time.Second

// Config controls where a run reads and writes and how candidates are treated.
type Config struct {
	// Root is the top-level folder in the store.
	Root string
	// LedgerName is the ledger file name inside Root[/Scope].
	LedgerName string
	// BlacklistName is the blacklist file name inside Root.
	BlacklistName string
	// RelabelByDomain files payloads under the URL's domain label instead of
	// the searched target.
	RelabelByDomain bool
	// RetryFailed lets rows with a non-OK status be attempted again.
	RetryFailed bool
	// RequirePDF rejects payloads that Validator refuses.
	RequirePDF bool
}

// Dependencies are the collaborators of a Finder. Store, Searcher and
// Fetcher are required.
type Dependencies struct {
	Store     storage.Store
	Searcher  search.Searcher
	Fetcher   fetcher.Fetcher
	Publisher publisher.Publisher
	Mirror    Mirror
	Validator Validator
	Clock     Clock
	Logger    *zap.Logger
}

// Summary reports what a run did.
type Summary struct {
	Targets      int  `json:"targets"`
	SkippedRows  int  `json:"skipped_rows"`
	Queries      int  `json:"queries"`
	Candidates   int  `json:"candidates"`
	Blacklisted  int  `json:"blacklisted"`
	NameMismatch int  `json:"name_mismatch"`
	Duplicates   int  `json:"duplicates"`
	Stored       int  `json:"stored"`
	Failed       int  `json:"failed"`
	Bytes        int  `json:"bytes"`
	SaveErrors   int  `json:"save_errors"`
	Cancelled    bool `json:"cancelled"`
}

// Finder executes runs. It holds no per-run state and may run several
// scopes concurrently.
type Finder struct {
	store     storage.Store
	searcher  search.Searcher
	fetcher   fetcher.Fetcher
	publisher publisher.Publisher
	mirror    Mirror
	validator Validator
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Finder.
func New(deps Dependencies, cfg Config) (*Finder, error) {
	if deps.Store == nil || deps.Searcher == nil || deps.Fetcher == nil {
		return nil, fmt.Errorf("%w: store, searcher and fetcher are required", ErrConfiguration)
	}
	if cfg.RequirePDF && deps.Validator == nil {
		return nil, fmt.Errorf("%w: PDF validation requested without a validator", ErrConfiguration)
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "metadata.csv"
	}
	if cfg.BlacklistName == "" {
		cfg.BlacklistName = "blacklist.csv"
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Finder{
		store:     deps.Store,
		searcher:  deps.Searcher,
		fetcher:   deps.Fetcher,
		publisher: deps.Publisher,
		mirror:    deps.Mirror,
		validator: deps.Validator,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    deps.Logger,
	}, nil
}

// LedgerPath returns the ledger location for scope.
func (c Config) LedgerPath(scope string) string {
	return storage.Join(c.Root, scope, c.LedgerName)
}

// BlacklistPath returns the blacklist location.
func (c Config) BlacklistPath() string {
	return storage.Join(c.Root, c.BlacklistName)
}

// LedgerPath returns the ledger location for scope.
func (f *Finder) LedgerPath(scope string) string {
	return f.cfg.LedgerPath(scope)
}

// BlacklistPath returns the blacklist location.
func (f *Finder) BlacklistPath() string {
	return f.cfg.BlacklistPath()
}

// run carries the state of one execution of Run.
type run struct {
	in        Input
	token     *Token
	blacklist *blacklist.Blacklist
	ledger    *ledger.Ledger
	path      string
	summary   Summary
	logger    *zap.Logger
}

// errStopped ends the loop early without failing the run.
var errStopped = errors.New("run stopped")

// Run executes in until all targets are processed, token is cancelled, or
// ctx is done. Only invalid input and unreadable ledger or blacklist files
// return an error; per-candidate failures are recorded in the ledger.
func (f *Finder) Run(ctx context.Context, in Input, token *Token) (Summary, error) {
	if err := in.Validate(); err != nil {
		return Summary{}, err
	}
	if token == nil {
		token = NewToken()
	}
	if in.FetchTimeout == 0 {
		in.FetchTimeout = defaultFetchTimeout
	}
	logger := f.logger.With(zap.String("run_id", in.RunID), zap.String("scope", in.Scope))

	bl, err := blacklist.Load(ctx, f.store, f.BlacklistPath())
	if err != nil {
		return Summary{}, err
	}
	ledgerPath := f.LedgerPath(in.Scope)
	led, err := ledger.Load(ctx, f.store, ledgerPath)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("run started",
		zap.Int("targets", len(in.targets())),
		zap.Strings("periods", in.Periods),
		zap.Int("ledger_rows", led.Len()),
		zap.Int("blacklist_entries", bl.Len()),
	)

	r := &run{in: in, token: token, blacklist: bl, ledger: led, path: ledgerPath, logger: logger}
	// Searches stop as soon as the token fires; downloads use ctx so an
	// in-flight item still completes.
	searchCtx, stopSearch := token.context(ctx)
	defer stopSearch()
	pager := search.NewPager(f.searcher, in.SearchTimeout, logger)

	err = f.walk(ctx, searchCtx, pager, r)
	if errors.Is(err, errStopped) {
		r.summary.Cancelled = true
		err = nil
	}
	logger.Info("run finished",
		zap.Bool("cancelled", r.summary.Cancelled),
		zap.Int("stored", r.summary.Stored),
		zap.Int("failed", r.summary.Failed),
		zap.Int("duplicates", r.summary.Duplicates),
	)
	return r.summary, err
}

func (f *Finder) walk(ctx, searchCtx context.Context, pager *search.Pager, r *run) error {
	for i, target := range r.in.targets() {
		target = strings.TrimSpace(target)
		if target == "" {
			r.logger.Warn("skipping row without a target", zap.Int("row", i))
			r.summary.SkippedRows++
			continue
		}
		r.summary.Targets++
		for _, period := range r.in.Periods {
			if stopped(ctx, r.token) {
				return errStopped
			}
			query := BuildQuery(target, r.in.Keywords, period)
			r.summary.Queries++
			r.logger.Info("searching", zap.String("query", query))
			for c := range pager.Candidates(searchCtx, query, r.in.DateRestrict) {
				if stopped(ctx, r.token) {
					return errStopped
				}
				if err := f.handle(ctx, r, target, period, query, c); err != nil {
					return err
				}
			}
		}
	}
	if stopped(ctx, r.token) {
		return errStopped
	}
	return nil
}

func stopped(ctx context.Context, token *Token) bool {
	return token.Cancelled() || ctx.Err() != nil
}

func (f *Finder) handle(ctx context.Context, r *run, target, period, query string, c search.Candidate) error {
	r.summary.Candidates++
	link := c.URL
	log := r.logger.With(zap.String("url", link), zap.String("target", target), zap.String("period", period))

	if entry, ok := r.blacklist.Match(link); ok {
		log.Debug("skipping blacklisted url", zap.String("entry", entry))
		r.summary.Blacklisted++
		metrics.ObserveCandidate(metrics.OutcomeBlacklisted)
		return nil
	}
	if r.in.RestrictByName && !strings.Contains(strings.ToLower(link), strings.ToLower(target)) {
		log.Debug("skipping url without the target name")
		r.summary.NameMismatch++
		metrics.ObserveCandidate(metrics.OutcomeNameMismatch)
		return nil
	}
	if r.ledger.Contains(link, f.cfg.RetryFailed) {
		log.Debug("skipping url already in ledger")
		r.summary.Duplicates++
		metrics.ObserveCandidate(metrics.OutcomeDuplicate)
		return nil
	}

	effective := target
	if f.cfg.RelabelByDomain {
		effective = EffectiveTarget(link, target)
	}

	row := ledger.Row{
		Target: effective,
		Period: period,
		URL:    link,
		Scope:  r.in.Scope,
		Query:  query,
	}

	doc, err := f.fetcher.Fetch(ctx, link, r.in.FetchTimeout)
	if err != nil && ctx.Err() != nil {
		// Not ledgered so the next run retries it.
		log.Warn("download aborted by shutdown", zap.Error(err))
		return errStopped
	}
	stored := ""
	switch {
	case err != nil:
		log.Warn("download failed", zap.Error(err))
		row.Filename = fetcher.ResolveFilename(http.Header{}, link)
		row.Status = err.Error()
	default:
		row.Filename = doc.Filename
		stored, row.Status = f.storePayload(ctx, r, effective, doc, log)
	}

	if row.OK() {
		r.summary.Stored++
		r.summary.Bytes += len(doc.Body)
		metrics.ObserveCandidate(metrics.OutcomeFetched)
		metrics.ObserveStored(link, len(doc.Body))
	} else {
		r.summary.Failed++
		metrics.ObserveCandidate(metrics.OutcomeFailed)
	}

	r.ledger.Append(row)
	saveErr := ledger.Save(ctx, f.store, r.path, r.ledger)
	metrics.ObserveLedgerSave(saveErr)
	if saveErr != nil {
		r.summary.SaveErrors++
		log.Error("failed to save ledger", zap.String("path", r.path), zap.Error(saveErr))
	}
	f.mirrorRow(ctx, r, row, log)
	if stored != "" {
		f.notify(ctx, r, row, stored, doc.Body, log)
	}
	return nil
}

// storePayload validates and uploads a payload, returning the object path (empty
// on failure) and the ledger status.
func (f *Finder) storePayload(ctx context.Context, r *run, effective string, doc fetcher.Document, log *zap.Logger) (string, string) {
	if f.cfg.RequirePDF {
		if err := f.validator(doc.Body); err != nil {
			log.Warn("payload rejected", zap.Error(err))
			return "", err.Error()
		}
	}
	objectPath := storage.Join(f.cfg.Root, r.in.Scope, pathSegment(effective), doc.Filename)
	if err := f.store.Put(ctx, objectPath, doc.Body); err != nil {
		log.Error("failed to store payload", zap.String("path", objectPath), zap.Error(err))
		return "", err.Error()
	}
	log.Info("stored payload", zap.String("path", objectPath), zap.Int("bytes", len(doc.Body)))
	return objectPath, ledger.StatusOK
}

func (f *Finder) mirrorRow(ctx context.Context, r *run, row ledger.Row, log *zap.Logger) {
	if f.mirror == nil {
		return
	}
	if err := f.mirror.InsertRow(ctx, r.in.RunID, row, f.clock.Now()); err != nil {
		log.Warn("failed to mirror ledger row", zap.Error(err))
	}
}

func (f *Finder) notify(ctx context.Context, r *run, row ledger.Row, objectPath string, body []byte, log *zap.Logger) {
	if f.publisher == nil {
		return
	}
	msg := publisher.DocumentStored{
		RunID:    r.in.RunID,
		Target:   row.Target,
		Period:   row.Period,
		URL:      row.URL,
		Path:     objectPath,
		Filename: row.Filename,
		Bytes:    len(body),
		SHA256:   sha256.Hex(body),
	}
	if _, err := f.publisher.Publish(ctx, TopicDocumentStored, msg); err != nil {
		log.Warn("failed to publish stored document", zap.Error(err))
	}
}
