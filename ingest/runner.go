// Package ingest orchestrates one extract's import end to end: extract
// registration, paged fetching, column resolution, coercion, persistence,
// and change detection against the previous completed extract.
package ingest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/theplant/appkit/logtracing"
	"gorm.io/gorm"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/columns"
	"github.com/theplant/regsync/events"
	"github.com/theplant/regsync/fetch"
	"github.com/theplant/regsync/registry"
	"github.com/theplant/regsync/store"
)

var (
	// ErrExtractInProgress marks an extract already being imported by
	// another run. Pass Resume to take it over after a crash.
	ErrExtractInProgress = errors.New("extract import already in progress")

	// ErrExtractFailed marks an extract in the terminal failed state.
	// It must be purged before the period can be imported again.
	ErrExtractFailed = errors.New("extract previously failed; purge it to re-import")
)

// Config controls one import run.
type Config struct {
	PageSize    int
	Parallelism int

	// Resume takes over an extract left in the importing state by a
	// crashed run, continuing from the persisted row count.
	Resume bool

	// SkipDetection imports without diffing against the previous
	// extract, used while backfilling history out of order.
	SkipDetection bool

	// Progress, when set, is called after each committed snapshot page
	// with the absolute record offset reached and the source total.
	Progress func(done, total int)
}

// Summary reports what one run did.
type Summary struct {
	ExtractID      int64
	ResumedFrom    int
	Imported       int
	Skipped        int
	OwnersImported int
	EventsInserted int64

	// AlreadyCompleted is set when the period was imported before and
	// the run was a no-op.
	AlreadyCompleted bool
}

type Runner struct {
	registry *registry.Registry
	store    *store.Store
	detector *events.Detector
	cfg      Config
}

func NewRunner(db *gorm.DB, cfg Config) *Runner {
	return &Runner{
		registry: registry.New(db),
		store:    store.New(db),
		detector: events.New(db),
		cfg:      cfg,
	}
}

// Run imports one period's extract from the given sources. ownership
// may be nil for datasets without an ownership file.
//
// A failed run leaves the extract in the importing state. That is
// deliberate: the state acts as a soft lock against concurrent imports
// of the same period, and a later run with Resume continues from the
// persisted row count instead of starting over.
func (r *Runner) Run(ctx context.Context, periodDate time.Time, sourceLabel string, provider, ownership regsync.PagedSource) (summary *Summary, xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "ingest.Run")
	defer func() { logtracing.EndSpan(ctx, xerr) }()
	logtracing.AppendSpanKVs(ctx,
		"period_date", periodDate.Format("2006-01-02"),
		"source", sourceLabel,
	)

	extract, err := r.registry.GetOrCreate(ctx, periodDate, sourceLabel)
	if err != nil {
		return nil, err
	}
	summary = &Summary{ExtractID: extract.ID}

	switch extract.Status {
	case regsync.StatusCompleted:
		summary.AlreadyCompleted = true
		return summary, nil
	case regsync.StatusFailed:
		return nil, errors.Wrapf(ErrExtractFailed, "extract %d", extract.ID)
	case regsync.StatusImporting:
		if !r.cfg.Resume {
			return nil, errors.Wrapf(ErrExtractInProgress, "extract %d", extract.ID)
		}
	case regsync.StatusPending:
		if err := r.registry.Transition(ctx, extract.ID, regsync.StatusImporting, nil); err != nil {
			return nil, err
		}
	}

	if err := r.importProvider(ctx, extract.ID, provider, summary); err != nil {
		return summary, err
	}
	if ownership != nil {
		if err := r.importOwnership(ctx, extract.ID, ownership, summary); err != nil {
			return summary, err
		}
	}

	total, err := r.store.CountSnapshots(ctx, extract.ID)
	if err != nil {
		return summary, err
	}
	if err := r.registry.Transition(ctx, extract.ID, regsync.StatusCompleted, &total); err != nil {
		return summary, err
	}

	if !r.cfg.SkipDetection {
		if err := r.detect(ctx, extract, summary); err != nil {
			return summary, err
		}
	}

	logtracing.AppendSpanKVs(ctx,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"owners_imported", summary.OwnersImported,
		"events_inserted", summary.EventsInserted,
	)
	return summary, nil
}

func (r *Runner) importProvider(ctx context.Context, extractID int64, source regsync.PagedSource, summary *Summary) error {
	// The persisted count is the resume offset: batches commit in
	// offset order, so everything below it is already in place.
	persisted, err := r.store.CountSnapshots(ctx, extractID)
	if err != nil {
		return err
	}
	summary.ResumedFrom = int(persisted)

	fetcher := fetch.New(source, fetch.Config{
		PageSize:    r.cfg.PageSize,
		Parallelism: r.cfg.Parallelism,
		StartOffset: int(persisted),
		Progress:    r.cfg.Progress,
	})

	_, err = fetcher.Run(ctx, func(ctx context.Context, page regsync.Page) error {
		resolved := columns.Resolve(page.Headers(), columns.Provider())

		snapshots := make([]*regsync.Snapshot, 0, len(page.Records))
		for _, record := range page.Records {
			snap, ok := buildSnapshot(extractID, record, resolved)
			if !ok {
				summary.Skipped++
				continue
			}
			snapshots = append(snapshots, snap)
		}
		if err := r.store.UpsertSnapshots(ctx, snapshots); err != nil {
			return err
		}
		summary.Imported += len(snapshots)
		return nil
	})
	return err
}

func (r *Runner) importOwnership(ctx context.Context, extractID int64, source regsync.PagedSource, summary *Summary) error {
	// Ownership rows without a usable key are skipped, so the persisted
	// row count does not line up with source offsets the way snapshot
	// counts do. Resume re-imports ownership from the start; upserts
	// make the second pass idempotent.
	fetcher := fetch.New(source, fetch.Config{
		PageSize:    r.cfg.PageSize,
		Parallelism: r.cfg.Parallelism,
	})

	_, err := fetcher.Run(ctx, func(ctx context.Context, page regsync.Page) error {
		resolved := columns.Resolve(page.Headers(), columns.Ownership())

		owners := make([]*regsync.OwnerRecord, 0, len(page.Records))
		for _, record := range page.Records {
			owner, ok := buildOwner(extractID, record, resolved)
			if !ok {
				summary.Skipped++
				continue
			}
			owners = append(owners, owner)
		}
		if err := r.store.UpsertOwners(ctx, owners); err != nil {
			return err
		}
		summary.OwnersImported += len(owners)
		return nil
	})
	return err
}

// detect diffs the completed extract against the most recent completed
// extract before it and records the resulting events.
func (r *Runner) detect(ctx context.Context, extract *regsync.Extract, summary *Summary) error {
	prev, err := r.registry.FindPreviousCompleted(ctx, extract.PeriodDate)
	if err != nil {
		return err
	}
	if prev == nil {
		// First completed extract; nothing to diff against.
		return nil
	}

	inserted, err := r.detector.Detect(ctx, prev.ID, extract.ID, extract.PeriodDate)
	if err != nil {
		return err
	}
	summary.EventsInserted = inserted
	return nil
}

// DetectPair re-runs detection for an explicit extract pair, used by
// the standalone detect command after out-of-order backfills. Events
// are stamped with eventDate; a zero eventDate falls back to the
// current extract's period date.
func (r *Runner) DetectPair(ctx context.Context, prevExtractID, curExtractID int64, eventDate time.Time) (int64, error) {
	cur, err := r.registry.Get(ctx, curExtractID)
	if err != nil {
		return 0, err
	}
	if cur.Status != regsync.StatusCompleted {
		return 0, errors.Errorf("extract %d is %s, not completed", curExtractID, cur.Status)
	}
	prev, err := r.registry.Get(ctx, prevExtractID)
	if err != nil {
		return 0, err
	}
	if prev.Status != regsync.StatusCompleted {
		return 0, errors.Errorf("extract %d is %s, not completed", prevExtractID, prev.Status)
	}
	if eventDate.IsZero() {
		eventDate = cur.PeriodDate
	}
	return r.detector.Detect(ctx, prev.ID, cur.ID, eventDate)
}
