// Package registry tracks one row per reporting period and enforces
// the forward-only import lifecycle.
package registry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/theplant/appkit/logtracing"
	"gorm.io/gorm"

	"github.com/theplant/regsync"
)

// ErrInvalidTransition is returned when a status change would move the
// lifecycle backward or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid extract status transition")

// Registry persists extract rows. Inject the *gorm.DB handle so the
// registry is testable against an in-memory store.
type Registry struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// GetOrCreate returns the extract for periodDate, inserting a pending
// row if none exists. Idempotent across re-runs of the same period.
func (r *Registry) GetOrCreate(ctx context.Context, periodDate time.Time, sourceLabel string) (extract *regsync.Extract, xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "registry.GetOrCreate")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	extract = &regsync.Extract{}
	err := r.db.WithContext(ctx).
		Where(&regsync.Extract{PeriodDate: periodDate}).
		Attrs(regsync.Extract{
			SourceLabel: sourceLabel,
			Status:      regsync.StatusPending,
			StartedAt:   time.Now(),
		}).
		FirstOrCreate(extract).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get or create extract for %s", periodDate.Format("2006-01-02"))
	}

	logtracing.AppendSpanKVs(ctx,
		"extract_id", extract.ID,
		"period_date", periodDate.Format("2006-01-02"),
		"status", string(extract.Status),
	)
	return extract, nil
}

// Get loads an extract by id.
func (r *Registry) Get(ctx context.Context, id int64) (*regsync.Extract, error) {
	var extract regsync.Extract
	if err := r.db.WithContext(ctx).First(&extract, id).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load extract %d", id)
	}
	return &extract, nil
}

// Transition moves an extract to newStatus, enforcing the forward-only
// invariant. recordCount is stamped when non-nil; reaching completed or
// failed stamps the completion timestamp.
func (r *Registry) Transition(ctx context.Context, extractID int64, newStatus regsync.ExtractStatus, recordCount *int64) (xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "registry.Transition")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var extract regsync.Extract
		if err := tx.First(&extract, extractID).Error; err != nil {
			return errors.Wrapf(err, "failed to load extract %d", extractID)
		}

		if !extract.Status.CanTransitionTo(newStatus) {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s for extract %d", extract.Status, newStatus, extractID)
		}

		updates := map[string]any{"status": newStatus}
		if recordCount != nil {
			updates["record_count"] = *recordCount
		}
		if newStatus == regsync.StatusCompleted || newStatus == regsync.StatusFailed {
			updates["completed_at"] = time.Now()
		}

		if err := tx.Model(&regsync.Extract{}).Where("id = ?", extractID).Updates(updates).Error; err != nil {
			return errors.Wrapf(err, "failed to transition extract %d to %s", extractID, newStatus)
		}

		logtracing.AppendSpanKVs(ctx,
			"extract_id", extractID,
			"from_status", string(extract.Status),
			"to_status", string(newStatus),
		)
		return nil
	})
}

// FindPreviousCompleted returns the most recent completed extract with
// period_date strictly before the given date, or nil when there is
// none. Ordering is chronological by period_date, not insertion order,
// because historical extracts are backfilled out of order.
func (r *Registry) FindPreviousCompleted(ctx context.Context, beforePeriodDate time.Time) (*regsync.Extract, error) {
	var extract regsync.Extract
	err := r.db.WithContext(ctx).
		Where("status = ? AND period_date < ?", regsync.StatusCompleted, beforePeriodDate).
		Order("period_date DESC").
		First(&extract).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find previous completed extract before %s", beforePeriodDate.Format("2006-01-02"))
	}
	return &extract, nil
}

// List returns all extracts in chronological order, for operator
// inspection and validation reports.
func (r *Registry) List(ctx context.Context) ([]*regsync.Extract, error) {
	var extracts []*regsync.Extract
	if err := r.db.WithContext(ctx).Order("period_date ASC").Find(&extracts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list extracts")
	}
	return extracts, nil
}
