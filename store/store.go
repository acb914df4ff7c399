// Package store persists snapshots and ownership rows with upsert
// semantics keyed by (extract_id, ccn).
//
// Each batch insert runs in its own transaction so a mid-run crash
// loses at most the one uncommitted batch; everything committed before
// it stays valid. Combined with offset-ordered inserts this makes the
// persisted row count a gap-free resume checkpoint.
package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/theplant/appkit/logtracing"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/theplant/regsync"
)

const insertBatchSize = 500

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertSnapshots writes one page of snapshots in a single transaction.
// Conflicts on (extract_id, ccn) update the observed columns, so
// re-importing a page is a no-op apart from refreshed values.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []*regsync.Snapshot) (xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "store.UpsertSnapshots")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	if len(snapshots) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "extract_id"}, {Name: "ccn"}},
			UpdateAll: true,
		}).CreateInBatches(snapshots, insertBatchSize).Error
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upsert %d snapshots", len(snapshots))
	}

	logtracing.AppendSpanKVs(ctx, "snapshot_count", len(snapshots))
	return nil
}

// UpsertOwners writes one page of ownership detail rows, keyed by
// (extract_id, ccn, owner_name, role).
func (s *Store) UpsertOwners(ctx context.Context, owners []*regsync.OwnerRecord) (xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "store.UpsertOwners")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	if len(owners) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "extract_id"}, {Name: "ccn"},
				{Name: "owner_name"}, {Name: "role"},
			},
			UpdateAll: true,
		}).CreateInBatches(owners, insertBatchSize).Error
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upsert %d owner records", len(owners))
	}

	logtracing.AppendSpanKVs(ctx, "owner_count", len(owners))
	return nil
}

// CountSnapshots returns the persisted snapshot count for one extract.
// Because inserts are offset-ordered, this count doubles as the resume
// offset for an interrupted run.
func (s *Store) CountSnapshots(ctx context.Context, extractID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&regsync.Snapshot{}).
		Where("extract_id = ?", extractID).Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count snapshots for extract %d", extractID)
	}
	return count, nil
}

// CountOwners returns the persisted owner-record count for one extract.
func (s *Store) CountOwners(ctx context.Context, extractID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&regsync.OwnerRecord{}).
		Where("extract_id = ?", extractID).Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count owner records for extract %d", extractID)
	}
	return count, nil
}

// SnapshotsByCCN loads one extract's snapshot slice keyed by facility.
func (s *Store) SnapshotsByCCN(ctx context.Context, extractID int64) (map[string]*regsync.Snapshot, error) {
	var rows []*regsync.Snapshot
	err := s.db.WithContext(ctx).
		Where("extract_id = ?", extractID).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load snapshots for extract %d", extractID)
	}

	byCCN := make(map[string]*regsync.Snapshot, len(rows))
	for _, row := range rows {
		byCCN[row.CCN] = row
	}
	return byCCN, nil
}

// OwnersByExtract loads one extract's ownership rows.
func (s *Store) OwnersByExtract(ctx context.Context, extractID int64) ([]*regsync.OwnerRecord, error) {
	var rows []*regsync.OwnerRecord
	err := s.db.WithContext(ctx).
		Where("extract_id = ?", extractID).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load owner records for extract %d", extractID)
	}
	return rows, nil
}

// PurgeExtract removes one extract and everything hanging off it:
// snapshots, owner records, and events that reference it on either
// side. This is the only deletion path; normal operation is append-only.
func (s *Store) PurgeExtract(ctx context.Context, extractID int64) (xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "store.PurgeExtract")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("extract_id = ?", extractID).Delete(&regsync.Snapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("extract_id = ?", extractID).Delete(&regsync.OwnerRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("previous_extract_id = ? OR current_extract_id = ?", extractID, extractID).
			Delete(&regsync.FacilityEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&regsync.Extract{}, extractID).Error
	})
	if err != nil {
		return errors.Wrapf(err, "failed to purge extract %d", extractID)
	}

	logtracing.AppendSpanKVs(ctx, "extract_id", extractID)
	return nil
}

// DuplicateSnapshotCount reports how many (extract_id, ccn) pairs have
// more than one row. Always zero when the unique index is intact; the
// validation command surfaces it anyway.
func (s *Store) DuplicateSnapshotCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM (
			SELECT extract_id, ccn FROM snapshots
			GROUP BY extract_id, ccn HAVING COUNT(*) > 1
		) d`).Scan(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count duplicate snapshots")
	}
	return count, nil
}
