package events_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/events"
	"github.com/theplant/regsync/registry"
	"github.com/theplant/regsync/store"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "events.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, regsync.Migrate(db))
	return db
}

func makeExtract(t *testing.T, db *gorm.DB, period time.Time) *regsync.Extract {
	t.Helper()
	extract, err := registry.New(db).GetOrCreate(context.Background(), period, "test")
	require.NoError(t, err)
	return extract
}

func loadEvents(t *testing.T, db *gorm.DB, eventType regsync.EventType) []regsync.FacilityEvent {
	t.Helper()
	var out []regsync.FacilityEvent
	require.NoError(t, db.Where("event_type = ?", eventType).Order("ccn").Find(&out).Error)
	return out
}

func TestDetectRatingChangeAndOpening(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := store.New(db)
	jan := makeExtract(t, db, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	feb := makeExtract(t, db, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: jan.ID, CCN: "055001", State: lo.ToPtr("CA"), OverallRating: lo.ToPtr(int64(3))},
	}))
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: feb.ID, CCN: "055001", State: lo.ToPtr("CA"), OverallRating: lo.ToPtr(int64(4))},
		{ExtractID: feb.ID, CCN: "055002", State: lo.ToPtr("CA"), ProviderName: lo.ToPtr("NEW HORIZONS"), OverallRating: lo.ToPtr(int64(5))},
	}))

	inserted, err := events.New(db).Detect(ctx, jan.ID, feb.ID, feb.PeriodDate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	ratings := loadEvents(t, db, regsync.EventRatingChange)
	require.Len(t, ratings, 1)
	assert.Equal(t, "055001", ratings[0].CCN)
	assert.Equal(t, "3", *ratings[0].PreviousValue)
	assert.Equal(t, "4", ratings[0].NewValue)
	require.NotNil(t, ratings[0].ChangeMagnitude)
	assert.Equal(t, 1.0, *ratings[0].ChangeMagnitude)
	assert.Equal(t, "CA", *ratings[0].State)

	opened := loadEvents(t, db, regsync.EventFacilityOpened)
	require.Len(t, opened, 1)
	assert.Equal(t, "055002", opened[0].CCN)
	assert.Equal(t, "NEW HORIZONS", opened[0].NewValue)

	// Re-running the same pair inserts nothing.
	inserted, err = events.New(db).Detect(ctx, jan.ID, feb.ID, feb.PeriodDate)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestDetectSkipsNilRatings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := store.New(db)
	jan := makeExtract(t, db, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	feb := makeExtract(t, db, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	// Rating suppressed in January, reported in February. Not a change.
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: jan.ID, CCN: "055001", State: lo.ToPtr("CA")},
	}))
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: feb.ID, CCN: "055001", State: lo.ToPtr("CA"), OverallRating: lo.ToPtr(int64(4))},
	}))

	inserted, err := events.New(db).Detect(ctx, jan.ID, feb.ID, feb.PeriodDate)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestDetectClosureOwnershipAndPenalty(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := store.New(db)
	jan := makeExtract(t, db, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	feb := makeExtract(t, db, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: jan.ID, CCN: "055001", State: lo.ToPtr("CA"),
			LegalBusinessName: lo.ToPtr("SUNRISE LLC"), FinesTotalAmount: lo.ToPtr(1000.0)},
		{ExtractID: jan.ID, CCN: "055003", State: lo.ToPtr("CA"), ProviderName: lo.ToPtr("GONE MANOR")},
	}))
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: feb.ID, CCN: "055001", State: lo.ToPtr("CA"),
			LegalBusinessName: lo.ToPtr("SUNSET LLC"), FinesTotalAmount: lo.ToPtr(13650.0)},
	}))

	inserted, err := events.New(db).Detect(ctx, jan.ID, feb.ID, feb.PeriodDate)
	require.NoError(t, err)
	assert.Equal(t, int64(3), inserted)

	ownership := loadEvents(t, db, regsync.EventOwnershipChange)
	require.Len(t, ownership, 1)
	assert.Equal(t, "SUNRISE LLC", *ownership[0].PreviousValue)
	assert.Equal(t, "SUNSET LLC", ownership[0].NewValue)

	penalties := loadEvents(t, db, regsync.EventPenaltyIssued)
	require.Len(t, penalties, 1)
	require.NotNil(t, penalties[0].ChangeMagnitude)
	assert.Equal(t, 12650.0, *penalties[0].ChangeMagnitude)

	closed := loadEvents(t, db, regsync.EventFacilityClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "055003", closed[0].CCN)
	assert.Equal(t, "GONE MANOR", *closed[0].PreviousValue)
}

func TestDetectPenaltyRequiresStrictIncrease(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := store.New(db)
	jan := makeExtract(t, db, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	feb := makeExtract(t, db, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	// Totals can shrink when old penalties age out of the reporting
	// window. That is not new penalty activity.
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: jan.ID, CCN: "055001", FinesTotalAmount: lo.ToPtr(5000.0)},
	}))
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: feb.ID, CCN: "055001", FinesTotalAmount: lo.ToPtr(2000.0)},
	}))

	inserted, err := events.New(db).Detect(ctx, jan.ID, feb.ID, feb.PeriodDate)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestDetectOwnerAddedAndRemovedFiltersManagementRoles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := store.New(db)
	jan := makeExtract(t, db, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	feb := makeExtract(t, db, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: jan.ID, CCN: "055001", State: lo.ToPtr("CA")},
	}))
	require.NoError(t, s.UpsertSnapshots(ctx, []*regsync.Snapshot{
		{ExtractID: feb.ID, CCN: "055001", State: lo.ToPtr("CA")},
	}))

	require.NoError(t, s.UpsertOwners(ctx, []*regsync.OwnerRecord{
		{ExtractID: jan.ID, CCN: "055001", OwnerName: "OLD CAPITAL LLC",
			Role: "5% OR GREATER DIRECT OWNERSHIP INTEREST"},
		{ExtractID: jan.ID, CCN: "055001", OwnerName: "SMITH, JANE",
			Role: "MANAGING EMPLOYEE"},
	}))
	require.NoError(t, s.UpsertOwners(ctx, []*regsync.OwnerRecord{
		{ExtractID: feb.ID, CCN: "055001", OwnerName: "NEW CAPITAL LLC",
			Role: "5% OR GREATER INDIRECT OWNERSHIP INTEREST"},
		{ExtractID: feb.ID, CCN: "055001", OwnerName: "PARTNER HOLDINGS LP",
			Role: "PARTNERSHIP INTEREST"},
	}))

	inserted, err := events.New(db).Detect(ctx, jan.ID, feb.ID, feb.PeriodDate)
	require.NoError(t, err)
	// Two ownership interests added, one removed. The departed managing
	// employee is not an ownership event.
	assert.Equal(t, int64(3), inserted)

	added := loadEvents(t, db, regsync.EventOwnerAdded)
	require.Len(t, added, 2)
	names := []string{added[0].NewValue, added[1].NewValue}
	assert.ElementsMatch(t, []string{"NEW CAPITAL LLC", "PARTNER HOLDINGS LP"}, names)

	removed := loadEvents(t, db, regsync.EventOwnerRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "OLD CAPITAL LLC", *removed[0].PreviousValue)
}
