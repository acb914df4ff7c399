// Package events derives typed change events by diffing a facility's
// state across two completed extracts.
package events

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/theplant/appkit/logtracing"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/store"
)

type Detector struct {
	db    *gorm.DB
	store *store.Store
}

func New(db *gorm.DB) *Detector {
	return &Detector{db: db, store: store.New(db)}
}

// Detect diffs the two extracts and inserts one event per detected
// change, stamped with eventDate (the current extract's period date).
// Inserts land with ON CONFLICT DO NOTHING against the composite event
// key, so re-running detection for the same pair reports zero new
// events. Returns the number of events actually inserted.
func (d *Detector) Detect(ctx context.Context, prevExtractID, curExtractID int64, eventDate time.Time) (inserted int64, xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "events.Detect")
	defer func() { logtracing.EndSpan(ctx, xerr) }()
	logtracing.AppendSpanKVs(ctx,
		"previous_extract_id", prevExtractID,
		"current_extract_id", curExtractID,
	)

	prev, err := d.store.SnapshotsByCCN(ctx, prevExtractID)
	if err != nil {
		return 0, err
	}
	cur, err := d.store.SnapshotsByCCN(ctx, curExtractID)
	if err != nil {
		return 0, err
	}

	var detected []*regsync.FacilityEvent
	for ccn, curSnap := range cur {
		prevSnap, existed := prev[ccn]
		if !existed {
			detected = append(detected, d.event(regsync.EventFacilityOpened, curSnap, eventDate, prevExtractID, curExtractID,
				nil, lo.FromPtr(curSnap.ProviderName), nil))
			continue
		}
		detected = append(detected, d.compare(prevSnap, curSnap, eventDate, prevExtractID, curExtractID)...)
	}
	for ccn, prevSnap := range prev {
		if _, exists := cur[ccn]; !exists {
			detected = append(detected, d.event(regsync.EventFacilityClosed, prevSnap, eventDate, prevExtractID, curExtractID,
				prevSnap.ProviderName, "", nil))
		}
	}

	ownerEvents, err := d.diffOwners(ctx, prev, cur, eventDate, prevExtractID, curExtractID)
	if err != nil {
		return 0, err
	}
	detected = append(detected, ownerEvents...)

	if len(detected) == 0 {
		return 0, nil
	}

	result := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(detected, 500)
	if result.Error != nil {
		return 0, errors.Wrapf(result.Error, "failed to insert %d events", len(detected))
	}

	logtracing.AppendSpanKVs(ctx, "detected", len(detected), "inserted", result.RowsAffected)
	return result.RowsAffected, nil
}

// compare derives the per-facility events for a facility present in
// both extracts. A nil value on either side of a field suppresses that
// field's event; absence of data is not a change.
func (d *Detector) compare(prev, cur *regsync.Snapshot, eventDate time.Time, prevID, curID int64) []*regsync.FacilityEvent {
	var out []*regsync.FacilityEvent

	if prev.OverallRating != nil && cur.OverallRating != nil && *prev.OverallRating != *cur.OverallRating {
		magnitude := float64(*cur.OverallRating - *prev.OverallRating)
		out = append(out, d.event(regsync.EventRatingChange, cur, eventDate, prevID, curID,
			lo.ToPtr(strconv.FormatInt(*prev.OverallRating, 10)),
			strconv.FormatInt(*cur.OverallRating, 10),
			&magnitude))
	}

	if prev.LegalBusinessName != nil && cur.LegalBusinessName != nil && *prev.LegalBusinessName != *cur.LegalBusinessName {
		out = append(out, d.event(regsync.EventOwnershipChange, cur, eventDate, prevID, curID,
			prev.LegalBusinessName, *cur.LegalBusinessName, nil))
	}

	if prev.FinesTotalAmount != nil && cur.FinesTotalAmount != nil && *cur.FinesTotalAmount > *prev.FinesTotalAmount {
		magnitude := *cur.FinesTotalAmount - *prev.FinesTotalAmount
		out = append(out, d.event(regsync.EventPenaltyIssued, cur, eventDate, prevID, curID,
			lo.ToPtr(strconv.FormatFloat(*prev.FinesTotalAmount, 'f', 2, 64)),
			strconv.FormatFloat(*cur.FinesTotalAmount, 'f', 2, 64),
			&magnitude))
	}

	return out
}

// diffOwners detects owners gaining or losing an ownership interest in
// a facility. Management-only roles are excluded; a manager leaving is
// not an ownership event.
func (d *Detector) diffOwners(ctx context.Context, prevSnaps, curSnaps map[string]*regsync.Snapshot, eventDate time.Time, prevID, curID int64) ([]*regsync.FacilityEvent, error) {
	prevOwners, err := d.store.OwnersByExtract(ctx, prevID)
	if err != nil {
		return nil, err
	}
	curOwners, err := d.store.OwnersByExtract(ctx, curID)
	if err != nil {
		return nil, err
	}

	prevSet := ownershipSet(prevOwners)
	curSet := ownershipSet(curOwners)

	var out []*regsync.FacilityEvent
	for key, owner := range curSet {
		if _, existed := prevSet[key]; !existed {
			out = append(out, d.ownerEvent(regsync.EventOwnerAdded, owner, curSnaps, eventDate, prevID, curID))
		}
	}
	for key, owner := range prevSet {
		if _, exists := curSet[key]; !exists {
			out = append(out, d.ownerEvent(regsync.EventOwnerRemoved, owner, prevSnaps, eventDate, prevID, curID))
		}
	}
	return out, nil
}

type ownerKey struct {
	ccn  string
	name string
}

func ownershipSet(owners []*regsync.OwnerRecord) map[ownerKey]*regsync.OwnerRecord {
	set := make(map[ownerKey]*regsync.OwnerRecord)
	for _, owner := range owners {
		if !isOwnershipRole(owner.Role) {
			continue
		}
		set[ownerKey{ccn: owner.CCN, name: owner.OwnerName}] = owner
	}
	return set
}

// isOwnershipRole reports whether the role carries an ownership
// interest, as opposed to officer or managing-employee roles.
func isOwnershipRole(role string) bool {
	upper := strings.ToUpper(role)
	return strings.Contains(upper, "OWNERSHIP INTEREST") ||
		strings.Contains(upper, "PARTNERSHIP INTEREST")
}

func (d *Detector) ownerEvent(eventType regsync.EventType, owner *regsync.OwnerRecord, snaps map[string]*regsync.Snapshot, eventDate time.Time, prevID, curID int64) *regsync.FacilityEvent {
	event := &regsync.FacilityEvent{
		CCN:               owner.CCN,
		EventType:         eventType,
		EventDate:         eventDate,
		PreviousExtractID: prevID,
		CurrentExtractID:  curID,
		NewValue:          owner.OwnerName,
		State:             eventState(owner.CCN, snaps[owner.CCN]),
	}
	if eventType == regsync.EventOwnerRemoved {
		event.PreviousValue = lo.ToPtr(owner.OwnerName)
	}
	return event
}

func (d *Detector) event(eventType regsync.EventType, snap *regsync.Snapshot, eventDate time.Time, prevID, curID int64, previous *string, newValue string, magnitude *float64) *regsync.FacilityEvent {
	return &regsync.FacilityEvent{
		CCN:               snap.CCN,
		EventType:         eventType,
		EventDate:         eventDate,
		PreviousExtractID: prevID,
		CurrentExtractID:  curID,
		PreviousValue:     previous,
		NewValue:          newValue,
		ChangeMagnitude:   magnitude,
		State:             eventState(snap.CCN, snap),
	}
}

// eventState denormalizes the facility's state onto the event, falling
// back to the CCN prefix when the snapshot did not report one.
func eventState(ccn string, snap *regsync.Snapshot) *string {
	if snap != nil && snap.State != nil && *snap.State != "" {
		return snap.State
	}
	if prefix := regsync.StateFromCCN(ccn); prefix != "" {
		return &prefix
	}
	return nil
}
