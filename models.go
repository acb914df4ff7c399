package regsync

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExtractStatus is the lifecycle state of one reporting period's import.
type ExtractStatus string

const (
	StatusPending   ExtractStatus = "pending"
	StatusImporting ExtractStatus = "importing"
	StatusCompleted ExtractStatus = "completed"
	StatusFailed    ExtractStatus = "failed"
)

// statusRank encodes the forward-only lifecycle:
// pending -> importing -> {completed, failed}.
var statusRank = map[ExtractStatus]int{
	StatusPending:   0,
	StatusImporting: 1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// CanTransitionTo reports whether moving to next is a forward move.
// Terminal states never transition again.
func (s ExtractStatus) CanTransitionTo(next ExtractStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	if s == StatusCompleted || s == StatusFailed {
		return false
	}
	return nxt > cur
}

// Extract is one reporting period's import job. Append-only history:
// rows are created by get-or-create and mutated only by status
// transitions, never deleted.
type Extract struct {
	ID          int64         `gorm:"primaryKey"`
	PeriodDate  time.Time     `gorm:"uniqueIndex;not null"`
	SourceLabel string        `gorm:"size:255"`
	Status      ExtractStatus `gorm:"size:16;not null;default:pending"`
	RecordCount *int64
	StartedAt   time.Time
	CompletedAt *time.Time
}

func (Extract) TableName() string { return "extracts" }

// Snapshot is one facility's observed state as of one extract. All
// observed fields are independently nullable: a nil pointer means the
// source did not report the field (or its column was absent that year),
// which is different from a reported zero.
type Snapshot struct {
	ID        int64  `gorm:"primaryKey"`
	ExtractID int64  `gorm:"uniqueIndex:ux_snapshots_extract_ccn;not null"`
	CCN       string `gorm:"uniqueIndex:ux_snapshots_extract_ccn;size:12;not null"`

	Extract *Extract `gorm:"foreignKey:ExtractID;constraint:OnDelete:CASCADE"`

	// Identity and address.
	ProviderName       *string `gorm:"size:255"`
	LegalBusinessName  *string `gorm:"size:255"`
	Address            *string `gorm:"size:255"`
	City               *string `gorm:"size:100"`
	State              *string `gorm:"size:2"`
	ZipCode            *string `gorm:"size:10"`
	County             *string `gorm:"size:100"`
	PhoneNumber        *string `gorm:"size:20"`
	OwnershipType      *string `gorm:"size:100"`
	ProviderType       *string `gorm:"size:100"`
	AffiliatedEntity   *string `gorm:"size:255"`
	AffiliatedEntityID *string `gorm:"size:32"`

	// Certification and facility flags. Dates are stored as ISO strings
	// because coercion passes unrecognized shapes through verbatim.
	CertificationDate        *string `gorm:"size:32"`
	CertifiedBeds            *int64
	AverageResidentsPerDay   *float64
	InHospital               *bool
	ContinuingCareRetirement *bool
	SpecialFocusStatus       *string `gorm:"size:64"`
	AbuseIcon                *bool
	ChangedOwnershipLast12M  *bool
	SprinklerStatus          *string `gorm:"size:64"`

	// Five-star ratings (ordinal 1..5) and their footnote codes.
	OverallRating          *int64
	HealthInspectionRating *int64
	QMRating               *int64
	LongStayQMRating       *int64
	ShortStayQMRating      *int64
	StaffingRating         *int64
	RNStaffingRating       *int64
	Footnotes              datatypes.JSONType[map[string]string]

	// Staffing hours per resident per day, reported and adjusted.
	ReportedAideHPRD       *float64
	ReportedLPNHPRD        *float64
	ReportedRNHPRD         *float64
	ReportedLicensedHPRD   *float64
	ReportedTotalNurseHPRD *float64
	WeekendTotalNurseHPRD  *float64
	ReportedPTHPRD         *float64
	CaseMixTotalNurseHPRD  *float64
	CaseMixRNHPRD          *float64
	AdjustedTotalNurseHPRD *float64
	AdjustedRNHPRD         *float64

	// Turnover and leadership stability.
	TotalNursingTurnover   *float64
	RNTurnover             *float64
	AdministratorsDeparted *int64

	// Survey cycle and deficiency counts.
	CycleOneSurveyDate         *string `gorm:"size:32"`
	CycleOneHealthDeficiencies *int64
	CycleOneDeficiencyScore    *int64
	FacilityReportedIncidents  *int64
	SubstantiatedComplaints    *int64
	InfectionControlCitations  *int64

	// Penalties. Fine totals are cumulative, so a strict increase
	// between two extracts means new penalty activity.
	FinesCount          *int64
	FinesTotalAmount    *float64
	PaymentDenialsCount *int64
	TotalPenaltiesCount *int64

	Latitude       *float64
	Longitude      *float64
	ProcessingDate *string `gorm:"size:32"`
}

func (Snapshot) TableName() string { return "snapshots" }

// OwnerRecord is one (facility, owner, role) row from the ownership
// detail dataset, keyed per extract. Unlike snapshots there can be many
// rows per facility per extract.
type OwnerRecord struct {
	ID        int64  `gorm:"primaryKey"`
	ExtractID int64  `gorm:"uniqueIndex:ux_owners_key;not null"`
	CCN       string `gorm:"uniqueIndex:ux_owners_key;size:12;not null"`
	OwnerName string `gorm:"uniqueIndex:ux_owners_key;size:255;not null"`
	Role      string `gorm:"uniqueIndex:ux_owners_key;size:255;not null"`

	Extract *Extract `gorm:"foreignKey:ExtractID;constraint:OnDelete:CASCADE"`

	OwnerType           *string `gorm:"size:100"`
	OwnershipPercentage *float64
	AssociationDate     *string `gorm:"size:32"`
}

func (OwnerRecord) TableName() string { return "owner_records" }

// EventType is the closed set of detected change kinds.
type EventType string

const (
	EventRatingChange    EventType = "RATING_CHANGE"
	EventOwnershipChange EventType = "OWNERSHIP_CHANGE"
	EventFacilityOpened  EventType = "FACILITY_OPENED"
	EventFacilityClosed  EventType = "FACILITY_CLOSED"
	EventPenaltyIssued   EventType = "PENALTY_ISSUED"
	EventOwnerAdded      EventType = "OWNER_ADDED"
	EventOwnerRemoved    EventType = "OWNER_REMOVED"
)

// FacilityEvent is one detected, typed difference between a facility's
// state in two extracts. The composite unique index makes re-running
// detection for the same extract pair a no-op. NewValue is part of the
// key so one facility can gain several owners in the same pair.
type FacilityEvent struct {
	ID                int64     `gorm:"primaryKey"`
	CCN               string    `gorm:"uniqueIndex:ux_events_key;size:12;not null"`
	EventType         EventType `gorm:"uniqueIndex:ux_events_key;size:32;not null"`
	EventDate         time.Time `gorm:"uniqueIndex:ux_events_key;not null"`
	PreviousExtractID int64     `gorm:"uniqueIndex:ux_events_key;not null"`
	CurrentExtractID  int64     `gorm:"uniqueIndex:ux_events_key;not null"`
	NewValue          string    `gorm:"uniqueIndex:ux_events_key;size:500;not null"`

	PreviousValue   *string `gorm:"size:500"`
	ChangeMagnitude *float64

	// Denormalized from the current snapshot for cheap filtering.
	State *string `gorm:"size:2;index"`

	CreatedAt time.Time
}

func (FacilityEvent) TableName() string { return "facility_events" }

// Migrate creates or updates the persisted schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Extract{}, &Snapshot{}, &OwnerRecord{}, &FacilityEvent{}); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}
