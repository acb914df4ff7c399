package ingest

import (
	"strings"

	"gorm.io/datatypes"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/coerce"
)

// fieldReader reads canonical fields out of one raw record through the
// batch's resolved column map. A field whose column is absent from this
// extract reads as null.
type fieldReader struct {
	record   regsync.RawRecord
	resolved map[string]string
}

func (f fieldReader) raw(field string) string {
	header, ok := f.resolved[field]
	if !ok {
		return ""
	}
	return f.record[header]
}

func (f fieldReader) text(field string, max int) *string { return coerce.Text(f.raw(field), max) }
func (f fieldReader) i64(field string) *int64            { return coerce.Int64(f.raw(field)) }
func (f fieldReader) f64(field string) *float64          { return coerce.Float64(f.raw(field)) }
func (f fieldReader) boolean(field string) *bool         { return coerce.Bool(f.raw(field)) }
func (f fieldReader) date(field string) *string          { return coerce.Date(f.raw(field)) }

// buildSnapshot maps one raw facility record onto a snapshot row.
// Returns false when the record has no usable CCN; such rows are
// counted and skipped rather than failing the batch.
func buildSnapshot(extractID int64, record regsync.RawRecord, resolved map[string]string) (*regsync.Snapshot, bool) {
	f := fieldReader{record: record, resolved: resolved}

	ccn := regsync.StandardizeCCN(f.raw("ccn"))
	if ccn == "" {
		return nil, false
	}

	snap := &regsync.Snapshot{
		ExtractID: extractID,
		CCN:       ccn,

		ProviderName:       f.text("provider_name", 255),
		LegalBusinessName:  f.text("legal_business_name", 255),
		Address:            f.text("address", 255),
		City:               f.text("city", 100),
		State:              f.text("state", 2),
		ZipCode:            f.text("zip_code", 10),
		County:             f.text("county", 100),
		PhoneNumber:        f.text("phone_number", 20),
		OwnershipType:      f.text("ownership_type", 100),
		ProviderType:       f.text("provider_type", 100),
		AffiliatedEntity:   f.text("affiliated_entity", 255),
		AffiliatedEntityID: f.text("affiliated_entity_id", 32),

		CertificationDate:        f.date("certification_date"),
		CertifiedBeds:            f.i64("certified_beds"),
		AverageResidentsPerDay:   f.f64("average_residents_per_day"),
		InHospital:               f.boolean("in_hospital"),
		ContinuingCareRetirement: f.boolean("continuing_care_retirement"),
		SpecialFocusStatus:       f.text("special_focus_status", 64),
		AbuseIcon:                f.boolean("abuse_icon"),
		ChangedOwnershipLast12M:  f.boolean("changed_ownership_last_12m"),
		SprinklerStatus:          f.text("sprinkler_status", 64),

		OverallRating:          f.i64("overall_rating"),
		HealthInspectionRating: f.i64("health_inspection_rating"),
		QMRating:               f.i64("qm_rating"),
		LongStayQMRating:       f.i64("long_stay_qm_rating"),
		ShortStayQMRating:      f.i64("short_stay_qm_rating"),
		StaffingRating:         f.i64("staffing_rating"),
		RNStaffingRating:       f.i64("rn_staffing_rating"),
		Footnotes:              datatypes.NewJSONType(footnotes(f)),

		ReportedAideHPRD:       f.f64("reported_aide_hprd"),
		ReportedLPNHPRD:        f.f64("reported_lpn_hprd"),
		ReportedRNHPRD:         f.f64("reported_rn_hprd"),
		ReportedLicensedHPRD:   f.f64("reported_licensed_hprd"),
		ReportedTotalNurseHPRD: f.f64("reported_total_nurse_hprd"),
		WeekendTotalNurseHPRD:  f.f64("weekend_total_nurse_hprd"),
		ReportedPTHPRD:         f.f64("reported_pt_hprd"),
		CaseMixTotalNurseHPRD:  f.f64("case_mix_total_nurse_hprd"),
		CaseMixRNHPRD:          f.f64("case_mix_rn_hprd"),
		AdjustedTotalNurseHPRD: f.f64("adjusted_total_nurse_hprd"),
		AdjustedRNHPRD:         f.f64("adjusted_rn_hprd"),

		TotalNursingTurnover:   f.f64("total_nursing_turnover"),
		RNTurnover:             f.f64("rn_turnover"),
		AdministratorsDeparted: f.i64("administrators_departed"),

		CycleOneSurveyDate:         f.date("cycle_one_survey_date"),
		CycleOneHealthDeficiencies: f.i64("cycle_one_health_deficiencies"),
		CycleOneDeficiencyScore:    f.i64("cycle_one_deficiency_score"),
		FacilityReportedIncidents:  f.i64("facility_reported_incidents"),
		SubstantiatedComplaints:    f.i64("substantiated_complaints"),
		InfectionControlCitations:  f.i64("infection_control_citations"),

		FinesCount:          f.i64("fines_count"),
		FinesTotalAmount:    f.f64("fines_total_amount"),
		PaymentDenialsCount: f.i64("payment_denials_count"),
		TotalPenaltiesCount: f.i64("total_penalties_count"),

		Latitude:       f.f64("latitude"),
		Longitude:      f.f64("longitude"),
		ProcessingDate: f.date("processing_date"),
	}

	if snap.State == nil {
		if prefix := regsync.StateFromCCN(ccn); prefix != "" {
			snap.State = &prefix
		}
	}

	return snap, true
}

var footnoteFields = []string{
	"overall_rating_footnote",
	"health_inspection_rating_footnote",
	"qm_rating_footnote",
	"staffing_rating_footnote",
}

// footnotes collects the suppression footnote codes that explain why a
// rating is missing, keyed by the rating they annotate.
func footnotes(f fieldReader) map[string]string {
	out := map[string]string{}
	for _, field := range footnoteFields {
		if code := f.text(field, 32); code != nil {
			out[strings.TrimSuffix(field, "_footnote")] = *code
		}
	}
	return out
}

// buildOwner maps one raw ownership record. Rows without a CCN, owner
// name, or role cannot be keyed and are skipped.
func buildOwner(extractID int64, record regsync.RawRecord, resolved map[string]string) (*regsync.OwnerRecord, bool) {
	f := fieldReader{record: record, resolved: resolved}

	ccn := regsync.StandardizeCCN(f.raw("ccn"))
	name := coerce.Text(f.raw("owner_name"), 255)
	role := coerce.Text(f.raw("role"), 255)
	if ccn == "" || name == nil || role == nil {
		return nil, false
	}

	return &regsync.OwnerRecord{
		ExtractID: extractID,
		CCN:       ccn,
		OwnerName: *name,
		Role:      *role,

		OwnerType:           f.text("owner_type", 100),
		OwnershipPercentage: ownershipPercentage(f.raw("ownership_percentage")),
		AssociationDate:     f.date("association_date"),
	}, true
}

// ownershipPercentage parses values like "60%" and "5.5%". The dataset
// also carries the literal "NO PERCENTAGE PROVIDED", which reads as
// null through the numeric parse.
func ownershipPercentage(raw string) *float64 {
	return coerce.Float64(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
}
