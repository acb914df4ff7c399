package columns

// Provider returns the candidate map for the facility-level extract.
// Spellings are ordered newest release first; the 2020-era names sit
// behind their replacements so older files still resolve.
func Provider() Candidates {
	return Candidates{
		"ccn": {
			"CMS Certification Number (CCN)",
			"CMS Certification Number",
			"Federal Provider Number",
			"PROVNUM",
		},
		"provider_name":        {"Provider Name", "PROVNAME"},
		"legal_business_name":  {"Legal Business Name"},
		"address":              {"Provider Address", "Address"},
		"city":                 {"City/Town", "Provider City", "City"},
		"state":                {"State", "Provider State"},
		"zip_code":             {"ZIP Code", "Provider Zip Code", "Zip Code"},
		"county":               {"County/Parish", "Provider County Name", "County"},
		"phone_number":         {"Telephone Number", "Provider Phone Number"},
		"ownership_type":       {"Ownership Type"},
		"provider_type":        {"Provider Type"},
		"affiliated_entity":    {"Affiliated Entity Name", "Chain Name"},
		"affiliated_entity_id": {"Affiliated Entity ID"},

		"certification_date": {
			"Date First Approved to Provide Medicare and Medicaid Services",
			"Certification Date",
		},
		"certified_beds":             {"Number of Certified Beds"},
		"average_residents_per_day":  {"Average Number of Residents per Day"},
		"in_hospital":                {"Provider Resides in Hospital"},
		"continuing_care_retirement": {"Continuing Care Retirement Community"},
		"special_focus_status":       {"Special Focus Status", "Special Focus Facility"},
		"abuse_icon":                 {"Abuse Icon"},
		"changed_ownership_last_12m": {"Provider Changed Ownership in Last 12 Months"},
		"sprinkler_status": {
			"Automatic Sprinkler Systems in All Required Areas",
		},

		"overall_rating":           {"Overall Rating"},
		"health_inspection_rating": {"Health Inspection Rating"},
		"qm_rating":                {"QM Rating", "Quality Measure Rating"},
		"long_stay_qm_rating":      {"Long-Stay QM Rating"},
		"short_stay_qm_rating":     {"Short-Stay QM Rating"},
		"staffing_rating":          {"Staffing Rating"},
		"rn_staffing_rating":       {"RN Staffing Rating"},

		"overall_rating_footnote":           {"Overall Rating Footnote"},
		"health_inspection_rating_footnote": {"Health Inspection Rating Footnote"},
		"qm_rating_footnote":                {"QM Rating Footnote"},
		"staffing_rating_footnote":          {"Staffing Rating Footnote"},

		"reported_aide_hprd": {
			"Reported Nurse Aide Staffing Hours per Resident per Day",
		},
		"reported_lpn_hprd": {
			"Reported LPN Staffing Hours per Resident per Day",
		},
		"reported_rn_hprd": {
			"Reported RN Staffing Hours per Resident per Day",
		},
		"reported_licensed_hprd": {
			"Reported Licensed Staffing Hours per Resident per Day",
		},
		"reported_total_nurse_hprd": {
			"Reported Total Nurse Staffing Hours per Resident per Day",
		},
		"weekend_total_nurse_hprd": {
			"Total number of nurse staff hours per resident per day on the weekend",
			"Total Number of Nurse Staff Hours per Resident per Day on the Weekend",
		},
		"reported_pt_hprd": {
			"Reported Physical Therapist Staffing Hours per Resident Per Day",
		},
		"case_mix_total_nurse_hprd": {
			"Case-Mix Total Nurse Staffing Hours per Resident per Day",
			"Expected Total Nurse Staffing Hours per Resident per Day",
		},
		"case_mix_rn_hprd": {
			"Case-Mix RN Staffing Hours per Resident per Day",
			"Expected RN Staffing Hours per Resident per Day",
		},
		"adjusted_total_nurse_hprd": {
			"Adjusted Total Nurse Staffing Hours per Resident per Day",
		},
		"adjusted_rn_hprd": {
			"Adjusted RN Staffing Hours per Resident per Day",
		},

		"total_nursing_turnover":  {"Total nursing staff turnover"},
		"rn_turnover":             {"Registered Nurse turnover"},
		"administrators_departed": {"Number of administrators who have left the nursing home"},

		"cycle_one_survey_date": {
			"Rating Cycle 1 Standard Survey Health Date",
		},
		"cycle_one_health_deficiencies": {
			"Rating Cycle 1 Total Number of Health Deficiencies",
		},
		"cycle_one_deficiency_score": {
			"Rating Cycle 1 Total Health Score",
		},
		"facility_reported_incidents": {"Number of Facility Reported Incidents"},
		"substantiated_complaints":    {"Number of Substantiated Complaints"},
		"infection_control_citations": {"Number of Citations from Infection Control Inspections"},

		"fines_count":           {"Number of Fines"},
		"fines_total_amount":    {"Total Amount of Fines in Dollars", "Fine Amount in Dollars"},
		"payment_denials_count": {"Number of Payment Denials"},
		"total_penalties_count": {"Total Number of Penalties"},

		"latitude":        {"Latitude", "Location Latitude"},
		"longitude":       {"Longitude", "Location Longitude"},
		"processing_date": {"Processing Date"},
	}
}

// Ownership returns the candidate map for the multi-row ownership
// detail extract.
func Ownership() Candidates {
	return Candidates{
		"ccn": {
			"CMS Certification Number (CCN)",
			"CMS Certification Number",
			"Federal Provider Number",
		},
		"owner_name": {"Owner Name"},
		"owner_type": {"Owner Type"},
		"role": {
			"Role played by Owner or Manager in Facility",
			"Role Description",
		},
		"ownership_percentage": {"Ownership Percentage"},
		"association_date":     {"Association Date"},
		"state":                {"State", "Provider State"},
	}
}
