package columns_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theplant/regsync/columns"
)

func TestResolvePicksFirstCandidate(t *testing.T) {
	candidates := columns.Candidates{
		"ccn":  {"CMS Certification Number (CCN)", "Federal Provider Number"},
		"city": {"City/Town", "Provider City"},
	}

	resolved := columns.Resolve(
		[]string{"Federal Provider Number", "Provider City", "State"},
		candidates,
	)

	assert.Equal(t, "Federal Provider Number", resolved["ccn"])
	assert.Equal(t, "Provider City", resolved["city"])
}

func TestResolveCandidateOrderWinsOverHeaderOrder(t *testing.T) {
	// A file carrying both the old and new spelling resolves to the
	// one earlier in the candidate list, wherever it sits in the header.
	candidates := columns.Candidates{
		"ccn": {"CMS Certification Number (CCN)", "Federal Provider Number"},
	}

	headers := []string{"Federal Provider Number", "CMS Certification Number (CCN)"}
	resolved := columns.Resolve(headers, candidates)
	assert.Equal(t, "CMS Certification Number (CCN)", resolved["ccn"])

	// Reversed header order, same outcome.
	headers = []string{"CMS Certification Number (CCN)", "Federal Provider Number"}
	resolved = columns.Resolve(headers, candidates)
	assert.Equal(t, "CMS Certification Number (CCN)", resolved["ccn"])
}

func TestResolveOmitsUnmatchedFields(t *testing.T) {
	candidates := columns.Candidates{
		"ccn":            {"CMS Certification Number (CCN)"},
		"overall_rating": {"Overall Rating"},
	}

	resolved := columns.Resolve([]string{"CMS Certification Number (CCN)"}, candidates)

	assert.Contains(t, resolved, "ccn")
	assert.NotContains(t, resolved, "overall_rating")
	assert.Len(t, resolved, 1)
}

func TestProviderCatalogCoversLegacyHeaders(t *testing.T) {
	// A 2020-era header set still resolves identity fields.
	legacy := []string{
		"Federal Provider Number", "Provider Name", "Provider Address",
		"Provider City", "Provider State", "Provider Zip Code",
		"Overall Rating", "Processing Date",
	}
	resolved := columns.Resolve(legacy, columns.Provider())

	assert.Equal(t, "Federal Provider Number", resolved["ccn"])
	assert.Equal(t, "Provider City", resolved["city"])
	assert.Equal(t, "Provider Zip Code", resolved["zip_code"])
	assert.Equal(t, "Overall Rating", resolved["overall_rating"])
}
