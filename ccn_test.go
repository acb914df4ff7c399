package regsync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theplant/regsync"
)

func TestStandardizeCCN(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"015009", "015009"},
		{"15009", "015009"},
		{" 15-009 ", "015009"},
		{"15E009", "15E009"},
		{"0150091", "015009"},
		{"", ""},
		{"--", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, regsync.StandardizeCCN(c.raw), "raw %q", c.raw)
	}
}

func TestStateFromCCN(t *testing.T) {
	assert.Equal(t, "01", regsync.StateFromCCN("015009"))
	assert.Equal(t, "", regsync.StateFromCCN("5"))
	assert.Equal(t, "", regsync.StateFromCCN(""))
}
