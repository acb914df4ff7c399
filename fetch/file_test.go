package fetch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theplant/regsync/fetch"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSourceReadsHeaderedCSV(t *testing.T) {
	path := writeCSV(t, "CMS Certification Number (CCN),Provider Name,Overall Rating\n"+
		"015009,BURNS NURSING HOME,4\n"+
		"015010,\"COOSA VALLEY, INC.\",2\n")

	source, err := fetch.NewFileSource(path)
	require.NoError(t, err)

	count, err := source.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	records, err := source.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "015009", records[0]["CMS Certification Number (CCN)"])
	assert.Equal(t, "COOSA VALLEY, INC.", records[1]["Provider Name"])
	assert.Equal(t, "2", records[1]["Overall Rating"])
}

func TestFileSourcePadsShortRows(t *testing.T) {
	// Older extract files sometimes drop trailing empty fields.
	path := writeCSV(t, "CCN,Name,Rating\n015009,BURNS NURSING HOME\n")

	source, err := fetch.NewFileSource(path)
	require.NoError(t, err)

	records, err := source.Fetch(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	value, ok := records[0].Get("Rating")
	assert.True(t, ok)
	assert.Equal(t, "", value)
}

func TestFileSourcePaging(t *testing.T) {
	path := writeCSV(t, "CCN\n1\n2\n3\n4\n5\n")

	source, err := fetch.NewFileSource(path)
	require.NoError(t, err)

	page, err := source.Fetch(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "4", page[0]["CCN"])

	// Past the end is empty, not an error.
	page, err = source.Fetch(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
