package fetch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theplant/regsync/fetch"
)

func datasetServer(t *testing.T, rows []map[string]any, failures *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures != nil && atomic.AddInt32(failures, -1) >= 0 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		end := offset + limit
		if offset > len(rows) {
			offset = len(rows)
		}
		if end > len(rows) {
			end = len(rows)
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"count":   len(rows),
			"results": rows[offset:end],
		}))
	}))
}

func TestRemoteSourceCountAndFetch(t *testing.T) {
	rows := []map[string]any{
		{"ccn": "015009", "overall_rating": 4, "abuse_icon": false, "county": nil},
		{"ccn": "015010", "overall_rating": "2"},
	}
	server := datasetServer(t, rows, nil)
	defer server.Close()

	source := fetch.NewRemoteSource(server.Client(), server.URL)

	count, err := source.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	records, err := source.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Numbers and booleans are flattened to strings, nulls dropped.
	assert.Equal(t, "4", records[0]["overall_rating"])
	assert.Equal(t, "false", records[0]["abuse_icon"])
	_, ok := records[0].Get("county")
	assert.False(t, ok)
	assert.Equal(t, "2", records[1]["overall_rating"])
}

func TestRemoteSourceRetriesServerErrors(t *testing.T) {
	failures := int32(2)
	server := datasetServer(t, []map[string]any{{"ccn": "015009"}}, &failures)
	defer server.Close()

	source := fetch.NewRemoteSource(server.Client(), server.URL)

	records, err := source.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRemoteSourceDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "no such dataset", http.StatusNotFound)
	}))
	defer server.Close()

	source := fetch.NewRemoteSource(server.Client(), server.URL)

	_, err := source.Fetch(context.Background(), 0, 10)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
