package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/theplant/regsync"
)

const (
	remoteMaxAttempts = 3
	remoteRetryDelay  = 2 * time.Second
)

// RemoteSource pages through a JSON dataset API that accepts limit and
// offset query parameters and responds with
//
//	{"count": <total>, "results": [{...}, ...]}
//
// Field values arrive as strings, numbers, or booleans; everything is
// flattened to strings so downstream coercion sees one input shape.
type RemoteSource struct {
	client  *http.Client
	baseURL string
}

func NewRemoteSource(client *http.Client, baseURL string) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RemoteSource{client: client, baseURL: baseURL}
}

type remotePayload struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// Count probes the dataset with limit=0, which returns the total
// without transferring any records.
func (s *RemoteSource) Count(ctx context.Context) (int, error) {
	payload, err := s.get(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	return payload.Count, nil
}

func (s *RemoteSource) Fetch(ctx context.Context, offset, limit int) ([]regsync.RawRecord, error) {
	payload, err := s.get(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	records := make([]regsync.RawRecord, 0, len(payload.Results))
	for i, raw := range payload.Results {
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode record %d at offset %d", i, offset)
		}
		records = append(records, record)
	}
	return records, nil
}

// get issues the request with bounded retries. Transport failures and
// 5xx responses are retried; 4xx responses fail immediately since
// retrying a rejected request cannot help.
func (s *RemoteSource) get(ctx context.Context, offset, limit int) (*remotePayload, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid source url %q", s.baseURL)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= remoteMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(remoteRetryDelay):
			}
		}

		payload, retryable, err := s.doRequest(ctx, u.String())
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to fetch %s after %d attempts", u.String(), remoteMaxAttempts)
}

func (s *RemoteSource) doRequest(ctx context.Context, url string) (payload *remotePayload, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		return nil, resp.StatusCode >= 500, err
	}

	payload = &remotePayload{}
	if err := json.NewDecoder(resp.Body).Decode(payload); err != nil {
		return nil, true, errors.Wrap(err, "failed to decode response")
	}
	return payload, false, nil
}

// decodeRecord flattens one result object into string fields. Numbers
// keep their source text via json.Number, nulls are dropped so missing
// and null look the same downstream.
func decodeRecord(raw json.RawMessage) (regsync.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}

	record := make(regsync.RawRecord, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case nil:
		case string:
			record[key] = v
		case json.Number:
			record[key] = v.String()
		case bool:
			record[key] = strconv.FormatBool(v)
		default:
			record[key] = fmt.Sprint(v)
		}
	}
	return record, nil
}
