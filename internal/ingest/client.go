package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lox/chamberodds/internal/httputil"
	"github.com/lox/chamberodds/internal/metrics"
)

// PollClient fetches seat polls from a JSON poll API:
//
//	GET {base}/polls?start=YYYY-MM-DD&end=YYYY-MM-DD
type PollClient struct {
	baseURL string
	client  *http.Client

	// NewBackOff builds the retry policy for one request.
	NewBackOff func() backoff.BackOff
}

func NewPollClient(baseURL string) *PollClient {
	return &PollClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httputil.NewClient(),
		NewBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 2 * time.Minute
			return bo
		},
	}
}

type pollsResponse struct {
	Polls []apiPoll `json:"polls"`
}

type apiPoll struct {
	Chamber  string   `json:"chamber"`
	Seat     string   `json:"seat"`
	Date     string   `json:"date"`
	Pollster string   `json:"pollster"`
	Dem      float64  `json:"dem"`
	Rep      float64  `json:"rep"`
	MOE      *float64 `json:"moe"`
}

func (p apiPoll) row() PollRow {
	row := PollRow{
		Chamber:  p.Chamber,
		Seat:     p.Seat,
		Date:     p.Date,
		Pollster: p.Pollster,
		Dem:      p.Dem,
		Rep:      p.Rep,
	}
	if p.MOE != nil {
		row.Uncertainty = strconv.FormatFloat(*p.MOE, 'f', -1, 64)
	}
	return row
}

// transientError marks failures that are worth retrying or splitting.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// FetchPolls returns every poll dated within [start, end]. A range that still
// fails after retries is split in half and each half fetched separately, down
// to single days.
func (c *PollClient) FetchPolls(ctx context.Context, start, end time.Time) ([]PollRow, error) {
	rows, err := c.fetchRange(ctx, start, end)
	if err == nil || !isTransient(err) {
		return rows, err
	}

	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		return nil, err
	}

	metrics.PollRangeSplits.Inc()
	mid := start.AddDate(0, 0, days/2)
	zap.S().Warnw("ingest: splitting poll range",
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), "error", err)

	left, err := c.FetchPolls(ctx, start, mid)
	if err != nil {
		return nil, err
	}
	right, err := c.FetchPolls(ctx, mid.AddDate(0, 0, 1), end)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func (c *PollClient) fetchRange(ctx context.Context, start, end time.Time) ([]PollRow, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.DateOnly))
	q.Set("end", end.Format(time.DateOnly))
	reqURL := c.baseURL + "/polls?" + q.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		began := time.Now()
		resp, err := c.client.Do(req)
		metrics.PollAPILatency.Observe(time.Since(began).Seconds())
		if err != nil {
			metrics.PollAPICallsTotal.WithLabelValues("error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return &transientError{fmt.Errorf("fetch polls: %w", err)}
		}
		defer resp.Body.Close()
		metrics.PollAPICallsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &transientError{fmt.Errorf("fetch polls: status %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch polls: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{fmt.Errorf("read body: %w", err)}
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.NewBackOff(), ctx)); err != nil {
		return nil, err
	}

	var data pollsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal polls: %w", err)
	}

	rows := make([]PollRow, 0, len(data.Polls))
	for _, p := range data.Polls {
		rows = append(rows, p.row())
	}
	return rows, nil
}
