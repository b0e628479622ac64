package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"standings-sync/internal/retry"
	"standings-sync/internal/testutil"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var pdf = []byte("%PDF-1.4 standings")

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, Delay: 0, Timeout: time.Second}
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	}))
	defer server.Close()

	tel := &testutil.RecordingAPI{}
	fetcher := NewFetcher(resty.New(), fastPolicy(3), tel)

	body, err := fetcher.Fetch(context.Background(), server.URL+"/standings.pdf")
	require.NoError(t, err)
	require.Equal(t, pdf, body)
	require.Equal(t, int32(3), hits.Load())
	require.Len(t, tel.Reports("warning"), 2)
	require.Empty(t, tel.Reports("broken"))
}

func TestFetchExhaustedReturnsError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tel := &testutil.RecordingAPI{}
	fetcher := NewFetcher(resty.New(), fastPolicy(4), tel)

	body, err := fetcher.Fetch(context.Background(), server.URL)
	require.Nil(t, body)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 4, fetchErr.Attempts)
	require.Equal(t, server.URL, fetchErr.URL)

	var status StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusNotFound, status.StatusCode)

	require.Equal(t, int32(4), hits.Load())
	require.True(t, tel.HasReport("broken", "fetch.get"))
}

func TestFetchRejectsNonOKSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	fetcher := NewFetcher(resty.New(), fastPolicy(2), &testutil.RecordingAPI{})
	_, err := fetcher.Fetch(context.Background(), server.URL)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 2, fetchErr.Attempts)
}

func TestFetchTransportErrorIsRetried(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tel := &testutil.RecordingAPI{}
	fetcher := NewFetcher(resty.New(), fastPolicy(3), tel)
	_, err := fetcher.Fetch(context.Background(), url)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 3, fetchErr.Attempts)
	require.Len(t, tel.Reports("warning"), 3)
}

func TestFetchAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	policy := retry.Policy{Attempts: 2, Timeout: 50 * time.Millisecond}
	fetcher := NewFetcher(resty.New(), policy, &testutil.RecordingAPI{})

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchCountsAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(pdf)
	}))
	defer server.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	counter, err := provider.Meter("test").Int64Counter("fetch_attempts")
	require.NoError(t, err)

	fetcher := NewFetcher(resty.New(), fastPolicy(3), &testutil.RecordingAPI{}).
		WithAttemptCounter(counter)
	_, err = fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	var collected metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &collected))
	require.Len(t, collected.ScopeMetrics, 1)
	require.Len(t, collected.ScopeMetrics[0].Metrics, 1)

	sum, ok := collected.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	require.Equal(t, int64(2), sum.DataPoints[0].Value)
}
