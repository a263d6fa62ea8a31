package feed

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>First</title>
      <link>https://example.com/first</link>
      <guid>first</guid>
    </item>
    <item>
      <title>Second</title>
      <link>https://example.com/second</link>
      <guid>second</guid>
    </item>
  </channel>
</rss>`

const emptyRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Empty Feed</title>
  </channel>
</rss>`

func newTestFetcher() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: attemptTimeout},
		parser:  gofeed.NewParser(),
		backoff: time.Millisecond,
		log:     slog.Default(),
	}
}

func TestFetchParsesFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	snapshot, err := newTestFetcher().Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Example Feed", snapshot.Title)
	require.Len(t, snapshot.Entries, 2)
	assert.Equal(t, "First", snapshot.Entries[0].Title)
	assert.Equal(t, "second", snapshot.Entries[1].GUID)
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), "not a url")

	require.Error(t, err)
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	snapshot, err := newTestFetcher().Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts.Load())
	assert.Len(t, snapshot.Entries, 2)
}

func TestFetchSurfacesLastErrorAfterAllAttempts(t *testing.T) {
	var attempts atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.Equal(t, int64(maxAttempts), attempts.Load())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestFetchRejectsOversizeContentLength(t *testing.T) {
	var attempts atomic.Int64
	advertised := int64(3 << 20)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Length", strconv.FormatInt(advertised, 10))
		_, _ = w.Write([]byte("<rss>"))
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)

	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, advertised, tooLarge.Bytes)
	assert.Equal(t, int64(1), attempts.Load(), "oversize feeds must not be retried")
}

func TestFetchRejectsOversizeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Large flushed writes force chunked encoding so the cap is hit
		// while reading, not via the Content-Length header.
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		_, _ = w.Write([]byte(strings.Repeat("a", MaxFeedBytes+1024)))
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)

	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(MaxFeedBytes+1), tooLarge.Bytes)
}

func TestFetchInvalidBodyIsNotRetried(t *testing.T) {
	var attempts atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)

	require.ErrorIs(t, err, ErrInvalidFeed)
	assert.Equal(t, int64(1), attempts.Load())
}

func TestFetchFeedWithoutEntriesIsInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(emptyRSS))
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)

	require.ErrorIs(t, err, ErrInvalidFeed)
}

func TestFetchTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	fetcher := newTestFetcher()
	fetcher.client = &http.Client{Timeout: 20 * time.Millisecond}

	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.ErrorIs(t, err, ErrTimeout)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newTestFetcher()
	fetcher.backoff = time.Minute

	_, err := fetcher.Fetch(ctx, server.URL)

	require.ErrorIs(t, err, context.Canceled)
}
