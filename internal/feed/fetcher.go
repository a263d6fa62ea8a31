package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telefeed/internal/domain"

	"github.com/mmcdole/gofeed"
)

const (
	attemptTimeout = 10 * time.Second
	maxAttempts    = 3
	backoffBase    = time.Second

	// MaxFeedBytes is the hard cap on a fetched feed body. Remote feeds are
	// untrusted input and must not be buffered without a bound.
	MaxFeedBytes = 2 << 20

	userAgent = "telefeed/1.0 (+https://github.com/telefeed)"
	accept    = "application/rss+xml, application/atom+xml, application/xml, text/xml"
)

var (
	// ErrInvalidFeed marks bodies that gofeed rejects or feeds without entries.
	ErrInvalidFeed = errors.New("invalid feed")

	// ErrTimeout marks attempts that exceeded the per-attempt timeout.
	ErrTimeout = errors.New("fetch timed out")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// TooLargeError is returned when a feed body exceeds MaxFeedBytes. Bytes
// holds the observed size: either the advertised Content-Length or the
// number of bytes read before the cap was hit.
type TooLargeError struct {
	Bytes int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("feed body of %d bytes exceeds %d byte cap", e.Bytes, int64(MaxFeedBytes))
}

type Fetcher struct {
	client  *http.Client
	parser  *gofeed.Parser
	backoff time.Duration
	log     *slog.Logger
}

func NewFetcher(log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: attemptTimeout},
		parser:  gofeed.NewParser(),
		backoff: backoffBase,
		log:     log,
	}
}

// Fetch retrieves and parses the feed at feedURL. Network errors, non-2xx
// statuses, and timeouts are retried up to maxAttempts with linearly growing
// backoff; oversize and unparsable bodies fail immediately. The last error
// is surfaced when all attempts are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*domain.FeedSnapshot, error) {
	feedURL = strings.TrimSpace(feedURL)
	if _, err := url.ParseRequestURI(feedURL); err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * f.backoff

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}

			f.log.DebugContext(ctx, "Retrying feed fetch",
				"feedURL", feedURL,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
		}

		snapshot, err := f.fetchOnce(ctx, feedURL)
		if err == nil {
			return snapshot, nil
		}

		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("fetch after %d attempts: %w", maxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) (*domain.FeedSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.ErrorContext(ctx, "Failed to close response body",
				"error", closeErr,
				"feedURL", feedURL)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	// Reject via the advertised length first to avoid downloading bodies
	// known to be oversize.
	if resp.ContentLength > MaxFeedBytes {
		return nil, &TooLargeError{Bytes: resp.ContentLength}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFeedBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > MaxFeedBytes {
		return nil, &TooLargeError{Bytes: int64(len(body))}
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("%w: feed has no entries", ErrInvalidFeed)
	}

	return snapshotFromParsed(feedURL, parsed), nil
}

func retryable(err error) bool {
	var tooLarge *TooLargeError
	if errors.As(err, &tooLarge) {
		return false
	}

	return !errors.Is(err, ErrInvalidFeed)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func snapshotFromParsed(feedURL string, parsed *gofeed.Feed) *domain.FeedSnapshot {
	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = feedURL
	}

	entries := make([]domain.Entry, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		description := strings.TrimSpace(item.Description)
		if description == "" {
			description = strings.TrimSpace(item.Content)
		}

		var author string
		if item.Author != nil {
			author = strings.TrimSpace(item.Author.Name)
		}

		entries = append(entries, domain.Entry{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: description,
			GUID:        strings.TrimSpace(item.GUID),
			Author:      author,
			Published:   published,
		})
	}

	return &domain.FeedSnapshot{Title: title, Entries: entries}
}
