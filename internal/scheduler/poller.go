package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"telefeed/internal/domain"
	"telefeed/internal/feed"
)

const (
	// MinInterval is the minimum time between two polls of the same
	// subscription. It also rate-limits retries of a failing feed, since
	// LastFetchedAt advances even when the fetch errors.
	MinInterval = 5 * time.Minute

	defaultConcurrency = 8
)

type SubscriptionStore interface {
	ListAllSubscriberIDs(ctx context.Context) ([]int64, error)
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]domain.Subscription, error)
	SaveSubscriptions(ctx context.Context, subscriberID int64, subs []domain.Subscription) error
	GetSeenSet(ctx context.Context, feedURL string) ([]string, error)
	SaveSeenSet(ctx context.Context, feedURL string, fingerprints []string) error
}

type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) (*domain.FeedSnapshot, error)
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, sub domain.Subscription, entry domain.Entry) error
}

// Poller runs one best-effort sweep over all subscribers per invocation.
// Failures on one subscription never abort sibling subscriptions or other
// subscribers.
type Poller struct {
	store       SubscriptionStore
	fetcher     Fetcher
	notifier    Notifier
	concurrency int
	now         func() time.Time

	sweepMu   sync.Mutex
	feedMu    sync.Mutex
	feedLocks map[string]*sync.Mutex

	log *slog.Logger
}

func NewPoller(
	store SubscriptionStore,
	fetcher Fetcher,
	notifier Notifier,
	concurrency int,
	log *slog.Logger,
) *Poller {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Poller{
		store:       store,
		fetcher:     fetcher,
		notifier:    notifier,
		concurrency: concurrency,
		now:         time.Now,
		feedLocks:   make(map[string]*sync.Mutex),
		log:         log,
	}
}

// RunOnce sweeps every subscriber whose subscriptions are due. Subscribers
// are processed by a bounded worker pool; each subscriber's read-modify-
// write of its subscription list stays on a single goroutine. Overlapping
// invocations are rejected so two sweeps can never race on the same keys.
func (p *Poller) RunOnce(ctx context.Context) {
	if !p.sweepMu.TryLock() {
		p.log.WarnContext(ctx, "Previous sweep is still running, skipping this tick")

		return
	}
	defer p.sweepMu.Unlock()

	subscriberIDs, err := p.store.ListAllSubscriberIDs(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to list subscriber IDs",
			"error", err)

		return
	}

	var wg sync.WaitGroup
	semCh := make(chan struct{}, p.concurrency)

	for _, subscriberID := range subscriberIDs {
		// The soft deadline is only checked between subscribers so an
		// in-flight subscriber is never left half-updated.
		if ctx.Err() != nil {
			p.log.InfoContext(ctx, "Sweep deadline reached, deferring remaining subscribers",
				"error", ctx.Err())

			break
		}

		wg.Add(1)
		semCh <- struct{}{}

		go func(subscriberID int64) {
			defer wg.Done()
			defer func() { <-semCh }()

			p.processSubscriber(ctx, subscriberID)
		}(subscriberID)
	}

	wg.Wait()
}

func (p *Poller) processSubscriber(ctx context.Context, subscriberID int64) {
	subs, err := p.store.ListSubscriptions(ctx, subscriberID)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to list subscriptions",
			"error", err,
			"subscriberID", subscriberID)

		return
	}
	if len(subs) == 0 {
		return
	}

	now := p.now()
	mutated := false

	for i := range subs {
		lastFetched := time.Unix(subs[i].LastFetchedAt, 0)
		if now.Sub(lastFetched) < MinInterval {
			continue
		}

		subs[i].LastFetchedAt = now.Unix()
		mutated = true

		p.pollSubscription(ctx, subscriberID, &subs[i])
	}

	if !mutated {
		return
	}

	if err = p.store.SaveSubscriptions(ctx, subscriberID, subs); err != nil {
		p.log.ErrorContext(ctx, "Failed to save subscriptions",
			"error", err,
			"subscriberID", subscriberID,
			"subscriptionCount", len(subs))
	}
}

func (p *Poller) pollSubscription(
	ctx context.Context,
	subscriberID int64,
	sub *domain.Subscription,
) {
	snapshot, err := p.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to fetch feed",
			"error", err,
			"feedURL", sub.URL,
			"subscriberID", subscriberID)

		return
	}

	if title := strings.TrimSpace(snapshot.Title); title != "" && title != sub.Title {
		sub.Title = title
	}

	// One seen-set writer per feed URL in flight at a time: subscribers of
	// the same feed may be polled concurrently.
	unlock := p.lockFeed(sub.URL)
	defer unlock()

	seen, err := p.store.GetSeenSet(ctx, sub.URL)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to get seen set",
			"error", err,
			"feedURL", sub.URL,
			"subscriberID", subscriberID)

		return
	}

	newEntries, updatedSeen := feed.Diff(seen, snapshot)
	if len(newEntries) == 0 {
		return
	}

	// Entries are marked seen before dispatch: a lost notification is not
	// recovered (at-most-once delivery).
	if err = p.store.SaveSeenSet(ctx, sub.URL, updatedSeen); err != nil {
		p.log.ErrorContext(ctx, "Failed to save seen set",
			"error", err,
			"feedURL", sub.URL,
			"subscriberID", subscriberID)

		return
	}

	for _, entry := range newEntries {
		if err = p.notifier.Notify(ctx, subscriberID, *sub, entry); err != nil {
			p.log.ErrorContext(ctx, "Failed to deliver notification",
				"error", err,
				"feedURL", sub.URL,
				"subscriberID", subscriberID,
				"entryLink", entry.Link)
		}
	}
}

func (p *Poller) lockFeed(feedURL string) func() {
	p.feedMu.Lock()
	m, ok := p.feedLocks[feedURL]
	if !ok {
		m = &sync.Mutex{}
		p.feedLocks[feedURL] = m
	}
	p.feedMu.Unlock()

	m.Lock()

	return m.Unlock
}
