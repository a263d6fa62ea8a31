package domain

import "time"

// Subscription ties a subscriber (Telegram chat) to a feed URL. Timestamps
// are unix seconds; LastFetchedAt == 0 means the feed was never polled.
type Subscription struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	AddedAt       int64  `json:"addedAt"`
	LastFetchedAt int64  `json:"lastFetched"`
}

// FeedSnapshot is the result of one fetch. It is never persisted.
type FeedSnapshot struct {
	Title   string
	Entries []Entry
}

// Entry is a single feed item in feed-provided order.
type Entry struct {
	Title       string
	Link        string
	Description string
	GUID        string
	Author      string
	Published   time.Time
}
