package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telefeed/internal/domain"
	"telefeed/internal/feed"
	"telefeed/internal/markdown"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"mvdan.cc/xurls/v2"
)

const helpText = `🤖 *Welcome to telefeed\!*

I watch RSS and Atom feeds and send you every new entry\.

– /sub URL — follow a feed
– /unsub URL — unfollow a feed
– /list — show followed feeds
– /export — export feeds as OPML
– /help — show this message

Feeds are checked every few minutes\. Entries already published when you
subscribe are not re\-delivered\.`

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if !message.IsCommand() {
		return nil
	}

	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start", "help":
		return b.Send(ctx, chatID, helpText)
	case "sub":
		return b.handleSubscribe(ctx, chatID, args)
	case "unsub":
		return b.handleUnsubscribe(ctx, chatID, args)
	case "list", "rss":
		return b.handleList(ctx, chatID)
	case "export":
		return b.handleExport(ctx, chatID)
	default:
		return b.Send(ctx, chatID, "❔ Unknown command\\. Try /help\\.")
	}
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, args string) error {
	feedURL := xurls.Strict().FindString(args)
	if feedURL == "" {
		return b.Send(ctx, chatID, "Usage: /sub https://example\\.com/feed\\.xml")
	}

	snapshot, err := b.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		errs := []error{fmt.Errorf("fetch feed: %w", err)}

		sendErr := b.Send(ctx, chatID, fmt.Sprintf(
			"❌ Cannot read that feed: %s",
			markdown.EscapeV2(err.Error()),
		))
		if sendErr != nil {
			errs = append(errs, fmt.Errorf("send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if sub.URL == feedURL {
			return b.Send(ctx, chatID, "✖️ You are already subscribed to this feed\\.")
		}
	}

	now := time.Now()
	subs = append(subs, domain.Subscription{
		URL:           feedURL,
		Title:         snapshot.Title,
		AddedAt:       now.Unix(),
		LastFetchedAt: 0,
	})

	if err = b.store.SaveSubscriptions(ctx, chatID, subs); err != nil {
		return fmt.Errorf("save subscriptions: %w", err)
	}

	// Mark the snapshot's entries as already seen so history is not
	// delivered on the first poll.
	_, seen := feed.Diff(nil, snapshot)
	if err = b.store.SaveSeenSet(ctx, feedURL, seen); err != nil {
		return fmt.Errorf("save seen set: %w", err)
	}

	return b.Send(ctx, chatID, fmt.Sprintf(
		"✅ Subscribed to *%s*\\.",
		markdown.EscapeV2(snapshot.Title),
	))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, args string) error {
	feedURL := xurls.Strict().FindString(args)
	if feedURL == "" {
		return b.Send(ctx, chatID, "Usage: /unsub https://example\\.com/feed\\.xml")
	}

	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	var removed *domain.Subscription
	filtered := make([]domain.Subscription, 0, len(subs))

	for _, sub := range subs {
		if sub.URL == feedURL {
			s := sub
			removed = &s

			continue
		}

		filtered = append(filtered, sub)
	}

	if removed == nil {
		return b.Send(ctx, chatID, "✖️ You are not subscribed to this feed\\.")
	}

	if err = b.store.SaveSubscriptions(ctx, chatID, filtered); err != nil {
		return fmt.Errorf("save subscriptions: %w", err)
	}

	title := strings.TrimSpace(removed.Title)
	if title == "" {
		title = removed.URL
	}

	return b.Send(ctx, chatID, fmt.Sprintf(
		"✅ Unsubscribed from *%s*\\.",
		markdown.EscapeV2(title),
	))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) error {
	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	if len(subs) == 0 {
		return b.Send(ctx, chatID, "✖️ You have no subscriptions yet\\. Add one with /sub\\.")
	}

	var message strings.Builder
	fmt.Fprintf(&message, "🔍 *Found %d feeds:*\n\n", len(subs))

	for i, sub := range subs {
		url := strings.TrimSpace(sub.URL)
		if url == "" {
			continue
		}

		title := strings.TrimSpace(sub.Title)
		if title == "" {
			title = url
		}

		fmt.Fprintf(&message, "%d\\. [%s](%s)\n", i+1, markdown.EscapeV2(title), url)
	}

	return b.Send(ctx, chatID, message.String())
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) error {
	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	if len(subs) == 0 {
		return b.Send(ctx, chatID, "✖️ You have no subscriptions to export\\.")
	}

	data, err := BuildOPML(subs)
	if err != nil {
		return fmt.Errorf("build OPML: %w", err)
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "subscriptions.opml",
		Bytes: data,
	})

	if _, err = b.rateLimiter.Send(ctx, chatID, doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	return nil
}
