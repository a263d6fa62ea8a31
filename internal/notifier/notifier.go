// Package notifier formats new feed entries and hands them to the message
// transport. Delivery is attempted at most once per entry per poll; a
// failed delivery is reported to the caller and never retried here.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"telefeed/internal/domain"
	"telefeed/internal/markdown"

	"github.com/PuerkitoBio/goquery"
)

const (
	previewMaxRunes = 200
	publishedFormat = "2006-01-02 15:04 UTC"
)

// Sender delivers a MarkdownV2 message to a Telegram chat. The chat may be
// an individual (positive ID) or a group (negative ID).
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Dispatcher struct {
	sender Sender
	log    *slog.Logger
}

func New(sender Sender, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log}
}

func (d *Dispatcher) Notify(
	ctx context.Context,
	chatID int64,
	sub domain.Subscription,
	entry domain.Entry,
) error {
	if err := d.sender.Send(ctx, chatID, FormatEntryMessage(sub, entry)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// FormatEntryMessage renders one entry against its feed context: linked
// entry title, feed title, author and publish time when present, and a
// truncated plain-text preview of the body.
func FormatEntryMessage(sub domain.Subscription, entry domain.Entry) string {
	var b strings.Builder

	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" {
		title = link
	}

	if link != "" {
		fmt.Fprintf(&b, "*[%s](%s)*\n", markdown.EscapeV2(title), link)
	} else {
		fmt.Fprintf(&b, "*%s*\n", markdown.EscapeV2(title))
	}

	feedTitle := strings.TrimSpace(sub.Title)
	if feedTitle == "" {
		feedTitle = sub.URL
	}
	fmt.Fprintf(&b, "_from %s_\n", markdown.EscapeV2(feedTitle))

	if entry.Author != "" {
		fmt.Fprintf(&b, "_by %s_\n", markdown.EscapeV2(entry.Author))
	}

	if !entry.Published.IsZero() {
		fmt.Fprintf(&b, "_%s_\n", markdown.EscapeV2(entry.Published.UTC().Format(publishedFormat)))
	}

	if preview := Preview(entry.Description, previewMaxRunes); preview != "" {
		b.WriteString("\n")
		b.WriteString(markdown.EscapeV2(preview))
		b.WriteString("\n")
	}

	return b.String()
}

// Preview strips HTML from a body snippet, collapses whitespace, and
// truncates to maxRunes with an ellipsis marker.
func Preview(body string, maxRunes int) string {
	text := strings.TrimSpace(body)
	if text == "" {
		return ""
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
		text = doc.Text()
	}

	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
