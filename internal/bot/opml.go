package bot

import (
	"encoding/xml"
	"fmt"
	"strings"

	"telefeed/internal/domain"
)

type opml struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title string `xml:"title"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Type   string `xml:"type,attr"`
	Text   string `xml:"text,attr"`
	Title  string `xml:"title,attr"`
	XMLURL string `xml:"xmlUrl,attr"`
}

// BuildOPML renders a subscription list as an OPML 1.0 document.
func BuildOPML(subs []domain.Subscription) ([]byte, error) {
	doc := opml{
		Version: "1.0",
		Head:    opmlHead{Title: "telefeed subscriptions"},
	}

	for _, sub := range subs {
		title := strings.TrimSpace(sub.Title)
		if title == "" {
			title = sub.URL
		}

		doc.Body.Outlines = append(doc.Body.Outlines, opmlOutline{
			Type:   "rss",
			Text:   title,
			Title:  title,
			XMLURL: sub.URL,
		})
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal OPML: %w", err)
	}

	return append([]byte(xml.Header), data...), nil
}
