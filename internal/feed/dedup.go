package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"telefeed/internal/domain"
)

// SeenSetCap bounds the per-feed fingerprint history. An entry that
// reappears after SeenSetCap newer entries were seen is reported as new
// again; the bounded lookback window is an accepted trade-off.
const SeenSetCap = 100

// Fingerprint derives a deterministic identifier for an entry: GUID when
// present, else link, else title. Entries with none of the three get a
// content hash of title, link, and publish time so that repeated polls keep
// producing the same fingerprint instead of re-notifying every time.
func Fingerprint(entry domain.Entry) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	if entry.Link != "" {
		return entry.Link
	}
	if entry.Title != "" {
		return entry.Title
	}

	sum := sha256.Sum256([]byte(
		entry.Title + "|" + entry.Link + "|" + entry.Published.UTC().Format(time.RFC3339),
	))

	return hex.EncodeToString(sum[:])
}

// Diff splits a snapshot into entries whose fingerprints are absent from
// seen, preserving feed-provided order, and returns the updated seen set
// with new fingerprints appended and the oldest evicted beyond SeenSetCap.
func Diff(seen []string, snapshot *domain.FeedSnapshot) ([]domain.Entry, []string) {
	known := make(map[string]struct{}, len(seen))
	for _, fp := range seen {
		known[fp] = struct{}{}
	}

	var newEntries []domain.Entry
	updated := slices.Clone(seen)

	for _, entry := range snapshot.Entries {
		fp := Fingerprint(entry)
		if _, ok := known[fp]; ok {
			continue
		}

		known[fp] = struct{}{}
		newEntries = append(newEntries, entry)
		updated = append(updated, fp)
	}

	if len(updated) > SeenSetCap {
		updated = slices.Clone(updated[len(updated)-SeenSetCap:])
	}

	return newEntries, updated
}
