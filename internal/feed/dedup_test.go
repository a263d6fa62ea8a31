package feed

import (
	"fmt"
	"testing"
	"time"

	"telefeed/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintPrefersGUIDThenLinkThenTitle(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.Entry
		want  string
	}{
		{
			"GUID wins",
			domain.Entry{GUID: "guid-1", Link: "https://example.com/a", Title: "A"},
			"guid-1",
		},
		{
			"Link when GUID is empty",
			domain.Entry{Link: "https://example.com/a", Title: "A"},
			"https://example.com/a",
		},
		{
			"Title when GUID and link are empty",
			domain.Entry{Title: "A"},
			"A",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Fingerprint(test.entry))
		})
	}
}

func TestFingerprintUnidentifiableEntryIsDeterministic(t *testing.T) {
	published := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	entry := domain.Entry{Published: published}
	other := domain.Entry{Published: published}

	fp := Fingerprint(entry)
	require.NotEmpty(t, fp)
	assert.Equal(t, fp, Fingerprint(other))

	later := domain.Entry{Published: published.Add(time.Hour)}
	assert.NotEqual(t, fp, Fingerprint(later))
}

func TestDiffReturnsOnlyUnseenEntriesInFeedOrder(t *testing.T) {
	snapshot := &domain.FeedSnapshot{
		Title: "Example",
		Entries: []domain.Entry{
			{GUID: "a"},
			{GUID: "b"},
			{GUID: "c"},
			{GUID: "d"},
		},
	}

	newEntries, updatedSeen := Diff([]string{"a", "b", "c"}, snapshot)

	require.Len(t, newEntries, 1)
	assert.Equal(t, "d", newEntries[0].GUID)
	assert.Equal(t, []string{"a", "b", "c", "d"}, updatedSeen)
}

func TestDiffPreservesSnapshotOrderForMultipleNewEntries(t *testing.T) {
	snapshot := &domain.FeedSnapshot{
		Entries: []domain.Entry{
			{GUID: "z"},
			{GUID: "x"},
			{GUID: "y"},
		},
	}

	newEntries, updatedSeen := Diff(nil, snapshot)

	require.Len(t, newEntries, 3)
	assert.Equal(t, "z", newEntries[0].GUID)
	assert.Equal(t, "x", newEntries[1].GUID)
	assert.Equal(t, "y", newEntries[2].GUID)
	assert.Equal(t, []string{"z", "x", "y"}, updatedSeen)
}

func TestDiffSkipsDuplicateFingerprintsWithinSnapshot(t *testing.T) {
	snapshot := &domain.FeedSnapshot{
		Entries: []domain.Entry{
			{GUID: "a"},
			{GUID: "a"},
		},
	}

	newEntries, updatedSeen := Diff(nil, snapshot)

	assert.Len(t, newEntries, 1)
	assert.Equal(t, []string{"a"}, updatedSeen)
}

func TestDiffEvictsOldestBeyondCap(t *testing.T) {
	seen := make([]string, SeenSetCap)
	for i := range seen {
		seen[i] = fmt.Sprintf("old-%d", i)
	}

	snapshot := &domain.FeedSnapshot{
		Entries: []domain.Entry{
			{GUID: "new-0"},
			{GUID: "new-1"},
			{GUID: "new-2"},
			{GUID: "new-3"},
			{GUID: "new-4"},
		},
	}

	newEntries, updatedSeen := Diff(seen, snapshot)

	require.Len(t, newEntries, 5)
	require.Len(t, updatedSeen, SeenSetCap)

	// Oldest five evicted, the rest shifted forward, new ones appended.
	assert.Equal(t, "old-5", updatedSeen[0])
	assert.Equal(t, "old-99", updatedSeen[SeenSetCap-6])
	assert.Equal(t, "new-0", updatedSeen[SeenSetCap-5])
	assert.Equal(t, "new-4", updatedSeen[SeenSetCap-1])
	assert.NotContains(t, updatedSeen, "old-0")
	assert.NotContains(t, updatedSeen, "old-4")
}

func TestDiffDoesNotMutateSeenArgument(t *testing.T) {
	seen := []string{"a"}
	snapshot := &domain.FeedSnapshot{
		Entries: []domain.Entry{{GUID: "b"}},
	}

	_, _ = Diff(seen, snapshot)

	assert.Equal(t, []string{"a"}, seen)
}
