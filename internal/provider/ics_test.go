package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhive/backend/repository"
	"github.com/planhive/backend/repository/memory"
)

const feedFixture = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//feed//EN
BEGIN:VEVENT
UID:uid-timed
SUMMARY:Standup
DTSTART:20250310T090000Z
DTEND:20250310T091500Z
END:VEVENT
BEGIN:VEVENT
UID:uid-allday
SUMMARY:Holiday
DTSTART;VALUE=DATE:20250424
DTEND;VALUE=DATE:20250425
END:VEVENT
BEGIN:VEVENT
SUMMARY:No uid, skipped
DTSTART:20250311T090000Z
END:VEVENT
END:VCALENDAR
`

func serveFeed(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestImportFeedShardsByMonth(t *testing.T) {
	store := memory.New()
	importer := NewICSImporter(store, nil)

	written, err := importer.ImportFeed(context.Background(), serveFeed(t, feedFixture), "cal-1")
	require.NoError(t, err)
	assert.Equal(t, 2, written, "events without a UID are skipped")

	march, err := store.Get(context.Background(), repository.Calendars.ShardPath("cal-1", "2025-03"))
	require.NoError(t, err)
	timed, ok := march["uid-timed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Standup", timed["title"])
	assert.Equal(t, "ical", timed["source"])
	_, hasID := timed["id"]
	assert.False(t, hasID)

	april, err := store.Get(context.Background(), repository.Calendars.ShardPath("cal-1", "2025-04"))
	require.NoError(t, err)
	allDay, ok := april["uid-allday"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, allDay["isAllDay"])
	assert.Equal(t, "2025-04-24", allDay["startTime"])
}

func TestImportFeedIsIdempotent(t *testing.T) {
	store := memory.New()
	importer := NewICSImporter(store, nil)
	url := serveFeed(t, feedFixture)

	_, err := importer.ImportFeed(context.Background(), url, "cal-1")
	require.NoError(t, err)
	_, err = importer.ImportFeed(context.Background(), url, "cal-1")
	require.NoError(t, err)

	march, err := store.Get(context.Background(), repository.Calendars.ShardPath("cal-1", "2025-03"))
	require.NoError(t, err)
	assert.Len(t, march, 1, "re-imports overwrite by UID, never duplicate")
}

func TestImportFeedNeverResurrectsSoftDeletes(t *testing.T) {
	store := memory.New()
	importer := NewICSImporter(store, nil)
	url := serveFeed(t, feedFixture)

	_, err := importer.ImportFeed(context.Background(), url, "cal-1")
	require.NoError(t, err)

	// The user deletes the synced event locally.
	path := repository.Calendars.ShardPath("cal-1", "2025-03")
	doc, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	item := doc["uid-timed"].(map[string]any)
	item["deleted"] = true
	require.NoError(t, store.SetMerge(context.Background(), path, repository.Document{"uid-timed": item}))

	_, err = importer.ImportFeed(context.Background(), url, "cal-1")
	require.NoError(t, err)

	after, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	refreshed := after["uid-timed"].(map[string]any)
	assert.Equal(t, true, refreshed["deleted"], "a re-import must not undo a local delete")
}

func TestImportFeedBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	importer := NewICSImporter(memory.New(), nil)
	_, err := importer.ImportFeed(context.Background(), srv.URL, "cal-1")
	require.Error(t, err)
}

func TestImportFeedUnparseableBody(t *testing.T) {
	importer := NewICSImporter(memory.New(), nil)
	_, err := importer.ImportFeed(context.Background(), serveFeed(t, "not an ics feed"), "cal-1")
	require.Error(t, err)
}
