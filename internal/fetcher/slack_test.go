package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
)

func TestSlackCursorRoundTrip(t *testing.T) {
	t.Run("OldestOnly", func(t *testing.T) {
		oldest, page := splitSlackCursor("1700000000.000100")
		assert.Equal(t, "1700000000.000100", oldest)
		assert.Empty(t, page)
		assert.Equal(t, "1700000000.000100", joinSlackCursor(oldest, page))
	})

	t.Run("WithPageCursor", func(t *testing.T) {
		joined := joinSlackCursor("1700000000.000100", "dXNlcjpV")
		assert.Equal(t, "1700000000.000100|dXNlcjpV", joined)

		oldest, page := splitSlackCursor(joined)
		assert.Equal(t, "1700000000.000100", oldest)
		assert.Equal(t, "dXNlcjpV", page)
	})

	t.Run("EmptyCursor", func(t *testing.T) {
		oldest, page := splitSlackCursor("")
		assert.Empty(t, oldest)
		assert.Empty(t, page)
	})
}

func TestSlackListRecords_CursorPerRecord(t *testing.T) {
	var gotOldest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOldest = r.URL.Query().Get("oldest")
		w.Header().Set("Content-Type", "application/json")
		// Newest-first, the way the API would deliver without ordering.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok": true,
			"messages": []map[string]interface{}{
				{"ts": "1700000400.000100", "user": "U1", "text": "newest"},
				{"ts": "1700000300.000100", "user": "U1", "text": "middle"},
				{"ts": "1700000200.000100", "user": "U2", "text": "oldest"},
			},
			"has_more": false,
		})
	}))
	defer srv.Close()

	f := &SlackFetcher{client: resty.New().SetBaseURL(srv.URL)}
	page, err := f.ListRecords(context.Background(), "C1", "1700000100.000100")
	assert.NoError(t, err)
	assert.Equal(t, "1700000100.000100", gotOldest)

	// Records come out oldest-first and each carries its own ts as cursor,
	// so committing any prefix of the page never skips what follows it.
	assert.Len(t, page.Records, 3)
	assert.Equal(t, "C1-1700000200.000100", page.Records[0].ExternalID)
	assert.Equal(t, "1700000200.000100", page.Records[0].Cursor)
	assert.Equal(t, "1700000300.000100", page.Records[1].Cursor)
	assert.Equal(t, "1700000400.000100", page.Records[2].Cursor)
	assert.Equal(t, "1700000400.000100", page.NextCursor)
}

func TestSlackListRecords_FirstSyncSendsFloorOldest(t *testing.T) {
	var gotOldest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOldest = r.URL.Query().Get("oldest")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "messages": []map[string]interface{}{}, "has_more": false})
	}))
	defer srv.Close()

	f := &SlackFetcher{client: resty.New().SetBaseURL(srv.URL)}
	_, err := f.ListRecords(context.Background(), "C1", "")
	assert.NoError(t, err)
	// Sending oldest always keeps the API's delivery chronological.
	assert.Equal(t, "0", gotOldest)
}
