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

func TestHasNextLink(t *testing.T) {
	t.Run("WithNext", func(t *testing.T) {
		link := `<https://api.github.com/user/repos?page=2>; rel="next", <https://api.github.com/user/repos?page=5>; rel="last"`
		assert.True(t, hasNextLink(link))
	})

	t.Run("LastPage", func(t *testing.T) {
		link := `<https://api.github.com/user/repos?page=1>; rel="first", <https://api.github.com/user/repos?page=4>; rel="prev"`
		assert.False(t, hasNextLink(link))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.False(t, hasNextLink(""))
	})
}

func TestGithubListRecords_CursorPerRecord(t *testing.T) {
	var gotSort, gotDirection string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSort = r.URL.Query().Get("sort")
		gotDirection = r.URL.Query().Get("direction")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"number": 7, "title": "first", "updated_at": "2026-01-01T10:00:00Z", "user": map[string]string{"login": "ada"}},
			{"number": 9, "title": "second", "updated_at": "2026-01-02T10:00:00Z", "user": map[string]string{"login": "bob"}},
		})
	}))
	defer srv.Close()

	f := &GithubFetcher{client: resty.New().SetBaseURL(srv.URL)}
	page, err := f.ListRecords(context.Background(), "acme/api", "")
	assert.NoError(t, err)

	// The query asks for ascending update order and every record carries
	// its own updated_at as cursor, so committing a prefix of the page
	// never skips a later issue.
	assert.Equal(t, "updated", gotSort)
	assert.Equal(t, "asc", gotDirection)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, "acme/api#7", page.Records[0].ExternalID)
	assert.Equal(t, "2026-01-01T10:00:00Z", page.Records[0].Cursor)
	assert.Equal(t, "2026-01-02T10:00:00Z", page.Records[1].Cursor)
	assert.Equal(t, "2026-01-02T10:00:00Z", page.NextCursor)
}

func TestGithubErrorClassification(t *testing.T) {
	t.Run("Unauthorized", func(t *testing.T) {
		assert.ErrorIs(t, githubError(401, "bad credentials"), ErrAuth)
	})

	t.Run("Forbidden", func(t *testing.T) {
		assert.ErrorIs(t, githubError(403, "token expired"), ErrAuth)
	})

	t.Run("ServerError", func(t *testing.T) {
		err := githubError(502, "bad gateway")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrAuth)
	})

	t.Run("OK", func(t *testing.T) {
		assert.NoError(t, githubError(200, ""))
	})
}
