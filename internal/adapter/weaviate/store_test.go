package weaviate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// graphqlCapture serves the weaviate GraphQL endpoint and records the last
// query string it received.
func graphqlCapture(t *testing.T, response string) (*Store, *string) {
	t.Helper()
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/graphql") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode graphql request: %v", err)
		}
		lastQuery = body.Query
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: "http"})
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(client), &lastQuery
}

func TestStoreSearch(t *testing.T) {
	response := `{"data":{"Get":{"ContentChunk":[
		{"nodeId":"slack:msg-1","content":"the deploy broke","source":"slack",
		 "title":"#ops","url":"https://x/1","author":"dana","createdAt":"2026-02-01T10:00:00Z",
		 "_additional":{"certainty":0.91}}
	]}}}`

	t.Run("ScopedQueryFiltersByIntegration", func(t *testing.T) {
		store, lastQuery := graphqlCapture(t, response)

		results, err := store.Search(context.Background(), []float32{0.1, 0.2}, []string{"int-1", "int-2"}, 5)
		assert.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Equal(t, "slack:msg-1", results[0].NodeID)
		assert.InDelta(t, 0.91, results[0].Score, 0.001)

		assert.Contains(t, *lastQuery, "nearVector")
		assert.Contains(t, *lastQuery, "integrationId")
		assert.Contains(t, *lastQuery, "int-1")
		assert.Contains(t, *lastQuery, "int-2")
	})

	t.Run("EmptyScopeSearchesWholeIndex", func(t *testing.T) {
		store, lastQuery := graphqlCapture(t, response)

		results, err := store.Search(context.Background(), []float32{0.1, 0.2}, nil, 5)
		assert.NoError(t, err)
		assert.Len(t, results, 1)

		// Unscoped means no where-filter at all, not a filter that
		// matches nothing.
		assert.NotContains(t, *lastQuery, "where")
		assert.NotContains(t, *lastQuery, "integrationId")
	})
}
