package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const githubBaseURL = "https://api.github.com"

// GithubFetcher pulls repositories, pull requests and issues from the
// GitHub REST API. Repositories are the parent groups.
type GithubFetcher struct {
	client *resty.Client
}

func NewGithubFetcher(token string) *GithubFetcher {
	client := resty.New().
		SetBaseURL(githubBaseURL).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetAuthToken(token).
		SetTimeout(30 * time.Second)
	return &GithubFetcher{client: client}
}

type githubRepo struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
}

type githubIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	UpdatedAt   time.Time `json:"updated_at"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

func (f *GithubFetcher) ListParentGroups(ctx context.Context) ([]RemoteGroup, error) {
	var groups []RemoteGroup
	page := 1
	for {
		var repos []githubRepo
		resp, err := f.client.R().
			SetContext(ctx).
			SetQueryParam("per_page", "100").
			SetQueryParam("page", strconv.Itoa(page)).
			SetResult(&repos).
			Get("/user/repos")
		if err != nil {
			return nil, fmt.Errorf("github list repos: %w", err)
		}
		if err := githubError(resp.StatusCode(), resp.String()); err != nil {
			return nil, err
		}
		for _, repo := range repos {
			groups = append(groups, RemoteGroup{ExternalID: repo.FullName, Name: repo.FullName})
		}
		if !hasNextLink(resp.Header().Get("Link")) {
			return groups, nil
		}
		page++
	}
}

// ListRecords fetches issues and pull requests updated since the cursor,
// one API page at a time. Cursor format: "<since_rfc3339>|<page>".
func (f *GithubFetcher) ListRecords(ctx context.Context, repoFullName, cursor string) (Page, error) {
	since, pageNum := splitGithubCursor(cursor)

	// Ascending update order is load-bearing: each record carries its own
	// updated_at as cursor, and committing one may never skip an issue
	// that sorts after it.
	var issues []githubIssue
	req := f.client.R().
		SetContext(ctx).
		SetQueryParam("state", "all").
		SetQueryParam("sort", "updated").
		SetQueryParam("direction", "asc").
		SetQueryParam("per_page", "100").
		SetQueryParam("page", strconv.Itoa(pageNum)).
		SetResult(&issues)
	if since != "" {
		req.SetQueryParam("since", since)
	}

	resp, err := req.Get("/repos/" + repoFullName + "/issues")
	if err != nil {
		return Page{}, fmt.Errorf("github list issues for %s: %w", repoFullName, err)
	}
	if err := githubError(resp.StatusCode(), resp.String()); err != nil {
		return Page{}, err
	}

	records := make([]Record, 0, len(issues))
	newest := since
	for _, is := range issues {
		kind := KindIssue
		if is.PullRequest != nil {
			kind = KindPull
		}
		text := is.Title
		if is.Body != "" {
			text += "\n\n" + is.Body
		}
		ts := is.UpdatedAt.UTC().Format(time.RFC3339)
		if ts > newest {
			newest = ts
		}
		records = append(records, Record{
			ExternalID: fmt.Sprintf("%s#%d", repoFullName, is.Number),
			Kind:       kind,
			Text:       text,
			AuthorID:   is.User.Login,
			AuthorName: is.User.Login,
			URL:        is.HTMLURL,
			Timestamp:  is.UpdatedAt,
			Cursor:     ts,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Cursor < records[j].Cursor })

	page := Page{Records: records}
	if hasNextLink(resp.Header().Get("Link")) {
		page.HasMore = true
		page.NextCursor = fmt.Sprintf("%s|%d", since, pageNum+1)
	} else {
		page.NextCursor = newest
	}
	return page, nil
}

func githubError(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: github status %d", ErrAuth, status)
	case status != 200:
		return fmt.Errorf("github api error: status=%d body=%s", status, body)
	}
	return nil
}

func hasNextLink(link string) bool {
	return link != "" && containsRelNext(link)
}

func containsRelNext(link string) bool {
	const marker = `rel="next"`
	for i := 0; i+len(marker) <= len(link); i++ {
		if link[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}

func splitGithubCursor(cursor string) (since string, page int) {
	page = 1
	for i := 0; i < len(cursor); i++ {
		if cursor[i] == '|' {
			if n, err := strconv.Atoi(cursor[i+1:]); err == nil && n > 0 {
				page = n
			}
			return cursor[:i], page
		}
	}
	return cursor, page
}
