package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const notionBaseURL = "https://api.notion.com/v1"

// NotionFetcher pulls top-level pages and their blocks from the Notion API.
// Each page is a parent group; its blocks flatten into page records.
type NotionFetcher struct {
	client *resty.Client
}

func NewNotionFetcher(token string) *NotionFetcher {
	client := resty.New().
		SetBaseURL(notionBaseURL).
		SetAuthToken(token).
		SetHeader("Notion-Version", "2022-06-28").
		SetTimeout(30 * time.Second)
	return &NotionFetcher{client: client}
}

type notionPage struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	LastEditedTime time.Time `json:"last_edited_time"`
	CreatedBy      struct {
		ID string `json:"id"`
	} `json:"created_by"`
	Properties map[string]struct {
		Title []struct {
			PlainText string `json:"plain_text"`
		} `json:"title"`
	} `json:"properties"`
}

func (p notionPage) title() string {
	for _, prop := range p.Properties {
		if len(prop.Title) > 0 {
			parts := make([]string, 0, len(prop.Title))
			for _, t := range prop.Title {
				parts = append(parts, t.PlainText)
			}
			return strings.Join(parts, "")
		}
	}
	return "Untitled"
}

func (f *NotionFetcher) ListParentGroups(ctx context.Context) ([]RemoteGroup, error) {
	var groups []RemoteGroup
	cursor := ""
	for {
		body := map[string]interface{}{
			"filter":    map[string]string{"property": "object", "value": "page"},
			"page_size": 100,
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var result struct {
			Results    []notionPage `json:"results"`
			HasMore    bool         `json:"has_more"`
			NextCursor string       `json:"next_cursor"`
		}
		resp, err := f.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&result).
			Post("/search")
		if err != nil {
			return nil, fmt.Errorf("notion search: %w", err)
		}
		if err := notionError(resp.StatusCode(), resp.String()); err != nil {
			return nil, err
		}

		for _, page := range result.Results {
			groups = append(groups, RemoteGroup{ExternalID: page.ID, Name: page.title()})
		}
		if !result.HasMore {
			return groups, nil
		}
		cursor = result.NextCursor
	}
}

// ListRecords returns the page itself as a single record when it changed
// since the cursor. The cursor is the last_edited_time already ingested.
func (f *NotionFetcher) ListRecords(ctx context.Context, pageID, cursor string) (Page, error) {
	var page notionPage
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&page).
		Get("/pages/" + pageID)
	if err != nil {
		return Page{}, fmt.Errorf("notion get page %s: %w", pageID, err)
	}
	if err := notionError(resp.StatusCode(), resp.String()); err != nil {
		return Page{}, err
	}

	edited := page.LastEditedTime.UTC().Format(time.RFC3339)
	if cursor != "" && edited <= cursor {
		return Page{NextCursor: cursor}, nil
	}

	text, err := f.pageText(ctx, pageID)
	if err != nil {
		return Page{}, err
	}

	rec := Record{
		ExternalID: pageID,
		Kind:       KindPage,
		Text:       page.title() + "\n\n" + text,
		AuthorID:   page.CreatedBy.ID,
		URL:        page.URL,
		Timestamp:  page.LastEditedTime,
		Cursor:     edited,
	}
	return Page{Records: []Record{rec}, NextCursor: edited}, nil
}

func (f *NotionFetcher) pageText(ctx context.Context, pageID string) (string, error) {
	var result struct {
		Results []struct {
			Paragraph struct {
				RichText []struct {
					PlainText string `json:"plain_text"`
				} `json:"rich_text"`
			} `json:"paragraph"`
		} `json:"results"`
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("page_size", "100").
		SetResult(&result).
		Get("/blocks/" + pageID + "/children")
	if err != nil {
		return "", fmt.Errorf("notion block children %s: %w", pageID, err)
	}
	if err := notionError(resp.StatusCode(), resp.String()); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range result.Results {
		for _, rt := range block.Paragraph.RichText {
			sb.WriteString(rt.PlainText)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

func notionError(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: notion status %d", ErrAuth, status)
	case status != 200:
		return fmt.Errorf("notion api error: status=%d body=%s", status, body)
	}
	return nil
}
