package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const slackBaseURL = "https://slack.com/api"

// SlackFetcher pulls channels and messages from the Slack Web API.
type SlackFetcher struct {
	client *resty.Client
}

func NewSlackFetcher(token string) *SlackFetcher {
	client := resty.New().
		SetBaseURL(slackBaseURL).
		SetAuthToken(token).
		SetTimeout(30 * time.Second)
	return &SlackFetcher{client: client}
}

type slackChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type slackMessage struct {
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	User     string `json:"user"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Files    []struct {
		Name     string `json:"name"`
		Mimetype string `json:"mimetype"`
		URL      string `json:"url_private"`
	} `json:"files"`
}

func (f *SlackFetcher) ListParentGroups(ctx context.Context) ([]RemoteGroup, error) {
	var body struct {
		OK       bool           `json:"ok"`
		Error    string         `json:"error"`
		Channels []slackChannel `json:"channels"`
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("types", "public_channel,private_channel").
		SetQueryParam("exclude_archived", "true").
		SetResult(&body).
		Get("/conversations.list")
	if err != nil {
		return nil, fmt.Errorf("slack conversations.list: %w", err)
	}
	if err := slackError(resp.StatusCode(), body.OK, body.Error); err != nil {
		return nil, err
	}

	groups := make([]RemoteGroup, 0, len(body.Channels))
	for _, ch := range body.Channels {
		groups = append(groups, RemoteGroup{ExternalID: ch.ID, Name: ch.Name})
	}
	return groups, nil
}

// ListRecords pages through conversations.history. The cursor is the ts of
// the newest message already ingested; Slack's own page cursor is carried
// inside NextCursor between pages of the same window.
func (f *SlackFetcher) ListRecords(ctx context.Context, channelID, cursor string) (Page, error) {
	oldest, pageCursor := splitSlackCursor(cursor)

	var body struct {
		OK       bool           `json:"ok"`
		Error    string         `json:"error"`
		Messages []slackMessage `json:"messages"`
		HasMore  bool           `json:"has_more"`
		Metadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}
	// oldest is always sent: with only oldest set, the API returns the
	// window in chronological order, page by page. The cursor logic needs
	// that ordering so a committed record never sits in front of an
	// uncommitted one.
	if oldest == "" {
		oldest = "0"
	}
	req := f.client.R().
		SetContext(ctx).
		SetQueryParam("channel", channelID).
		SetQueryParam("limit", "200").
		SetQueryParam("oldest", oldest).
		SetResult(&body)
	if pageCursor != "" {
		req.SetQueryParam("cursor", pageCursor)
	}

	resp, err := req.Get("/conversations.history")
	if err != nil {
		return Page{}, fmt.Errorf("slack conversations.history: %w", err)
	}
	if err := slackError(resp.StatusCode(), body.OK, body.Error); err != nil {
		return Page{}, err
	}

	records := make([]Record, 0, len(body.Messages))
	maxTS := oldest
	for _, m := range body.Messages {
		if m.Text == "" && len(m.Files) == 0 {
			continue
		}
		rec := Record{
			ExternalID: channelID + "-" + m.TS,
			Kind:       KindMessage,
			Text:       SlackToMarkdown(m.Text),
			AuthorID:   m.User,
			AuthorName: m.Username,
			Timestamp:  slackTS(m.TS),
			Cursor:     joinSlackCursor(m.TS, ""),
		}
		if m.ThreadTS != "" && m.ThreadTS != m.TS {
			rec.ReplyToID = channelID + "-" + m.ThreadTS
		}
		for _, file := range m.Files {
			rec.Attachments = append(rec.Attachments, Attachment{
				Name:     file.Name,
				URL:      file.URL,
				MimeType: file.Mimetype,
			})
		}
		if m.TS > maxTS {
			maxTS = m.TS
		}
		records = append(records, rec)
	}

	// Each record carries its own ts as cursor, so the emit order must be
	// ascending: committing one record's cursor may never skip a record
	// that came later in the page. Sorted here rather than trusted from
	// the API.
	sort.Slice(records, func(i, j int) bool { return records[i].Cursor < records[j].Cursor })

	page := Page{Records: records, HasMore: body.HasMore}
	if body.HasMore {
		page.NextCursor = joinSlackCursor(oldest, body.Metadata.NextCursor)
	} else {
		page.NextCursor = joinSlackCursor(maxTS, "")
	}
	return page, nil
}

func slackError(status int, ok bool, apiErr string) error {
	if status == 401 || status == 403 || apiErr == "invalid_auth" || apiErr == "not_authed" || apiErr == "token_revoked" {
		return fmt.Errorf("%w: slack %s", ErrAuth, apiErr)
	}
	if status != 200 || !ok {
		return fmt.Errorf("slack api error: status=%d err=%s", status, apiErr)
	}
	return nil
}

func slackTS(ts string) time.Time {
	sec, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}

// The watermark and Slack's in-flight page cursor travel in one opaque
// string: "<oldest_ts>|<page_cursor>".
func splitSlackCursor(cursor string) (oldest, page string) {
	for i := 0; i < len(cursor); i++ {
		if cursor[i] == '|' {
			return cursor[:i], cursor[i+1:]
		}
	}
	return cursor, ""
}

func joinSlackCursor(oldest, page string) string {
	if page == "" {
		return oldest
	}
	return oldest + "|" + page
}
