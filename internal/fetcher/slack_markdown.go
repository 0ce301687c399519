package fetcher

import (
	"regexp"
	"strings"
)

var (
	slackLinkRe    = regexp.MustCompile(`<([^|>]+)\|([^>]+)>`)
	slackURLRe     = regexp.MustCompile(`<(https?://[^>]+)>`)
	slackChannelRe = regexp.MustCompile(`<#([A-Z0-9]+)\|([^>]*)>`)
	slackUserRe    = regexp.MustCompile(`<@([A-Z0-9]+)\|?([^>]*)>`)
	slackCommandRe = regexp.MustCompile(`<!([^>]+)>`)
	slackBoldRe    = regexp.MustCompile(`\*([^*\n]+)\*`)
	slackStrikeRe  = regexp.MustCompile(`~([^~\n]+)~`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// SlackToMarkdown converts Slack message markup to plain markdown so the
// text hashes, embeds, and renders the same way as content from other sources.
func SlackToMarkdown(text string) string {
	if text == "" {
		return ""
	}

	// Channel and user references before the generic link form.
	text = slackChannelRe.ReplaceAllString(text, "#$2")
	text = slackUserRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := slackUserRe.FindStringSubmatch(m)
		if parts[2] != "" {
			return "@" + parts[2]
		}
		return "@" + parts[1]
	})

	// <url|text> -> [text](url), then bare <url> -> url.
	text = slackLinkRe.ReplaceAllString(text, "[$2]($1)")
	text = slackURLRe.ReplaceAllString(text, "$1")

	// Special commands like <!here|here> render their label.
	text = slackCommandRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := slackCommandRe.FindStringSubmatch(m)[1]
		if idx := strings.IndexByte(inner, '|'); idx >= 0 {
			return inner[idx+1:]
		}
		return inner
	})

	text = slackBoldRe.ReplaceAllString(text, "**$1**")
	text = slackStrikeRe.ReplaceAllString(text, "~~$1~~")

	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
