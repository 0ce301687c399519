package chat_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"weft/features/chat"
)

func TestParseCitations(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []int
	}{
		{"None", "no citations here", nil},
		{"Single", "the deploy broke ^1^", []int{1}},
		{"Multiple", "first ^1^ then ^2^ and ^3^", []int{1, 2, 3}},
		{"Grouped", "both sources agree ^1,3^", []int{1, 3}},
		{"RepeatKeepsFirstPosition", "a ^2^ b ^1^ c ^2^", []int{2, 1}},
		{"GroupThenRepeat", "^1^ ... ^2,1^ ... ^3^", []int{1, 2, 3}},
		{"IgnoresZero", "bad ^0^ good ^1^", []int{1}},
		{"IgnoresMalformed", "stray ^ carets ^^ and ^a^", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, chat.ParseCitations(tc.in))
		})
	}
}

func TestTitleFromQuestion(t *testing.T) {
	t.Run("ShortQuestionKeptWhole", func(t *testing.T) {
		assert.Equal(t, "what broke the deploy?", chat.TitleFromQuestion("what broke the deploy?"))
	})

	t.Run("LongQuestionTruncated", func(t *testing.T) {
		long := "why did the production deployment fail after the database migration last night"
		title := chat.TitleFromQuestion(long)
		assert.Len(t, title, 43)
		assert.Equal(t, "...", title[40:])
	})

	t.Run("WhitespaceCollapsed", func(t *testing.T) {
		assert.Equal(t, "two words", chat.TitleFromQuestion("  two \n  words  "))
	})

	t.Run("MultibyteTruncatesOnRuneBoundary", func(t *testing.T) {
		title := chat.TitleFromQuestion(strings.Repeat("✓", 50))
		assert.True(t, utf8.ValidString(title))
		assert.Equal(t, strings.Repeat("✓", 40)+"...", title)
	})
}
