package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation markers look like ^3^ or ^1,4^ inline in the answer text.
var citationRe = regexp.MustCompile(`\^([0-9,]+)\^`)

// ParseCitations extracts the cited source numbers from an answer in order
// of first use. A number cited twice appears once, at its first position.
func ParseCitations(answer string) []int {
	seen := make(map[int]bool)
	var order []int
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n <= 0 {
				continue
			}
			if !seen[n] {
				seen[n] = true
				order = append(order, n)
			}
		}
	}
	return order
}
