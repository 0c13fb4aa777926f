package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// citationPattern matches, in order of preference, an already rewritten
// citation, a bracketed timestamp and a parenthesised timestamp.
var citationPattern = regexp.MustCompile(
	`\[\d{1,2}:\d{2}(?::\d{2})?\]\(#t=\d+\)` +
		`|\[\d{1,2}:\d{2}(?::\d{2})?\]` +
		`|\(\d{1,2}:\d{2}(?::\d{2})?\)`)

var resolvedPattern = regexp.MustCompile(`\]\(#t=(\d+)\)`)

// maxPending bounds how much text a CitationRewriter holds back while it
// waits for a possible citation to close.
const maxPending = 24

// ParseTimestamp converts "M:SS", "MM:SS" or "H:MM:SS" into seconds. With one
// colon the first group is minutes; with two it is hours.
func ParseTimestamp(label string) (int, bool) {
	parts := strings.Split(label, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		nums[i] = n
	}
	if nums[len(nums)-1] >= 60 {
		return 0, false
	}
	if len(nums) == 2 {
		return nums[0]*60 + nums[1], true
	}
	if nums[1] >= 60 {
		return 0, false
	}
	return nums[0]*3600 + nums[1]*60 + nums[2], true
}

// RewriteCitations turns every [M:SS], [MM:SS], [H:MM:SS] and parenthesised
// equivalent into a citation link "[label](#t=seconds)". Existing citation
// links are left alone, so rewriting is idempotent.
func RewriteCitations(text string) string {
	return citationPattern.ReplaceAllStringFunc(text, func(m string) string {
		if strings.HasSuffix(m, ")") && strings.Contains(m, "](#t=") {
			return m
		}
		label := m[1 : len(m)-1]
		secs, ok := ParseTimestamp(label)
		if !ok {
			return m
		}
		return fmt.Sprintf("[%s](#t=%d)", label, secs)
	})
}

// ResolveCitations returns the second offsets of all citation links in text,
// in order of appearance.
func ResolveCitations(text string) []int {
	var out []int
	for _, m := range resolvedPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// CitationRewriter rewrites citations in a stream of text fragments. A
// fragment that ends inside a possible citation is held back until the
// citation closes or clearly cannot be one.
//
// The concatenation of everything returned by Write and Flush equals
// RewriteCitations of the concatenated input.
type CitationRewriter struct {
	pending strings.Builder
}

// Write adds a fragment and returns the text that is safe to emit.
func (r *CitationRewriter) Write(fragment string) string {
	r.pending.WriteString(fragment)
	buf := r.pending.String()

	cut := holdFrom(buf)
	r.pending.Reset()
	r.pending.WriteString(buf[cut:])
	return RewriteCitations(buf[:cut])
}

// Flush returns whatever is still held back.
func (r *CitationRewriter) Flush() string {
	out := RewriteCitations(r.pending.String())
	r.pending.Reset()
	return out
}

// holdFrom returns the index from which buf might still become a citation.
func holdFrom(buf string) int {
	start := strings.LastIndexAny(buf, "[(")
	if start < 0 {
		return len(buf)
	}
	// "(#t=" right after "]" belongs to the bracket before it.
	if buf[start] == '(' && start > 0 && buf[start-1] == ']' {
		if open := strings.LastIndex(buf[:start], "["); open >= 0 {
			start = open
		}
	}
	tail := buf[start:]
	if len(tail) > maxPending || strings.ContainsAny(tail, " \t\r\n") {
		return len(buf)
	}
	if tail[len(tail)-1] == ')' {
		return len(buf)
	}
	return start
}
