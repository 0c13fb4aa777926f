package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteThenResolve(t *testing.T) {
	text := "Start at [2:45], then [01:02:03], and finally (12:05)."
	rewritten := RewriteCitations(text)

	assert.Equal(t, "Start at [2:45](#t=165), then [01:02:03](#t=3723), and finally [12:05](#t=725).", rewritten)
	assert.Equal(t, []int{165, 3723, 725}, ResolveCitations(rewritten))
}

func TestRewriteCitations_Idempotent(t *testing.T) {
	once := RewriteCitations("See [1:15] and (0:30).")
	assert.Equal(t, once, RewriteCitations(once))
}

func TestRewriteCitations_LeavesNonTimestamps(t *testing.T) {
	for _, text := range []string{
		"an array [1, 2]",
		"ratio (3:1) is fine",
		"invalid [1:75]",
		"range [1:00 - 1:30]",
		"[123:00] is too many digits",
		"mismatched [1:15) brackets",
	} {
		assert.Equal(t, text, RewriteCitations(text), text)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]int{
		"0:00":     0,
		"1:15":     75,
		"2:45":     165,
		"12:05":    725,
		"01:02:03": 3723,
		"1:00:00":  3600,
	}
	for in, want := range cases {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "5", "1:60", "1:61:00", "a:bc", "1:2:3:4"} {
		_, ok := ParseTimestamp(bad)
		assert.False(t, ok, bad)
	}
}

func TestCitationRewriter_AnySplit(t *testing.T) {
	full := "See [1:15] for details, (12:05) too, and [01:02:03]. Already [0:30](#t=30) done [2:4"
	want := RewriteCitations(full)

	for i := 0; i <= len(full); i++ {
		for j := i; j <= len(full); j++ {
			var r CitationRewriter
			var sb strings.Builder
			sb.WriteString(r.Write(full[:i]))
			sb.WriteString(r.Write(full[i:j]))
			sb.WriteString(r.Write(full[j:]))
			sb.WriteString(r.Flush())
			require.Equal(t, want, sb.String(), "split at %d,%d", i, j)
		}
	}
}

func TestCitationRewriter_TokenByToken(t *testing.T) {
	var r CitationRewriter
	var out []string
	for _, frag := range []string{"See [", "1:", "15", "] for", " details"} {
		out = append(out, r.Write(frag))
	}
	out = append(out, r.Flush())

	assert.Equal(t, "See ", out[0])
	assert.Equal(t, "See [1:15](#t=75) for details", strings.Join(out, ""))
	assert.Equal(t, []int{75}, ResolveCitations(strings.Join(out, "")))
}
