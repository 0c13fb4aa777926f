package transcript

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// ChunkSize is the soft upper bound of a chunk, in characters.
	ChunkSize = 1000

	// ChunkOverlap is the number of trailing characters carried into the next
	// chunk in untimed mode.
	ChunkOverlap = 100

	// OverlapWords is the number of trailing words carried into the next chunk
	// when chunking timed caption items.
	OverlapWords = 10

	// CharsPerSecond estimates speaking rate when text has no timing metadata.
	CharsPerSecond = 10
)

// sentenceBreak matches a terminator run followed by whitespace, so "3.5" and
// "www.example.com" stay inside their sentence.
var sentenceBreak = regexp.MustCompile(`[.!?]+\s+`)

// Chunker splits transcripts into overlapping windows.
type Chunker struct {
	size           int
	overlap        int
	overlapWords   int
	charsPerSecond float64
}

// NewChunker creates a chunker with the default window and overlap sizes.
func NewChunker() *Chunker {
	return &Chunker{
		size:           ChunkSize,
		overlap:        ChunkOverlap,
		overlapWords:   OverlapWords,
		charsPerSecond: CharsPerSecond,
	}
}

// unit is the smallest piece of text the chunker never splits. sep is the
// whitespace that preceded it in the source; empty means a single space.
type unit struct {
	text  string
	sep   string
	start float64
}

// window accumulates units into chunks.
type window struct {
	sourceID string
	size     int
	carry    func(closed string) string

	buf    strings.Builder
	start  float64
	chunks []Chunk
}

func (w *window) add(u unit) {
	if w.buf.Len() == 0 {
		w.start = u.start
		w.buf.WriteString(u.text)
		return
	}

	sep := u.sep
	if sep == "" {
		sep = " "
	}

	if runeLen(w.buf.String())+runeLen(sep)+runeLen(u.text) > w.size {
		closed := w.buf.String()
		w.emit(closed, u.start)

		w.buf.Reset()
		if tail := w.carry(closed); tail != "" {
			w.buf.WriteString(tail)
			w.buf.WriteString(sep)
		}
		w.buf.WriteString(u.text)
		w.start = u.start
		return
	}

	w.buf.WriteString(sep)
	w.buf.WriteString(u.text)
}

func (w *window) emit(text string, end float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if end < w.start {
		end = w.start
	}
	w.chunks = append(w.chunks, Chunk{
		ID:        fmt.Sprintf("%s_chunk_%d", w.sourceID, len(w.chunks)),
		Text:      text,
		StartTime: w.start,
		EndTime:   end,
	})
}

// ChunkItems chunks timed caption items. Items must be in playback order.
// The final chunk ends at the last item's start plus duration.
func (c *Chunker) ChunkItems(items []CaptionItem, sourceID string) []Chunk {
	w := &window{
		sourceID: sourceID,
		size:     c.size,
		carry:    func(closed string) string { return lastWords(closed, c.overlapWords) },
	}

	var last *CaptionItem
	for i := range items {
		text := normalizeSpace(items[i].Text)
		if text == "" {
			continue
		}
		w.add(unit{text: text, start: items[i].Start})
		last = &items[i]
	}

	if last != nil && w.buf.Len() > 0 {
		w.emit(w.buf.String(), last.Start+last.Duration)
	}
	if w.chunks == nil {
		return []Chunk{}
	}
	return w.chunks
}

// ChunkText chunks plain text with no timing metadata. Text is split into
// sentences, keeping the whitespace between them, and start times are
// estimated from character offsets.
func (c *Chunker) ChunkText(text, sourceID string) []Chunk {
	w := &window{
		sourceID: sourceID,
		size:     c.size,
		carry:    func(closed string) string { return lastRunes(closed, c.overlap) },
	}

	text = strings.TrimSpace(text)
	offset, runes := 0, 0
	for _, s := range splitSentences(text) {
		runes += runeLen(text[offset:s.offset])
		offset = s.offset
		w.add(unit{text: s.text, sep: s.sep, start: float64(runes) / c.charsPerSecond})
	}

	if w.buf.Len() > 0 {
		rest := w.buf.String()
		w.emit(rest, w.start+float64(runeLen(rest))/c.charsPerSecond)
	}
	if w.chunks == nil {
		return []Chunk{}
	}
	return w.chunks
}

type sentence struct {
	text   string
	sep    string // whitespace before text
	offset int    // byte offset of text
}

// splitSentences cuts text after each terminator run that is followed by
// whitespace. Concatenating sep+text of every sentence reproduces text.
func splitSentences(text string) []sentence {
	var out []sentence
	pos, sep := 0, ""
	for _, m := range sentenceBreak.FindAllStringIndex(text, -1) {
		end := m[0] + strings.IndexFunc(text[m[0]:m[1]], unicode.IsSpace)
		out = append(out, sentence{text: text[pos:end], sep: sep, offset: pos})
		sep = text[end:m[1]]
		pos = m[1]
	}
	if pos < len(text) {
		out = append(out, sentence{text: text[pos:], sep: sep, offset: pos})
	}
	return out
}

// JoinItems concatenates caption text into a single transcript string.
func JoinItems(items []CaptionItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if text := normalizeSpace(item.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func lastRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		r = r[len(r)-n:]
	}
	return strings.TrimSpace(string(r))
}
