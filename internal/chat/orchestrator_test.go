package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/lecture-rag/internal/llm"
	"github.com/bull/lecture-rag/internal/retrieval"
	"github.com/bull/lecture-rag/internal/store"
	"github.com/bull/lecture-rag/internal/transcript"
)

type fakeSearcher struct {
	result   *retrieval.SearchResult
	gotQuery string
	gotScope string
	gotLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, query, sourceID string, limit int) (*retrieval.SearchResult, error) {
	f.gotQuery, f.gotScope, f.gotLimit = query, sourceID, limit
	return f.result, nil
}

type fakeTitles map[string]string

func (f fakeTitles) Title(ctx context.Context, sourceID string) (string, error) {
	if title, ok := f[sourceID]; ok {
		return title, nil
	}
	return "", errors.New("unknown video")
}

// scriptedModel replays fragments, then returns err.
type scriptedModel struct {
	fragments []string
	err       error
	onText    func(i int)
	got       llm.Request
}

func (m *scriptedModel) Stream(ctx context.Context, req llm.Request, onText func(string)) error {
	m.got = req
	for i, f := range m.fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		onText(f)
		if m.onText != nil {
			m.onText(i)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.err
}

type harness struct {
	orch   *Orchestrator
	search *fakeSearcher
	model  *scriptedModel
	turns  *store.ChatStore
	events []Event
}

func newHarness(t *testing.T, matches []transcript.Match, model *scriptedModel) *harness {
	t.Helper()
	db, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mode := retrieval.ModeVector
	if len(matches) == 0 {
		mode = retrieval.ModeNone
		matches = []transcript.Match{}
	}

	h := &harness{
		search: &fakeSearcher{result: &retrieval.SearchResult{Mode: mode, Matches: matches}},
		model:  model,
		turns:  store.NewChatStore(db),
	}
	h.orch = NewOrchestrator(h.search, h.turns, fakeTitles{"vid123": "Week 3: Pricing"}, model, nil)
	h.orch.now = func() time.Time { return time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC) }
	return h
}

func (h *harness) emit(e Event) { h.events = append(h.events, e) }

func (h *harness) ofType(typ EventType) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) tokens() string {
	var sb strings.Builder
	for _, e := range h.ofType(EventToken) {
		sb.WriteString(e.Text)
	}
	return sb.String()
}

func (h *harness) turnsByRole(t *testing.T, chatID string, role store.Role) []store.Turn {
	t.Helper()
	all, err := h.turns.ListTurns(context.Background(), chatID)
	require.NoError(t, err)
	var out []store.Turn
	for _, turn := range all {
		if turn.Role == role {
			out = append(out, turn)
		}
	}
	return out
}

func twoExcerpts() []transcript.Match {
	return []transcript.Match{
		{Text: "Demand is the quantity buyers want at each price.", StartTime: 60, EndTime: 90},
		{Text: "A pricing strategy weighs costs against willingness to pay.", StartTime: 315, EndTime: 345},
	}
}

func TestStream_GroundedReplyWithCitation(t *testing.T) {
	model := &scriptedModel{fragments: []string{"See [1:", "15] for", " details"}}
	h := newHarness(t, twoExcerpts(), model)

	err := h.orch.Stream(context.Background(), Request{
		UserID:   "u1",
		Message:  "What is demand?",
		SourceID: "vid123",
	}, h.emit)
	require.NoError(t, err)

	assert.Contains(t, model.got.System, "[1:00 - 1:30]")
	assert.Contains(t, model.got.System, "[5:15 - 5:45]")
	assert.Contains(t, model.got.System, "**[1:00 - 1:30]**\nDemand is the quantity")
	assert.Contains(t, model.got.System, "[MM:SS]")
	assert.Contains(t, model.got.System, `"Week 3: Pricing"`)

	assert.Equal(t, "What is demand?", h.search.gotQuery)
	assert.Equal(t, "vid123", h.search.gotScope)
	assert.Equal(t, SearchLimit, h.search.gotLimit)

	require.Equal(t, EventSources, h.events[0].Type)
	assert.Len(t, h.events[0].Sources.Chunks, 2)

	assert.Equal(t, "See [1:15](#t=75) for details", h.tokens())

	done := h.ofType(EventDone)
	require.Len(t, done, 1)
	assert.Equal(t, "u1_vid123_2026-03-09", done[0].ChatID)
	assert.Equal(t, []int{75}, done[0].Citations)
	assert.Empty(t, h.ofType(EventError))

	users := h.turnsByRole(t, "u1_vid123_2026-03-09", store.RoleUser)
	require.Len(t, users, 1)
	assert.Equal(t, "What is demand?", users[0].Content)

	assistants := h.turnsByRole(t, "u1_vid123_2026-03-09", store.RoleAssistant)
	require.Len(t, assistants, 1, "assistant turn saved exactly once")
	assert.Equal(t, "See [1:15](#t=75) for details", assistants[0].Content)
	assert.Equal(t, []int{75}, ResolveCitations(assistants[0].Content))
}

func TestStream_NoRelevantContent(t *testing.T) {
	model := &scriptedModel{fragments: []string{"The videos do not cover that."}}
	h := newHarness(t, nil, model)

	err := h.orch.Stream(context.Background(), Request{UserID: "u1", Message: "Who won the 1998 world cup?"}, h.emit)
	require.NoError(t, err)

	sources := h.ofType(EventSources)
	require.Len(t, sources, 1)
	assert.Equal(t, string(retrieval.ModeNone), sources[0].Sources.Mode)
	assert.NotNil(t, sources[0].Sources.Chunks)
	assert.Empty(t, sources[0].Sources.Chunks)

	assert.Contains(t, model.got.System, "No relevant transcript excerpts were found")
	assert.Equal(t, "", h.search.gotScope, "unscoped turns search globally")
	require.Len(t, h.ofType(EventDone), 1)
	assert.Equal(t, "u1_general_2026-03-09", h.ofType(EventDone)[0].ChatID)
}

func TestStream_ModelFailureKeepsUserTurn(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: status 529", llm.ErrUpstream), CodeUpstream},
		{llm.ErrUnavailable, CodeUnavailable},
	} {
		model := &scriptedModel{fragments: []string{"Partial "}, err: tc.err}
		h := newHarness(t, twoExcerpts(), model)

		err := h.orch.Stream(context.Background(), Request{UserID: "u1", Message: "hi", SourceID: "vid123", ChatID: "chat-7"}, h.emit)
		require.ErrorIs(t, err, tc.err)

		errs := h.ofType(EventError)
		require.Len(t, errs, 1)
		assert.Equal(t, tc.code, errs[0].Code)
		assert.Equal(t, "chat-7", errs[0].ChatID)
		assert.NotEmpty(t, errs[0].Error)
		assert.Empty(t, h.ofType(EventDone))

		assert.Len(t, h.turnsByRole(t, "chat-7", store.RoleUser), 1)
		assert.Empty(t, h.turnsByRole(t, "chat-7", store.RoleAssistant))
	}
}

func TestStream_CancelDiscardsReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := &scriptedModel{
		fragments: []string{"First part ", "second part ", "never sent"},
		onText: func(i int) {
			if i == 1 {
				cancel()
			}
		},
	}
	h := newHarness(t, twoExcerpts(), model)

	err := h.orch.Stream(ctx, Request{UserID: "u1", Message: "hi", ChatID: "chat-9"}, h.emit)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, h.ofType(EventDone))
	assert.Empty(t, h.ofType(EventError))
	assert.Len(t, h.turnsByRole(t, "chat-9", store.RoleUser), 1)
	assert.Empty(t, h.turnsByRole(t, "chat-9", store.RoleAssistant), "no partial save")
}

func TestStream_EmptyMessage(t *testing.T) {
	h := newHarness(t, nil, &scriptedModel{})
	err := h.orch.Stream(context.Background(), Request{UserID: "u1", Message: "   "}, h.emit)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.events)
}

func TestStream_UnknownTitleUsesGenericLabel(t *testing.T) {
	model := &scriptedModel{fragments: []string{"ok"}}
	h := newHarness(t, twoExcerpts(), model)

	require.NoError(t, h.orch.Stream(context.Background(), Request{UserID: "u1", Message: "hi", SourceID: "other"}, h.emit))
	assert.Contains(t, model.got.System, genericTitle)
}

func TestDeriveChatID(t *testing.T) {
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "u1_vid123_2026-03-09", DeriveChatID("u1", "vid123", day))
	assert.Equal(t, "u1_general_2026-03-09", DeriveChatID("u1", "", day))
	assert.Equal(t, DeriveChatID("u1", "vid123", day), DeriveChatID("u1", "vid123", day.Add(10*time.Hour)))

	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "u1_vid123_2026-03-09", DeriveChatID("u1", "vid123", time.Date(2026, 3, 10, 7, 0, 0, 0, tokyo)))
}

func TestBuildMessages(t *testing.T) {
	history := []Message{
		{Role: "assistant", Content: "Welcome!"},
		{Role: "user", Content: "What is supply?"},
		{Role: "assistant", Content: "Supply is..."},
		{Role: "user", Content: "   "},
	}
	msgs := BuildMessages(history, "And demand?")

	require.Len(t, msgs, 3)
	assert.Equal(t, llm.Message{Role: "user", Content: "What is supply?"}, msgs[0])
	assert.Equal(t, llm.Message{Role: "assistant", Content: "Supply is..."}, msgs[1])
	assert.Equal(t, llm.Message{Role: "user", Content: "And demand?"}, msgs[2])

	var long []Message
	for i := 0; i < 30; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		long = append(long, Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	msgs = BuildMessages(long, "latest")
	assert.LessOrEqual(t, len(msgs), MaxHistory+1)
	assert.Equal(t, "latest", msgs[len(msgs)-1].Content)
	assert.Equal(t, "user", msgs[0].Role)
}
