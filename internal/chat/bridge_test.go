package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu           sync.Mutex
	asks         []backend.AskRequest
	askErr       error
	cleared      []string
	statusCalls  int
	statusFor    []string
	historyLimit int
}

func (f *fakeAPI) Ask(_ context.Context, req backend.AskRequest) (*backend.AskResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, req)
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &backend.AskResponse{Success: true, Answer: "answer to " + req.Question, ExecutionTime: 1.5}, nil
}

func (f *fakeAPI) ClearMemory(_ context.Context, sessionID string) (*backend.ClearMemoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	return &backend.ClearMemoryResponse{Success: true}, nil
}

func (f *fakeAPI) MemoryStatus(_ context.Context, sessionID string) (*backend.MemoryStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.statusFor = append(f.statusFor, sessionID)
	return &backend.MemoryStatusResponse{
		Success:      true,
		MemoryStatus: backend.MemoryStatus{MemoryCached: true, MemoryCount: f.statusCalls},
	}, nil
}

func (f *fakeAPI) History(_ context.Context, _ string, limit int) (*backend.HistoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyLimit = limit
	return &backend.HistoryResponse{Success: true, History: []backend.HistoryEntry{{Question: "q", Answer: "a"}}}, nil
}

func (f *fakeAPI) ConversationSummary(_ context.Context, sessionID string) (map[string]any, error) {
	return map[string]any{"session_id": sessionID, "total_turns": 2}, nil
}

func (f *fakeAPI) statusSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statusFor...)
}

func (f *fakeAPI) askCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.asks)
}

type fixedSession string

func (s fixedSession) Current() string { return string(s) }

type memLog struct {
	mu    sync.Mutex
	turns []Turn
}

func (l *memLog) Append(_ context.Context, t Turn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
	return nil
}

func (l *memLog) List(_ context.Context) ([]Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Turn(nil), l.turns...), nil
}

func (l *memLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
	return nil
}

type memFlags map[string]string

func (m memFlags) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memFlags) Set(key, value string) error {
	m[key] = value
	return nil
}

func (m memFlags) Delete(key string) error {
	delete(m, key)
	return nil
}

func newBridge(t *testing.T, api *fakeAPI, session string) (*Bridge, *memLog) {
	t.Helper()
	log := &memLog{}
	b := New(context.Background(), Options{
		API:      api,
		Sessions: fixedSession(session),
		Log:      log,
		Flags:    memFlags{},
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
	})
	t.Cleanup(b.Wait)
	b.Unlock()
	return b, log
}

func TestSend_NoSession(t *testing.T) {
	api := &fakeAPI{}
	b, _ := newBridge(t, api, "")

	_, err := b.Send(context.Background(), "what is novel here?", true)
	require.True(t, errors.Is(err, errors.ErrSessionNotSet))
	require.Equal(t, errors.KindSessionNotSet, errors.KindOf(err))
	require.Zero(t, api.askCount())
	require.Empty(t, b.Transcript())
}

func TestSend_Validation(t *testing.T) {
	api := &fakeAPI{}
	b, _ := newBridge(t, api, "sess-1")

	_, err := b.Send(context.Background(), "   ", false)
	require.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = b.Send(context.Background(), strings.Repeat("問", MaxQuestionChars+1), false)
	require.Equal(t, errors.KindValidation, errors.KindOf(err))

	require.Zero(t, api.askCount())
}

func TestSend_AppendsTurnsAndRefreshes(t *testing.T) {
	api := &fakeAPI{}
	b, log := newBridge(t, api, "sess-1")

	reply, err := b.Send(context.Background(), "  which applicant is most active?  ", true)
	require.NoError(t, err)
	require.Equal(t, "answer to which applicant is most active?", reply.Answer)
	require.True(t, reply.MemoryMode)

	require.Len(t, api.asks, 1)
	require.Equal(t, "sess-1", api.asks[0].SessionID)
	require.True(t, api.asks[0].UseMemory)

	turns := b.Transcript()
	require.Len(t, turns, 2)
	require.Equal(t, RoleUser, turns[0].Role)
	require.Equal(t, "which applicant is most active?", turns[0].Content)
	require.Equal(t, RoleAssistant, turns[1].Role)
	require.True(t, turns[1].MemoryMode)

	persisted, err := log.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, turns, persisted)

	b.Wait()
	status, ok := b.MemoryStatus()
	require.True(t, ok)
	require.True(t, status.MemoryCached)
}

func TestSend_FailureKeepsTranscript(t *testing.T) {
	api := &fakeAPI{askErr: errors.NewTransport("/qa/ask-simple", fmt.Errorf("connection refused"))}
	b, _ := newBridge(t, api, "sess-1")

	_, err := b.Send(context.Background(), "hello", false)
	require.Equal(t, errors.KindTransport, errors.KindOf(err))
	require.Empty(t, b.Transcript())

	_, ok := b.MemoryStatus()
	require.False(t, ok)
}

func TestClearMemory_KeepsTranscript(t *testing.T) {
	api := &fakeAPI{}
	b, _ := newBridge(t, api, "sess-1")

	_, err := b.Send(context.Background(), "hello", true)
	require.NoError(t, err)

	require.NoError(t, b.ClearMemory(context.Background()))
	require.Equal(t, []string{"sess-1"}, api.cleared)
	require.Len(t, b.Transcript(), 2)
}

func TestHistory_Limit(t *testing.T) {
	api := &fakeAPI{}
	b, _ := newBridge(t, api, "sess-1")

	_, err := b.History(context.Background(), 0)
	require.Equal(t, errors.KindValidation, errors.KindOf(err))
	_, err = b.History(context.Background(), backend.MaxHistoryLimit+1)
	require.Equal(t, errors.KindValidation, errors.KindOf(err))

	entries, err := b.History(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 20, api.historyLimit)
}

func TestSummary(t *testing.T) {
	b, _ := newBridge(t, &fakeAPI{}, "sess-9")

	summary, err := b.Summary(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sess-9", summary["session_id"])
}

func TestUnlockAndReset(t *testing.T) {
	api := &fakeAPI{}
	log := &memLog{}
	flags := memFlags{}
	opts := Options{API: api, Sessions: fixedSession("sess-1"), Log: log, Flags: flags}

	b := New(context.Background(), opts)
	require.False(t, b.Unlocked())
	b.Unlock()
	require.True(t, b.Unlocked())
	require.Equal(t, "true", flags[UnlockedKey])

	_, err := b.Send(context.Background(), "hello", false)
	require.NoError(t, err)
	b.Wait()

	// A new bridge over the same stores restores state.
	restored := New(context.Background(), opts)
	require.True(t, restored.Unlocked())
	require.Len(t, restored.Transcript(), 2)

	restored.Reset(context.Background())
	require.False(t, restored.Unlocked())
	require.Empty(t, restored.Transcript())
	require.NotContains(t, flags, UnlockedKey)
	persisted, err := log.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, persisted)
}

func TestChat_LockedUntilSearch(t *testing.T) {
	api := &fakeAPI{}
	sessions := session.New(nil, nil)
	sessions.Adopt("server-session")
	b := New(context.Background(), Options{API: api, Sessions: sessions})
	t.Cleanup(b.Wait)

	_, err := b.Send(context.Background(), "what is claimed?", true)
	require.True(t, errors.Is(err, errors.ErrChatLocked))
	require.Equal(t, errors.KindValidation, errors.KindOf(err))
	require.True(t, errors.Is(b.ClearMemory(context.Background()), errors.ErrChatLocked))
	_, err = b.History(context.Background(), 10)
	require.True(t, errors.Is(err, errors.ErrChatLocked))
	_, err = b.Summary(context.Background())
	require.True(t, errors.Is(err, errors.ErrChatLocked))
	_, err = b.RefreshMemoryStatus(context.Background())
	require.True(t, errors.Is(err, errors.ErrChatLocked))
	require.Zero(t, api.askCount())
	require.Empty(t, api.cleared)

	b.Unlock()
	reply, err := b.Send(context.Background(), "what is claimed?", true)
	require.NoError(t, err)
	require.Equal(t, "answer to what is claimed?", reply.Answer)
}

func TestSessionChanged_FollowsCoordinator(t *testing.T) {
	api := &fakeAPI{}
	sessions := session.New(nil, nil)
	sessions.Adopt("tech-session")
	b := New(context.Background(), Options{API: api, Sessions: sessions})
	sessions.Subscribe(b.SessionChanged)
	t.Cleanup(b.Wait)

	// Locked chat drops the snapshot but fetches nothing.
	sessions.Adopt("keywords-session")
	b.Wait()
	require.Empty(t, api.statusSessions())

	b.Unlock()
	_, err := b.RefreshMemoryStatus(context.Background())
	require.NoError(t, err)
	before, ok := b.MemoryStatus()
	require.True(t, ok)
	require.Equal(t, 1, before.MemoryCount)

	sessions.Adopt("excel-session")
	b.Wait()
	after, ok := b.MemoryStatus()
	require.True(t, ok)
	require.Equal(t, 2, after.MemoryCount)
	require.Equal(t, []string{"keywords-session", "excel-session"}, api.statusSessions())

	sessions.Reset()
	b.Wait()
	_, ok = b.MemoryStatus()
	require.False(t, ok)
	require.Len(t, api.statusSessions(), 2)
}
