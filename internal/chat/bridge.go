// Package chat is the session-bound question/answer channel. It keeps a
// local transcript that is independent of the backend's conversational
// memory: clearing one never touches the other.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/errors"
)

// MaxQuestionChars bounds a question.
const MaxQuestionChars = 1000

// UnlockedKey persists whether chat has been unlocked by a successful search.
const UnlockedKey = "chat.unlocked"

// refreshTimeout bounds the background memory status refresh.
const refreshTimeout = 30 * time.Second

// API is the slice of the backend the bridge talks to.
type API interface {
	Ask(ctx context.Context, req backend.AskRequest) (*backend.AskResponse, error)
	ClearMemory(ctx context.Context, sessionID string) (*backend.ClearMemoryResponse, error)
	MemoryStatus(ctx context.Context, sessionID string) (*backend.MemoryStatusResponse, error)
	History(ctx context.Context, sessionID string, limit int) (*backend.HistoryResponse, error)
	ConversationSummary(ctx context.Context, sessionID string) (map[string]any, error)
}

// Sessions supplies the current session id without creating one.
type Sessions interface {
	Current() string
}

// TurnLog persists the transcript.
type TurnLog interface {
	Append(ctx context.Context, t Turn) error
	List(ctx context.Context) ([]Turn, error)
	Clear(ctx context.Context) error
}

// Flags persists small values such as the unlock flag.
type Flags interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Options configures New. API and Sessions are required.
type Options struct {
	API      API
	Sessions Sessions
	Log      TurnLog
	Flags    Flags
	Logger   *zap.Logger
	Now      func() time.Time
}

// Reply is the answer to one question.
type Reply struct {
	Answer        string         `json:"answer"`
	MemoryMode    bool           `json:"memory_mode"`
	ContextInfo   map[string]any `json:"context_info,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
}

// Bridge sends questions and keeps the transcript.
type Bridge struct {
	api      API
	sessions Sessions
	log      TurnLog
	flags    Flags
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	transcript []Turn
	status     *backend.MemoryStatus
	unlocked   bool

	refreshes sync.WaitGroup
}

// New creates a Bridge, restoring the transcript and unlock flag.
func New(ctx context.Context, opts Options) *Bridge {
	b := &Bridge{
		api:      opts.API,
		sessions: opts.Sessions,
		log:      opts.Log,
		flags:    opts.Flags,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}

	if b.log != nil {
		turns, err := b.log.List(ctx)
		if err != nil {
			b.logger.Warn("failed to load transcript", zap.Error(err))
		} else {
			b.transcript = turns
		}
	}
	if b.flags != nil {
		if v, ok, err := b.flags.Get(UnlockedKey); err != nil {
			b.logger.Warn("failed to load chat unlock flag", zap.Error(err))
		} else if ok {
			b.unlocked, _ = strconv.ParseBool(v)
		}
	}
	return b
}

// Send asks question. It fails without a network call with SESSION_NOT_SET
// when no session exists, or CHAT_LOCKED before the first successful search.
// On success the user and assistant turns are
// appended and the memory status is refreshed in the background.
func (b *Bridge) Send(ctx context.Context, question string, useMemory bool) (*Reply, error) {
	sessionID, err := b.requireSession()
	if err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewInvalidRequest("question is required")
	}
	if n := len([]rune(question)); n > MaxQuestionChars {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("question must be at most %d characters (got %d)", MaxQuestionChars, n))
	}

	resp, err := b.api.Ask(ctx, backend.AskRequest{
		SessionID: sessionID,
		Question:  question,
		UseMemory: useMemory,
	})
	if err != nil {
		b.logger.Warn("chat request failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	now := b.now()
	b.appendTurns(ctx,
		Turn{Role: RoleUser, Content: question, MemoryMode: useMemory, SessionID: sessionID, Timestamp: now},
		Turn{Role: RoleAssistant, Content: resp.Answer, MemoryMode: useMemory, SessionID: sessionID, Timestamp: now},
	)
	b.refreshAsync(sessionID)

	return &Reply{
		Answer:        resp.Answer,
		MemoryMode:    useMemory,
		ContextInfo:   resp.ContextInfo,
		ExecutionTime: resp.ExecutionTime,
	}, nil
}

// ClearMemory clears the backend's memory for the session. The local
// transcript is kept.
func (b *Bridge) ClearMemory(ctx context.Context) error {
	sessionID, err := b.requireSession()
	if err != nil {
		return err
	}
	if _, err := b.api.ClearMemory(ctx, sessionID); err != nil {
		return err
	}
	b.logger.Info("chat memory cleared", zap.String("session_id", sessionID))
	b.refreshAsync(sessionID)
	return nil
}

// History returns up to limit turns stored by the backend.
func (b *Bridge) History(ctx context.Context, limit int) ([]backend.HistoryEntry, error) {
	sessionID, err := b.requireSession()
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > backend.MaxHistoryLimit {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("limit must be between 1 and %d", backend.MaxHistoryLimit))
	}
	resp, err := b.api.History(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return resp.History, nil
}

// Summary returns the backend's summary of the conversation.
func (b *Bridge) Summary(ctx context.Context) (map[string]any, error) {
	sessionID, err := b.requireSession()
	if err != nil {
		return nil, err
	}
	return b.api.ConversationSummary(ctx, sessionID)
}

// RefreshMemoryStatus fetches and stores the memory snapshot synchronously.
func (b *Bridge) RefreshMemoryStatus(ctx context.Context) (backend.MemoryStatus, error) {
	sessionID, err := b.requireSession()
	if err != nil {
		return backend.MemoryStatus{}, err
	}
	return b.refresh(ctx, sessionID)
}

// MemoryStatus returns the last snapshot; ok is false before the first refresh.
func (b *Bridge) MemoryStatus() (backend.MemoryStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == nil {
		return backend.MemoryStatus{}, false
	}
	return *b.status, true
}

// Transcript returns a copy of the local transcript.
func (b *Bridge) Transcript() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Turn, len(b.transcript))
	copy(out, b.transcript)
	return out
}

// Unlock enables chat. Called after the first successful search.
func (b *Bridge) Unlock() {
	b.mu.Lock()
	already := b.unlocked
	b.unlocked = true
	b.mu.Unlock()
	if already {
		return
	}
	b.logger.Info("chat unlocked")
	b.setFlag("true")
}

// Unlocked reports whether a search has succeeded since the last reset.
func (b *Bridge) Unlocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unlocked
}

// Reset locks chat and clears the transcript and memory snapshot. Used by an
// application reset only.
func (b *Bridge) Reset(ctx context.Context) {
	b.Wait()

	b.mu.Lock()
	b.transcript = nil
	b.status = nil
	b.unlocked = false
	b.mu.Unlock()

	if b.log != nil {
		if err := b.log.Clear(ctx); err != nil {
			b.logger.Warn("failed to clear transcript", zap.Error(err))
		}
	}
	if b.flags != nil {
		if err := b.flags.Delete(UnlockedKey); err != nil {
			b.logger.Warn("failed to clear chat unlock flag", zap.Error(err))
		}
	}
}

// Wait blocks until background refreshes have finished.
func (b *Bridge) Wait() {
	b.refreshes.Wait()
}

// SessionChanged drops the memory snapshot of the previous session and,
// once chat is unlocked, refreshes it for id in the background. It is
// registered as a session listener.
func (b *Bridge) SessionChanged(id string) {
	b.mu.Lock()
	b.status = nil
	unlocked := b.unlocked
	b.mu.Unlock()

	if id != "" && unlocked {
		b.refreshAsync(id)
	}
}

// requireSession returns the current session id for a chat call. Chat
// stays locked until a search has succeeded, even when keyword generation
// already issued a session.
func (b *Bridge) requireSession() (string, error) {
	if b.sessions == nil {
		return "", errors.NewSessionNotSet()
	}
	id := b.sessions.Current()
	if id == "" {
		return "", errors.NewSessionNotSet()
	}
	if !b.Unlocked() {
		return "", errors.NewChatLocked()
	}
	return id, nil
}

func (b *Bridge) appendTurns(ctx context.Context, turns ...Turn) {
	b.mu.Lock()
	b.transcript = append(b.transcript, turns...)
	b.mu.Unlock()

	if b.log == nil {
		return
	}
	for _, t := range turns {
		if err := b.log.Append(ctx, t); err != nil {
			b.logger.Warn("failed to persist chat turn", zap.String("role", string(t.Role)), zap.Error(err))
		}
	}
}

func (b *Bridge) refreshAsync(sessionID string) {
	b.refreshes.Add(1)
	go func() {
		defer b.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := b.refresh(ctx, sessionID); err != nil {
			b.logger.Warn("memory status refresh failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

func (b *Bridge) refresh(ctx context.Context, sessionID string) (backend.MemoryStatus, error) {
	resp, err := b.api.MemoryStatus(ctx, sessionID)
	if err != nil {
		return backend.MemoryStatus{}, err
	}
	status := resp.MemoryStatus

	if b.sessions != nil && b.sessions.Current() != sessionID {
		return status, nil
	}
	b.mu.Lock()
	b.status = &status
	b.mu.Unlock()
	return status, nil
}

func (b *Bridge) setFlag(v string) {
	if b.flags == nil {
		return
	}
	if err := b.flags.Set(UnlockedKey, v); err != nil {
		b.logger.Warn("failed to persist chat unlock flag", zap.Error(err))
	}
}
