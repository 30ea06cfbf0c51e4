package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"kennel-assistant/internal/conversation"
	"kennel-assistant/internal/domain"
)

const (
	defaultMaxMessage  = 300
	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 1000
)

// EngineFactory builds the engine for a new chat session.
type EngineFactory func() (*conversation.Engine, error)

// LookupRecorder counts answered messages per keyword and outcome.
type LookupRecorder interface {
	RecordLookup(ctx context.Context, outcome, keyword string) error
}

type ChatConfig struct {
	MaxMessageLen int
	SessionTTL    time.Duration
	MaxSessions   int
}

type session struct {
	id       string
	engine   *conversation.Engine
	lastSeen time.Time
}

// ChatService keeps one conversation engine per widget session. Sessions live
// in process memory only and are dropped after SessionTTL of inactivity.
type ChatService struct {
	newEngine EngineFactory
	lookups   LookupRecorder
	cfg       ChatConfig
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type AskInput struct {
	Message   string
	SessionID string
}

type AskOutput struct {
	SessionID string
	Reply     domain.Message
	Matched   bool
	History   []domain.Message
}

type HistoryOutput struct {
	SessionID string
	Messages  []domain.Message
	IsTyping  bool
}

// NewChatService wires the chat use case. lookups may be nil to disable
// statistics.
func NewChatService(factory EngineFactory, lookups LookupRecorder, cfg ChatConfig, logger *slog.Logger) (*ChatService, error) {
	if factory == nil {
		return nil, errors.New("usecase: engine factory must not be nil")
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = defaultMaxMessage
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		newEngine: factory,
		lookups:   lookups,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}, nil
}

// StartSession opens a new session seeded with the greeting.
func (s *ChatService) StartSession(_ context.Context) (HistoryOutput, error) {
	sess, err := s.session(newUUID(), true)
	if err != nil {
		return HistoryOutput{}, newError(ErrorInternal, "engine_init_error", err)
	}
	snap := sess.engine.Snapshot()
	return HistoryOutput{SessionID: sess.id, Messages: snap.Messages, IsTyping: snap.IsTyping}, nil
}

// Ask submits a visitor message and waits for the bot reply. Unknown session
// IDs start a fresh conversation under the same ID, since sessions do not
// survive process restarts.
func (s *ChatService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLen {
		return AskOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = newUUID()
	}
	sess, err := s.session(id, true)
	if err != nil {
		return AskOutput{}, newError(ErrorInternal, "engine_init_error", err)
	}

	receipt, ok := sess.engine.Submit(text)
	if !ok {
		return AskOutput{}, newError(ErrorNotFound, "session_closed", nil)
	}
	reply, err := receipt.Wait(ctx)
	if err != nil {
		if errors.Is(err, conversation.ErrClosed) {
			return AskOutput{}, newError(ErrorNotFound, "session_closed", err)
		}
		return AskOutput{}, newError(ErrorInternal, "reply_wait_error", err)
	}

	s.recordLookup(ctx, receipt)

	return AskOutput{
		SessionID: sess.id,
		Reply:     reply,
		Matched:   receipt.Matched,
		History:   sess.engine.History(),
	}, nil
}

// History returns the transcript of a live session.
func (s *ChatService) History(_ context.Context, sessionID string) (HistoryOutput, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return HistoryOutput{}, newError(ErrorInvalidInput, "empty_session_id", nil)
	}
	sess, err := s.session(id, false)
	if err != nil {
		return HistoryOutput{}, newError(ErrorInternal, "engine_init_error", err)
	}
	if sess == nil {
		return HistoryOutput{}, newError(ErrorNotFound, "session_not_found", nil)
	}
	snap := sess.engine.Snapshot()
	return HistoryOutput{SessionID: sess.id, Messages: snap.Messages, IsTyping: snap.IsTyping}, nil
}

// Sessions reports how many sessions are live.
func (s *ChatService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// session returns the live session for id, creating it when create is set.
// Expired sessions are evicted on every call.
func (s *ChatService) session(id string, create bool) (*session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked(now)
	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = now
		return sess, nil
	}
	if !create {
		return nil, nil
	}

	engine, err := s.newEngine()
	if err != nil {
		return nil, err
	}
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.evictOldestLocked()
	}
	sess := &session{id: id, engine: engine, lastSeen: now}
	s.sessions[id] = sess
	return sess, nil
}

// Sessions with queued replies are never evicted; a request is waiting on
// them. The registry may exceed MaxSessions while every session is busy.
func (s *ChatService) evictExpiredLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.cfg.SessionTTL && sess.engine.Pending() == 0 {
			sess.engine.Close()
			delete(s.sessions, id)
		}
	}
}

func (s *ChatService) evictOldestLocked() {
	var oldest *session
	for _, sess := range s.sessions {
		if sess.engine.Pending() > 0 {
			continue
		}
		if oldest == nil || sess.lastSeen.Before(oldest.lastSeen) {
			oldest = sess
		}
	}
	if oldest != nil {
		oldest.engine.Close()
		delete(s.sessions, oldest.id)
	}
}

func (s *ChatService) recordLookup(ctx context.Context, r conversation.Receipt) {
	if s.lookups == nil {
		return
	}
	outcome, keyword := domain.OutcomeFallback, ""
	if r.Matched {
		outcome, keyword = domain.OutcomeResolved, r.Match.Keyword
	}
	if err := s.lookups.RecordLookup(ctx, outcome, keyword); err != nil {
		s.logger.Warn("failed to record keyword lookup", "outcome", outcome, "keyword", keyword, "err", err)
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
