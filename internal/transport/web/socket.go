package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"kennel-assistant/internal/conversation"
	"kennel-assistant/internal/domain"
)

// EngineFactory builds the engine for one socket. onChange must be passed to
// the engine as its change callback.
type EngineFactory func(onChange func(conversation.Snapshot)) (*conversation.Engine, error)

// LookupRecorder counts answered messages per keyword and outcome.
type LookupRecorder interface {
	RecordLookup(ctx context.Context, outcome, keyword string) error
}

type SocketConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxFrameSize   int64
	MaxMessageLen  int
	AllowedOrigins []string
}

// ChatSocket runs one conversation engine per WebSocket connection and pushes
// a snapshot to the client whenever the engine changes.
type ChatSocket struct {
	cfg       SocketConfig
	newEngine EngineFactory
	lookups   LookupRecorder
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*connection]struct{}

	// recording tracks lookup writes running off the read pump.
	recording sync.WaitGroup
}

type connection struct {
	id     string
	ws     *websocket.Conn
	engine *conversation.Engine
	notify chan struct{}
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewChatSocket(cfg SocketConfig, factory EngineFactory, lookups LookupRecorder, logger *slog.Logger) (*ChatSocket, error) {
	if factory == nil {
		return nil, errors.New("web: engine factory must not be nil")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= cfg.PingInterval {
		cfg.ReadTimeout = 2 * cfg.PingInterval
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = 4096
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &ChatSocket{
		cfg:       cfg,
		newEngine: factory,
		lookups:   lookups,
		logger:    logger,
		conns:     make(map[*connection]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// checkOrigin allows every origin unless an allow list is configured.
func (s *ChatSocket) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (s *ChatSocket) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return nil
	}

	conn := &connection{
		id:     uuid.NewString(),
		ws:     ws,
		notify: make(chan struct{}, 1),
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	engine, err := s.newEngine(func(conversation.Snapshot) { conn.signal() })
	if err != nil {
		s.logger.Error("failed to create conversation engine", "err", err)
		_ = ws.Close()
		return nil
	}
	conn.engine = engine
	ws.SetReadLimit(s.cfg.MaxFrameSize)

	s.register(conn)
	s.logger.Info("chat socket opened", "session_id", conn.id)

	// The greeting is pushed right away.
	conn.signal()

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

// Connections reports how many sockets are open.
func (s *ChatSocket) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll closes every open socket and waits for pending lookup writes.
func (s *ChatSocket) CloseAll() {
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.close(c)
	}
	s.recording.Wait()
}

func (s *ChatSocket) register(c *connection) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *ChatSocket) close(c *connection) {
	c.once.Do(func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()

		close(c.done)
		c.engine.Close()
		_ = c.ws.Close()
		s.logger.Info("chat socket closed", "session_id", c.id)
	})
}

// signal asks the writer to push a fresh snapshot. Signals coalesce.
func (c *connection) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (s *ChatSocket) readPump(c *connection) {
	defer s.close(c)

	_ = c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("chat socket read failed", "session_id", c.id, "err", err)
			}
			return
		}
		s.handleFrame(c, data)
	}
}

func (s *ChatSocket) writePump(c *connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.close(c)
	}()

	for {
		select {
		case <-c.done:
			return

		case <-c.notify:
			// Always render the current state so pushes never go backwards.
			if err := s.write(c, websocket.TextMessage, encodeSnapshot(c.engine.Snapshot())); err != nil {
				return
			}

		case msg := <-c.send:
			if err := s.write(c, websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.write(c, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *ChatSocket) write(c *connection, messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		s.logger.Debug("chat socket write failed", "session_id", c.id, "err", err)
		return err
	}
	return nil
}

func (s *ChatSocket) handleFrame(c *connection, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(c, "invalid_frame")
		return
	}

	switch frame.Type {
	case TypeInput:
		c.engine.SetInput(frame.Text)

	case TypeSubmit:
		text := frame.Text
		if strings.TrimSpace(text) == "" {
			text = c.engine.Input()
		}
		if utf8.RuneCountInString(strings.TrimSpace(text)) > s.cfg.MaxMessageLen {
			s.sendError(c, "message_too_long")
			return
		}
		receipt, ok := c.engine.Submit(text)
		if !ok {
			// Blank submissions are ignored.
			return
		}
		s.recording.Add(1)
		go func() {
			defer s.recording.Done()
			s.recordLookup(c, receipt)
		}()

	case TypeHistory:
		c.signal()

	default:
		s.sendError(c, "unknown_frame_type")
	}
}

func (s *ChatSocket) recordLookup(c *connection, r conversation.Receipt) {
	if s.lookups == nil {
		return
	}
	outcome, keyword := domain.OutcomeFallback, ""
	if r.Matched {
		outcome, keyword = domain.OutcomeResolved, r.Match.Keyword
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.lookups.RecordLookup(ctx, outcome, keyword); err != nil {
		s.logger.Warn("failed to record keyword lookup", "session_id", c.id, "outcome", outcome, "err", err)
	}
}

func (s *ChatSocket) sendError(c *connection, reason string) {
	raw, err := json.Marshal(errorFrame{Type: TypeError, Error: reason})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	case <-c.done:
	default:
		s.logger.Warn("chat socket send buffer full", "session_id", c.id)
	}
}

func encodeSnapshot(snap conversation.Snapshot) []byte {
	raw, _ := json.Marshal(snapshotFrame{
		Type:     TypeSnapshot,
		Messages: snap.Messages,
		IsTyping: snap.IsTyping,
		State:    snap.State.String(),
	})
	return raw
}
