package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"kennel-assistant/internal/domain"
	"kennel-assistant/internal/knowledge"
)

const (
	DefaultGreeting      = "Здравствуйте! 👋 Я помогу вам узнать больше о наших щенках. Задайте вопрос!"
	DefaultFallback      = "Спасибо за вопрос! Чтобы получить подробную консультацию, оставьте заявку в форме ниже или позвоните нам. Мы ответим на все вопросы! 📞"
	DefaultMatchDelay    = 1000 * time.Millisecond
	DefaultFallbackDelay = 1500 * time.Millisecond
)

// ErrClosed is returned for replies that will never arrive because the
// session was closed.
var ErrClosed = errors.New("conversation: engine closed")

type State int

const (
	StateIdle State = iota
	StateAwaitingReply
)

func (s State) String() string {
	if s == StateAwaitingReply {
		return "awaiting_reply"
	}
	return "idle"
}

// RequestID identifies an accepted submission. IDs increase monotonically
// within an engine.
type RequestID uint64

// Snapshot is the engine state at one instant.
type Snapshot struct {
	Messages []domain.Message
	IsTyping bool
	State    State
}

type Options struct {
	Greeting      string
	Fallback      string
	MatchDelay    time.Duration
	FallbackDelay time.Duration
	Scheduler     Scheduler
	// OnChange is called after every appended message, outside the engine lock.
	OnChange func(Snapshot)
}

type pending struct {
	id      RequestID
	match   knowledge.Match
	matched bool
	reply   domain.Message
	delay   time.Duration
	done    chan struct{}
	err     error
}

// Receipt is returned for every accepted submission.
type Receipt struct {
	ID      RequestID
	Matched bool
	Match   knowledge.Match
	p       *pending
}

// Wait blocks until the bot reply for this submission has been appended.
func (r Receipt) Wait(ctx context.Context) (domain.Message, error) {
	if r.p == nil {
		return domain.Message{}, errors.New("conversation: empty receipt")
	}
	select {
	case <-r.p.done:
		if r.p.err != nil {
			return domain.Message{}, r.p.err
		}
		return r.p.reply, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

// Engine holds one chat widget conversation. Replies to overlapping
// submissions are queued and appended in submission order; only the head of
// the queue has a running timer.
type Engine struct {
	matcher knowledge.Matcher
	opts    Options

	mu      sync.Mutex
	history []domain.Message
	input   string
	queue   []*pending
	timer   Timer
	nextID  RequestID
	closed  bool
}

func NewEngine(m knowledge.Matcher, opts Options) (*Engine, error) {
	if m == nil {
		return nil, errors.New("conversation: matcher must not be nil")
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}
	if opts.MatchDelay < 0 || opts.FallbackDelay < 0 {
		return nil, errors.New("conversation: delays must not be negative")
	}
	if opts.MatchDelay == 0 {
		opts.MatchDelay = DefaultMatchDelay
	}
	if opts.FallbackDelay == 0 {
		opts.FallbackDelay = DefaultFallbackDelay
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler()
	}
	return &Engine{
		matcher: m,
		opts:    opts,
		history: []domain.Message{{Role: domain.RoleBot, Text: opts.Greeting}},
	}, nil
}

// SetInput replaces the input buffer.
func (e *Engine) SetInput(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input = text
}

func (e *Engine) Input() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input
}

// Send submits the current input buffer.
func (e *Engine) Send() (Receipt, bool) {
	return e.Submit(e.Input())
}

// Submit appends the user message and schedules the bot reply. It returns
// false without touching any state when the text is blank or the engine is
// closed.
func (e *Engine) Submit(raw string) (Receipt, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Receipt{}, false
	}

	match, matched := e.matcher.Match(text)
	p := &pending{
		match:   match,
		matched: matched,
		done:    make(chan struct{}),
	}
	if matched {
		p.reply = domain.Message{Role: domain.RoleBot, Text: match.Answer}
		p.delay = e.opts.MatchDelay
	} else {
		p.reply = domain.Message{Role: domain.RoleBot, Text: e.opts.Fallback}
		p.delay = e.opts.FallbackDelay
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Receipt{}, false
	}
	e.nextID++
	p.id = e.nextID
	e.history = append(e.history, domain.Message{Role: domain.RoleUser, Text: text})
	e.input = ""
	e.queue = append(e.queue, p)
	if len(e.queue) == 1 {
		e.armLocked()
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
	return Receipt{ID: p.id, Matched: matched, Match: match, p: p}, true
}

// armLocked schedules the reply at the head of the queue.
func (e *Engine) armLocked() {
	head := e.queue[0]
	id := head.id
	e.timer = e.opts.Scheduler.AfterFunc(head.delay, func() { e.resolve(id) })
}

func (e *Engine) resolve(id RequestID) {
	e.mu.Lock()
	if e.closed || len(e.queue) == 0 || e.queue[0].id != id {
		e.mu.Unlock()
		return
	}
	head := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	e.history = append(e.history, head.reply)
	e.timer = nil
	if len(e.queue) > 0 {
		e.armLocked()
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	close(head.done)
	e.notify(snap)
}

// Close ends the session. Scheduled replies are dropped and their waiters
// receive ErrClosed. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	queue := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, p := range queue {
		p.err = ErrClosed
		close(p.done)
	}
}

// History returns the messages in append order.
func (e *Engine) History() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Message(nil), e.history...)
}

func (e *Engine) IsTyping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue) > 0
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Pending reports how many replies are still queued.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) stateLocked() State {
	if len(e.queue) > 0 {
		return StateAwaitingReply
	}
	return StateIdle
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: append([]domain.Message(nil), e.history...),
		IsTyping: len(e.queue) > 0,
		State:    e.stateLocked(),
	}
}

func (e *Engine) notify(s Snapshot) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(s)
	}
}
