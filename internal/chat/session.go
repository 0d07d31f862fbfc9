package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/moviechat/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TimestampLayout is the 24-hour hour:minute display format of messages
const TimestampLayout = "15:04"

// Assistant answers a single chat request
type Assistant interface {
	SendMessage(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// AssistantFunc adapts a function to Assistant
type AssistantFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

// SendMessage calls f
func (f AssistantFunc) SendMessage(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return f(ctx, req)
}

// Option configures a Session
type Option func(*Session)

// WithMovieID binds the session to a movie, as the per-movie widget does
func WithMovieID(id int64) Option {
	return func(s *Session) {
		s.movieID = &id
	}
}

// WithReveal enables the typing reveal of assistant replies
func WithReveal(interval time.Duration) Option {
	return func(s *Session) {
		s.revealInterval = interval
		s.reveal = true
	}
}

// WithClock overrides the wall clock used for timestamps
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRequestTimeout bounds each assistant request
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithLimiter throttles accepted submissions
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Session) {
		s.limiter = l
	}
}

// WithSuggestions sets the quick suggestion texts
func WithSuggestions(suggestions []string) Option {
	return func(s *Session) {
		s.suggestions = append([]string(nil), suggestions...)
	}
}

// View is the rendered state of a session
type View struct {
	ID                  string           `json:"id"`
	MovieID             *int64           `json:"movie_id,omitempty"`
	Messages            []domain.Message `json:"messages"`
	Pending             bool             `json:"pending"`
	Typing              bool             `json:"typing"`
	Suggestions         []string         `json:"suggestions"`
	SuggestionsDisabled bool             `json:"suggestions_disabled"`
}

// Session holds the conversation state of one mounted chat surface.
// At most one assistant request is in flight at any time.
type Session struct {
	id             string
	assistant      Assistant
	transcript     *Transcript
	revealer       *Revealer
	movieID        *int64
	reveal         bool
	revealInterval time.Duration
	clock          func() time.Time
	logger         *zap.Logger
	timeout        time.Duration
	limiter        *rate.Limiter
	suggestions    []string

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	pending      bool
	seedConsumed bool
	closed       bool
	lastActive   time.Time
	inflight     int
	idle         *sync.Cond

	subMu   sync.Mutex
	subs    map[int]chan domain.StreamChunk
	nextSub int
}

// NewSession creates an empty session talking to assistant
func NewSession(assistant Assistant, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		assistant:  assistant,
		transcript: NewTranscript(),
		clock:      time.Now,
		logger:     zap.NewNop(),
		subs:       make(map[int]chan domain.StreamChunk),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reveal {
		s.revealer = NewRevealer(s.revealInterval, s.onReveal)
	}
	s.idle = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.lastActive = s.clock()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// MovieID returns the bound movie, if any
func (s *Session) MovieID() *int64 {
	return s.movieID
}

// Transcript exposes the underlying transcript
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// Revealer returns the reveal controller, nil when reveal is disabled
func (s *Session) Revealer() *Revealer {
	return s.revealer
}

// Pending reports whether an assistant request is outstanding
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// LastActive returns the time of the last user interaction
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Suggestions returns the quick suggestion texts
func (s *Session) Suggestions() []string {
	return append([]string(nil), s.suggestions...)
}

// Submit appends text as a user message and dispatches it to the assistant.
// It reports whether the message was accepted; TrySubmit gives the reason.
func (s *Session) Submit(text string) bool {
	return s.TrySubmit(text) == nil
}

// TrySubmit is Submit returning why a message was refused. Empty input, a
// closed session, a pending request or an exhausted rate limit reject the
// call without touching the transcript.
func (s *Session) TrySubmit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrInvalidRequest
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	case s.pending:
		s.mu.Unlock()
		return domain.ErrRequestPending
	case s.limiter != nil && !s.limiter.Allow():
		s.mu.Unlock()
		s.logger.Info("submit rate limited", zap.String("session_id", s.id))
		return domain.ErrRateLimited
	}
	msg := s.beginLocked(text)
	s.mu.Unlock()

	s.publish(domain.StreamChunk{Type: "message", Message: &msg, Pending: true})
	s.publish(domain.StreamChunk{Type: "pending", Pending: true})

	go s.dispatch(text)
	return nil
}

// SubmitSuggestion submits the quick suggestion at index
func (s *Session) SubmitSuggestion(index int) bool {
	return s.TrySubmitSuggestion(index) == nil
}

// TrySubmitSuggestion is SubmitSuggestion returning why it was refused
func (s *Session) TrySubmitSuggestion(index int) error {
	if index < 0 || index >= len(s.suggestions) {
		return domain.ErrInvalidRequest
	}
	return s.TrySubmit(s.suggestions[index])
}

// Bootstrap seeds the session with a question supplied at mount time and
// dispatches it. It runs at most once per session.
func (s *Session) Bootstrap(seed string) bool {
	if seed == "" {
		return false
	}

	s.mu.Lock()
	if s.closed || s.seedConsumed || s.pending {
		s.mu.Unlock()
		return false
	}
	s.seedConsumed = true
	msg := s.beginLocked(seed)
	s.mu.Unlock()

	s.logger.Debug("bootstrapped session", zap.String("session_id", s.id))
	s.publish(domain.StreamChunk{Type: "message", Message: &msg, Pending: true})
	s.publish(domain.StreamChunk{Type: "pending", Pending: true})

	go s.dispatch(seed)
	return true
}

// SeedConsumed reports whether Bootstrap already ran
func (s *Session) SeedConsumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedConsumed
}

// must hold s.mu
func (s *Session) beginLocked(text string) domain.Message {
	msg := s.transcript.Append(domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: s.timestamp(),
	})
	s.pending = true
	s.lastActive = s.clock()
	s.inflight++
	return msg
}

func (s *Session) dispatch(text string) {
	defer s.settle()

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req := domain.ChatRequest{Message: text, MovieID: s.movieID}
	start := time.Now()
	resp, err := s.send(ctx, req)

	reply := domain.Message{Role: domain.RoleAssistant}
	if err != nil {
		s.logger.Warn("assistant request failed",
			zap.String("session_id", s.id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		reply.Content = domain.ErrorReply
		reply.IsError = true
	} else {
		s.logger.Debug("assistant replied",
			zap.String("session_id", s.id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("sources", len(resp.Sources)),
		)
		reply.Content = resp.Message
		reply.Sources = resp.Sources
	}

	s.mu.Lock()
	reply.Timestamp = s.timestamp()
	if s.revealer != nil && !reply.IsError && !s.closed {
		s.revealer.Start(reply.Content)
	}
	reply = s.transcript.Append(reply)
	s.pending = false
	s.mu.Unlock()

	s.publish(domain.StreamChunk{Type: "message", Message: &reply, Typing: s.typing()})
	s.publish(domain.StreamChunk{Type: "pending", Pending: false})
}

// settle marks one dispatch as finished and wakes Wait callers
func (s *Session) settle() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// send calls the assistant, turning a panic or an empty reply into an error
// so the pending flag is always released.
func (s *Session) send(ctx context.Context, req domain.ChatRequest) (resp *domain.ChatResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrAssistantRequestFailed, r)
		}
	}()

	resp, err = s.assistant.SendMessage(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response", domain.ErrAssistantRequestFailed)
	}
	return resp, err
}

func (s *Session) onReveal(buffer string, typing bool) {
	s.publish(domain.StreamChunk{Type: "reveal", Content: buffer, Typing: typing})
}

func (s *Session) typing() bool {
	return s.revealer != nil && s.revealer.Typing()
}

// Clear empties the transcript. An in-flight request still completes and
// appends its reply.
func (s *Session) Clear() {
	s.mu.Lock()
	s.transcript.Clear()
	if s.revealer != nil {
		s.revealer.Stop()
	}
	s.lastActive = s.clock()
	pending := s.pending
	s.mu.Unlock()

	s.publish(domain.StreamChunk{Type: "cleared", Pending: pending})
}

// Export renders the stored transcript as plain text
func (s *Session) Export() Export {
	return s.transcript.Export(s.clock())
}

// View renders the transcript. While a reveal is running the content of the
// last message is replaced by the partial buffer, provided it is an
// assistant message.
func (s *Session) View() View {
	s.mu.Lock()
	messages := s.transcript.Messages()
	pending := s.pending
	s.mu.Unlock()

	view := View{
		ID:                  s.id,
		MovieID:             s.movieID,
		Messages:            messages,
		Pending:             pending,
		Suggestions:         s.Suggestions(),
		SuggestionsDisabled: pending,
	}

	if s.revealer == nil {
		return view
	}
	buffer, typing := s.revealer.Snapshot()
	view.Typing = typing
	if typing && len(messages) > 0 {
		last := &view.Messages[len(messages)-1]
		if last.Role == domain.RoleAssistant {
			last.Content = buffer
		}
	}
	return view
}

// Wait blocks until no assistant request is in flight. It may be called
// concurrently with Submit.
func (s *Session) Wait() {
	s.mu.Lock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Subscribe returns a channel of session events and a function releasing it
func (s *Session) Subscribe() (<-chan domain.StreamChunk, func()) {
	ch := make(chan domain.StreamChunk, 256)

	s.subMu.Lock()
	if s.subs == nil {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.subMu.Unlock()
		})
	}
}

func (s *Session) publish(chunk domain.StreamChunk) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- chunk:
		default:
			s.logger.Debug("dropping event for slow subscriber",
				zap.String("session_id", s.id),
				zap.Int("subscriber", id),
				zap.String("type", chunk.Type),
			)
		}
	}
}

// Close discards the session. An in-flight request is cancelled; it still
// resolves to an error reply before pending clears.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if s.revealer != nil {
		s.revealer.Stop()
	}

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subs = nil
	s.subMu.Unlock()
}

// Closed reports whether the session was discarded
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) timestamp() string {
	return s.clock().Format(TimestampLayout)
}
