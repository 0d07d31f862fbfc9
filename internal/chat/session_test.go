package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeAssistant struct {
	mu       sync.Mutex
	requests []domain.ChatRequest
	release  chan struct{}
	resp     *domain.ChatResponse
	err      error
}

func (f *fakeAssistant) SendMessage(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeAssistant) calls() []domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatRequest(nil), f.requests...)
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 21, 5, 9, 123000000, time.UTC)
}

func TestSubmitSuccess(t *testing.T) {
	fa := &fakeAssistant{
		release: make(chan struct{}),
		resp:    &domain.ChatResponse{Message: "Try Se7en.", Sources: []domain.Source{}},
	}
	s := NewSession(fa, WithClock(fixedClock))
	defer s.Close()

	require.True(t, s.Submit("Recommend a thriller"))

	msgs := s.Transcript().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Recommend a thriller", msgs[0].Content)
	assert.Equal(t, "21:05", msgs[0].Timestamp)
	assert.True(t, s.Pending())

	close(fa.release)
	s.Wait()

	msgs = s.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Try Se7en.", msgs[1].Content)
	assert.False(t, msgs[1].IsError)
	assert.False(t, s.Pending())

	calls := fa.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Recommend a thriller", calls[0].Message)
	assert.Nil(t, calls[0].MovieID)
	assert.Nil(t, calls[0].ConversationID)
}

func TestSubmitFailureAppendsErrorReply(t *testing.T) {
	fa := &fakeAssistant{err: errors.New("connection refused")}
	s := NewSession(fa, WithClock(fixedClock))
	defer s.Close()

	require.True(t, s.Submit("???"))
	s.Wait()

	msgs := s.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, "Sorry, I encountered an error. Please try again.", msgs[1].Content)
	assert.False(t, s.Pending())
}

func TestSubmitRecoversFromAssistantPanic(t *testing.T) {
	s := NewSession(AssistantFunc(func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		panic("boom")
	}))
	defer s.Close()

	require.True(t, s.Submit("hello"))
	s.Wait()

	msgs := s.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
	assert.False(t, s.Pending())
}

func TestSubmitNilResponseIsFailure(t *testing.T) {
	s := NewSession(&fakeAssistant{})
	defer s.Close()

	require.True(t, s.Submit("hello"))
	s.Wait()

	last, ok := s.Transcript().Last()
	require.True(t, ok)
	assert.True(t, last.IsError)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	for _, in := range []string{"", "   ", "\n\t"} {
		assert.False(t, s.Submit(in), "input %q", in)
	}
	assert.Equal(t, 0, s.Transcript().Len())
	assert.False(t, s.Pending())
	assert.Empty(t, fa.calls())
}

func TestSubmitTrimsInput(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	require.True(t, s.Submit("  Best 2023 movies \n"))
	s.Wait()

	assert.Equal(t, "Best 2023 movies", s.Transcript().Messages()[0].Content)
	assert.Equal(t, "Best 2023 movies", fa.calls()[0].Message)
}

func TestSubmitWhilePendingIsRejected(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{}), resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	require.True(t, s.Submit("first"))
	for i := 0; i < 5; i++ {
		assert.False(t, s.Submit("second"))
		assert.False(t, s.SubmitSuggestion(0))
		assert.Equal(t, 1, s.Transcript().Len())
		assert.True(t, s.Pending())
	}

	close(fa.release)
	s.Wait()
	assert.Equal(t, 2, s.Transcript().Len())
	assert.Len(t, fa.calls(), 1)
}

func TestConcurrentSubmitsAdmitOne(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{}), resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Submit("race") {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(fa.release)
	s.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 2, s.Transcript().Len())
}

func TestSuggestions(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa, WithSuggestions([]string{"Recommend a thriller", "Explain Inception"}))
	defer s.Close()

	assert.False(t, s.SubmitSuggestion(-1))
	assert.False(t, s.SubmitSuggestion(2))
	require.True(t, s.SubmitSuggestion(1))
	s.Wait()

	assert.Equal(t, "Explain Inception", s.Transcript().Messages()[0].Content)
}

func TestMovieIDIsSent(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa, WithMovieID(42))
	defer s.Close()

	require.True(t, s.Submit("Explain the dream levels in this movie"))
	s.Wait()

	calls := fa.calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].MovieID)
	assert.Equal(t, int64(42), *calls[0].MovieID)
}

func TestBootstrap(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{}), resp: &domain.ChatResponse{Message: "A heist inside dreams."}}
	s := NewSession(fa)
	defer s.Close()

	require.True(t, s.Bootstrap("Explain Inception"))

	msgs := s.Transcript().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Explain Inception", msgs[0].Content)
	assert.True(t, s.Pending())

	close(fa.release)
	s.Wait()

	require.Len(t, fa.calls(), 1)
	assert.Equal(t, "Explain Inception", fa.calls()[0].Message)
	assert.True(t, s.SeedConsumed())

	assert.False(t, s.Bootstrap("Explain Inception"))
	assert.Equal(t, 2, s.Transcript().Len())
}

func TestBootstrapIgnoresEmptySeed(t *testing.T) {
	s := NewSession(&fakeAssistant{})
	defer s.Close()

	assert.False(t, s.Bootstrap(""))
	assert.False(t, s.SeedConsumed())
	assert.Equal(t, 0, s.Transcript().Len())
}

func TestClearIsIdempotent(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	s.Clear()
	assert.Equal(t, 0, s.Transcript().Len())

	require.True(t, s.Submit("one"))
	s.Wait()
	require.Equal(t, 2, s.Transcript().Len())

	s.Clear()
	assert.Equal(t, 0, s.Transcript().Len())
	s.Clear()
	assert.Equal(t, 0, s.Transcript().Len())
}

func TestClearWhilePendingKeepsReply(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{}), resp: &domain.ChatResponse{Message: "late"}}
	s := NewSession(fa)
	defer s.Close()

	require.True(t, s.Submit("question"))
	s.Clear()
	assert.True(t, s.Pending())

	close(fa.release)
	s.Wait()

	msgs := s.Transcript().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", msgs[0].Content)
}

func TestExport(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "Try Se7en."}}
	s := NewSession(fa, WithClock(fixedClock))
	defer s.Close()

	empty := s.Export()
	assert.Equal(t, "", empty.Body)
	assert.Equal(t, "chat-export-2025-03-14T21:05:09.123Z.txt", empty.Filename)

	require.True(t, s.Submit("Recommend a thriller"))
	s.Wait()

	exp := s.Export()
	assert.Equal(t, "[21:05] user: Recommend a thriller\n\n[21:05] assistant: Try Se7en.", exp.Body)
	assert.Len(t, strings.Split(exp.Body, "\n\n"), s.Transcript().Len())
}

func TestViewRevealsLastAssistantMessage(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "Se7en"}}
	// an hour-long interval keeps the ticker out of the way; the test steps by hand
	s := NewSession(fa, WithReveal(time.Hour))
	defer s.Close()

	require.True(t, s.Submit("Recommend a thriller"))
	s.Wait()

	stored, _ := s.Transcript().Last()
	assert.Equal(t, "Se7en", stored.Content)

	view := s.View()
	assert.True(t, view.Typing)
	assert.Equal(t, "", view.Messages[1].Content)

	r := s.Revealer()
	for i := 1; i <= 4; i++ {
		assert.True(t, r.Step())
		assert.Equal(t, "Se7en"[:i], s.View().Messages[1].Content)
	}
	assert.False(t, r.Step())

	view = s.View()
	assert.False(t, view.Typing)
	assert.Equal(t, "Se7en", view.Messages[1].Content)
}

func TestRevealOnlyAppliesToLastMessage(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "First reply"}}
	s := NewSession(fa, WithReveal(time.Hour))
	defer s.Close()

	require.True(t, s.Submit("one"))
	s.Wait()
	s.Revealer().Step()
	require.True(t, s.View().Typing)

	fa.mu.Lock()
	fa.release = make(chan struct{})
	fa.mu.Unlock()
	require.True(t, s.Submit("two"))

	view := s.View()
	require.Len(t, view.Messages, 3)
	assert.Equal(t, "First reply", view.Messages[1].Content)
	assert.Equal(t, "two", view.Messages[2].Content)

	close(fa.release)
	s.Wait()
}

func TestErrorReplyIsNotRevealed(t *testing.T) {
	s := NewSession(&fakeAssistant{err: errors.New("down")}, WithReveal(time.Hour))
	defer s.Close()

	require.True(t, s.Submit("hi"))
	s.Wait()

	view := s.View()
	assert.False(t, view.Typing)
	assert.Equal(t, domain.ErrorReply, view.Messages[1].Content)
}

func TestRevealRunsOnTicker(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "abc"}}
	s := NewSession(fa, WithReveal(time.Millisecond))
	defer s.Close()

	require.True(t, s.Submit("go"))
	s.Wait()

	require.Eventually(t, func() bool {
		return !s.View().Typing
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "abc", s.View().Messages[1].Content)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	events, cancel := s.Subscribe()
	defer cancel()

	require.True(t, s.Submit("hi"))
	s.Wait()
	s.Clear()

	var types []string
	for i := 0; i < 5; i++ {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out after events %v", types)
		}
	}
	assert.Equal(t, []string{"message", "pending", "message", "pending", "cleared"}, types)
}

func TestCloseCancelsInFlightRequest(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{})}
	s := NewSession(fa)

	events, _ := s.Subscribe()
	require.True(t, s.Submit("hi"))
	s.Close()
	s.Wait()

	assert.False(t, s.Pending())
	last, _ := s.Transcript().Last()
	assert.True(t, last.IsError)
	assert.False(t, s.Submit("again"))

	for range events {
	}
}

func TestRequestTimeout(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{})}
	s := NewSession(fa, WithRequestTimeout(10*time.Millisecond))
	defer s.Close()

	require.True(t, s.Submit("slow"))
	s.Wait()

	last, _ := s.Transcript().Last()
	assert.True(t, last.IsError)
	assert.False(t, s.Pending())
}

func TestLimiterRejectsBurst(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa, WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	defer s.Close()

	require.True(t, s.Submit("one"))
	s.Wait()
	assert.False(t, s.Submit("two"))
	assert.Equal(t, 2, s.Transcript().Len())
}

func TestTrySubmitReportsReason(t *testing.T) {
	fa := &fakeAssistant{release: make(chan struct{}), resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa,
		WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)),
		WithSuggestions([]string{"Recommend a thriller"}),
	)

	assert.ErrorIs(t, s.TrySubmit("   "), domain.ErrInvalidRequest)
	assert.ErrorIs(t, s.TrySubmitSuggestion(3), domain.ErrInvalidRequest)

	require.NoError(t, s.TrySubmit("one"))
	// the limiter is spent too, but the pending request is the reason
	assert.ErrorIs(t, s.TrySubmit("two"), domain.ErrRequestPending)
	assert.ErrorIs(t, s.TrySubmitSuggestion(0), domain.ErrRequestPending)

	close(fa.release)
	s.Wait()
	assert.ErrorIs(t, s.TrySubmit("three"), domain.ErrRateLimited)
	assert.Equal(t, 2, s.Transcript().Len())

	s.Close()
	assert.ErrorIs(t, s.TrySubmit("four"), domain.ErrSessionNotFound)
}

func TestWaitWithoutRequestReturns(t *testing.T) {
	fa := &fakeAssistant{resp: &domain.ChatResponse{Message: "ok"}}
	s := NewSession(fa)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for range 50 {
			s.Wait()
		}
		close(done)
	}()
	for i := range 5 {
		require.True(t, s.Submit("question"), "round %d", i)
		s.Wait()
	}
	<-done
	assert.Equal(t, 10, s.Transcript().Len())
}
