package activity

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockSink implements Sink for tests.
type mockSink struct {
	mu        sync.Mutex
	events    []Event
	recordErr error
	delay     time.Duration
}

func (m *mockSink) Record(ctx context.Context, event Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.recordErr
}

func (m *mockSink) getEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestEmitAsync_NilSink(t *testing.T) {
	// Should not panic
	EmitAsync(nil, context.Background(), LoginFailed{Email: "a@b.c", Reason: "bad password"})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	sink := &mockSink{}
	EmitAsync(sink, context.Background(), nil)

	time.Sleep(10 * time.Millisecond)
	if n := len(sink.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_RecordsEvent(t *testing.T) {
	sink := &mockSink{}
	EmitAsync(sink, context.Background(), LoginSucceeded{UserID: "u1", SessionID: "s1"})

	time.Sleep(100 * time.Millisecond)
	events := sink.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got, ok := events[0].(LoginSucceeded)
	if !ok {
		t.Fatalf("unexpected event type %T", events[0])
	}
	if got.UserID != "u1" || got.SessionID != "s1" {
		t.Errorf("event = %+v", got)
	}
	if events[0].Kind() != "login.succeeded" {
		t.Errorf("kind = %q", events[0].Kind())
	}
}

func TestEmitAsync_SurvivesCancelledRequestContext(t *testing.T) {
	sink := &mockSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(sink, ctx, EmailVerified{UserID: "u1"})

	time.Sleep(100 * time.Millisecond)
	if n := len(sink.getEvents()); n != 1 {
		t.Errorf("expected 1 event despite cancelled request context, got %d", n)
	}
}

func TestEmitAsync_ErrorDoesNotPropagate(t *testing.T) {
	sink := &mockSink{recordErr: context.DeadlineExceeded}
	// Should not panic; error is logged only.
	EmitAsync(sink, context.Background(), SessionRevoked{UserID: "u1", SessionID: "s1"})
	time.Sleep(100 * time.Millisecond)
}

func TestEmitAsync_ConcurrentEmitters(t *testing.T) {
	sink := &mockSink{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(sink, context.Background(), TwoFactorChallenged{UserID: "u1"})
		}()
	}
	wg.Wait()

	time.Sleep(200 * time.Millisecond)
	if n := len(sink.getEvents()); n != 10 {
		t.Errorf("expected 10 events, got %d", n)
	}
}
