package goch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Helper to receive a message from a channel with a timeout.
// Returns the message and true if successful, or zero value and false on timeout/closed.
func receiveMsgWithTimeout[T any](tb testing.TB, ch <-chan T, timeout time.Duration) (T, bool) {
	tb.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			var zero T
			return zero, false
		}
		return msg, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// waitClosed reports whether ch is closed within timeout, draining anything left in it.
func waitClosed[T any](ch <-chan T, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

type MockItem struct {
	Value   int
	TopicID uuid.UUID
}

func (item MockItem) GetTopic() uuid.UUID {
	return item.TopicID
}

func TestNewFanOutQueueCore(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 10} {
		t.Run(fmt.Sprintf("buffer %d", size), func(t *testing.T) {
			t.Parallel()
			core := newFanOutQueueCore[MockItem](size)
			defer core.Stop()

			if cap(core.publishChan) != size {
				t.Errorf("expected publishChan capacity %d, got %d", size, cap(core.publishChan))
			}
			if core.subscribers == nil {
				t.Error("subscribers map is nil")
			}
			if core.bufferSize != size {
				t.Errorf("expected bufferSize %d, got %d", size, core.bufferSize)
			}
		})
	}
}

func TestFanOutQueueCore_PublishSubscribeDeSubscribe(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](0)
	defer core.Stop()

	topic := uuid.New()
	id, ch, err := core.Subscribe(topic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	go func() {
		if err := core.Publish(MockItem{Value: 42, TopicID: topic}); err != nil {
			t.Errorf("Publish failed: %v", err)
		}
	}()

	msg, ok := receiveMsgWithTimeout(t, ch, 500*time.Millisecond)
	if !ok {
		t.Fatal("Failed to receive message or channel closed/timed out")
	}
	if msg.Value != 42 {
		t.Errorf("Expected message 42, got %d", msg.Value)
	}

	if err := core.DeSubscribe(id); err != nil {
		t.Fatalf("DeSubscribe failed: %v", err)
	}
	if !waitClosed(ch, 500*time.Millisecond) {
		t.Error("Subscriber channel not closed after DeSubscribe")
	}
}

func TestFanOutQueueCore_TopicFiltering(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](10)
	defer core.Stop()

	topicA, topicB := uuid.New(), uuid.New()
	_, chA1, _ := core.Subscribe(topicA)
	_, chA2, _ := core.Subscribe(topicA)
	_, chB, _ := core.Subscribe(topicB)

	if err := core.Publish(MockItem{Value: 1, TopicID: topicA}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, ch := range []<-chan MockItem{chA1, chA2} {
		msg, ok := receiveMsgWithTimeout(t, ch, 500*time.Millisecond)
		if !ok || msg.Value != 1 {
			t.Errorf("subscriber %d of topic A expected 1, got %v (ok=%v)", i, msg, ok)
		}
	}
	if msg, ok := receiveMsgWithTimeout(t, chB, 200*time.Millisecond); ok {
		t.Errorf("subscriber of topic B received %v", msg)
	}
}

func TestFanOutQueueCore_DeSubscribeNonExistent(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](0)
	defer core.Stop()

	id := uuid.New()
	err := core.DeSubscribe(id)
	if err == nil {
		t.Fatal("Expected error when desubscribing non-existent ID, got nil")
	}
	expected := fmt.Sprintf("goch: subscriber with ID '%s' not found", id)
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
}

func TestFanOutQueueCore_StalledSubscriberIsRemoved(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](1)
	defer core.Stop()

	topic := uuid.New()
	id, ch, err := core.Subscribe(topic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// first fills the subscriber buffer, second cannot be delivered
	for _, v := range []int{1, 2} {
		if err := core.Publish(MockItem{Value: v, TopicID: topic}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	time.Sleep(500 * time.Millisecond)

	core.mu.RLock()
	_, stillSubscribed := core.subscribers[id]
	core.mu.RUnlock()
	if stillSubscribed {
		t.Errorf("Stalled subscriber %s not removed", id)
	}
	if !waitClosed(ch, 500*time.Millisecond) {
		t.Errorf("Channel of stalled subscriber %s not closed", id)
	}
}

func TestFanOutQueueCore_PublishNoSubscribers(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](5)
	defer core.Stop()

	for i := 0; i < 5; i++ {
		if err := core.Publish(MockItem{Value: i, TopicID: uuid.New()}); err != nil {
			t.Errorf("Publish %d with no subscribers failed: %v", i, err)
		}
	}
}

func TestFanOutQueueCore_Stop(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](5)

	topic := uuid.New()
	id, ch, _ := core.Subscribe(topic)
	if err := core.Publish(MockItem{Value: 7, TopicID: topic}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if msg, ok := receiveMsgWithTimeout(t, ch, 500*time.Millisecond); !ok || msg.Value != 7 {
		t.Fatalf("expected 7 before stop, got %v (ok=%v)", msg, ok)
	}

	stopped := make(chan struct{})
	go func() {
		core.Stop()
		core.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("core.Stop() timed out")
	}

	if err := core.Publish(MockItem{Value: 8, TopicID: topic}); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped after Stop, got %v", err)
	}
	if _, _, err := core.Subscribe(topic); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped on Subscribe after Stop, got %v", err)
	}
	if err := core.DeSubscribe(id); err != nil {
		t.Errorf("DeSubscribe after Stop failed: %v", err)
	}
}
