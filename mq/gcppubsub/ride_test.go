package gcppubsub_test

import (
	"context"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"ridebook/db/db"
	"ridebook/mq/gcppubsub"
	"ridebook/mq/mq"
)

// These tests need the Pub/Sub emulator:
//
//	gcloud beta emulators pubsub start --project=test-project
//
// They are skipped when PUBSUB_EMULATOR_HOST is not set.
const testProjectID = "test-project"

func getTestWrapper(t *testing.T) *gcppubsub.GCPRideMessageQueueWrapper {
	t.Helper()
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("Skipping test: PUBSUB_EMULATOR_HOST environment variable not set. Please start the Pub/Sub emulator.")
	}

	wrapper, err := gcppubsub.NewGCPRideMessageQueueWrapper(context.Background(), testProjectID)
	if err != nil {
		t.Fatalf("Failed to create GCPRideMessageQueueWrapper for emulator: %v", err)
	}
	t.Cleanup(wrapper.Close)
	return wrapper
}

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

func newTestMessage(rideID uuid.UUID, action mq.Action) mq.RideMessage {
	return mq.RideMessage{
		RideID:      rideID,
		Action:      action,
		Status:      db.RideStatusCreated,
		CustomerID:  1,
		Price:       "25.50",
		Step:        1,
		Description: "User created a ride.",
	}
}

func TestNewClientRequiresProjectID(t *testing.T) {
	if _, err := gcppubsub.NewClient(context.Background(), ""); err != gcppubsub.ErrNoProjectID {
		t.Errorf("expected ErrNoProjectID, got %v", err)
	}
}

func TestGCPRideMessageQueueWrapper_Getters(t *testing.T) {
	wrapper := getTestWrapper(t)

	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		q := wrapper.GetRideMessageQueue(action)
		if q == nil {
			t.Fatalf("GetRideMessageQueue(%v) returned nil", action)
		}
		if q.GetAction() != action {
			t.Errorf("GetAction() expected %v, got %v", action, q.GetAction())
		}
	}
	if q := wrapper.GetRideMessageQueue(mq.ActionCnt); q != nil {
		t.Errorf("GetRideMessageQueue(ActionCnt) expected nil, got %T", q)
	}
}

func TestRideMessageQueue_Lifecycle_SingleSub(t *testing.T) {
	q := getTestWrapper(t).GetRideMessageQueue(mq.ActionCreate)
	rideID := uuid.New()
	msgToPublish := newTestMessage(rideID, mq.ActionCreate)

	subID, rcvChan, err := q.Subscribe(rideID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Allow time for subscription to be ready on the emulator backend
	time.Sleep(2 * time.Second)

	if err := q.Publish(msgToPublish); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	receivedMsg, ok := receiveMsgWithTimeout(t, rcvChan, 30*time.Second)
	if !ok {
		t.Fatal("Timeout or channel closed while waiting for message")
	}
	if !reflect.DeepEqual(receivedMsg, msgToPublish) {
		t.Errorf("Received message\n%+v\ndoes not match published message\n%+v", receivedMsg, msgToPublish)
	}

	if err := q.DeSubscribe(subID); err != nil {
		t.Fatalf("DeSubscribe failed: %v", err)
	}
	if _, ok := receiveMsgWithTimeout(t, rcvChan, 5*time.Second); ok {
		t.Error("subscriber channel not closed after DeSubscribe")
	}
}

func TestRideMessageQueue_FilteredByRide(t *testing.T) {
	q := getTestWrapper(t).GetRideMessageQueue(mq.ActionAccept)
	rideA, rideB := uuid.New(), uuid.New()
	msgA, msgB := newTestMessage(rideA, mq.ActionAccept), newTestMessage(rideB, mq.ActionAccept)

	subA, rcvA, err := q.Subscribe(rideA)
	if err != nil {
		t.Fatalf("Subscribe for ride A failed: %v", err)
	}
	subB, rcvB, err := q.Subscribe(rideB)
	if err != nil {
		t.Fatalf("Subscribe for ride B failed: %v", err)
	}
	defer q.DeSubscribe(subA)
	defer q.DeSubscribe(subB)

	time.Sleep(2 * time.Second)
	for _, msg := range []mq.RideMessage{msgA, msgB} {
		if err := q.Publish(msg); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	check := func(name string, ch <-chan mq.RideMessage, want mq.RideMessage) {
		defer wg.Done()
		got, ok := receiveMsgWithTimeout(t, ch, 30*time.Second)
		if !ok || !reflect.DeepEqual(got, want) {
			t.Errorf("%s: expected %+v, got %+v (ok: %t)", name, want, got, ok)
		}
		if _, ok := receiveMsgWithTimeout(t, ch, time.Second); ok {
			t.Errorf("%s received a message for another ride", name)
		}
	}
	wg.Add(2)
	go check("sub A", rcvA, msgA)
	go check("sub B", rcvB, msgB)
	wg.Wait()
}

func TestRideMessageQueue_DeSubscribe_NonExistent(t *testing.T) {
	q := getTestWrapper(t).GetRideMessageQueue(mq.ActionComplete)
	if err := q.DeSubscribe(uuid.New()); err == nil {
		t.Error("Expected error when de-subscribing non-existent ID, got nil")
	}
}
