package mq

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Subscriber is any queue that can be subscribed to by topic. M is the
// message type it delivers.
type Subscriber[M any] interface {
	Subscribe(uuid.UUID) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

// SubscribeProcessor subscribes service to topicId in the background and
// forwards every message through transformFunc to outputStream. It
// unsubscribes and closes outputStream when ctx ends or the input closes.
func SubscribeProcessor[S Subscriber[M], M any, O any](
	topicId uuid.UUID,
	ctx context.Context,
	service S,
	transformFunc func(msg M) (O, bool, error),
	outputStream chan<- O,
) {
	go func() {
		uid, inputCh, err := service.Subscribe(topicId)
		if err != nil {
			log.Printf("Error subscribing to %s: %v", topicId, err)
			close(outputStream)
			return
		}

		defer func() {
			if err := service.DeSubscribe(uid); err != nil {
				log.Printf("Error de-subscribing %s: %v", uid, err)
			}
			close(outputStream)
		}()

		for {
			select {
			case msg, ok := <-inputCh:
				if !ok {
					// parent close channel
					return
				}

				output, skip, err := transformFunc(msg)
				if err != nil || skip {
					continue
				}

				select {
				case outputStream <- output:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

// MergeRide fans the given queues into one stream for a single ride.
// The returned channel closes once ctx ends and every queue has stopped.
func MergeRide(ctx context.Context, rideID uuid.UUID, queues ...RideMessageQueue) <-chan RideMessage {
	out := make(chan RideMessage)
	streams := make([]chan RideMessage, 0, len(queues))
	for _, q := range queues {
		if q == nil {
			continue
		}
		stream := make(chan RideMessage)
		streams = append(streams, stream)
		SubscribeProcessor(rideID, ctx, q, func(msg RideMessage) (RideMessage, bool, error) {
			return msg, msg.RideID != rideID, nil
		}, stream)
	}

	go func() {
		defer close(out)
		done := make(chan struct{}, len(streams))
		for _, s := range streams {
			go func(s <-chan RideMessage) {
				defer func() { done <- struct{}{} }()
				for msg := range s {
					select {
					case out <- msg:
					case <-ctx.Done():
					}
				}
			}(s)
		}
		for range streams {
			<-done
		}
	}()
	return out
}
