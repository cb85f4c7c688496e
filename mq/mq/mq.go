package mq

import "github.com/google/uuid"

// TopicProvider is anything that can say which topic it belongs to.
type TopicProvider interface {
	GetTopic() uuid.UUID
}

type RideMessageQueueWrapper interface {
	GetRideMessageQueue(action Action) RideMessageQueue
	Close()
}

// RideMessageQueue carries the messages of one action. Subscribers
// receive only the messages of the ride they subscribed to.
type RideMessageQueue interface {
	GetAction() Action
	Publish(msg RideMessage) error
	Subscribe(rideID uuid.UUID) (uuid.UUID, <-chan RideMessage, error)
	DeSubscribe(id uuid.UUID) error
}
