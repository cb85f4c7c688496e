package goch

import (
	"github.com/google/uuid"

	"ridebook/mq/mq"
)

// ChannelRideMessageQueue implements mq.RideMessageQueue with Go channels.
type ChannelRideMessageQueue struct {
	action mq.Action
	core   *fanOutQueueCore[mq.RideMessage]
}

// NewChannelRideMessageQueue creates a queue for one action.
// bufferSize is the capacity of the publish and subscriber channels.
func NewChannelRideMessageQueue(action mq.Action, bufferSize int) *ChannelRideMessageQueue {
	return &ChannelRideMessageQueue{
		action: action,
		core:   newFanOutQueueCore[mq.RideMessage](bufferSize),
	}
}

// GetAction returns the action associated with this queue.
func (q *ChannelRideMessageQueue) GetAction() mq.Action {
	return q.action
}

func (q *ChannelRideMessageQueue) Publish(msg mq.RideMessage) error {
	return q.core.Publish(msg)
}

func (q *ChannelRideMessageQueue) Subscribe(rideID uuid.UUID) (uuid.UUID, <-chan mq.RideMessage, error) {
	return q.core.Subscribe(rideID)
}

func (q *ChannelRideMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

func (q *ChannelRideMessageQueue) Stop() {
	q.core.Stop()
}

// GoChanRideMessageQueueWrapper keeps one queue per action.
type GoChanRideMessageQueueWrapper struct {
	MQArray [mq.ActionCnt]*ChannelRideMessageQueue
}

// NewGoChanRideMessageQueueWrapper creates a new instance of GoChanRideMessageQueueWrapper.
func NewGoChanRideMessageQueueWrapper(bufferSize int) *GoChanRideMessageQueueWrapper {
	wrapper := &GoChanRideMessageQueueWrapper{}
	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		wrapper.MQArray[action] = NewChannelRideMessageQueue(action, bufferSize)
	}
	return wrapper
}

func (wrapper *GoChanRideMessageQueueWrapper) GetRideMessageQueue(action mq.Action) mq.RideMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.MQArray[action]
}

// Close stops every queue.
func (wrapper *GoChanRideMessageQueueWrapper) Close() {
	for _, q := range wrapper.MQArray {
		if q != nil {
			q.Stop()
		}
	}
}
