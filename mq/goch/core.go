package goch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridebook/mq/mq"
)

const (
	// how long Publish waits for room in the publish channel
	publishTimeout = 100 * time.Millisecond
	// how long a subscriber may block delivery before it is dropped
	deliverTimeout = 100 * time.Millisecond
)

type subscriber[T any] struct {
	topic uuid.UUID
	ch    chan T
}

// fanOutQueueCore delivers each published item to every subscriber of
// the item's topic. One goroutine does the delivery; a subscriber that
// stops reading is removed and its channel closed.
type fanOutQueueCore[T mq.TopicProvider] struct {
	publishChan chan T
	subscribers map[uuid.UUID]*subscriber[T]
	bufferSize  int

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

func newFanOutQueueCore[T mq.TopicProvider](bufferSize int) *fanOutQueueCore[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	core := &fanOutQueueCore[T]{
		publishChan: make(chan T, bufferSize),
		subscribers: make(map[uuid.UUID]*subscriber[T]),
		bufferSize:  bufferSize,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go core.startFanOutRoutine()
	return core
}

func (c *fanOutQueueCore[T]) startFanOutRoutine() {
	defer close(c.done)
	for {
		select {
		case item := <-c.publishChan:
			c.fanOut(item)
		case <-c.quit:
			return
		}
	}
}

func (c *fanOutQueueCore[T]) fanOut(item T) {
	topic := item.GetTopic()

	// the read lock is held while sending so DeSubscribe cannot close a
	// channel under us
	var stalled []uuid.UUID
	c.mu.RLock()
	for id, sub := range c.subscribers {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- item:
		case <-time.After(deliverTimeout):
			stalled = append(stalled, id)
		case <-c.quit:
			c.mu.RUnlock()
			return
		}
	}
	c.mu.RUnlock()

	for _, id := range stalled {
		log.Printf("goch: subscriber %s is not reading, removing it", id)
		_ = c.DeSubscribe(id)
	}
}

// Publish hands item to the fan-out routine.
func (c *fanOutQueueCore[T]) Publish(item T) error {
	select {
	case <-c.quit:
		return ErrQueueStopped
	default:
	}

	select {
	case c.publishChan <- item:
		return nil
	case <-time.After(publishTimeout):
		return ErrQueueFull
	case <-c.quit:
		return ErrQueueStopped
	}
}

// Subscribe registers a new subscriber for topic.
func (c *fanOutQueueCore[T]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan T, error) {
	select {
	case <-c.quit:
		return uuid.Nil, nil, ErrQueueStopped
	default:
	}

	id := uuid.New()
	ch := make(chan T, c.bufferSize)

	c.mu.Lock()
	c.subscribers[id] = &subscriber[T]{topic: topic, ch: ch}
	c.mu.Unlock()

	return id, ch, nil
}

// DeSubscribe removes the subscriber and closes its channel.
func (c *fanOutQueueCore[T]) DeSubscribe(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[id]
	if !ok {
		return fmt.Errorf("goch: subscriber with ID '%s' not found", id)
	}
	delete(c.subscribers, id)
	close(sub.ch)
	return nil
}

// Stop ends the fan-out routine. Subscriber channels stay open so readers
// can drain what was already delivered.
func (c *fanOutQueueCore[T]) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
}

type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueFull    QueueError = "message queue is full"
	ErrQueueStopped QueueError = "message queue is stopped"
)
