package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"ridebook/mq/mq"
)

const (
	exchangeName = "ride_events_exchange" // All ride events go through this exchange

	publishTimeout = 5 * time.Second
	deliverTimeout = 1 * time.Second
)

// routingKey is ride.<action>.<ride id>, so a subscriber only binds to its own ride.
func routingKey(action mq.Action, rideID uuid.UUID) string {
	return fmt.Sprintf("ride.%s.%s", action, rideID)
}

type consumer struct {
	out  chan mq.RideMessage
	stop chan struct{}
}

// RabbitRideMessageQueue implements mq.RideMessageQueue for RabbitMQ.
type RabbitRideMessageQueue struct {
	action    mq.Action
	channel   *amqp091.Channel
	mu        sync.Mutex // Protects the consumers map
	consumers map[uuid.UUID]*consumer
}

// NewRabbitRideMessageQueue opens a channel on conn and declares the ride exchange.
func NewRabbitRideMessageQueue(action mq.Action, conn *amqp091.Connection) (*RabbitRideMessageQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := DeclareExchange(ch, exchangeName); err != nil {
		ch.Close()
		return nil, err
	}

	return &RabbitRideMessageQueue{
		action:    action,
		channel:   ch,
		consumers: make(map[uuid.UUID]*consumer),
	}, nil
}

func (q *RabbitRideMessageQueue) GetAction() mq.Action {
	return q.action
}

// Publish sends msg to the exchange under the ride's routing key.
func (q *RabbitRideMessageQueue) Publish(msg mq.RideMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = q.channel.PublishWithContext(ctx,
		exchangeName,                     // exchange
		routingKey(q.action, msg.RideID), // routing key
		false,                            // mandatory
		false,                            // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe binds a fresh queue to rideID and consumes it. The consumer tag
// is the returned subscriber ID.
func (q *RabbitRideMessageQueue) Subscribe(rideID uuid.UUID) (uuid.UUID, <-chan mq.RideMessage, error) {
	queueName, err := declareBoundQueue(q.channel, exchangeName, routingKey(q.action, rideID))
	if err != nil {
		return uuid.Nil, nil, err
	}

	subscriberID := uuid.New()
	msgs, err := q.channel.Consume(
		queueName,             // queue
		subscriberID.String(), // consumer
		true,                  // auto-ack
		true,                  // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	c := &consumer{
		out:  make(chan mq.RideMessage),
		stop: make(chan struct{}),
	}
	q.mu.Lock()
	q.consumers[subscriberID] = c
	q.mu.Unlock()

	go q.forward(subscriberID, msgs, c)

	return subscriberID, c.out, nil
}

func (q *RabbitRideMessageQueue) forward(id uuid.UUID, msgs <-chan amqp091.Delivery, c *consumer) {
	defer close(c.out)
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				return
			}
			var msg mq.RideMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Printf("Failed to unmarshal RideMessage: %v", err)
				continue
			}
			select {
			case c.out <- msg:
			case <-time.After(deliverTimeout):
				log.Printf("Timeout sending message to RideMessage consumer %s. Skipping.", id)
			case <-c.stop:
				return
			}
		case <-c.stop:
			return
		}
	}
}

// DeSubscribe cancels the consumer; its channel is closed once the
// forwarding goroutine exits.
func (q *RabbitRideMessageQueue) DeSubscribe(subscriberID uuid.UUID) error {
	q.mu.Lock()
	c, ok := q.consumers[subscriberID]
	if ok {
		delete(q.consumers, subscriberID)
		close(c.stop)
	}
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("consumer with ID %s not found for %s queue", subscriberID, q.action)
	}
	if err := q.channel.Cancel(subscriberID.String(), false); err != nil {
		return fmt.Errorf("failed to cancel consumer %s: %w", subscriberID, err)
	}
	return nil
}

func (q *RabbitRideMessageQueue) Close() error {
	return q.channel.Close()
}

// RabbitRideMessageQueueWrapper implements mq.RideMessageQueueWrapper for RabbitMQ.
type RabbitRideMessageQueueWrapper struct {
	MQArray [mq.ActionCnt]*RabbitRideMessageQueue
	conn    *amqp091.Connection // Keep a reference to the connection to close it later
}

// NewRabbitRideMessageQueueWrapper creates one queue per action on conn.
func NewRabbitRideMessageQueueWrapper(conn *amqp091.Connection) (*RabbitRideMessageQueueWrapper, error) {
	wrapper := &RabbitRideMessageQueueWrapper{conn: conn}
	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		q, err := NewRabbitRideMessageQueue(action, conn)
		if err != nil {
			wrapper.closeQueues()
			return nil, fmt.Errorf("failed to create %s mq: %w", action, err)
		}
		wrapper.MQArray[action] = q
	}
	return wrapper, nil
}

func (wrapper *RabbitRideMessageQueueWrapper) GetRideMessageQueue(action mq.Action) mq.RideMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.MQArray[action]
}

func (wrapper *RabbitRideMessageQueueWrapper) closeQueues() {
	for _, q := range wrapper.MQArray {
		if q != nil {
			if err := q.Close(); err != nil {
				log.Printf("Error closing %s channel: %v", q.action, err)
			}
		}
	}
}

// Close closes all channels and the RabbitMQ connection.
func (wrapper *RabbitRideMessageQueueWrapper) Close() {
	wrapper.closeQueues()
	if wrapper.conn != nil {
		wrapper.conn.Close()
	}
}
