package gcppubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"ridebook/mq/mq"
)

const (
	rideIDAttribute = "rideId"
)

// subscriptionInfo holds details about an active Pub/Sub subscription.
type subscriptionInfo struct {
	gcpSubscription *pubsub.Subscription
	cancel          context.CancelFunc
}

// GenericPubSubService provides a generic implementation for GCP Pub/Sub operations.
type GenericPubSubService[M mq.TopicProvider] struct {
	client              *pubsub.Client
	topic               *pubsub.Topic
	activeSubscriptions map[uuid.UUID]*subscriptionInfo
	subscriptionsMutex  sync.Mutex
	ctx                 context.Context
}

// NewGenericPubSubService creates and initializes a generic service for a specific message type.
// It ensures the underlying Pub/Sub topic exists, creating it if necessary.
func NewGenericPubSubService[M mq.TopicProvider](ctx context.Context, client *pubsub.Client, topicID string) (*GenericPubSubService[M], error) {
	if client == nil {
		return nil, fmt.Errorf("GCP Pub/Sub client is nil")
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existence of topic %s: %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topicID, err)
		}
		log.Printf("Created Pub/Sub topic: %s", topicID)
	}

	return &GenericPubSubService[M]{
		client:              client,
		topic:               topic,
		activeSubscriptions: make(map[uuid.UUID]*subscriptionInfo),
		ctx:                 ctx,
	}, nil
}

// Publish sends msg to the topic with its topic ID as the rideId attribute
// and waits for the server to accept it.
func (s *GenericPubSubService[M]) Publish(msg M) error {
	typeName := reflect.TypeOf(msg).Name()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typeName, err)
	}

	result := s.topic.Publish(s.ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			rideIDAttribute: msg.GetTopic().String(),
		},
	})
	if _, err := result.Get(s.ctx); err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", typeName, s.topic.ID(), err)
	}
	return nil
}

// Subscribe creates a subscription filtered to rideID and starts receiving.
// The GCP subscription is deleted when the receiver stops.
func (s *GenericPubSubService[M]) Subscribe(rideID uuid.UUID) (uuid.UUID, <-chan M, error) {
	subscriptionID := uuid.New()
	typeName := reflect.TypeOf(*new(M)).Name()

	gcpSubName := fmt.Sprintf("sub-%s-%s-%s", s.topic.ID(), rideID, subscriptionID)
	config := pubsub.SubscriptionConfig{
		Topic:            s.topic,
		Filter:           fmt.Sprintf("attributes.%s = \"%s\"", rideIDAttribute, rideID),
		ExpirationPolicy: 24 * time.Hour,
		AckDeadline:      10 * time.Second,
	}

	gcpSub, err := s.client.CreateSubscription(s.ctx, gcpSubName, config)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to create GCP subscription %s for %s: %w", gcpSubName, typeName, err)
	}

	msgChan := make(chan M, 5)
	receiveCtx, cancel := context.WithCancel(s.ctx)

	s.subscriptionsMutex.Lock()
	s.activeSubscriptions[subscriptionID] = &subscriptionInfo{
		gcpSubscription: gcpSub,
		cancel:          cancel,
	}
	s.subscriptionsMutex.Unlock()

	go func() {
		defer func() {
			s.subscriptionsMutex.Lock()
			delete(s.activeSubscriptions, subscriptionID)
			s.subscriptionsMutex.Unlock()

			if deleteErr := gcpSub.Delete(context.Background()); deleteErr != nil {
				log.Printf("Error deleting GCP subscription %s: %v", gcpSub.ID(), deleteErr)
			}
			close(msgChan)
		}()

		// Receive blocks until the context is cancelled.
		err := gcpSub.Receive(receiveCtx, func(ctx context.Context, pubsubMsg *pubsub.Message) {
			pubsubMsg.Ack()

			var msg M
			if err := json.Unmarshal(pubsubMsg.Data, &msg); err != nil {
				log.Printf("Error unmarshaling %s for %s: %v. Body: %s", typeName, subscriptionID, err, string(pubsubMsg.Data))
				return
			}

			select {
			case msgChan <- msg:
			case <-time.After(2 * time.Second):
				log.Printf("Timeout sending %s to msgChan for %s.", typeName, subscriptionID)
			case <-receiveCtx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Error in Receive loop for %s subscription %s: %v", typeName, subscriptionID, err)
		}
	}()

	return subscriptionID, msgChan, nil
}

// DeSubscribe stops the receiver; cleanup happens when it returns.
func (s *GenericPubSubService[M]) DeSubscribe(id uuid.UUID) error {
	s.subscriptionsMutex.Lock()
	info, ok := s.activeSubscriptions[id]
	if ok {
		info.cancel()
	}
	s.subscriptionsMutex.Unlock()

	if !ok {
		return fmt.Errorf("subscription ID %s not found for topic %s", id, s.topic.ID())
	}
	return nil
}

// Close cancels every active subscription and flushes pending publishes.
func (s *GenericPubSubService[M]) Close() {
	s.subscriptionsMutex.Lock()
	for _, info := range s.activeSubscriptions {
		info.cancel()
	}
	s.subscriptionsMutex.Unlock()
	s.topic.Stop()
}

// RideMQ is a mq.RideMessageQueue on the ride-<action> topic.
type RideMQ struct {
	genericService *GenericPubSubService[mq.RideMessage]
	action         mq.Action
}

func NewRideMessageQueue(ctx context.Context, client *pubsub.Client, action mq.Action) (*RideMQ, error) {
	topicID := fmt.Sprintf("ride-%s", action)
	gs, err := NewGenericPubSubService[mq.RideMessage](ctx, client, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to create generic service for %s: %w", topicID, err)
	}
	return &RideMQ{genericService: gs, action: action}, nil
}

func (q *RideMQ) GetAction() mq.Action             { return q.action }
func (q *RideMQ) Publish(msg mq.RideMessage) error { return q.genericService.Publish(msg) }
func (q *RideMQ) DeSubscribe(id uuid.UUID) error   { return q.genericService.DeSubscribe(id) }
func (q *RideMQ) Subscribe(rideID uuid.UUID) (uuid.UUID, <-chan mq.RideMessage, error) {
	return q.genericService.Subscribe(rideID)
}

type GCPRideMessageQueueWrapper struct {
	MQArray [mq.ActionCnt]*RideMQ
	client  *pubsub.Client
}

// NewGCPRideMessageQueueWrapper creates one topic-backed queue per action.
func NewGCPRideMessageQueueWrapper(ctx context.Context, projectID string) (*GCPRideMessageQueueWrapper, error) {
	client, err := NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	wrapper := &GCPRideMessageQueueWrapper{client: client}
	for action := mq.ActionCreate; action < mq.ActionCnt; action++ {
		wrapper.MQArray[action], err = NewRideMessageQueue(ctx, client, action)
		if err != nil {
			wrapper.Close()
			return nil, err
		}
	}
	return wrapper, nil
}

func (wrapper *GCPRideMessageQueueWrapper) GetRideMessageQueue(action mq.Action) mq.RideMessageQueue {
	if action < 0 || action >= mq.ActionCnt || wrapper.MQArray[action] == nil {
		return nil
	}
	return wrapper.MQArray[action]
}

func (wrapper *GCPRideMessageQueueWrapper) Close() {
	for _, q := range wrapper.MQArray {
		if q != nil {
			q.genericService.Close()
		}
	}
	if err := wrapper.client.Close(); err != nil {
		log.Printf("Error closing Pub/Sub client: %v", err)
	}
}
