package mq

import (
	"ridebook/db/db"

	"github.com/google/uuid"
)

type Action int

const (
	ActionCreate Action = iota
	ActionAccept
	ActionComplete
	ActionCnt
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionAccept:
		return "accept"
	case ActionComplete:
		return "complete"
	}
	return "unknown"
}

type Mode string

const (
	ModeGoChan    Mode = "go_chan"
	ModeRabbitMQ  Mode = "rabbitmq"
	ModeGCPPubSub Mode = "gcp_pub_sub"
)

// RideMessage is published after a ride transition has committed. Price
// is left empty on accept, which never decodes it.
type RideMessage struct {
	RideID      uuid.UUID     `json:"ride_id"`
	Action      Action        `json:"action"`
	Status      db.RideStatus `json:"status"`
	CustomerID  int64         `json:"customer_id"`
	RiderID     *int64        `json:"rider_id,omitempty"`
	Price       string        `json:"price,omitempty"`
	Step        int           `json:"step"`
	Description string        `json:"description"`
}

func (m RideMessage) GetTopic() uuid.UUID {
	return m.RideID
}
