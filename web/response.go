package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ridebook/db/db"
	"ridebook/errs"
	"ridebook/money"
	"ridebook/ride"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"code": "ok", "data": data})
}

func abortWithCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// statusOf maps an outcome kind to its HTTP status.
func statusOf(kind errs.Error) int {
	switch kind {
	case errs.ErrInvalidAmount, errs.ErrInvalidRequest:
		return http.StatusBadRequest
	case errs.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	case errs.ErrInvalidTransition:
		return http.StatusConflict
	case errs.ErrNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// abortWithError renders err by kind. Storage faults are not echoed back.
func abortWithError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	message := err.Error()
	switch kind {
	case "":
		message = "internal error"
	case errs.ErrCorruptData:
		message = "stored data is corrupt, an operator has to look at it: " + err.Error()
	}
	_ = c.Error(err)
	abortWithCode(c, statusOf(kind), kind.Code(), message)
}

type userView struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Role     db.Role `json:"role"`
	Balance  string  `json:"balance"`
}

func newUserView(u *db.User) userView {
	return userView{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.FullName(),
		Role:     u.Role,
		Balance:  money.Format(u.Balance),
	}
}

type rideView struct {
	ID             uuid.UUID     `json:"id"`
	CustomerID     int64         `json:"customer_id"`
	CustomerName   string        `json:"customer_name,omitempty"`
	RiderID        *int64        `json:"rider_id"`
	RiderName      string        `json:"rider_name,omitempty"`
	PickupLocation string        `json:"pickup_location"`
	Destination    string        `json:"destination"`
	TotalDistance  string        `json:"total_distance"`
	Price          string        `json:"price"`
	Status         db.RideStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func newRideView(r db.Ride) rideView {
	return rideView{
		ID:             r.ID,
		CustomerID:     r.CustomerID,
		RiderID:        r.RiderID,
		PickupLocation: r.PickupLocation,
		Destination:    r.Destination,
		TotalDistance:  money.Format(r.TotalDistance),
		Price:          money.Format(r.Price),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type eventView struct {
	StepCount   int       `json:"step_count"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func newEventViews(events []db.RideEvent) []eventView {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{StepCount: e.StepCount, Description: e.Description, CreatedAt: e.CreatedAt})
	}
	return views
}

type transitionView struct {
	RideID     uuid.UUID     `json:"ride_id"`
	Status     db.RideStatus `json:"status"`
	CustomerID int64         `json:"customer_id"`
	RiderID    *int64        `json:"rider_id"`
	Event      eventView     `json:"event"`
}

func newTransitionView(t *ride.Transition) transitionView {
	return transitionView{
		RideID:     t.RideID,
		Status:     t.Status,
		CustomerID: t.CustomerID,
		RiderID:    t.RiderID,
		Event:      newEventViews([]db.RideEvent{t.Event})[0],
	}
}
