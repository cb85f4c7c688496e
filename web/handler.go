package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ridebook/db/db"
	"ridebook/errs"
	"ridebook/ledger"
	"ridebook/logger"
	"ridebook/money"
	"ridebook/mq/mq"
	"ridebook/repair"
	"ridebook/ride"
)

const (
	defaultWait = 30 * time.Second
	maxWait     = 60 * time.Second
)

type Handler struct {
	rides    *ride.Service
	ledger   *ledger.Ledger
	repairer *repair.Repairer
	queue    mq.RideMessageQueueWrapper
	log      logger.ILogger
}

func NewHandler(rides *ride.Service, l *ledger.Ledger, repairer *repair.Repairer, queue mq.RideMessageQueueWrapper, log logger.ILogger) *Handler {
	return &Handler{
		rides:    rides,
		ledger:   l,
		repairer: repairer,
		queue:    queue,
		log:      log,
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) me(c *gin.Context) {
	respond(c, http.StatusOK, newUserView(userOf(c)))
}

func (h *Handler) createRide(c *gin.Context) {
	var req ride.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, errs.ErrInvalidRequest.Code(), err.Error())
		return
	}
	created, err := h.rides.Create(c.Request.Context(), callerOf(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, newRideView(*created))
}

func (h *Handler) estimateDistance(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"distance": money.Format(ride.EstimateDistance())})
}

func (h *Handler) listRides(c *gin.Context) {
	ctx := c.Request.Context()
	rides, err := h.rides.List(ctx, callerOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	// queue every lookup first so the loader fetches them in one batch
	loader := userLoaderOf(c)
	type pending struct {
		customer func() (*db.User, error)
		rider    func() (*db.User, error)
	}
	thunks := make([]pending, len(rides))
	for i, r := range rides {
		thunks[i].customer = loader.GetUser.LoadThunk(ctx, r.CustomerID)
		if r.RiderID != nil {
			thunks[i].rider = loader.GetUser.LoadThunk(ctx, *r.RiderID)
		}
	}

	views := make([]rideView, 0, len(rides))
	for i, r := range rides {
		view := newRideView(r)
		view.CustomerName = nameOf(thunks[i].customer)
		view.RiderName = nameOf(thunks[i].rider)
		views = append(views, view)
	}
	respond(c, http.StatusOK, views)
}

// nameOf resolves a user thunk to a display name; users that cannot be
// read are shown without one.
func nameOf(thunk func() (*db.User, error)) string {
	if thunk == nil {
		return ""
	}
	user, err := thunk()
	if err != nil || user == nil {
		return ""
	}
	return user.FullName()
}

func rideIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithCode(c, http.StatusBadRequest, errs.ErrInvalidRequest.Code(), "invalid ride id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) getRide(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	detail, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"ride":   newRideView(detail.Ride),
		"events": newEventViews(detail.Events),
	})
}

func (h *Handler) acceptRide(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	t, err := h.rides.Accept(c.Request.Context(), callerOf(c), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newTransitionView(t))
}

func (h *Handler) completeRide(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	t, err := h.rides.Complete(c.Request.Context(), callerOf(c), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newTransitionView(t))
}

// nextRideMessage waits for the ride's next accept or complete
// notification. It answers 204 when nothing arrives within ?wait (30s by
// default, at most 60s).
func (h *Handler) nextRideMessage(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	wait := defaultWait
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			abortWithCode(c, http.StatusBadRequest, errs.ErrInvalidRequest.Code(), "invalid wait duration")
			return
		}
		wait = min(d, maxWait)
	}
	if h.queue == nil {
		c.Status(http.StatusNoContent)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	stream := mq.MergeRide(ctx, id,
		h.queue.GetRideMessageQueue(mq.ActionAccept),
		h.queue.GetRideMessageQueue(mq.ActionComplete),
	)
	select {
	case msg, ok := <-stream:
		if ok {
			respond(c, http.StatusOK, msg)
			return
		}
	case <-ctx.Done():
	}
	c.Status(http.StatusNoContent)
}

type creditRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) creditBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithCode(c, http.StatusBadRequest, errs.ErrInvalidRequest.Code(), "invalid user id")
		return
	}
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithCode(c, http.StatusBadRequest, errs.ErrInvalidRequest.Code(), err.Error())
		return
	}

	user, err := h.ledger.Credit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.log.Info("staff credited balance",
		logger.Int64("staff_id", callerOf(c).ID),
		logger.Int64("user_id", userID),
		logger.String("amount", req.Amount),
	)
	respond(c, http.StatusOK, newUserView(user))
}

func (h *Handler) repairBalances(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("dry_run") == "true" {
		corrections, err := h.repairer.Scan(ctx)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if corrections == nil {
			corrections = []repair.Correction{}
		}
		respond(c, http.StatusOK, gin.H{"dry_run": true, "corrections": corrections})
		return
	}

	ids, err := h.repairer.ScanAndRepairAll(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"dry_run": false, "corrected": ids})
}
