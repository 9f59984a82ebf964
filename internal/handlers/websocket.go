package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
	"github.com/chachabrian/quickmatch-backend/internal/services"
)

// Dispatcher answers inbound websocket frames by running them through the engine.
// Every frame gets exactly one reply event.
type Dispatcher struct {
	engine *quickmatch.Engine
	log    *logrus.Entry
}

func NewDispatcher(engine *quickmatch.Engine, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{engine: engine, log: log}
}

func (d *Dispatcher) HandleInbound(ctx context.Context, userID uint, userType string, raw []byte) events.Outbound {
	ev, err := events.Decode(raw)
	if err != nil {
		return decodeFailure(err)
	}

	actor := quickmatch.Actor{ID: userID, Type: models.UserType(userType)}
	d.log.WithFields(logrus.Fields{"userId": userID, "event": ev.EventName()}).Debug("Inbound event")

	switch e := ev.(type) {
	case events.BookingRequest:
		return d.bookingRequest(ctx, actor, e)
	case events.BusinessResponse:
		return d.businessResponse(ctx, actor, e)
	case events.ConfirmBooking:
		return d.confirmBooking(ctx, actor, e)
	}
	return events.Error{Message: "unknown event type"}
}

func decodeFailure(err error) events.Outbound {
	var de *events.DecodeError
	if !errors.As(err, &de) || errors.Is(err, events.ErrUnknownType) {
		return events.Error{Message: err.Error()}
	}
	msg := de.Err.Error()
	switch de.Type {
	case events.NameBookingRequest:
		return events.RequestError{Message: msg, Code: "ValidationError"}
	case events.NameBusinessResponse:
		return events.ResponseError{Message: msg, Code: "ValidationError"}
	case events.NameConfirmBooking:
		return events.BookingError{Message: msg, Code: "ValidationError"}
	}
	return events.Error{Message: msg}
}

func (d *Dispatcher) bookingRequest(ctx context.Context, actor quickmatch.Actor, e events.BookingRequest) events.Outbound {
	if !actor.IsClient() {
		return events.RequestError{Message: "only clients can request bookings", Code: "Forbidden"}
	}

	res, err := d.engine.Intake.Submit(ctx, quickmatch.SubmitInput{
		ClientID:      actor.ID,
		CategoryID:    e.CategoryID,
		OfferedPrice:  e.OfferedPrice,
		RequestedTime: e.RequestedTime,
		Description:   e.Description,
		Location:      locationOf(e),
	})
	if err != nil {
		msg, code := d.eventError(err)
		return events.RequestError{Message: msg, Code: code}
	}
	return events.RequestCreated{RequestID: res.Request.ID, ExpiresAt: res.Request.ExpiresAt}
}

func (d *Dispatcher) businessResponse(ctx context.Context, actor quickmatch.Actor, e events.BusinessResponse) events.Outbound {
	if !actor.IsBusiness() {
		return events.ResponseError{RequestID: e.RequestID, Message: "only businesses can respond", Code: "Forbidden"}
	}

	if err := d.engine.Ledger.RecordResponse(ctx, e.RequestID, actor.ID, e.Action); err != nil {
		msg, code := d.eventError(err)
		return events.ResponseError{RequestID: e.RequestID, Message: msg, Code: code}
	}
	return events.ResponseRecorded{RequestID: e.RequestID, Action: e.Action}
}

func (d *Dispatcher) confirmBooking(ctx context.Context, actor quickmatch.Actor, e events.ConfirmBooking) events.Outbound {
	if !actor.IsClient() {
		return events.BookingError{RequestID: e.RequestID, Message: "only clients can confirm bookings", Code: "Forbidden"}
	}

	booking, err := d.engine.Arbiter.Confirm(ctx, quickmatch.ConfirmInput{
		RequestID:  e.RequestID,
		BusinessID: e.BusinessID,
		ClientID:   actor.ID,
		ServiceID:  e.ServiceID,
	})
	if err != nil {
		msg, code := d.eventError(err)
		return events.BookingError{RequestID: e.RequestID, Message: msg, Code: code}
	}
	return events.BookingConfirmed{BookingID: booking.ID, RequestID: e.RequestID}
}

func (d *Dispatcher) eventError(err error) (string, string) {
	if quickmatch.KindOf(err) == "" {
		d.log.WithError(err).Error("Inbound event failed")
	}
	return eventError(err)
}

// WebSocketHandler upgrades the authenticated connection and attaches it to the hub.
func WebSocketHandler(hub *services.Hub, dispatcher *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")
		userType := c.GetString("userType")

		if err := hub.HandleWebSocket(c.Writer, c.Request, userID, userType, dispatcher); err != nil {
			_ = c.Error(err)
		}
	}
}
