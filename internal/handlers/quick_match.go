package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
)

func locationOf(in events.BookingRequest) *quickmatch.Location {
	if in.ClientLat == nil || in.ClientLng == nil {
		return nil
	}
	return &quickmatch.Location{Lat: *in.ClientLat, Lng: *in.ClientLng}
}

// SubmitRequest broadcasts a new booking request to matching businesses.
func SubmitRequest(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireClient(c) {
			return
		}

		var input events.BookingRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		if err := events.Validate(input); err != nil {
			badRequest(c, err)
			return
		}

		res, err := engine.Intake.Submit(c.Request.Context(), quickmatch.SubmitInput{
			ClientID:      actorFrom(c).ID,
			CategoryID:    input.CategoryID,
			OfferedPrice:  input.OfferedPrice,
			RequestedTime: input.RequestedTime,
			Description:   input.Description,
			Location:      locationOf(input),
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"requestId":        res.Request.ID,
			"status":           res.Request.Status,
			"expiresAt":        res.Request.ExpiresAt,
			"remainingCredits": res.Remaining,
			"matched":          len(res.Candidates),
		})
	}
}

// RespondToRequest records a business's accept or reject.
func RespondToRequest(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		requestID, ok := idParam(c, "id")
		if !ok {
			return
		}

		var input struct {
			Action events.Action `json:"action"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		ev := events.BusinessResponse{RequestID: requestID, Action: input.Action}
		if err := events.Validate(ev); err != nil {
			badRequest(c, err)
			return
		}

		if err := engine.Ledger.RecordResponse(c.Request.Context(), requestID, actorFrom(c).ID, ev.Action); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, events.ResponseRecorded{RequestID: requestID, Action: ev.Action})
	}
}

// ConfirmRequest picks the winning business and creates the booking.
func ConfirmRequest(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireClient(c) {
			return
		}
		requestID, ok := idParam(c, "id")
		if !ok {
			return
		}

		var input struct {
			BusinessID uint  `json:"businessId"`
			ServiceID  *uint `json:"serviceId,omitempty"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		ev := events.ConfirmBooking{RequestID: requestID, BusinessID: input.BusinessID, ServiceID: input.ServiceID}
		if err := events.Validate(ev); err != nil {
			badRequest(c, err)
			return
		}

		booking, err := engine.Arbiter.Confirm(c.Request.Context(), quickmatch.ConfirmInput{
			RequestID:  requestID,
			BusinessID: ev.BusinessID,
			ClientID:   actorFrom(c).ID,
			ServiceID:  ev.ServiceID,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, booking)
	}
}

func CancelRequest(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireClient(c) {
			return
		}
		requestID, ok := idParam(c, "id")
		if !ok {
			return
		}

		if err := engine.Arbiter.Cancel(c.Request.Context(), requestID, actorFrom(c).ID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Request cancelled", "requestId": requestID})
	}
}

// GetRequestStatus is the poll fallback for request state.
func GetRequestStatus(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, ok := idParam(c, "id")
		if !ok {
			return
		}

		view, err := engine.GetRequest(c.Request.Context(), requestID, actorFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// GetRequestOffers lists the accepted offers of the caller's request.
func GetRequestOffers(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireClient(c) {
			return
		}
		requestID, ok := idParam(c, "id")
		if !ok {
			return
		}

		offers, err := engine.Ledger.ListAccepted(c.Request.Context(), requestID, actorFrom(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if offers == nil {
			offers = []quickmatch.OfferView{}
		}
		c.JSON(http.StatusOK, gin.H{"requestId": requestID, "offers": offers})
	}
}

// GetOpenRequests lists pending requests the calling business can still answer.
func GetOpenRequests(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "code": "ValidationError"})
				return
			}
			limit = n
		}

		requests, err := engine.OpenRequests(c.Request.Context(), actorFrom(c).ID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		if requests == nil {
			requests = []models.BookingRequest{}
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests})
	}
}
