package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
)

// GetBookings returns the caller's bookings, newest first.
func GetBookings(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := engine.ListBookings(c.Request.Context(), actorFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if bookings == nil {
			bookings = []models.Booking{}
		}
		c.JSON(http.StatusOK, gin.H{"bookings": bookings})
	}
}

func GetBooking(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := idParam(c, "id")
		if !ok {
			return
		}

		booking, err := engine.GetBooking(c.Request.Context(), bookingID, actorFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}
