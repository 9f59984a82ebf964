package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
)

var kindStatus = map[quickmatch.Kind]int{
	quickmatch.KindValidation:          http.StatusBadRequest,
	quickmatch.KindInsufficientCredits: http.StatusPaymentRequired,
	quickmatch.KindNotFound:            http.StatusNotFound,
	quickmatch.KindForbidden:           http.StatusForbidden,
	quickmatch.KindConflict:            http.StatusConflict,
	quickmatch.KindTransient:           http.StatusServiceUnavailable,
}

// respondError writes the engine error as {"error", "code"}. Untyped errors are
// internal: they are attached to the context for the request logger and hidden
// from the caller.
func respondError(c *gin.Context, err error) {
	var qe *quickmatch.Error
	if errors.As(err, &qe) {
		c.JSON(kindStatus[qe.Kind], gin.H{"error": qe.Message, "code": errorCode(qe)})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func errorCode(qe *quickmatch.Error) string {
	if qe.Code != "" {
		return qe.Code
	}
	return string(qe.Kind)
}

// eventError turns an engine error into the message and code carried by the
// websocket error events.
func eventError(err error) (string, string) {
	var qe *quickmatch.Error
	if errors.As(err, &qe) {
		return qe.Message, errorCode(qe)
	}
	return "Internal server error", "internal"
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "ValidationError"})
}

func actorFrom(c *gin.Context) quickmatch.Actor {
	return quickmatch.Actor{
		ID:   c.GetUint("userId"),
		Type: models.UserType(c.GetString("userType")),
	}
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": "ValidationError"})
		return 0, false
	}
	return uint(id), true
}

func requireClient(c *gin.Context) bool {
	if actorFrom(c).IsClient() {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Only clients can do this", "code": "Forbidden"})
	return false
}

func requireBusiness(c *gin.Context) bool {
	if actorFrom(c).IsBusiness() {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Only businesses can do this", "code": "Forbidden"})
	return false
}
