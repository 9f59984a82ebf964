package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
)

func GetCredits(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireClient(c) {
			return
		}
		balance, err := engine.Credits.Balance(c.Request.Context(), actorFrom(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"remaining": balance})
	}
}

// GrantCredits tops up a client's balance. Mounted behind the admin key.
func GrantCredits(engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := idParam(c, "clientId")
		if !ok {
			return
		}

		var input struct {
			Amount int `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		balance, err := engine.Credits.Grant(c.Request.Context(), clientID, input.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"clientId": clientID, "remaining": balance})
	}
}
