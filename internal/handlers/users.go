package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

// GetProfile returns the caller's account as seen by Quick-Match, with the
// credit balance for clients.
func GetProfile(directory repository.DirectoryStore, engine *quickmatch.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)

		user, err := directory.GetUser(c.Request.Context(), actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "UserNotFound"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		profile := gin.H{
			"id":       user.ID,
			"username": user.Username,
			"userType": user.UserType,
		}
		if actor.IsClient() {
			balance, err := engine.Credits.Balance(c.Request.Context(), actor.ID)
			if err != nil {
				respondError(c, err)
				return
			}
			profile["credits"] = balance
		}
		c.JSON(http.StatusOK, profile)
	}
}
