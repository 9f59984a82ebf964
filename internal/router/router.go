package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/chachabrian/quickmatch-backend/internal/config"
	"github.com/chachabrian/quickmatch-backend/internal/handlers"
	"github.com/chachabrian/quickmatch-backend/internal/middleware"
	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
	"github.com/chachabrian/quickmatch-backend/internal/services"
)

type Deps struct {
	Config    *config.Config
	Engine    *quickmatch.Engine
	Directory repository.DirectoryStore
	Hub       *services.Hub
	// RateLimitStore is required when rate limiting is enabled.
	RateLimitStore limiter.Store
	// UploadsDir is served under /uploads when logos are stored locally.
	UploadsDir string
	Log        *logrus.Entry
}

func New(d Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Log))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": d.Hub.GetConnectedClients()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.UploadsDir != "" {
		r.Static("/uploads", d.UploadsDir)
	}

	submitChain := []gin.HandlerFunc{}
	if d.Config.RateLimit.Enabled {
		limit, err := middleware.RateLimit(d.Config.RateLimit.Rate, d.RateLimitStore, d.Log)
		if err != nil {
			return nil, err
		}
		submitChain = append(submitChain, limit)
	}
	submitChain = append(submitChain, handlers.SubmitRequest(d.Engine))

	auth := middleware.AuthMiddleware(d.Config.JWTSecret)
	dispatcher := handlers.NewDispatcher(d.Engine, d.Log.WithField("component", "dispatcher"))

	api := r.Group("/api")
	{
		// WebSocket connection
		api.GET("/ws", auth, handlers.WebSocketHandler(d.Hub, dispatcher))

		protected := api.Group("/")
		protected.Use(auth)
		{
			protected.GET("/users/profile", handlers.GetProfile(d.Directory, d.Engine))
			protected.GET("/credits", handlers.GetCredits(d.Engine))

			requests := protected.Group("/requests")
			{
				requests.POST("", submitChain...)
				requests.GET("/:id", handlers.GetRequestStatus(d.Engine))
				requests.GET("/:id/offers", handlers.GetRequestOffers(d.Engine))
				requests.POST("/:id/respond", handlers.RespondToRequest(d.Engine))
				requests.POST("/:id/confirm", handlers.ConfirmRequest(d.Engine))
				requests.POST("/:id/cancel", handlers.CancelRequest(d.Engine))
			}

			protected.GET("/business/requests", handlers.GetOpenRequests(d.Engine))

			bookings := protected.Group("/bookings")
			{
				bookings.GET("", handlers.GetBookings(d.Engine))
				bookings.GET("/:id", handlers.GetBooking(d.Engine))
			}
		}

		if d.Config.AdminAPIKey != "" {
			admin := api.Group("/admin")
			admin.Use(middleware.AdminKey(d.Config.AdminAPIKey))
			admin.POST("/clients/:clientId/credits", handlers.GrantCredits(d.Engine))
		}
	}

	return r, nil
}
