package router

import (
	"net/http"
	"time"

	"playmatch/rooms/internal/auth"
	"playmatch/rooms/internal/config"
	"playmatch/rooms/internal/handler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	// Registers the generated OpenAPI document with swag.
	_ "playmatch/rooms/docs"
)

// Handlers groups the HTTP handlers mounted by SetupRouter.
type Handlers struct {
	Users    *handler.UserHandler
	Games    *handler.GameHandler
	Profiles *handler.ProfileHandler
	Rooms    *handler.RoomHandler
	Chat     *handler.ChatHandler
}

func SetupRouter(cfg *config.Config, db *gorm.DB, tokens auth.TokenParser, h Handlers) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(corsConfig(cfg.Origins())))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Browsers cannot set headers on a websocket handshake, so the token may come in the query.
	r.GET("/chat", auth.QueryTokenMiddleware(), auth.OptionalAuthMiddleware(tokens), h.Chat.Serve)

	apiV1 := r.Group("/api/v1")
	{
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", h.Users.RegisterUser)
			authRoutes.POST("/login", h.Users.LoginUser)
		}

		protected := apiV1.Group("")
		protected.Use(auth.AuthMiddleware(tokens))

		protected.GET("/users/me", h.Users.GetMe)

		gameRoutes := protected.Group("/games")
		{
			gameRoutes.GET("", h.Games.GetGames)
			gameRoutes.GET("/:id", h.Games.GetGameByID)
		}

		profileRoutes := protected.Group("/profiles")
		{
			profileRoutes.POST("", h.Profiles.CreateProfile)
			profileRoutes.GET("", h.Profiles.ListProfiles)
			profileRoutes.GET("/:id", h.Profiles.GetProfile)
			profileRoutes.PATCH("/:id", h.Profiles.UpdateProfile)
			profileRoutes.DELETE("/:id", h.Profiles.DeleteProfile)
		}

		roomRoutes := protected.Group("/rooms")
		{
			roomRoutes.POST("", h.Rooms.CreateRoom)
			roomRoutes.GET("", h.Rooms.GetMyRoom)
			roomRoutes.PATCH("", h.Rooms.UpdateRoom)
			roomRoutes.DELETE("", h.Rooms.LeaveRoom)
			roomRoutes.GET("/list", h.Rooms.ListRooms)
			roomRoutes.GET("/look/:id", h.Rooms.LookRoom)
			roomRoutes.POST("/join/:id", h.Rooms.JoinRoom)
			roomRoutes.DELETE("/kick/:user_id", h.Rooms.KickUser)
		}

		adminRoutes := protected.Group("/admin")
		adminRoutes.Use(auth.AdminMiddleware(db))
		{
			adminGameRoutes := adminRoutes.Group("/games")
			{
				adminGameRoutes.POST("", h.Games.CreateGame)
				adminGameRoutes.PATCH("/:id", h.Games.UpdateGame)
				adminGameRoutes.DELETE("/:id", h.Games.DeleteGame)
			}
		}
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.Str("module", "http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
