package routes

import (
	"slices"
	"time"

	"wingo/controllers"
	"wingo/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func RoundRoutes(r *gin.Engine, rc *controllers.RoundController) {
	r.GET("/health", rc.Health)

	api := r.Group("/api")
	{
		api.GET("/games", rc.ListGames)
		api.GET("/games/:code/current", rc.CurrentRound)
		api.GET("/games/:code/history", rc.History)
		api.GET("/games/:code/bets", rc.UserBets)
		api.POST("/bets", rc.PlaceBet)
		api.POST("/rounds/:id/preset", rc.PresetDigit)
	}
}

func MetricsRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func WebSocketRoutes(r *gin.Engine, c *controllers.Components, log *zap.SugaredLogger) {
	r.GET("/ws", func(ctx *gin.Context) {
		websocket.ServeWs(c.Hub, c.Rounds.CurrentRounds, log, ctx.Writer, ctx.Request)
	})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-User-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Setup registers every route on a new engine.
func Setup(c *controllers.Components, origins []string, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(origins)))
	RoundRoutes(r, c.Rounds)
	MetricsRoutes(r)
	WebSocketRoutes(r, c, log.Named("ws"))
	return r
}
