package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"quiz-engine/internal/metrics"
)

type RouterConfig struct {
	CORSOrigins []string
	// Metrics is optional; when set, requests are counted and /metrics is served.
	Metrics *metrics.Metrics
}

func NewRouter(api *API, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(api.logger, cfg.Metrics), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		quizzes := v1.Group("/quizzes")
		quizzes.GET("", api.ListQuizzes)
		quizzes.GET("/:quiz_id", api.GetQuiz)
		quizzes.POST("/:quiz_id/attempts", api.StartAttempt)
		quizzes.GET("/:quiz_id/attempts", api.ListAttempts)
		quizzes.GET("/:quiz_id/attempts/active", api.GetActiveAttempt)
		quizzes.POST("/:quiz_id/results", api.SubmitQuiz)

		attempts := v1.Group("/attempts/:id")
		attempts.GET("", api.GetAttempt)
		attempts.PUT("/answers/:index", api.SaveAnswer)
		attempts.POST("/skip/:index", api.SkipQuestion)
		attempts.POST("/navigate", api.Navigate)
		attempts.POST("/pause", api.Pause)
		attempts.POST("/resume", api.Resume)
		attempts.PUT("/flags/:index", api.MarkForReview)
		attempts.DELETE("/flags/:index", api.UnmarkForReview)
		attempts.POST("/activity", api.RecordActivity)
		attempts.POST("/heartbeat", api.Heartbeat)
		attempts.POST("/submit", api.SubmitAttempt)
		attempts.GET("/result", api.GetAttemptResult)

		v1.GET("/results/:id", api.GetResult)
		v1.POST("/results/:id/feedback", api.AddFeedback)
		v1.GET("/users/:user_id/results", api.ListUserResults)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", userIDHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func requestLogger(logger zerolog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		if m != nil {
			m.ObserveRequest(c.Request.Method, c.FullPath(), status, latency)
		}

		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status_code", status).
			Dur("latency", latency).
			Str("user_id", c.GetHeader(userIDHeader)).
			Msg("http request")
	}
}
