// Package httpapi exposes the tutor operations over HTTP.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/logging"
	"github.com/abhisek/masterypath/internal/metrics"
	"github.com/abhisek/masterypath/internal/tutor"
)

type RouterConfig struct {
	Tutor       *tutor.Service
	Metrics     *metrics.Registry
	Log         *zap.Logger
	CORSOrigins []string
	// ServiceName labels server spans. Tracing is skipped when empty.
	ServiceName string
	// Ping backs /healthz; nil reports healthy.
	Ping func(*gin.Context) error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(requestLogger(logging.OrNop(cfg.Log)))
	r.Use(metricsMiddleware(cfg.Metrics))
	r.Use(corsMiddleware(cfg.CORSOrigins))

	health := NewHealthHandler(cfg.Ping)
	r.GET("/healthz", health.HealthCheck)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	students := NewStudentHandler(cfg.Tutor)
	v1 := r.Group("/v1")
	{
		v1.GET("/atoms", students.ListAtoms)

		s := v1.Group("/students/:id")
		s.GET("/plan", students.GetPlan)
		s.POST("/seeds", students.Seed)
		s.GET("/lesson", students.GetLesson)
		s.POST("/lesson/complete", students.CompleteLesson)
		s.GET("/question", students.NextQuestion)
		s.POST("/answers", students.SubmitAnswer)
		s.GET("/review", students.GetReview)
		s.POST("/review/answers", students.SubmitReviewAnswer)
		s.POST("/review/complete", students.CompleteReview)
	}
	return r
}
