package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/metrics"
	"faceattend/internal/web"
)

// Deps are the services the router exposes.
type Deps struct {
	Sessions       *attendance.Sessions
	Flows          *attendance.Flows
	Dashboard      *attendance.Dashboard
	Devices        *auth.Devices
	Signer         *auth.Signer
	Metrics        *metrics.Collector // optional
	Gatherer       prometheus.Gatherer
	RateLimiter    *httpmiddleware.RateLimiter // optional
	Checks         map[string]HealthCheck
	CORSOrigins    []string
	MaxFrameWidth  uint
	MaxFrameHeight uint
}

// NewRouter assembles the gin engine.
func NewRouter(d Deps) *gin.Engine {
	h := Handlers(d)

	r := gin.New()
	r.Use(gin.CustomRecovery(recovered))
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(d.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Metrics != nil {
		r.Use(d.Metrics.GinMiddleware())
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}
	r.GET("/healthz", h.Healthz)
	r.GET("/", web.Index)

	v1 := r.Group("/v1")
	if d.RateLimiter != nil {
		v1.Use(d.RateLimiter.GinMiddleware())
	}
	v1.POST("/devices/register", h.RegisterDevice)
	v1.POST("/devices/refresh", h.RefreshDevice)

	authed := v1.Group("", auth.DeviceAuth(d.Signer))
	authed.POST("/enrollments", h.OpenEnrollment)
	authed.POST("/enrollments/:id/capture", h.CaptureEnrollment)
	authed.POST("/enrollments/:id/submit", h.SubmitEnrollment)
	authed.DELETE("/enrollments/:id", h.CancelEnrollment)
	authed.POST("/attendance/mark", h.MarkAttendance)
	authed.GET("/attendance", h.ListAttendance)
	authed.GET("/dashboard", h.Dashboard)

	return r
}

// recovered turns a panic into a diagnostic response; the server keeps
// serving.
func recovered(c *gin.Context, err any) {
	slog.Error("panic recovered",
		slog.String("path", c.Request.URL.Path),
		slog.String("panic", fmt.Sprint(err)),
		slog.String("stack", string(debug.Stack())))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "An unexpected error occurred. Please try again.",
		"code":  "internal",
	})
}
