// Package handler exposes the attendance flows over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/camera"
)

// maxFrameBytes caps an uploaded frame.
const maxFrameBytes = 8 << 20

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the kiosk API.
type Handler struct {
	sessions  *attendance.Sessions
	flows     *attendance.Flows
	dashboard *attendance.Dashboard
	devices   *auth.Devices
	checks    map[string]HealthCheck
	maxWidth  uint
	maxHeight uint
}

// Handlers builds the request handlers from d.
func Handlers(d Deps) *Handler {
	return &Handler{
		sessions:  d.Sessions,
		flows:     d.Flows,
		dashboard: d.Dashboard,
		devices:   d.Devices,
		checks:    d.Checks,
		maxWidth:  d.MaxFrameWidth,
		maxHeight: d.MaxFrameHeight,
	}
}

// fail writes the user-facing form of err.
func fail(c *gin.Context, err error) {
	p := attendance.Describe(err)
	if p.Status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("code", p.Code),
			slog.Any("error", err))
	}
	c.JSON(p.Status, gin.H{"error": p.Message, "code": p.Code})
}

// Healthz pings every configured dependency.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "dependencies": deps})
}

// ---------- Devices ----------

func (h *Handler) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.devices.Register(c.Request.Context(), req.DeviceID)
	if err != nil {
		slog.Error("device registration failed", slog.String("device_id", req.DeviceID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device registration failed"})
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (h *Handler) RefreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.devices.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// ---------- Enrollment ----------

func (h *Handler) OpenEnrollment(c *gin.Context) {
	e := h.sessions.Open()
	c.JSON(http.StatusCreated, gin.H{"id": e.ID, "state": e.State().String()})
}

func (h *Handler) CaptureEnrollment(c *gin.Context) {
	e, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	src, snapshot, err := h.readFrame(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := e.Capture(c.Request.Context(), src, snapshot); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": e.ID, "state": e.State().String()})
}

func (h *Handler) SubmitEnrollment(c *gin.Context) {
	e, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	var req struct {
		Name  string `json:"name" form:"name"`
		Email string `json:"email" form:"email"`
	}
	// A malformed form still goes through Submit so a missing capture is
	// reported first; Submit validates the fields itself.
	_ = c.ShouldBind(&req)
	user, err := e.Submit(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	_ = h.sessions.Close(e.ID)
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) CancelEnrollment(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Attendance ----------

// MarkAttendance runs the matching flow of the calling kiosk on one frame.
func (h *Handler) MarkAttendance(c *gin.Context) {
	src, _, err := h.readFrame(c)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.flowFor(c).Run(c.Request.Context(), src)
	if err != nil {
		fail(c, err)
		return
	}
	if res.Outcome == attendance.OutcomeRejected {
		p := attendance.Describe(res.Reason)
		c.JSON(http.StatusOK, gin.H{
			"matched": false,
			"code":    p.Code,
			"error":   p.Message,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"matched":    true,
		"user":       res.User,
		"attendance": res.Record,
	})
}

func (h *Handler) ListAttendance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(attendance.DefaultListLimit)))
	records, err := h.dashboard.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) Dashboard(c *gin.Context) {
	s, err := h.dashboard.Summary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// flowFor returns the matching flow owned by the calling device.
func (h *Handler) flowFor(c *gin.Context) *attendance.MatchFlow {
	key := c.ClientIP()
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Subject != "" {
		key = claims.Subject
	}
	return h.flows.For(key)
}

// readFrame accepts either a multipart "frame" file or a JSON body with a
// data URL in "image". A client that could not open its camera reports
// camera_denied instead of sending a frame.
func (h *Handler) readFrame(c *gin.Context) (*camera.Upload, bool, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		src := camera.NewUpload(nil, h.maxWidth, h.maxHeight)
		src.Denied = c.PostForm("camera_denied") == "true"
		snapshot := c.PostForm("snapshot") == "true"
		fh, err := c.FormFile("frame")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return src, snapshot, nil
			}
			return nil, false, attendance.ErrInvalidFrame
		}
		f, err := fh.Open()
		if err != nil {
			return nil, false, attendance.ErrInvalidFrame
		}
		defer f.Close()
		if src.Data, err = io.ReadAll(f); err != nil {
			return nil, false, attendance.ErrInvalidFrame
		}
		return src, snapshot, nil
	}

	var req struct {
		Image        string `json:"image"`
		CameraDenied bool   `json:"camera_denied"`
		Snapshot     bool   `json:"snapshot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, false, attendance.ErrInvalidFrame
	}
	src := camera.NewUpload(nil, h.maxWidth, h.maxHeight)
	src.Denied = req.CameraDenied
	if req.Image != "" {
		data, err := camera.DecodeDataURL(req.Image)
		if err != nil {
			return nil, false, attendance.ErrInvalidFrame
		}
		src.Data = data
	}
	return src, req.Snapshot, nil
}
