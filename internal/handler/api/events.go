package api

import (
	"errors"
	"time"

	"ThreatLens/internal/detector"
	models "ThreatLens/internal/domain/models"
	mid "ThreatLens/internal/middleware"
	"ThreatLens/internal/service/ratelimit"
	"ThreatLens/internal/usecase"
	xhttp "ThreatLens/pkg/http"
	xlogger "ThreatLens/pkg/logger"
	"ThreatLens/pkg/util"

	"github.com/labstack/echo/v4"
)

// EventsHandler implements the Echo-based detection API.
type EventsHandler struct {
	logger    *xlogger.Logger
	pipe      *mid.IngestPipeline
	detection *usecase.DetectionService
	retrainer *usecase.Retrainer
	rl        *ratelimit.Limiter
}

func NewEventsHandler(
	logger *xlogger.Logger,
	pipe *mid.IngestPipeline,
	detection *usecase.DetectionService,
	retrainer *usecase.Retrainer,
) *EventsHandler {
	return &EventsHandler{
		logger:    logger,
		pipe:      pipe,
		detection: detection,
		retrainer: retrainer,
		rl:        ratelimit.New(),
	}
}

func (h *EventsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/events", h.Submit)
	g.POST("/analyze", h.Analyze)
	g.GET("/status", h.Status)
	g.GET("/trainings", h.Trainings)
	g.GET("/detections", h.Detections)
}

// Submit accepts one event into the training history.
func (h *EventsHandler) Submit(c echo.Context) error {
	req := &models.SubmitEventRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":submit", 20, 10) {
		h.logger.Warn("submit rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("rate_limited", "", "too many submissions", 429))
	}

	e := &models.ThreatEvent{
		Timestamp:  util.ParseTimeDefault(req.Timestamp, time.Now().UTC()),
		SourceAddr: req.SourceAddr,
		Username:   req.Username,
		EventType:  req.EventType,
		EventValue: req.EventValue,
		Source:     "api",
	}

	if err := h.pipe.Process(c.Request().Context(), e); err != nil {
		h.logger.Error("submit pipeline error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]string{"status": "accepted"})
}

// Analyze scores one event without adding it to the history.
func (h *EventsHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":analyze", 20, 10) {
		h.logger.Warn("analyze rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("rate_limited", "", "too many requests", 429))
	}

	e := &models.ThreatEvent{
		Timestamp:  util.ParseTimeDefault(req.Timestamp, time.Now().UTC()),
		SourceAddr: req.SourceAddr,
		Username:   req.Username,
		EventType:  req.EventType,
		EventValue: req.EventValue,
		Source:     "api",
	}

	res, err := h.detection.Analyze(c.Request().Context(), e)
	if err != nil {
		if errors.Is(err, detector.ErrModelNotReady) {
			return xhttp.ServiceUnavailableResponse(c, "Model not yet trained")
		}
		h.logger.Error("analyze usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{
		"verdict":  res.Verdict,
		"score":    res.Score,
		"model_id": res.ModelID,
	})
}

// Status reports model readiness and backend health.
func (h *EventsHandler) Status(c echo.Context) error {
	st := h.detection.Status(c.Request().Context(), h.retrainer.Training())
	return xhttp.SuccessResponse(c, st)
}

// Trainings lists recent training runs.
func (h *EventsHandler) Trainings(c echo.Context) error {
	req := &models.ListLogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recs, err := h.detection.Trainings(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("trainings usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

// Detections lists recent scored events.
func (h *EventsHandler) Detections(c echo.Context) error {
	req := &models.ListLogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recs, err := h.detection.Detections(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("detections usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}
