package handlers

import (
	"context"
	"errors"
	"net/http"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/cover"
	"timebased_cover/internal/service"
	"timebased_cover/internal/travel"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK          = "ok"
	statusOpening     = "opening"
	statusClosing     = "closing"
	statusStopped     = "stopped"
	statusMoving      = "moving"
	statusCalibrating = "calibrating"
	statusToggled     = "toggled"

	errGetState        = "failed to load state"
	errCommandFailed   = "command failed"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandError maps service and controller errors onto HTTP codes.
func (h *Handler) commandError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrUnknownCover):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, travel.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, cover.ErrCalibrating):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errCommandFailed, logKey, err, kv...)
	}
}

// Respond with a status and include the cover state if available (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, id, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx, id)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// runCommand executes a cover command addressed by the :id path parameter.
func (h *Handler) runCommand(c *gin.Context, status, logKey string, cmd func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := cmd(c.Request.Context(), id); err != nil {
		h.commandError(c, logKey, err, "cover", id)
		return
	}
	h.respondWithStatusAndState(c, id, status, gin.H{})
}

// Request DTO for moving to a position.
type positionRequest struct {
	Position *int `json:"position" binding:"required"` // 0 closed .. 100 open
}

// SetPositionRequest is an exported model for Swagger docs of the position payload.
type SetPositionRequest struct {
	// Target position, 0 (closed) to 100 (open)
	Position int `json:"position" example:"40"`
}

// Request DTO for a simulated wall-switch press.
type toggleRequest struct {
	State string `json:"state" binding:"required"` // on | off | unavailable
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List covers
// @Tags         covers
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, covers"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/covers [get]
// @Security     BearerAuth
func (h *Handler) listCovers(c *gin.Context) {
	states, err := h.services.Monitoring.ListStates(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "covers_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(states),
		"covers": states,
	})
}

// @Summary      Get cover state
// @Tags         covers
// @Produce      json
// @Param        id   path      string  true  "Cover id"
// @Success      200  {object}  models.CoverState
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/covers/{id} [get]
// @Security     BearerAuth
func (h *Handler) getCover(c *gin.Context) {
	id := c.Param("id")
	st, err := h.services.Monitoring.GetState(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownCover) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "cover_get_state_failed", err, "cover", id)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Open cover
// @Tags         covers
// @Produce      json
// @Param        id   path      string  true  "Cover id"
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "calibration in progress"
// @Router       /api/v1/covers/{id}/open [post]
// @Security     BearerAuth
func (h *Handler) openCover(c *gin.Context) {
	h.runCommand(c, statusOpening, "cover_open_failed", h.services.Covers.Open)
}

// @Summary      Close cover
// @Tags         covers
// @Produce      json
// @Param        id   path      string  true  "Cover id"
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "calibration in progress"
// @Router       /api/v1/covers/{id}/close [post]
// @Security     BearerAuth
func (h *Handler) closeCover(c *gin.Context) {
	h.runCommand(c, statusClosing, "cover_close_failed", h.services.Covers.Close)
}

// @Summary      Stop cover
// @Description  Also aborts a running calibration.
// @Tags         covers
// @Produce      json
// @Param        id   path      string  true  "Cover id"
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/covers/{id}/stop [post]
// @Security     BearerAuth
func (h *Handler) stopCover(c *gin.Context) {
	h.runCommand(c, statusStopped, "cover_stop_failed", h.services.Covers.Stop)
}

// @Summary      Calibrate cover
// @Description  Runs the open actuator for the full opening time, then marks the cover fully open.
// @Tags         covers
// @Produce      json
// @Param        id   path      string  true  "Cover id"
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "calibration in progress"
// @Router       /api/v1/covers/{id}/calibrate [post]
// @Security     BearerAuth
func (h *Handler) calibrateCover(c *gin.Context) {
	h.runCommand(c, statusCalibrating, "cover_calibrate_failed", h.services.Covers.Calibrate)
}

// @Summary      Set cover position
// @Tags         covers
// @Accept       json
// @Produce      json
// @Param        id    path   string              true  "Cover id"
// @Param        body  body   SetPositionRequest  true  "Position payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/covers/{id}/position [post]
// @Security     BearerAuth
func (h *Handler) setCoverPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	id := c.Param("id")
	target := *req.Position
	if err := h.services.Covers.SetPosition(c.Request.Context(), id, target); err != nil {
		h.commandError(c, "cover_set_position_failed", err, "cover", id, "position", target)
		return
	}
	h.respondWithStatusAndState(c, id, statusMoving, gin.H{"position": target})
}

// @Summary      Toggle actuator
// @Description  Simulates a manual wall-switch press. Only the memory backend supports it.
// @Tags         actuators
// @Accept       json
// @Produce      json
// @Param        id    path   string  true  "Actuator id"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      501   {object}  map[string]string
// @Router       /api/v1/actuators/{id}/toggle [post]
// @Security     BearerAuth
func (h *Handler) toggleActuator(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	st := actuator.ParseState(req.State)
	if st == actuator.Unknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be on, off or unavailable"})
		return
	}
	id := c.Param("id")
	if err := h.services.Switchboard.Toggle(c.Request.Context(), id, st); err != nil {
		switch {
		case errors.Is(err, service.ErrManualUnsupported):
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		case errors.Is(err, actuator.ErrUnknownActuator):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.logAndJSONError(c, http.StatusInternalServerError, errCommandFailed, "actuator_toggle_failed", err, "actuator", id)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusToggled, "actuator": id, "state": st})
}
