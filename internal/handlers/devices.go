package handlers

import (
	"errors"
	"net/http"

	"meater_sync/internal/meater"
	"meater_sync/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK = "ok"

	errListDevices     = "failed to list devices"
	errGetDevice       = "failed to load device"
	errUnknownDevice   = "unknown device"
	errListStates      = "failed to load stored states"
	errSyncFailed      = "sync failed"
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

// CookRefreshRequest is the payload of PUT /api/v1/devices/{id}/cook-refresh.
type CookRefreshRequest struct {
	// On switches cook refresh on (true) or off (false).
	On *bool `json:"on" binding:"required" example:"false"`
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

// @Summary      List live probes
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	views, err := h.services.Monitoring.ListDevices(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(views),
		"devices": views,
	})
}

// @Summary      Get probe
// @Description  Live probes carry their last snapshot. Probes that are gone but still stored are returned with live=false.
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Probe id"
// @Success      200  {object}  service.DeviceDetail
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	id := c.Param("id")
	d, err := h.services.Monitoring.GetDevice(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUnknownDevice})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetDevice, "device_get_failed", err, "device", id)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Switch cook refresh
// @Description  Turning cook refresh on also clears a NOT_FOUND state and polls right away.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string              true  "Probe id"
// @Param        body  body   CookRefreshRequest  true  "Cook refresh payload"
// @Success      200   {object}  service.DeviceView
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/devices/{id}/cook-refresh [put]
// @Security     BearerAuth
func (h *Handler) setCookRefresh(c *gin.Context) {
	var req CookRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	id := c.Param("id")
	v, err := h.services.Control.SetCookRefresh(c.Request.Context(), id, *req.On)
	if err != nil {
		if errors.Is(err, service.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUnknownDevice})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, err.Error(), "cook_refresh_set_failed", err, "device", id)
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary      Run discovery now
// @Tags         devices
// @Produce      json
// @Success      200  {object}  service.ReconcileResult
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/sync [post]
// @Security     BearerAuth
func (h *Handler) syncNow(c *gin.Context) {
	res, err := h.services.Control.Sync(c.Request.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if meater.ClassOf(err) != "" {
			code = http.StatusBadGateway
		}
		h.logAndJSONError(c, code, errSyncFailed+": "+err.Error(), "sync_failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      List stored state rows
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, states"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/states [get]
// @Security     BearerAuth
func (h *Handler) listStoredStates(c *gin.Context) {
	states, err := h.services.Monitoring.StoredStates(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListStates, "states_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(states),
		"states": states,
	})
}
