package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"meater_sync/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid  = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid    = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errRangeInvalid = "'from' must be <= 'to'"
	errLoadLogs     = "failed to load logs"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

var queryTimeLayouts = []string{time.RFC3339, layoutDateTime, layoutDate}

// parseQueryTime accepts RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD' and returns UTC.
// The bool reports a date without time of day.
func parseQueryTime(s string) (time.Time, bool, error) {
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), layout == layoutDate, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid time format %q", s)
}

// parseLogFilter reads from/to/type/device from the query string. A date-only
// 'to' covers the whole day. The returned message is empty on success.
func parseLogFilter(c *gin.Context) (service.LogFilter, string) {
	f := service.LogFilter{
		Type:     strings.ToUpper(strings.TrimSpace(c.Query("type"))),
		DeviceID: strings.TrimSpace(c.Query("device")),
	}
	if qs := c.Query("from"); qs != "" {
		from, _, err := parseQueryTime(qs)
		if err != nil {
			return f, errFromInvalid
		}
		f.From = from
	}
	if qs := c.Query("to"); qs != "" {
		to, dateOnly, err := parseQueryTime(qs)
		if err != nil {
			return f, errToInvalid
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = to
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, errRangeInvalid
	}
	return f, ""
}

// @Summary      List sync events
// @Description  Filter logs by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). If 'to' is date-only, it is treated as end-of-day inclusive (23:59:59.999999999Z).
// @Tags         logs
// @Produce      json
// @Param        from    query   string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2025-08-01)
// @Param        to      query   string  false  "End of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). Date-only treated as end of day."  example(2025-08-31)
// @Param        type    query   string  false  "Event type"  Enums(DISCOVERED,REMOVED,HIDDEN,AUTH_ERROR,CONFIG_ERROR,POLL_ERROR,COOK_DISABLED,COOK_ENABLED,TOKEN_REFRESHED)
// @Param        device  query   string  false  "Probe id"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	filter, msg := parseLogFilter(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	events, err := h.services.EventLog.List(c.Request.Context(), filter)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadLogs, "logs_list_failed", err,
			"from", filter.From, "to", filter.To, "type", filter.Type, "device", filter.DeviceID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}
