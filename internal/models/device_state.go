package models

import "time"

// DeviceState is the latest presented state of one probe. One row per device, no history.
type DeviceState struct {
	ID                 string    `json:"id"`
	DisplayName        string    `json:"display_name"`
	InternalTempC      float64   `json:"internal_temp_c"`
	AmbientTempC       float64   `json:"ambient_temp_c"`
	CookState          string    `json:"cook_state,omitempty"` // "" when no cook is running
	CookName           string    `json:"cook_name,omitempty"`
	TargetTempC        float64   `json:"target_temp_c,omitempty"`
	PeakTempC          float64   `json:"peak_temp_c,omitempty"`
	ElapsedSeconds     int       `json:"elapsed_seconds,omitempty"`
	RemainingSeconds   int       `json:"remaining_seconds,omitempty"`
	CookRefresh        string    `json:"cook_refresh"` // ACTIVE | USER_DISABLED | NOT_FOUND
	External           bool      `json:"external"`
	Firmware           string    `json:"firmware"`
	RefreshRateSeconds int       `json:"refresh_rate_seconds"`
	UpdatedAt          time.Time `json:"updated_at"`
}
