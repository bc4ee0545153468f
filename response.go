package meater_sync

import "encoding/json"

// Envelope is the outer shape of every MEATER cloud response.
type Envelope struct {
	Status     string          `json:"status"`     // "OK" | "Unauthorized" | ...
	StatusCode int             `json:"statusCode"` // mirrors, but may disagree with, the HTTP status
	Data       json.RawMessage `json:"data,omitempty"`
}

// LoginData is the payload of POST /login.
type LoginData struct {
	Token  string `json:"token"`
	UserID string `json:"userId,omitempty"`
}

// DeviceList is the payload of GET /devices.
type DeviceList struct {
	Devices []RemoteDevice `json:"devices"`
}

// Temperature holds probe readings in °C.
type Temperature struct {
	Internal float64 `json:"internal"`
	Ambient  float64 `json:"ambient"`
}

// CookTemperature holds the target and peak temperatures of a cook in °C.
type CookTemperature struct {
	Target float64 `json:"target"`
	Peak   float64 `json:"peak"`
}

// CookTime holds cook timing in seconds. Remaining is -1 while the probe is still estimating.
type CookTime struct {
	Elapsed   int `json:"elapsed"`
	Remaining int `json:"remaining"`
}

// Cook describes the cook a probe is currently part of.
type Cook struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	State       string          `json:"state"` // e.g. "Started", "Ready For Resting", "Finished"
	Temperature CookTemperature `json:"temperature"`
	Time        CookTime        `json:"time"`
}

// RemoteDevice is an immutable snapshot of one probe as reported by the cloud.
type RemoteDevice struct {
	ID          string      `json:"id"`
	Temperature Temperature `json:"temperature"`
	Cook        *Cook       `json:"cook,omitempty"`
	UpdatedAt   int64       `json:"updated_at"` // unix seconds
}

// CookState returns the cook state, or "" when the probe is not part of a cook.
func (d RemoteDevice) CookState() string {
	if d.Cook == nil {
		return ""
	}
	return d.Cook.State
}
