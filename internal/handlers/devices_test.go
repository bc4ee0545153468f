package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"meater_sync/internal/meater"
	"meater_sync/internal/models"
	"meater_sync/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid")
	h.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Error
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDeviceRoutes_RequireToken(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListDevices(t *testing.T) {
	mon := &mockMonitoring{views: []service.DeviceView{
		{DeviceSettings: service.DeviceSettings{ID: "A", DisplayName: "Brisket"}, CookRefresh: "ACTIVE"},
		{DeviceSettings: service.DeviceSettings{ID: "B", DisplayName: "Ribs"}, CookRefresh: "USER_DISABLED"},
	}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon})

	w := doGet(t, r, "/api/v1/devices")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Count   int                  `json:"count"`
		Devices []service.DeviceView `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "Brisket", out.Devices[0].DisplayName)
	assert.Equal(t, "USER_DISABLED", out.Devices[1].CookRefresh)

	mon.listErr = errors.New("boom")
	w = doGet(t, r, "/api/v1/devices")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errListDevices, errorOf(t, w))
}

func TestGetDevice(t *testing.T) {
	mon := &mockMonitoring{detail: service.DeviceDetail{
		DeviceView: service.DeviceView{DeviceSettings: service.DeviceSettings{ID: "A"}},
		Live:       true,
	}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon})

	w := doGet(t, r, "/api/v1/devices/A")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "A", mon.lastID)

	var d service.DeviceDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.True(t, d.Live)
	assert.Equal(t, "A", d.ID)

	mon.detailErr = service.ErrUnknownDevice
	w = doGet(t, r, "/api/v1/devices/zzz")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errUnknownDevice, errorOf(t, w))

	mon.detailErr = errors.New("db down")
	w = doGet(t, r, "/api/v1/devices/A")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSetCookRefresh(t *testing.T) {
	ctl := &mockControl{view: service.DeviceView{
		DeviceSettings: service.DeviceSettings{ID: "A"},
		CookRefresh:    "USER_DISABLED",
	}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Control: ctl})

	w := doJSON(t, r, http.MethodPut, "/api/v1/devices/A/cook-refresh", `{"on":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "A", ctl.lastID)
	assert.False(t, ctl.lastOn)

	var v service.DeviceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "USER_DISABLED", v.CookRefresh)

	// "on" is required, a missing field must not read as false
	w = doJSON(t, r, http.MethodPut, "/api/v1/devices/A/cook-refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, ctl.setCall)

	ctl.setErr = service.ErrUnknownDevice
	w = doJSON(t, r, http.MethodPut, "/api/v1/devices/zzz/cook-refresh", `{"on":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, ctl.lastOn)
}

func TestSyncNow(t *testing.T) {
	ctl := &mockControl{result: service.ReconcileResult{Created: []string{"A"}}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Control: ctl})

	w := doJSON(t, r, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, ctl.syncs)

	var res service.ReconcileResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []string{"A"}, res.Created)

	ctl.syncErr = meater.ErrServerError
	w = doJSON(t, r, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	ctl.syncErr = errors.New("other")
	w = doJSON(t, r, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListStoredStates(t *testing.T) {
	mon := &mockMonitoring{states: []models.DeviceState{{ID: "A", InternalTempC: 61.5}}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Monitoring: mon})

	w := doGet(t, r, "/api/v1/states")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Count  int                  `json:"count"`
		States []models.DeviceState `json:"states"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, 61.5, out.States[0].InternalTempC)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("meater_devices 2\n"))
	})
	h := NewHandler(&service.Service{}, nil, WithMetrics(metrics))
	r := h.InitRoutes()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "meater_devices 2")
}
