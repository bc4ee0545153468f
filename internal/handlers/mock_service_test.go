package handlers

import (
	"context"
	"net/http"
	"sync"

	"meater_sync/internal/models"
	"meater_sync/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockMonitoring struct {
	views     []service.DeviceView
	listErr   error
	detail    service.DeviceDetail
	detailErr error
	lastID    string
	states    []models.DeviceState
	statesErr error
}

func (m *mockMonitoring) ListDevices(context.Context) ([]service.DeviceView, error) {
	return m.views, m.listErr
}
func (m *mockMonitoring) GetDevice(_ context.Context, id string) (service.DeviceDetail, error) {
	m.lastID = id
	return m.detail, m.detailErr
}
func (m *mockMonitoring) StoredStates(context.Context) ([]models.DeviceState, error) {
	return m.states, m.statesErr
}

type mockControl struct {
	view    service.DeviceView
	setErr  error
	lastID  string
	lastOn  bool
	setCall int

	result  service.ReconcileResult
	syncErr error
	syncs   int
}

func (m *mockControl) SetCookRefresh(_ context.Context, id string, on bool) (service.DeviceView, error) {
	m.setCall++
	m.lastID, m.lastOn = id, on
	return m.view, m.setErr
}
func (m *mockControl) Sync(context.Context) (service.ReconcileResult, error) {
	m.syncs++
	return m.result, m.syncErr
}

type mockEventLog struct {
	resp     []models.SyncEvent
	err      error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.SyncEvent, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// mockChanges hands out one channel the test can push into.
type mockChanges struct {
	mu     sync.Mutex
	ch     chan service.Change
	closed bool
}

func newMockChanges() *mockChanges {
	return &mockChanges{ch: make(chan service.Change, 8)}
}

func (m *mockChanges) Subscribe() (<-chan service.Change, func()) {
	return m.ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
	}
}

func (m *mockChanges) unsubscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
