package handlers

import (
	"context"
	"io"
	"net/http"
	"sync"

	"labelguard/internal/models"
	"labelguard/internal/service"

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
	openSignUp    bool
	openErr       error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}
func (m *mockAuth) OpenSignUp() (bool, error) {
	return m.openSignUp, m.openErr
}

type mockValidation struct {
	mu       sync.Mutex
	snap     models.Snapshot
	scanErr  error
	confErr  error
	resetErr error
	stateErr error
	updates  chan models.Snapshot

	lastScan     string
	scanCalls    int
	confirmCalls int
	resetCalls   int
}

func (m *mockValidation) Scan(ctx context.Context, raw string) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	m.lastScan = raw
	return m.snap, m.scanErr
}
func (m *mockValidation) Confirm(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmCalls++
	return m.snap, m.confErr
}
func (m *mockValidation) Reset(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
	return m.snap, m.resetErr
}
func (m *mockValidation) State(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.stateErr
}
func (m *mockValidation) Subscribe() (<-chan models.Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = make(chan models.Snapshot, 1)
	}
	return m.updates, func() {}
}

// push delivers a transition to the subscriber registered by the handler.
func (m *mockValidation) push(snap models.Snapshot) {
	m.mu.Lock()
	ch := m.updates
	m.mu.Unlock()
	ch <- snap
}

type mockHistory struct {
	resp      []models.ValidationResult
	stats     service.HistoryStats
	err       error
	exportErr error
	export    string
	clearErr  error

	lastFilter   service.HistoryFilter
	lastFormat   string
	clearedCalls int
}

func (m *mockHistory) List(ctx context.Context, f service.HistoryFilter) ([]models.ValidationResult, error) {
	m.lastFilter = f
	return m.resp, m.err
}
func (m *mockHistory) Stats(ctx context.Context) (service.HistoryStats, error) {
	return m.stats, m.err
}
func (m *mockHistory) Clear(ctx context.Context) error {
	m.clearedCalls++
	return m.clearErr
}
func (m *mockHistory) Export(ctx context.Context, format string, w io.Writer) error {
	m.lastFormat = format
	if m.exportErr != nil {
		return m.exportErr
	}
	_, err := io.WriteString(w, m.export)
	return err
}

type mockConfig struct {
	cfg        models.ValidationConfig
	getErr     error
	updateErr  error
	lastUpdate models.ValidationConfig
}

func (m *mockConfig) Get(ctx context.Context) (models.ValidationConfig, error) {
	return m.cfg, m.getErr
}
func (m *mockConfig) Update(ctx context.Context, cfg models.ValidationConfig) (models.ValidationConfig, error) {
	m.lastUpdate = cfg
	if m.updateErr != nil {
		return models.ValidationConfig{}, m.updateErr
	}
	return cfg, nil
}

type mockAuditLog struct {
	resp     []models.AuditEvent
	err      error
	last     service.LogFilter
}

func (m *mockAuditLog) List(ctx context.Context, f service.LogFilter) ([]models.AuditEvent, error) {
	m.last = f
	return m.resp, m.err
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
