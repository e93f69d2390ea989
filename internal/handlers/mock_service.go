package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/models"
	"timebased_cover/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpUser    models.User
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseRole     string // defaults to operator
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (models.User, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpUser, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (models.Identity, error) {
	m.lastParseToken = token
	if m.parseErr != nil {
		return models.Identity{}, m.parseErr
	}
	role := m.parseRole
	if role == "" {
		role = models.RoleOperator
	}
	return models.Identity{UserID: m.parseID, Username: fmt.Sprintf("user%d", m.parseID), Role: role}, nil
}

// installer is a token parser that grants maintenance rights.
func installer() *mockAuth { return &mockAuth{parseID: 1, parseRole: models.RoleInstaller} }

type mockCovers struct {
	err     error
	calls   []string // "<op>:<id>"
	lastPos int
}

func (m *mockCovers) record(op, id string) error {
	m.calls = append(m.calls, op+":"+id)
	return m.err
}

func (m *mockCovers) Open(ctx context.Context, id string) error  { return m.record("open", id) }
func (m *mockCovers) Close(ctx context.Context, id string) error { return m.record("close", id) }
func (m *mockCovers) Stop(ctx context.Context, id string) error  { return m.record("stop", id) }
func (m *mockCovers) Calibrate(ctx context.Context, id string) error {
	return m.record("calibrate", id)
}
func (m *mockCovers) SetPosition(ctx context.Context, id string, position int) error {
	m.lastPos = position
	return m.record("position", id)
}
func (m *mockCovers) Restore(ctx context.Context) error { return nil }
func (m *mockCovers) Shutdown()                         {}

type mockMonitoring struct {
	states []models.CoverState
	err    error
}

func (m *mockMonitoring) ListStates(ctx context.Context) ([]models.CoverState, error) {
	return m.states, m.err
}

func (m *mockMonitoring) GetState(ctx context.Context, id string) (models.CoverState, error) {
	if m.err != nil {
		return models.CoverState{}, m.err
	}
	for _, st := range m.states {
		if st.ID == id {
			return st, nil
		}
	}
	return models.CoverState{}, fmt.Errorf("cover %q: %w", id, service.ErrUnknownCover)
}

type mockEventLog struct {
	resp        []models.CoverEvent
	err         error
	lastFrom    time.Time
	lastTo      time.Time
	lastType    string
	lastCoverID string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.CoverEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastCoverID = f.CoverID
	return m.resp, m.err
}

type mockSwitchboard struct {
	err       error
	lastID    string
	lastState actuator.State
}

func (m *mockSwitchboard) Toggle(ctx context.Context, id string, st actuator.State) error {
	m.lastID = id
	m.lastState = st
	return m.err
}

// mockUpdates hands every subscriber the same feed the test writes to.
type mockUpdates struct {
	feed chan models.CoverState
}

func newMockUpdates() *mockUpdates {
	return &mockUpdates{feed: make(chan models.CoverState, 8)}
}

func (m *mockUpdates) Subscribe() (<-chan models.CoverState, func()) {
	return m.feed, func() {}
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
