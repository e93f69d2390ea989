package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/cover"
	"timebased_cover/internal/models"
	"timebased_cover/internal/service"
	"timebased_cover/internal/travel"
)

const patioID = "cover_time_based_patio"

func patioStates() []models.CoverState {
	return []models.CoverState{
		{ID: patioID, Name: "Patio", Position: 30, TargetPosition: 30, State: models.StateIdle, Available: true},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
}

func TestCoversHandler_ListAndGet(t *testing.T) {
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		Monitoring:    &mockMonitoring{states: patioStates()},
	}
	r := newTestRouter(s)

	w := doJSON(t, r, http.MethodGet, "/api/v1/covers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}
	var list struct {
		Count  int                 `json:"count"`
		Covers []models.CoverState `json:"covers"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 1 || list.Covers[0].ID != patioID {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/covers/"+patioID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", w.Code, w.Body.String())
	}
	var st models.CoverState
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Position != 30 || st.Name != "Patio" {
		t.Fatalf("unexpected state: %+v", st)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/covers/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cover, got %d", w.Code)
	}
}

func TestCoversHandler_ListError(t *testing.T) {
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		Monitoring:    &mockMonitoring{err: errors.New("boom")},
	}
	r := newTestRouter(s)
	w := doJSON(t, r, http.MethodGet, "/api/v1/covers", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestCoversHandler_RequiresAuth(t *testing.T) {
	s := &service.Service{Authorization: &mockAuth{}, Covers: &mockCovers{}}
	r := newTestRouter(s)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/covers/"+patioID+"/open", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCoversHandler_Commands(t *testing.T) {
	cases := []struct {
		path   string
		call   string
		status string
	}{
		{"/open", "open", statusOpening},
		{"/close", "close", statusClosing},
		{"/stop", "stop", statusStopped},
		{"/calibrate", "calibrate", statusCalibrating},
	}
	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			cov := &mockCovers{}
			s := &service.Service{
				Authorization: installer(),
				Covers:        cov,
				Monitoring:    &mockMonitoring{states: patioStates()},
			}
			r := newTestRouter(s)

			w := doJSON(t, r, http.MethodPost, "/api/v1/covers/"+patioID+tc.path, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			if len(cov.calls) != 1 || cov.calls[0] != tc.call+":"+patioID {
				t.Fatalf("unexpected calls: %v", cov.calls)
			}
			var out struct {
				Status string            `json:"status"`
				State  models.CoverState `json:"state"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out.Status != tc.status || out.State.ID != patioID {
				t.Fatalf("unexpected response: %+v", out)
			}
		})
	}
}

func TestCoversHandler_CommandErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"unknown_cover", fmt.Errorf("cover %q: %w", "x", service.ErrUnknownCover), http.StatusNotFound},
		{"calibrating", cover.ErrCalibrating, http.StatusConflict},
		{"invalid_target", travel.ErrInvalidTarget, http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &service.Service{
				Authorization: &mockAuth{parseID: 1},
				Covers:        &mockCovers{err: tc.err},
				Monitoring:    &mockMonitoring{states: patioStates()},
			}
			r := newTestRouter(s)
			w := doJSON(t, r, http.MethodPost, "/api/v1/covers/"+patioID+"/open", "")
			if w.Code != tc.code {
				t.Fatalf("status=%d, want %d (body=%s)", w.Code, tc.code, w.Body.String())
			}
		})
	}
}

func TestCoversHandler_SetPosition(t *testing.T) {
	cov := &mockCovers{}
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		Covers:        cov,
		Monitoring:    &mockMonitoring{states: patioStates()},
	}
	r := newTestRouter(s)

	w := doJSON(t, r, http.MethodPost, "/api/v1/covers/"+patioID+"/position", `{"position":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if cov.lastPos != 0 || cov.calls[0] != "position:"+patioID {
		t.Fatalf("unexpected call: pos=%d calls=%v", cov.lastPos, cov.calls)
	}
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["status"] != statusMoving || out["position"].(float64) != 0 {
		t.Fatalf("unexpected response: %v", out)
	}

	for _, body := range []string{`{}`, `{"position":"high"}`, `not json`} {
		w = doJSON(t, r, http.MethodPost, "/api/v1/covers/"+patioID+"/position", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
	if len(cov.calls) != 1 {
		t.Fatalf("bad bodies must not reach the service: %v", cov.calls)
	}

	cov.err = fmt.Errorf("position 150: %w", travel.ErrInvalidTarget)
	w = doJSON(t, r, http.MethodPost, "/api/v1/covers/"+patioID+"/position", `{"position":150}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range target, got %d", w.Code)
	}
}

func TestActuatorsHandler_Toggle(t *testing.T) {
	sb := &mockSwitchboard{}
	s := &service.Service{Authorization: installer(), Switchboard: sb}
	r := newTestRouter(s)

	w := doJSON(t, r, http.MethodPost, "/api/v1/actuators/switch.patio_up/toggle", `{"state":"ON"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if sb.lastID != "switch.patio_up" || sb.lastState != actuator.On {
		t.Fatalf("unexpected toggle: %s=%s", sb.lastID, sb.lastState)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/actuators/switch.patio_up/toggle", `{"state":"sideways"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown state, got %d", w.Code)
	}

	cases := []struct {
		err  error
		code int
	}{
		{service.ErrManualUnsupported, http.StatusNotImplemented},
		{fmt.Errorf("memory %q: %w", "x", actuator.ErrUnknownActuator), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		sb.err = tc.err
		w = doJSON(t, r, http.MethodPost, "/api/v1/actuators/x/toggle", `{"state":"off"}`)
		if w.Code != tc.code {
			t.Fatalf("err %v: status=%d, want %d", tc.err, w.Code, tc.code)
		}
	}
}

func TestMaintenanceRoutes_RequireInstaller(t *testing.T) {
	cov := &mockCovers{}
	sb := &mockSwitchboard{}
	s := &service.Service{
		Authorization: &mockAuth{parseID: 2, parseRole: models.RoleOperator},
		Covers:        cov,
		Monitoring:    &mockMonitoring{states: patioStates()},
		Switchboard:   sb,
	}
	r := newTestRouter(s)

	for _, tc := range []struct{ path, body string }{
		{"/api/v1/covers/" + patioID + "/calibrate", ""},
		{"/api/v1/actuators/switch.patio_up/toggle", `{"state":"on"}`},
	} {
		w := doJSON(t, r, http.MethodPost, tc.path, tc.body)
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for operator, got %d", tc.path, w.Code)
		}
		var out map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &out)
		if out["error"] != "installer role required" {
			t.Fatalf("%s: unexpected body %v", tc.path, out)
		}
	}
	if len(cov.calls) != 0 || sb.lastID != "" {
		t.Fatalf("denied requests reached services: covers=%v switch=%q", cov.calls, sb.lastID)
	}

	// Day-to-day motion stays open to operators.
	if w := doJSON(t, r, http.MethodPost, "/api/v1/covers/"+patioID+"/open", ""); w.Code != http.StatusOK {
		t.Fatalf("operator open: status=%d", w.Code)
	}
}

func TestWhoAmI(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: installer()})
	w := doJSON(t, r, http.MethodGet, "/api/v1/me", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out struct {
		UserID      int    `json:"user_id"`
		Role        string `json:"role"`
		Maintenance bool   `json:"maintenance"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.UserID != 1 || out.Role != models.RoleInstaller || !out.Maintenance {
		t.Fatalf("unexpected identity: %+v", out)
	}
}
