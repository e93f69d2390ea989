package actuator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SendAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("a", "")

	st, err := m.QueryState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Off, st)

	require.NoError(t, m.Send(ctx, "a", true, true))
	st, _ = m.QueryState(ctx, "a")
	assert.Equal(t, On, st)
	assert.Equal(t, []Command{{ID: "a", On: true, Wait: true}}, m.Commands())

	assert.ErrorIs(t, m.Send(ctx, "nope", true, false), ErrUnknownActuator)
	st, _ = m.QueryState(ctx, "nope")
	assert.Equal(t, Unknown, st)
}

func TestMemory_UnavailableRejectsCommands(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("a")
	m.SetAvailable("a", false)
	assert.ErrorIs(t, m.Send(ctx, "a", true, false), ErrUnavailable)

	m.SetAvailable("a", true)
	st, _ := m.QueryState(ctx, "a")
	assert.Equal(t, Off, st)
}

func TestMemory_ToggleIsNotACommand(t *testing.T) {
	m := NewMemory("a")
	require.NoError(t, m.Toggle("a", On))
	assert.Empty(t, m.Commands())
	assert.ErrorIs(t, m.Toggle("b", On), ErrUnknownActuator)
}

func TestGPIO_ActiveHigh(t *testing.T) {
	ctx := context.Background()
	drv := NewMockDriver()
	g, err := NewGPIO(drv, GPIOConfig{Pins: []int{17, 27}})
	require.NoError(t, err)

	lvl, _ := drv.ReadPin(17)
	assert.Equal(t, Low, lvl)

	require.NoError(t, g.Send(ctx, "17", true, false))
	lvl, _ = drv.ReadPin(17)
	assert.Equal(t, High, lvl)

	st, err := g.QueryState(ctx, "17")
	require.NoError(t, err)
	assert.Equal(t, On, st)
	st, _ = g.QueryState(ctx, "27")
	assert.Equal(t, Off, st)
}

func TestGPIO_ActiveLow(t *testing.T) {
	ctx := context.Background()
	drv := NewMockDriver()
	g, err := NewGPIO(drv, GPIOConfig{Pins: []int{22}, ActiveLow: true})
	require.NoError(t, err)

	lvl, _ := drv.ReadPin(22)
	assert.Equal(t, High, lvl, "released relay must be high on an active-low board")

	require.NoError(t, g.Send(ctx, "22", true, false))
	lvl, _ = drv.ReadPin(22)
	assert.Equal(t, Low, lvl)
	st, _ := g.QueryState(ctx, "22")
	assert.Equal(t, On, st)

	require.NoError(t, g.Close())
	lvl, _ = drv.ReadPin(22)
	assert.Equal(t, High, lvl)
}

func TestGPIO_UnknownPin(t *testing.T) {
	g, err := NewGPIO(NewMockDriver(), GPIOConfig{Pins: []int{17}})
	require.NoError(t, err)
	assert.ErrorIs(t, g.Send(context.Background(), "18", true, false), ErrUnknownActuator)
	_, err = g.QueryState(context.Background(), "relay")
	assert.ErrorIs(t, err, ErrUnknownActuator)
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true, nil)
	require.NoError(t, err)
	_, ok := d.(*MockDriver)
	assert.True(t, ok)
}

// fakeHA is a minimal Home Assistant REST endpoint.
type fakeHA struct {
	mu     sync.Mutex
	states map[string]string
	calls  []string
}

func (f *fakeHA) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/services/homeassistant/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			EntityID string `json:"entity_id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		service := r.URL.Path[len("/api/services/homeassistant/"):]
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, service+":"+body.EntityID)
		if service == "turn_on" {
			f.states[body.EntityID] = "on"
		} else {
			f.states[body.EntityID] = "off"
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/api/states/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		id := r.URL.Path[len("/api/states/"):]
		f.mu.Lock()
		st, ok := f.states[id]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"entity_id": id, "state": st})
	})
	return mux
}

func TestHomeAssistant_SendAndQuery(t *testing.T) {
	ha := &fakeHA{states: map[string]string{"switch.blind_up": "off", "switch.blind_down": "unavailable"}}
	srv := httptest.NewServer(ha.handler(t))
	defer srv.Close()

	ctx := context.Background()
	c := NewHomeAssistant(srv.URL+"/", "secret", srv.Client())

	require.NoError(t, c.Send(ctx, "switch.blind_up", true, false))
	st, err := c.QueryState(ctx, "switch.blind_up")
	require.NoError(t, err)
	assert.Equal(t, On, st)

	require.NoError(t, c.Send(ctx, "switch.blind_up", false, true))
	assert.Equal(t, []string{"turn_on:switch.blind_up", "turn_off:switch.blind_up"}, ha.calls)

	st, err = c.QueryState(ctx, "switch.blind_down")
	require.NoError(t, err)
	assert.Equal(t, Unavailable, st)

	st, err = c.QueryState(ctx, "switch.missing")
	require.NoError(t, err)
	assert.Equal(t, Unknown, st)

	require.NoError(t, c.Close())
}

func TestHomeAssistant_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHomeAssistant(srv.URL, "secret", nil)
	assert.Error(t, c.Send(context.Background(), "switch.x", true, false))
	_, err := c.QueryState(context.Background(), "switch.x")
	assert.Error(t, err)
}
