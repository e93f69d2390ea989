package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHATimeout = 5 * time.Second

// HomeAssistant drives switch/light entities through the Home Assistant REST API.
// Actuator ids are entity ids such as "switch.blind_up".
type HomeAssistant struct {
	url        string
	token      string
	httpClient *http.Client
}

var _ Backend = (*HomeAssistant)(nil)

// NewHomeAssistant builds a client. A nil httpClient gets a default with timeout.
func NewHomeAssistant(baseURL, token string, httpClient *http.Client) *HomeAssistant {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHATimeout}
	}
	return &HomeAssistant{
		url:        strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type haServiceCall struct {
	EntityID string `json:"entity_id"`
}

type haState struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// Send calls homeassistant.turn_on / turn_off for id. Home Assistant queues the
// service call before answering, so wait has no additional effect here.
func (c *HomeAssistant) Send(ctx context.Context, id string, on bool, _ bool) error {
	service := "turn_off"
	if on {
		service = "turn_on"
	}
	body, err := json.Marshal(haServiceCall{EntityID: id})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/api/services/homeassistant/%s", c.url, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HA API error: %d", resp.StatusCode)
	}
	return nil
}

// QueryState reads /api/states/<id>. Missing entities are Unknown.
func (c *HomeAssistant) QueryState(ctx context.Context, id string) (State, error) {
	endpoint := fmt.Sprintf("%s/api/states/%s", c.url, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Unknown, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Unknown, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Unknown, nil
	case resp.StatusCode != http.StatusOK:
		return Unknown, fmt.Errorf("HA API error: %d", resp.StatusCode)
	}

	var st haState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Unknown, fmt.Errorf("decode state of %s: %w", id, err)
	}
	return ParseState(st.State), nil
}

func (c *HomeAssistant) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HomeAssistant) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}
