package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// featureTurnOff is the supported_features bit for climate.turn_off.
const featureTurnOff = 128

// HomeAssistant drives climate entities through the Home Assistant REST API.
type HomeAssistant struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHomeAssistant creates a client for the instance at baseURL.
// Requests are limited to rateLimitRPS per second.
func NewHomeAssistant(baseURL, token string, timeout time.Duration, rateLimitRPS float64) *HomeAssistant {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if rateLimitRPS <= 0 {
		rateLimitRPS = 10
	}
	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &HomeAssistant{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Close releases idle connections.
func (h *HomeAssistant) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// Ping verifies the API is reachable and the token accepted.
func (h *HomeAssistant) Ping(ctx context.Context) error {
	resp, err := h.request(ctx, http.MethodGet, "/api/", nil)
	if err != nil {
		return fmt.Errorf("failed to reach Home Assistant: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	log.Info().Str("url", h.baseURL).Msg("Connected to Home Assistant")
	return nil
}

func (h *HomeAssistant) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.httpClient.Do(req)
}

type haState struct {
	EntityID   string       `json:"entity_id"`
	State      string       `json:"state"`
	Attributes haAttributes `json:"attributes"`
}

type haAttributes struct {
	HVACModes         []string `json:"hvac_modes"`
	FanModes          []string `json:"fan_modes"`
	SwingModes        []string `json:"swing_modes"`
	PresetModes       []string `json:"preset_modes"`
	Temperature       *float64 `json:"temperature"`
	CurrentTemp       *float64 `json:"current_temperature"`
	FanMode           string   `json:"fan_mode"`
	SwingMode         string   `json:"swing_mode"`
	PresetMode        string   `json:"preset_mode"`
	SupportedFeatures int      `json:"supported_features"`
}

func (h *HomeAssistant) fetchState(ctx context.Context, entityID string) (*haState, error) {
	resp, err := h.request(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", entityID, ErrUnknownDevice)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var st haState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &st, nil
}

// Capabilities implements Adapter.
func (h *HomeAssistant) Capabilities(ctx context.Context, entityID string) (Capabilities, error) {
	st, err := h.fetchState(ctx, entityID)
	if err != nil {
		return Capabilities{}, err
	}
	a := st.Attributes
	return Capabilities{
		HVACModes:   a.HVACModes,
		FanModes:    a.FanModes,
		SwingModes:  a.SwingModes,
		PresetModes: a.PresetModes,
		TurnOff:     a.SupportedFeatures&featureTurnOff != 0,
	}, nil
}

// State implements Adapter.
func (h *HomeAssistant) State(ctx context.Context, entityID string) (State, error) {
	st, err := h.fetchState(ctx, entityID)
	if err != nil {
		return State{}, err
	}
	a := st.Attributes
	return State{
		HVACMode:    st.State,
		Temperature: a.Temperature,
		Current:     a.CurrentTemp,
		FanMode:     a.FanMode,
		SwingMode:   a.SwingMode,
		PresetMode:  a.PresetMode,
	}, nil
}

// Apply implements Adapter. A failed turn_off falls back to set_hvac_mode off.
func (h *HomeAssistant) Apply(ctx context.Context, entityID string, cmd Command) error {
	data := map[string]any{"entity_id": entityID}
	switch cmd.Call {
	case CallTurnOff:
		if err := h.callService(ctx, string(CallTurnOff), data); err != nil {
			log.Debug().Err(err).Str("entity", entityID).Msg("turn_off failed, falling back to set_hvac_mode")
			return h.callService(ctx, string(CallSetHVACMode), map[string]any{"entity_id": entityID, "hvac_mode": "off"})
		}
		return nil
	case CallSetHVACMode:
		data["hvac_mode"] = cmd.Value
	case CallSetTemperature:
		data["temperature"] = cmd.Temp
	case CallSetFanMode:
		data["fan_mode"] = cmd.Value
	case CallSetSwingMode:
		data["swing_mode"] = cmd.Value
	case CallSetPresetMode:
		data["preset_mode"] = cmd.Value
	default:
		return fmt.Errorf("unsupported call %q", cmd.Call)
	}
	return h.callService(ctx, string(cmd.Call), data)
}

func (h *HomeAssistant) callService(ctx context.Context, service string, data map[string]any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	resp, err := h.request(ctx, http.MethodPost, "/api/services/climate/"+service, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("climate.%s: unexpected status code %d: %s", service, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
