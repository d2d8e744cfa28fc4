package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const weatherSchema = `{
  "type": "object",
  "properties": {
    "latitude": {"type": "string", "description": "Geographical WGS84 latitude of the location."},
    "longitude": {"type": "string", "description": "Geographical WGS84 longitude of the location."}
  },
  "required": ["latitude", "longitude"]
}`

type weatherInput struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// WeatherTool reports current conditions for a coordinate via the Open-Meteo
// forecast API. It is the built-in fallback tool when no MCP servers are
// configured.
type WeatherTool struct {
	client   *http.Client
	endpoint string
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: "https://api.open-meteo.com/v1/forecast",
	}
}

func (w *WeatherTool) Name() string { return "getWeather" }

func (w *WeatherTool) Spec() Spec {
	return Spec{
		Name:        w.Name(),
		Description: "Get the current weather for a given location, based on its WGS84 coordinates.",
		InputSchema: json.RawMessage(weatherSchema),
	}
}

func (w *WeatherTool) Validate(input json.RawMessage) error {
	var in weatherInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(err, "decode weather input")
	}
	if in.Latitude == "" {
		return errors.New("latitude is required")
	}
	if in.Longitude == "" {
		return errors.New("longitude is required")
	}
	return nil
}

func (w *WeatherTool) Invoke(ctx context.Context, input json.RawMessage) (any, error) {
	var in weatherInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, errors.Wrap(err, "decode weather input")
	}

	query := url.Values{}
	query.Set("latitude", in.Latitude)
	query.Set("longitude", in.Longitude)
	query.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build weather request")
	}
	req.Header.Set("User-Agent", "voicewire-agent/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch weather")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("weather API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read weather response")
	}

	var weather map[string]any
	if err := json.Unmarshal(body, &weather); err != nil {
		return nil, errors.Wrap(err, "decode weather response")
	}
	return map[string]any{"weather_data": weather}, nil
}

var _ Tool = (*WeatherTool)(nil)
