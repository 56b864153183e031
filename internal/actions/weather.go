package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultWeatherEndpoint is the OpenWeatherMap current-conditions API.
const DefaultWeatherEndpoint = "http://api.openweathermap.org/data/2.5/weather"

// OfflineWeatherReply is returned whenever live conditions cannot be fetched.
const OfflineWeatherReply = "I can't get current weather information in offline mode. You might want to check your weather app or enable online mode."

// WeatherClient fetches current conditions for one city.
type WeatherClient struct {
	APIKey   string
	City     string
	Endpoint string
	Client   *http.Client
}

// NewWeatherClient returns a client with a 5s timeout.
func NewWeatherClient(apiKey, city string) *WeatherClient {
	return &WeatherClient{
		APIKey:   apiKey,
		City:     city,
		Endpoint: DefaultWeatherEndpoint,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (w *WeatherClient) Configured() bool {
	return w != nil && w.APIKey != ""
}

type weatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Current returns a one-sentence description of current conditions.
func (w *WeatherClient) Current(ctx context.Context) (string, error) {
	if !w.Configured() {
		return "", errors.New("weather api key not configured")
	}

	q := url.Values{}
	q.Set("q", w.City)
	q.Set("appid", w.APIKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	var data weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode weather: %w", err)
	}
	if len(data.Weather) == 0 {
		return "", errors.New("weather api returned no conditions")
	}
	return fmt.Sprintf("The current temperature is %g°C with %s.", data.Main.Temp, data.Weather[0].Description), nil
}
