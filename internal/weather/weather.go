// Package weather fetches current conditions from an Open-Meteo compatible
// endpoint.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/pkg/models"
)

// Client queries the forecast API. Open-Meteo needs no API key.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

func NewClient(cfg *config.WeatherConfig, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type currentConditions struct {
	Temperature              float64 `json:"temperature_2m"`
	ApparentTemperature      float64 `json:"apparent_temperature"`
	WeatherCode              int     `json:"weather_code"`
	PrecipitationProbability int     `json:"precipitation_probability"`
}

type forecastResponse struct {
	Current currentConditions `json:"current"`
}

// Current returns present conditions for a coordinate.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*models.WeatherData, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	query.Set("current", "temperature_2m,apparent_temperature,weather_code,precipitation_probability")

	endpoint := fmt.Sprintf("%s/v1/forecast?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var forecast forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	data := &models.WeatherData{
		Temperature:         forecast.Current.Temperature,
		FeelsLike:           forecast.Current.ApparentTemperature,
		Condition:           describeWeatherCode(forecast.Current.WeatherCode),
		PrecipitationChance: forecast.Current.PrecipitationProbability,
	}

	c.logger.WithFields(logrus.Fields{
		"temperature": data.Temperature,
		"condition":   data.Condition,
	}).Debug("Fetched current weather")

	return data, nil
}

// describeWeatherCode maps WMO weather codes to short condition labels.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
