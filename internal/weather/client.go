// Package weather is the Météo France API client: the current vigilance
// snapshot for the monitored domain, and city forecasts for the dashboard.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/models"
)

const (
	maxRetries = 3
	retryDelay = 2 * time.Second
)

type Client struct {
	baseURL string
	domain  string
	token   string
	client  *http.Client
}

func NewClient(cfg config.WeatherConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		domain:  cfg.Domain,
		token:   cfg.Token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// doJSON performs one GET with retries and decodes the body into out.
// Transient failures are retried with a linearly growing delay.
func (c *Client) doJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt-1)):
			}
			slog.Warn("retrying weather API call", "attempt", attempt, "error", lastErr)
		}

		lastErr = c.doOnce(ctx, rawURL, out)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("weather API call failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}

type currentPhenomenonsResponse struct {
	UpdateTime int64  `json:"update_time"`
	DomainID   string `json:"domain_id"`
	MaxColorID int    `json:"max_color_id"`
	Phenomena  []struct {
		PhenomenonID         string `json:"phenomenon_id"`
		PhenomenonMaxColorID int    `json:"phenomenon_max_color_id"`
	} `json:"phenomenons_max_colors"`
}

// CurrentSnapshot fetches the current vigilance phenomenons for the
// configured domain.
func (c *Client) CurrentSnapshot(ctx context.Context) (*models.Snapshot, error) {
	u := fmt.Sprintf("%s/v3/warning/currentphenomenons?domain=%s&depth=1&with_coastal_bulletin=true",
		c.baseURL, url.QueryEscape(c.domain))

	var data currentPhenomenonsResponse
	if err := c.doJSON(ctx, u, &data); err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		FetchedAt: time.Now().UTC(),
		Domain:    c.domain,
		MaxColor:  data.MaxColorID,
	}
	if snap.MaxColor == 0 {
		snap.MaxColor = models.ColorGreen
	}

	for _, p := range data.Phenomena {
		id, err := strconv.Atoi(p.PhenomenonID)
		if err != nil {
			slog.Warn("unparseable phenomenon id", "id", p.PhenomenonID)
			continue
		}

		name, ok := models.PhenomenonTypes[id]
		if !ok {
			name = fmt.Sprintf("Unknown (%d)", id)
		}
		color := p.PhenomenonMaxColorID
		if color < models.ColorGreen || color > models.ColorRed {
			// Unknown severity is treated as the lowest level, never alertable.
			color = models.ColorGreen
		}

		snap.Phenomena = append(snap.Phenomena, models.Phenomenon{
			Type:      name,
			ColorCode: color,
			ColorName: models.ColorName(color),
			Level:     models.ColorLevel(color),
		})
	}

	slog.Info("fetched vigilance snapshot",
		"domain", snap.Domain,
		"max_color", snap.MaxColor,
		"phenomena", len(snap.Phenomena),
	)
	return snap, nil
}

type forecastResponse struct {
	DailyForecast []struct {
		Dt int64 `json:"dt"`
		T  struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"T"`
		Humidity struct {
			Max int `json:"max"`
		} `json:"humidity"`
		Precipitation struct {
			TwentyFourH float64 `json:"24h"`
		} `json:"precipitation"`
		Wind struct {
			Speed float64 `json:"speed"`
			Gust  float64 `json:"gust"`
		} `json:"wind"`
		Weather12H struct {
			Desc string `json:"desc"`
		} `json:"weather12H"`
	} `json:"daily_forecast"`
}

// CityForecast fetches the 7-day outlook for one city.
func (c *Client) CityForecast(ctx context.Context, city models.City) ([]models.DayForecast, error) {
	u := fmt.Sprintf("%s/v2/forecast?lat=%.4f&lon=%.4f&lang=fr", c.baseURL, city.Lat, city.Lon)

	var data forecastResponse
	if err := c.doJSON(ctx, u, &data); err != nil {
		return nil, err
	}

	days := data.DailyForecast
	if len(days) > 7 {
		days = days[:7]
	}

	forecasts := make([]models.DayForecast, 0, len(days))
	for _, day := range days {
		forecasts = append(forecasts, models.DayForecast{
			City:          city.Name,
			Date:          time.Unix(day.Dt, 0).UTC(),
			TempMin:       day.T.Min,
			TempMax:       day.T.Max,
			Humidity:      day.Humidity.Max,
			Precipitation: day.Precipitation.TwentyFourH,
			WindSpeed:     day.Wind.Speed,
			WindGust:      day.Wind.Gust,
			Description:   day.Weather12H.Desc,
		})
	}
	return forecasts, nil
}

// AllCityForecasts fetches forecasts for every major city, skipping cities
// whose fetch fails.
func (c *Client) AllCityForecasts(ctx context.Context) []models.DayForecast {
	var all []models.DayForecast
	for _, city := range models.MartiniqueCities {
		forecasts, err := c.CityForecast(ctx, city)
		if err != nil {
			slog.Warn("failed to fetch forecast", "city", city.Name, "error", err)
			continue
		}
		all = append(all, forecasts...)
	}
	return all
}
