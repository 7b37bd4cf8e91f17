package api

import (
	"github.com/lverdier/meteo-vigilance/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders one point feature per city, carrying today's headline
// numbers plus the full outlook so the map popup needs no second request.
func toGeoJSON(forecasts []models.DayForecast) FeatureCollection {
	byCity := make(map[string][]models.DayForecast)
	for _, f := range forecasts {
		byCity[f.City] = append(byCity[f.City], f)
	}

	features := make([]Feature, 0, len(models.MartiniqueCities))
	for _, city := range models.MartiniqueCities {
		days, ok := byCity[city.Name]
		if !ok || len(days) == 0 {
			continue
		}
		today := days[0]

		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{city.Lon, city.Lat},
			},
			Properties: map[string]any{
				"city":              city.Name,
				"temp_min":          today.TempMin,
				"temp_max":          today.TempMax,
				"wind_speed":        today.WindSpeed,
				"wind_gust":         today.WindGust,
				"precipitation_24h": today.Precipitation,
				"description":       today.Description,
				"forecast":          days,
			},
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
