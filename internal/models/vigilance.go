package models

import "time"

// Vigilance color codes as published by Météo France, lowest to highest.
const (
	ColorGreen  = 1
	ColorYellow = 2
	ColorOrange = 3
	ColorRed    = 4
)

type VigilanceColor struct {
	Name  string
	Hex   string
	Level string
}

var VigilanceColors = map[int]VigilanceColor{
	ColorGreen:  {Name: "Green", Hex: "#00FF00", Level: "No particular vigilance"},
	ColorYellow: {Name: "Yellow", Hex: "#FFFF00", Level: "Be attentive"},
	ColorOrange: {Name: "Orange", Hex: "#FF8C00", Level: "Be very vigilant"},
	ColorRed:    {Name: "Red", Hex: "#FF0000", Level: "Absolute vigilance"},
}

// PhenomenonTypes maps the provider's numeric phenomenon ids to names.
var PhenomenonTypes = map[int]string{
	1: "Wind",
	2: "Rain-Flood",
	3: "Storm",
	4: "Flood",
	5: "Snow-Ice",
	6: "Heat Wave",
	7: "Cold Wave",
	8: "Avalanche",
	9: "Waves-Submersion",
}

// ColorName returns the display name for a color code, or "" for unknown codes.
func ColorName(code int) string {
	return VigilanceColors[code].Name
}

// ColorLevel returns the vigilance level text for a color code.
func ColorLevel(code int) string {
	return VigilanceColors[code].Level
}

// Phenomenon is one hazard entry of a vigilance snapshot.
type Phenomenon struct {
	Type      string `json:"type"`
	ColorCode int    `json:"color_code"`
	ColorName string `json:"color_name,omitempty"`
	Level     string `json:"level,omitempty"`
}

// Snapshot is the vigilance state for the whole monitored region at one point
// in time. Immutable once fetched; a newer snapshot supersedes it.
type Snapshot struct {
	FetchedAt time.Time    `json:"timestamp"`
	Domain    string       `json:"domain"`
	MaxColor  int          `json:"max_color"`
	Phenomena []Phenomenon `json:"phenomenons"`
}

// City is a forecast location on the island.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// MartiniqueCities are the major cities covered by the forecast endpoints.
var MartiniqueCities = []City{
	{Name: "Fort-de-France", Lat: 14.6037, Lon: -61.0579},
	{Name: "Le Lamentin", Lat: 14.6099, Lon: -60.9969},
	{Name: "Le Robert", Lat: 14.6778, Lon: -60.9381},
	{Name: "Schoelcher", Lat: 14.6147, Lon: -61.0906},
	{Name: "Sainte-Marie", Lat: 14.7831, Lon: -60.9928},
	{Name: "Le François", Lat: 14.6167, Lon: -60.9000},
	{Name: "Ducos", Lat: 14.5500, Lon: -60.9667},
	{Name: "Trinité", Lat: 14.7383, Lon: -60.9658},
	{Name: "Saint-Joseph", Lat: 14.6667, Lon: -61.0333},
	{Name: "Rivière-Pilote", Lat: 14.4667, Lon: -60.9000},
}

// DayForecast is one day of a city's 7-day outlook.
type DayForecast struct {
	City          string    `json:"city"`
	Date          time.Time `json:"date"`
	TempMin       float64   `json:"temp_min"`
	TempMax       float64   `json:"temp_max"`
	Humidity      int       `json:"humidity"`
	Precipitation float64   `json:"precipitation_24h"`
	WindSpeed     float64   `json:"wind_speed"`
	WindGust      float64   `json:"wind_gust"`
	Description   string    `json:"description"`
}
