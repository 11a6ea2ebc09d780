package entities

import "time"

type DailyForecast struct {
	Date            time.Time `json:"date"`
	PrecipitationMM float64   `json:"precipitation_mm"`
	TempMinC        float64   `json:"temp_min_c"`
	TempMaxC        float64   `json:"temp_max_c"`
}

type WeatherData struct {
	TemperatureC    *float64        `json:"temperature_c,omitempty"`
	HumidityPct     *float64        `json:"humidity_pct,omitempty"`
	PrecipitationMM *float64        `json:"precipitation_mm,omitempty"`
	Forecast        []DailyForecast `json:"forecast,omitempty"`
	ObservedAt      time.Time       `json:"observed_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

type SatelliteData struct {
	NDVI             *float64  `json:"ndvi,omitempty"`
	SoilMoisturePct  *float64  `json:"soil_moisture_pct,omitempty"`
	SoilTemperatureC *float64  `json:"soil_temperature_c,omitempty"`
	ObservedAt       time.Time `json:"observed_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// EnvironmentalSnapshot is what the provider returns for a location hash.
// Each part expires on its own; a part without ExpiresAt inherits the
// snapshot's.
type EnvironmentalSnapshot struct {
	LocationHash string         `json:"location_hash"`
	FetchedAt    time.Time      `json:"fetched_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Weather      *WeatherData   `json:"weather,omitempty"`
	Satellite    *SatelliteData `json:"satellite,omitempty"`
}

func (s *EnvironmentalSnapshot) expiry(part time.Time) time.Time {
	if part.IsZero() {
		return s.ExpiresAt
	}
	return part
}

// FreshWeather returns the weather part when it has not expired at asOf.
func (s *EnvironmentalSnapshot) FreshWeather(asOf time.Time) *WeatherData {
	if s == nil || s.Weather == nil {
		return nil
	}
	if !asOf.Before(s.expiry(s.Weather.ExpiresAt)) {
		return nil
	}
	return s.Weather
}

// FreshSatellite returns the satellite part when it has not expired at asOf.
func (s *EnvironmentalSnapshot) FreshSatellite(asOf time.Time) *SatelliteData {
	if s == nil || s.Satellite == nil {
		return nil
	}
	if !asOf.Before(s.expiry(s.Satellite.ExpiresAt)) {
		return nil
	}
	return s.Satellite
}

// ForecastFor looks up the forecast for a calendar day.
func (w *WeatherData) ForecastFor(day time.Time) (DailyForecast, bool) {
	if w == nil {
		return DailyForecast{}, false
	}
	d := Day(day)
	for _, f := range w.Forecast {
		if Day(f.Date).Equal(d) {
			return f, true
		}
	}
	return DailyForecast{}, false
}
