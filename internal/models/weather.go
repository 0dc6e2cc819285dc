package models

import "time"

// WeatherRecord is one cached observation for a city. Records are append-only:
// a refresh inserts a new record rather than updating an existing one.
type WeatherRecord struct {
	ID          string    `json:"id"`
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"` // Celsius
	Humidity    float64   `json:"humidity"`
	Description string    `json:"description,omitempty"`
}

// FreshSince reports whether the record was created at or after cutoff.
func (r WeatherRecord) FreshSince(cutoff time.Time) bool {
	return !r.Timestamp.Before(cutoff)
}
