//go:build integration
// +build integration

package client

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

const openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

func integrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	c, err := NewOpenWeatherClient(Options{APIKey: apiKey, BaseURL: openWeatherURL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	c := integrationClient(t)
	if err := c.ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

func TestOpenWeatherClient_GetCurrentWeather_Integration(t *testing.T) {
	c := integrationClient(t)

	obs, err := c.GetCurrentWeather(context.Background(), "London")
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v (API key may not be activated yet)", err)
	}
	if obs.Description == "" {
		t.Error("GetCurrentWeather() returned empty description")
	}
	// Kelvin readings on Earth are comfortably above 150K.
	if obs.Temperature < 150 {
		t.Errorf("GetCurrentWeather() temperature = %v, want a Kelvin reading", obs.Temperature)
	}
}

func TestOpenWeatherClient_GetCurrentWeather_UnknownCity_Integration(t *testing.T) {
	c := integrationClient(t)

	_, err := c.GetCurrentWeather(context.Background(), "Nowhereville-Zzzxq")
	if !errors.Is(err, ErrCityNotFound) {
		t.Errorf("GetCurrentWeather() error = %v, want %v", err, ErrCityNotFound)
	}
}
