package units

import "math"

// KelvinOffset is the difference between the Kelvin and Celsius scales.
const KelvinOffset = 273.15

// KelvinToCelsius converts an upstream Kelvin reading to Celsius, rounded to two decimals.
func KelvinToCelsius(kelvin float64) float64 {
	return math.Round((kelvin-KelvinOffset)*100) / 100
}
