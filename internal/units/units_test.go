package units

import "testing"

func TestKelvinToCelsius(t *testing.T) {
	tests := []struct {
		name   string
		kelvin float64
		want   float64
	}{
		{"london sample", 290.15, 17.0},
		{"freezing point", 273.15, 0},
		{"absolute zero", 0, -273.15},
		{"below freezing", 263.65, -9.5},
		{"rounds to two decimals", 300.123, 26.97},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KelvinToCelsius(tt.kelvin); got != tt.want {
				t.Errorf("KelvinToCelsius(%v) = %v, want %v", tt.kelvin, got, tt.want)
			}
		})
	}
}

// TestKelvinToCelsius_Idempotent verifies that the same input always yields the same output.
func TestKelvinToCelsius_Idempotent(t *testing.T) {
	for _, k := range []float64{290.15, 1.5, 310.927, -5} {
		first := KelvinToCelsius(k)
		second := KelvinToCelsius(k)
		if first != second {
			t.Errorf("KelvinToCelsius(%v) = %v then %v, want identical results", k, first, second)
		}
	}
}
