package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Johannesburg to Cape Town, roughly 1265 km.
	d := HaversineKm(-26.2041, 28.0473, -33.9249, 18.4241)
	if d < 1250 || d > 1280 {
		t.Errorf("expected ~1265 km, got %.1f", d)
	}
}

func TestHaversineKm_ZeroForSamePoint(t *testing.T) {
	d := HaversineKm(-26.2041, 28.0473, -26.2041, 28.0473)
	if d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := HaversineKm(-26.2041, 28.0473, -29.8587, 31.0218)
	b := HaversineKm(-29.8587, 31.0218, -26.2041, 28.0473)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestHaversineKm_OneDegreeLatitude(t *testing.T) {
	// One degree of latitude is about 111 km anywhere on the globe.
	d := HaversineKm(0, 0, 1, 0)
	if d < 110 || d > 112 {
		t.Errorf("expected ~111 km for one degree of latitude, got %.2f", d)
	}
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{-26.2, 28.0, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 0, false},
		{-91, 0, false},
		{0, 181, false},
		{0, -181, false},
	}
	for _, tc := range cases {
		if got := ValidCoordinates(tc.lat, tc.lon); got != tc.want {
			t.Errorf("ValidCoordinates(%f, %f) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}
