package geo

import (
	"math"
	"testing"

	"github.com/langchou/fleettrack/internal/models"
)

func TestDistanceKm_SamePoint(t *testing.T) {
	points := []models.Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 14.5995, Lng: 120.9842},
		{Lat: -33.8688, Lng: 151.2093},
	}
	for _, p := range points {
		if d := DistanceKm(p, p); d != 0 {
			t.Fatalf("distance to self must be 0, got %v for %+v", d, p)
		}
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := models.Coordinate{Lat: 14.5995, Lng: 120.9842}
	b := models.Coordinate{Lat: 16.4023, Lng: 120.596}

	if d1, d2 := DistanceKm(a, b), DistanceKm(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance must be symmetric: %v vs %v", d1, d2)
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	// 马尼拉到碧瑶，直线约 200-210 公里
	manila := models.Coordinate{Lat: 14.5995, Lng: 120.9842}
	baguio := models.Coordinate{Lat: 16.4023, Lng: 120.596}

	d := DistanceKm(manila, baguio)
	if d < 190 || d > 220 {
		t.Fatalf("unexpected Manila-Baguio distance: %v km", d)
	}
}

func TestRouteDistanceKm_Degenerate(t *testing.T) {
	if d := RouteDistanceKm(nil); d != 0 {
		t.Fatalf("empty route must be 0, got %v", d)
	}
	if d := RouteDistanceKm([]models.Coordinate{{Lat: 1, Lng: 1}}); d != 0 {
		t.Fatalf("single-point route must be 0, got %v", d)
	}
}

func TestRouteDistanceKm_SumOfSegments(t *testing.T) {
	p := models.Coordinate{Lat: 14.5995, Lng: 120.9842}
	q := models.Coordinate{Lat: 14.676, Lng: 121.0437}
	r := models.Coordinate{Lat: 14.5547, Lng: 121.0244}

	want := DistanceKm(p, q) + DistanceKm(q, r)
	got := RouteDistanceKm([]models.Coordinate{p, q, r})
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("route distance mismatch: got %v want %v", got, want)
	}
}
