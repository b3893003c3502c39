package citymap_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"dispatchsim/citymap"
)

func TestProjectorRoundTrip(t *testing.T) {
	projector := citymap.NewGeoProjector(40.7128, -74.0060)

	lat, lon := 40.7589, -73.9851
	p := projector.FromLatLon(lat, lon)
	backLat, backLon := projector.ToLatLon(p)

	require.InDelta(t, lat, backLat, 1e-9)
	require.InDelta(t, lon, backLon, 1e-9)
}

func TestProjectorReferenceIsOrigin(t *testing.T) {
	projector := citymap.NewGeoProjector(40.7128, -74.0060)
	p := projector.FromLatLon(40.7128, -74.0060)
	require.Equal(t, 0.0, p.X)
	require.Equal(t, 0.0, p.Y)
}

func TestGreatCircleDistanceQuarterMeridian(t *testing.T) {
	// Equator to pole along a meridian is a quarter of the circumference.
	distance := citymap.GreatCircleDistance(0, 0, 90, 0)
	expected := 2 * math.Pi * 6370000.0 / 4
	require.InDelta(t, expected, distance, 1)
}

func TestProjectedDistanceApproximatesGreatCircle(t *testing.T) {
	projector := citymap.NewGeoProjector(40.7128, -74.0060)

	lat2, lon2 := 40.7228, -74.0160
	p1 := projector.FromLatLon(40.7128, -74.0060)
	p2 := projector.FromLatLon(lat2, lon2)

	projected := p1.Distance(p2)
	greatCircle := citymap.GreatCircleDistance(40.7128, -74.0060, lat2, lon2)
	require.InEpsilon(t, greatCircle, projected, 0.01)
}
