package traffic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dispatchsim/citymap"
	"dispatchsim/traffic"
)

func lineRoad(t *testing.T, length, speed float64) *citymap.Road {
	t.Helper()

	from := citymap.NewVertex(1, 0, 0, citymap.Point2D{X: 0, Y: 0})
	to := citymap.NewVertex(2, 0, 0, citymap.Point2D{X: length, Y: 0})
	from.AddEdge(to, length, speed)
	link, err := from.To(to)
	require.NoError(t, err)

	road := citymap.NewRoad()
	road.AddLink(link)
	road.SetSpeed()
	road.From = citymap.NewIntersection(from)
	road.To = citymap.NewIntersection(to)
	return road
}

func constantPattern(factor float64) *traffic.Pattern {
	p := traffic.NewPattern(300)
	p.Append(0, factor)
	return p
}

func TestSpeedFactorExtrapolation(t *testing.T) {
	p := traffic.NewPattern(100)
	p.Append(0, 0.5)
	p.Append(100, 0.8)
	p.Append(200, 1.0)

	require.Equal(t, 0.5, p.SpeedFactor(-50))
	require.Equal(t, 0.5, p.SpeedFactor(0))
	require.Equal(t, 0.5, p.SpeedFactor(99))
	require.Equal(t, 0.8, p.SpeedFactor(100))
	require.Equal(t, 1.0, p.SpeedFactor(200))
	require.Equal(t, 1.0, p.SpeedFactor(5000))
}

func TestEmptyPatternBehavesConstant(t *testing.T) {
	p := traffic.NewPattern(300)
	require.Equal(t, 1.0, p.SpeedFactor(42))
	require.Equal(t, 60.0, p.DynamicForwardTravelTime(0, 10, 600))
}

func TestForwardTravelTimeCrossingEpochs(t *testing.T) {
	// Speed 10 at factor 0.5 for the first 300 time units: the entire 600 m
	// is covered within the first epoch at effective speed 5.
	p := traffic.NewPattern(300)
	p.Append(0, 0.5)
	p.Append(300, 1.0)

	require.InDelta(t, 120.0, p.DynamicForwardTravelTime(0, 10, 600), 1e-9)

	// 2000 m starting at t=0: 1500 m in the first epoch (5 m/u for 300 u),
	// the remaining 500 m at 10 m/u -> 50 more units.
	require.InDelta(t, 350.0, p.DynamicForwardTravelTime(0, 10, 2000), 1e-9)
}

func TestForwardTravelTimeOutsidePattern(t *testing.T) {
	p := traffic.NewPattern(300)
	p.Append(0, 0.5)
	p.Append(300, 1.0)

	// Before the first epoch: first factor extrapolates.
	require.InDelta(t, 120.0, p.DynamicForwardTravelTime(-1000, 10, 600), 1e-9)
	// At or after the last epoch: last factor extrapolates.
	require.InDelta(t, 60.0, p.DynamicForwardTravelTime(300, 10, 600), 1e-9)
}

func TestTravelDistanceCapsAtMaxDistance(t *testing.T) {
	p := constantPattern(1.0)

	distance, elapsed := p.DynamicTravelDistance(0, 10, 100, 600)
	require.Equal(t, 600.0, distance)
	require.InDelta(t, 60.0, elapsed, 1e-9)

	// Without hitting the cap the full time is spent.
	distance, elapsed = p.DynamicTravelDistance(0, 10, 30, 600)
	require.Equal(t, 300.0, distance)
	require.InDelta(t, 30.0, elapsed, 1e-9)
}

func TestTravelDistanceAcrossEpochs(t *testing.T) {
	p := traffic.NewPattern(300)
	p.Append(0, 0.5)
	p.Append(300, 1.0)

	// 400 units of travel: 300 at 5 m/u then 100 at 10 m/u.
	distance, elapsed := p.DynamicTravelDistance(0, 10, 400, 1e9)
	require.InDelta(t, 2500.0, distance, 1e-9)
	require.InDelta(t, 400.0, elapsed, 1e-9)
}

func TestPositionRoundTrip(t *testing.T) {
	road := lineRoad(t, 1000, 10)
	p := constantPattern(1.0)

	loc := citymap.NewLocationOnRoad(road, 123)
	require.Equal(t, loc, p.TravelRoadForTime(50, loc, 0))

	start := citymap.LocationAtRoadStart(road)
	end := p.TravelRoadForTime(0, start, int64(road.TravelTime))
	require.True(t, end.AtEndIntersection())
}

func TestTravelRoadForTimeStopsAtRoadEnd(t *testing.T) {
	road := lineRoad(t, 1000, 10)
	p := constantPattern(1.0)

	// Twice the needed time still ends at the road end.
	end := p.TravelRoadForTime(0, citymap.NewLocationOnRoad(road, 500), 500)
	require.True(t, end.AtEndIntersection())
}

func TestRoadForwardTravelTimeRounding(t *testing.T) {
	road := lineRoad(t, 1000, 3)
	p := constantPattern(1.0)

	loc1 := citymap.LocationAtRoadStart(road)
	loc2 := citymap.NewLocationOnRoad(road, 10)
	// 10/3 rounds half away from zero to 3.
	require.Equal(t, int64(3), p.RoadForwardTravelTime(0, loc1, loc2))
}

func TestRoadTravelTimeWrappers(t *testing.T) {
	road := lineRoad(t, 1000, 10)
	p := constantPattern(0.5)

	mid := citymap.NewLocationOnRoad(road, 400)
	require.Equal(t, int64(120), p.RoadTravelTimeToEndIntersection(0, mid))
	require.Equal(t, int64(80), p.RoadTravelTimeFromStartIntersection(0, mid))
}
