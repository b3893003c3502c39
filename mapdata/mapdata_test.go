package mapdata_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dispatchsim/citymap"
	"dispatchsim/config"
	"dispatchsim/mapdata"
)

func squarePolygon() *mapdata.Polygon {
	return mapdata.NewPolygon(
		[]float64{-74.1, -73.9, -73.9, -74.1},
		[]float64{39.9, 39.9, 40.1, 40.1},
	)
}

func TestPolygonContains(t *testing.T) {
	polygon := squarePolygon()
	require.True(t, polygon.Contains(-74.0, 40.0))
	require.False(t, polygon.Contains(-74.5, 40.0))
	require.False(t, polygon.Contains(-74.0, 40.5))

	// A nil polygon accepts everything.
	var nilPolygon *mapdata.Polygon
	require.True(t, nilPolygon.Contains(0, 0))
}

func TestLoadBoundingPolygonKML(t *testing.T) {
	kml := `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <Polygon>
        <outerBoundaryIs>
          <LinearRing>
            <coordinates>
              -74.1,39.9,0 -73.9,39.9,0 -73.9,40.1,0 -74.1,40.1,0 -74.1,39.9,0
            </coordinates>
          </LinearRing>
        </outerBoundaryIs>
      </Polygon>
    </Placemark>
  </Document>
</kml>`
	path := filepath.Join(t.TempDir(), "bounds.kml")
	require.NoError(t, os.WriteFile(path, []byte(kml), 0o644))

	polygon, err := mapdata.LoadBoundingPolygonKML(path)
	require.NoError(t, err)
	require.True(t, polygon.Contains(-74.0, 40.0))
	require.False(t, polygon.Contains(-73.5, 40.0))
}

func TestParseTripCSV(t *testing.T) {
	csvData := `VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,trip_distance,pickup_longitude,pickup_latitude,RatecodeID,store_and_fwd_flag,dropoff_longitude,dropoff_latitude
2,2016-06-01 00:00:00,2016-06-01 00:10:00,1,2.5,-74.00,40.00,1,N,-73.95,40.05
2,2016-06-01 01:00:00,2016-06-01 01:05:00,1,1.0,-74.05,40.02,1,N,-74.02,40.03
2,2016-06-01 02:00:00,2016-06-01 02:08:00,1,0.0,-74.00,40.00,1,N,-74.00,40.00
2,2016-06-01 03:00:00,2016-06-01 03:09:00,1,3.0,-75.00,40.00,1,N,-73.95,40.05
2,bad-timestamp,2016-06-01 04:00:00,1,1.0,-74.00,40.00,1,N,-73.95,40.05
`
	path := filepath.Join(t.TempDir(), "trips.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvData), 0o644))

	zone := time.FixedZone("UTC-5", -5*3600)
	records, dropped, err := mapdata.ParseTripCSV(path, zone, config.TimeResolution, squarePolygon())
	require.NoError(t, err)

	// Degenerate, out-of-polygon, and malformed rows are dropped.
	require.Len(t, records, 2)
	require.Equal(t, 3, dropped)

	first := records[0]
	expected := time.Date(2016, time.June, 1, 0, 0, 0, 0, zone).Unix() * config.TimeResolution
	require.Equal(t, expected, first.Time)
	require.Equal(t, expected+600*config.TimeResolution, first.DropoffTime)
	require.Equal(t, -74.00, first.PickupLon)
	require.Equal(t, 40.05, first.DropoffLat)
}

func testMap(t *testing.T) *citymap.CityMap {
	t.Helper()
	nodes := []mapdata.GraphNode{
		{ID: 1, Lat: 40.00, Lon: -74.00},
		{ID: 2, Lat: 40.00, Lon: -73.99},
		{ID: 3, Lat: 40.01, Lon: -73.99},
	}
	roads := []mapdata.GraphRoad{
		{Nodes: []int64{1, 2}, Speed: 10},
		{Nodes: []int64{2, 1}, Speed: 10},
		{Nodes: []int64{2, 3}, Speed: 10},
		{Nodes: []int64{3, 2}, Speed: 10},
	}
	m, err := mapdata.BuildCityMap(nodes, roads)
	require.NoError(t, err)
	m.BuildPaths(2)
	return m
}

func TestBuildCityMapRejectsBadInput(t *testing.T) {
	_, err := mapdata.BuildCityMap(nil, nil)
	require.Error(t, err)

	nodes := []mapdata.GraphNode{{ID: 1, Lat: 40, Lon: -74}, {ID: 2, Lat: 40.01, Lon: -74}}

	_, err = mapdata.BuildCityMap(nodes, []mapdata.GraphRoad{{Nodes: []int64{1, 2}, Speed: 0}})
	require.ErrorContains(t, err, "non-positive speed")

	_, err = mapdata.BuildCityMap(nodes, []mapdata.GraphRoad{{Nodes: []int64{1, 99}, Speed: 10}})
	require.ErrorContains(t, err, "unknown node")
}

func TestMapMatchStaysOnRoad(t *testing.T) {
	m := testMap(t)
	mwd := mapdata.NewMapWithData(m, nil)

	points := []struct{ lon, lat float64 }{
		{-73.995, 40.0},    // midway along the 1-2 road
		{-74.00, 40.0},     // at node 1
		{-73.99, 40.005},   // along the 2-3 road
		{-73.9901, 40.002}, // slightly off the 2-3 road
	}
	for _, point := range points {
		loc, err := mwd.MapMatch(point.lon, point.lat)
		require.NoError(t, err)
		require.GreaterOrEqual(t, loc.DistanceFromStartIntersection, 0.0)
		require.LessOrEqual(t, loc.DistanceFromStartIntersection, loc.Road.Length)
	}
}

func TestMatchResourcesDerivesTimes(t *testing.T) {
	m := testMap(t)
	records := []*mapdata.TripRecord{
		{PickupLon: -74.00, PickupLat: 40.00, DropoffLon: -73.99, DropoffLat: 40.01, Time: 100 * config.TimeResolution, DropoffTime: 300 * config.TimeResolution},
		{PickupLon: -73.99, PickupLat: 40.00, DropoffLon: -74.00, DropoffLat: 40.00, Time: 50 * config.TimeResolution, DropoffTime: 200 * config.TimeResolution},
	}
	mwd := mapdata.NewMapWithData(m, records)

	maxLife := int64(600) * config.TimeResolution
	require.NoError(t, mwd.MatchResources(2, maxLife))

	require.Equal(t, int64(50)*config.TimeResolution, mwd.EarliestResourceTime)
	require.Greater(t, mwd.LatestResourceTime, maxLife)
	for _, record := range records {
		require.NotNil(t, record.PickupLocation.Road)
		require.NotNil(t, record.DropoffLocation.Road)
	}
}

func TestBuildSlidingTrafficPatternStatic(t *testing.T) {
	m := testMap(t)
	mwd := mapdata.NewMapWithData(m, []*mapdata.TripRecord{
		{Time: 0, DropoffTime: 100 * config.TimeResolution},
	})

	pattern := mwd.BuildSlidingTrafficPattern(300*config.TimeResolution, 60*config.TimeResolution, false)
	require.GreaterOrEqual(t, pattern.Len(), 1)
	require.Equal(t, 1.0, pattern.SpeedFactor(0))
	require.Equal(t, 1.0, pattern.SpeedFactor(1e12))
}

func TestBuildSlidingTrafficPatternDynamic(t *testing.T) {
	m := testMap(t)

	// One trip whose recorded duration is twice its static travel time:
	// the calibrated factor is 0.5.
	road := m.Roads[0]
	static := m.TravelTimeBetweenLocations(citymap.LocationAtRoadStart(road), citymap.LocationAtRoadEnd(road))
	record := &mapdata.TripRecord{
		Time:            0,
		DropoffTime:     2 * static,
		PickupLocation:  citymap.LocationAtRoadStart(road),
		DropoffLocation: citymap.LocationAtRoadEnd(road),
	}
	mwd := mapdata.NewMapWithData(m, []*mapdata.TripRecord{record})

	pattern := mwd.BuildSlidingTrafficPattern(4*static, static, true)
	require.InDelta(t, 0.5, pattern.SpeedFactor(0), 1e-9)
}

func TestBuildSlidingTrafficPatternEmpty(t *testing.T) {
	m := testMap(t)
	mwd := mapdata.NewMapWithData(m, nil)
	pattern := mwd.BuildSlidingTrafficPattern(300, 60, true)
	require.Equal(t, 1.0, pattern.SpeedFactor(0))
}
