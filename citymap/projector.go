package citymap

import "math"

const earthRadiusMeters = 6370000.0

// Point2D is a projected map coordinate in meters.
type Point2D struct {
	X float64
	Y float64
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(q Point2D) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// GeoProjector projects a lat,lon location to a point in 2D space. Suitable
// for a small geographic area (e.g. a city) which can be considered flat.
type GeoProjector struct {
	RefLat float64
	RefLon float64

	metersPerLatDegree float64
	metersPerLonDegree float64
}

// NewGeoProjector builds a projector around a reference location, which can
// be any location in the considered geographic area.
func NewGeoProjector(refLat, refLon float64) *GeoProjector {
	return &GeoProjector{
		RefLat:             refLat,
		RefLon:             refLon,
		metersPerLatDegree: GreatCircleDistance(refLat, refLon, refLat+1.0, refLon),
		metersPerLonDegree: GreatCircleDistance(refLat, refLon, refLat, refLon+1.0),
	}
}

// FromLatLon projects a lat,lon location to 2D space in meters.
func (g *GeoProjector) FromLatLon(lat, lon float64) Point2D {
	return Point2D{
		X: (lon - g.RefLon) * g.metersPerLonDegree,
		Y: (lat - g.RefLat) * g.metersPerLatDegree,
	}
}

// ToLatLon projects a 2D point back to geographic coordinates.
func (g *GeoProjector) ToLatLon(p Point2D) (lat, lon float64) {
	lon = g.RefLon + p.X/g.metersPerLonDegree
	lat = g.RefLat + p.Y/g.metersPerLatDegree
	return lat, lon
}

// GreatCircleDistance returns the distance in meters between two locations
// on earth modeled as a sphere.
func GreatCircleDistance(lat1, lon1, lat2, lon2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLon1 := lon1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180
	radLon2 := lon2 * math.Pi / 180

	q := math.Cos(radLat1)*math.Cos(radLon1)*math.Cos(radLat2)*math.Cos(radLon2) +
		math.Cos(radLat1)*math.Sin(radLon1)*math.Cos(radLat2)*math.Sin(radLon2) +
		math.Sin(radLat1)*math.Sin(radLat2)
	if q > 1.0 {
		q = 1.0
	} else if q < -1.0 {
		q = -1.0
	}
	return math.Acos(q) * earthRadiusMeters
}
