package citymap

import (
	"fmt"
	"math"
)

// LocationOnRoad is a point on a road expressed as a distance in meters from
// the road's start intersection. Values are immutable; helpers return new
// locations.
type LocationOnRoad struct {
	Road                          *Road
	DistanceFromStartIntersection float64
}

// NewLocationOnRoad builds a location at the given distance from the road's
// start intersection. The distance must be within [0, road length].
func NewLocationOnRoad(road *Road, distance float64) LocationOnRoad {
	return LocationOnRoad{Road: road, DistanceFromStartIntersection: distance}
}

// LocationAtRoadStart returns the location at the road's start intersection.
func LocationAtRoadStart(road *Road) LocationOnRoad {
	return LocationOnRoad{Road: road, DistanceFromStartIntersection: 0}
}

// LocationAtRoadEnd returns the location at the road's end intersection.
func LocationAtRoadEnd(road *Road) LocationOnRoad {
	return LocationOnRoad{Road: road, DistanceFromStartIntersection: road.Length}
}

// Displaced returns the location shifted forward by displacement meters on
// the same road.
func (l LocationOnRoad) Displaced(displacement float64) LocationOnRoad {
	return LocationOnRoad{
		Road:                          l.Road,
		DistanceFromStartIntersection: l.DistanceFromStartIntersection + displacement,
	}
}

// UpstreamTo reports whether the destination lies at or beyond this location
// in travel direction. Both locations must be on the same road.
func (l LocationOnRoad) UpstreamTo(destination LocationOnRoad) bool {
	return l.DisplacementOnRoad(destination) >= 0
}

// DisplacementOnRoad returns the signed distance in meters from this location
// to the destination on the same road.
func (l LocationOnRoad) DisplacementOnRoad(destination LocationOnRoad) float64 {
	return destination.DistanceFromStartIntersection - l.DistanceFromStartIntersection
}

// SameRoad reports whether both locations lie on the same road.
func (l LocationOnRoad) SameRoad(other LocationOnRoad) bool {
	return l.Road.ID == other.Road.ID
}

// StaticTravelTimeOnRoad returns the scaled travel time from the road start
// to this location at the road's average speed.
func (l LocationOnRoad) StaticTravelTimeOnRoad() int64 {
	return int64(math.Round(l.DistanceFromStartIntersection / l.Road.Speed))
}

// AtEndIntersection reports whether the location is at the end of the road.
func (l LocationOnRoad) AtEndIntersection() bool {
	return l.DistanceFromStartIntersection == l.Road.Length
}

// ReplaceRoad returns the same on-road position expressed against another
// road instance (the fleet-manager-side copy of the same road).
func (l LocationOnRoad) ReplaceRoad(road *Road) LocationOnRoad {
	return LocationOnRoad{Road: road, DistanceFromStartIntersection: l.DistanceFromStartIntersection}
}

func (l LocationOnRoad) String() string {
	return fmt.Sprintf("(road: %d, distance_from_start_intersection: %v)", l.Road.ID, l.DistanceFromStartIntersection)
}
