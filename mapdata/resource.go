// Package mapdata loads the simulator's external inputs: the trip-record
// dataset, the bounding polygon, and a pre-digested road graph. It also map
// matches raw coordinates onto the road network and calibrates the traffic
// pattern from the recorded trips.
package mapdata

import "dispatchsim/citymap"

// TripRecord is one passenger trip from the dataset: a pickup and a dropoff
// with their recorded times in scaled units. The on-road locations are
// filled in by map matching.
type TripRecord struct {
	PickupLat  float64
	PickupLon  float64
	DropoffLat float64
	DropoffLon float64

	// Time is the pickup timestamp: the moment the resource is introduced.
	Time        int64
	DropoffTime int64

	PickupLocation  citymap.LocationOnRoad
	DropoffLocation citymap.LocationOnRoad
}
