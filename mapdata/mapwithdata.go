package mapdata

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"dispatchsim/citymap"
	"dispatchsim/traffic"
)

// Speed factor assumed for calibration windows with no usable trip data.
const defaultSpeedFactor = 0.3

// MapWithData pairs a built city map with the trip records to run against
// it: it map matches every record onto the road network and calibrates the
// traffic pattern from the recorded trip durations.
type MapWithData struct {
	Map     *citymap.CityMap
	Records []*TripRecord

	EarliestResourceTime int64
	LatestResourceTime   int64
}

// NewMapWithData wraps a map and its parsed trip records.
func NewMapWithData(m *citymap.CityMap, records []*TripRecord) *MapWithData {
	return &MapWithData{Map: m, Records: records, EarliestResourceTime: math.MaxInt64, LatestResourceTime: -1}
}

// MapMatch snaps a raw lon/lat onto the nearest road: project, find the
// nearest link, orthogonally project onto the link segment clamped to its
// endpoints, then express the snapped point as a distance from the road
// start. The matched link contributes the distance from the snapped point to
// its to-vertex; preceding links contribute their full length.
func (mwd *MapWithData) MapMatch(longitude, latitude float64) (citymap.LocationOnRoad, error) {
	link := mwd.Map.NearestLink(longitude, latitude)
	if link == nil {
		return citymap.LocationOnRoad{}, fmt.Errorf("map match: no links indexed")
	}
	p := mwd.Map.Projector().FromLatLon(latitude, longitude)
	snapped := snapToSegment(link.From.XY, link.To.XY, p)

	distanceFromStart := 0.0
	for _, roadLink := range link.Road.Links {
		if roadLink.ID == link.ID {
			distanceFromStart += snapped.Distance(link.To.XY)
			break
		}
		distanceFromStart += roadLink.Length
	}
	if distanceFromStart > link.Road.Length {
		distanceFromStart = link.Road.Length
	}
	return citymap.NewLocationOnRoad(link.Road, distanceFromStart), nil
}

// MatchResources map matches every record's pickup and dropoff, in parallel
// over a fixed worker pool, and derives the earliest and latest resource
// times. maxLifeTime extends each record's latest time by the expiration
// window plus the static trip time.
func (mwd *MapWithData) MatchResources(workers int, maxLifeTime int64) error {
	if workers <= 0 {
		workers = 4
	}
	if workers > len(mwd.Records) {
		workers = len(mwd.Records)
	}
	if len(mwd.Records) == 0 {
		return fmt.Errorf("map match: no trip records")
	}

	var wg sync.WaitGroup
	indexes := make(chan int)
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var failed bool
			for i := range indexes {
				if failed {
					continue
				}
				record := mwd.Records[i]
				pickup, err := mwd.MapMatch(record.PickupLon, record.PickupLat)
				if err != nil {
					errs <- err
					failed = true
					continue
				}
				dropoff, err := mwd.MapMatch(record.DropoffLon, record.DropoffLat)
				if err != nil {
					errs <- err
					failed = true
					continue
				}
				record.PickupLocation = pickup
				record.DropoffLocation = dropoff
			}
		}()
	}
	for i := range mwd.Records {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return err
	}

	for _, record := range mwd.Records {
		if record.Time < mwd.EarliestResourceTime {
			mwd.EarliestResourceTime = record.Time
		}
		staticTripTime := mwd.Map.TravelTimeBetweenLocations(record.PickupLocation, record.DropoffLocation)
		if latest := record.Time + maxLifeTime + staticTripTime; latest > mwd.LatestResourceTime {
			mwd.LatestResourceTime = latest
		}
	}
	return nil
}

// BuildSlidingTrafficPattern calibrates the time-of-day speed factors from
// the trip records. For every step, the factor is the ratio of the total
// static travel time to the total recorded travel time over the trips whose
// pickup and dropoff both fall inside the epoch window starting at that
// step, capped at 1. Windows without usable trips carry the last known
// factor. With dynamicTraffic disabled every step gets factor 1.
func (mwd *MapWithData) BuildSlidingTrafficPattern(epoch, step int64, dynamicTraffic bool) *traffic.Pattern {
	pattern := traffic.NewPattern(step)

	records := make([]*TripRecord, len(mwd.Records))
	copy(records, mwd.Records)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time < records[j].Time })

	n := len(records)
	if n == 0 {
		pattern.Append(0, 1.0)
		return pattern
	}

	epochBeginTime := records[0].Time
	beginResourceIndex := 0
	lastKnownSpeedFactor := defaultSpeedFactor

	for {
		var epochRecords []*TripRecord
		epochEndTime := epochBeginTime + epoch
		resourceIndex := beginResourceIndex

		for resourceIndex < n && records[resourceIndex].Time < epochEndTime {
			if records[resourceIndex].DropoffTime < epochEndTime {
				epochRecords = append(epochRecords, records[resourceIndex])
			}
			resourceIndex++
		}

		speedFactor := 1.0
		if dynamicTraffic {
			if factor := mwd.speedFactor(epochRecords); factor > 0 {
				speedFactor = math.Min(factor, 1.0)
				lastKnownSpeedFactor = speedFactor
			} else {
				speedFactor = lastKnownSpeedFactor
			}
		}
		pattern.Append(epochBeginTime, speedFactor)

		epochBeginTime += step
		for beginResourceIndex < n && records[beginResourceIndex].Time < epochBeginTime {
			beginResourceIndex++
		}
		if resourceIndex >= n {
			break
		}
	}
	return pattern
}

// speedFactor compares recorded travel times against static shortest travel
// times; a negative return means no usable data.
func (mwd *MapWithData) speedFactor(records []*TripRecord) float64 {
	if len(records) == 0 {
		return -1
	}
	var totalActual, totalSimulated int64
	for _, record := range records {
		totalActual += record.DropoffTime - record.Time
		totalSimulated += mwd.Map.TravelTimeBetweenLocations(record.PickupLocation, record.DropoffLocation)
	}
	if totalActual == 0 {
		return -1
	}
	return float64(totalSimulated) / float64(totalActual)
}

// snapToSegment orthogonally projects p onto the segment a-b, clamped to the
// segment's endpoints.
func snapToSegment(a, b, p citymap.Point2D) citymap.Point2D {
	lengthSq := (a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y)
	if lengthSq == 0 {
		return a
	}
	t := ((p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)) / lengthSq
	switch {
	case t < 0:
		return a
	case t > 1:
		return b
	default:
		return citymap.Point2D{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
	}
}
