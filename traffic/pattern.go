// Package traffic models how travel speeds change over the time of a day as
// a piecewise-constant speed-factor multiplier applied to every road's
// static speed.
package traffic

import (
	"fmt"
	"math"

	"dispatchsim/citymap"
)

// PatternItem is one epoch of the pattern: from EpochBeginTime (scaled
// units) the given factor applies for one step.
type PatternItem struct {
	EpochBeginTime int64
	SpeedFactor    float64
}

func (i PatternItem) String() string {
	return fmt.Sprintf("%d,%v", i.EpochBeginTime, i.SpeedFactor)
}

// Pattern is a sequence of equally spaced speed-factor items. Items must be
// appended in non-decreasing time order. Before the first epoch the first
// factor applies; at or after the last epoch the last factor applies.
type Pattern struct {
	Step  int64
	items []PatternItem

	firstEpochBeginTime int64
	lastEpochBeginTime  int64
	firstSpeedFactor    float64
	lastSpeedFactor     float64
}

// NewPattern returns an empty pattern with the given step in scaled units.
func NewPattern(step int64) *Pattern {
	return &Pattern{Step: step}
}

// Append adds one item to the pattern.
func (p *Pattern) Append(epochBeginTime int64, speedFactor float64) {
	p.items = append(p.items, PatternItem{EpochBeginTime: epochBeginTime, SpeedFactor: speedFactor})
	if len(p.items) == 1 {
		p.firstEpochBeginTime = epochBeginTime
		p.firstSpeedFactor = speedFactor
	}
	p.lastEpochBeginTime = epochBeginTime
	p.lastSpeedFactor = speedFactor
}

// Len returns the number of items in the pattern.
func (p *Pattern) Len() int {
	return len(p.items)
}

// SpeedFactor returns the factor in effect at the given time. An empty
// pattern behaves as a constant factor of 1.
func (p *Pattern) SpeedFactor(t int64) float64 {
	if len(p.items) == 0 {
		return 1
	}
	if t < p.firstEpochBeginTime {
		return p.firstSpeedFactor
	}
	if t >= p.lastEpochBeginTime {
		return p.lastSpeedFactor
	}
	index := (t - p.firstEpochBeginTime) / p.Step
	return p.items[index].SpeedFactor
}

// DynamicForwardTravelTime computes the time to travel the given distance at
// the given unadjusted speed starting at time t, walking forward through the
// pattern's epochs. Outside the pattern's range the boundary factors
// extrapolate.
func (p *Pattern) DynamicForwardTravelTime(t, unadjustedSpeed, distance float64) float64 {
	if len(p.items) == 0 {
		return distance / unadjustedSpeed
	}
	if t >= float64(p.lastEpochBeginTime) {
		return distance / (unadjustedSpeed * p.lastSpeedFactor)
	}
	if t < float64(p.firstEpochBeginTime) {
		return distance / (unadjustedSpeed * p.firstSpeedFactor)
	}

	totalDistance := 0.0
	totalTime := 0.0
	currentTime := t

	for totalDistance < distance {
		index := int((currentTime - float64(p.firstEpochBeginTime)) / float64(p.Step))
		if index >= len(p.items) {
			remaining := distance - totalDistance
			totalTime += remaining / (unadjustedSpeed * p.lastSpeedFactor)
			break
		}

		adjustedSpeed := unadjustedSpeed * p.items[index].SpeedFactor
		windowEnd := float64(p.items[index].EpochBeginTime + p.Step)
		remainingDistance := distance - totalDistance
		timeInWindow := windowEnd - currentTime
		distanceInWindow := adjustedSpeed * timeInWindow

		if distanceInWindow >= remainingDistance {
			totalTime += remainingDistance / adjustedSpeed
			break
		}
		totalDistance += distanceInWindow
		totalTime += timeInWindow
		currentTime = windowEnd
	}
	return totalTime
}

// DynamicTravelDistance computes the distance covered during travelTime at
// the given unadjusted speed starting at time t, capped at maxDistance. It
// returns the distance and the time actually spent; if the cap fires first
// the time spent is less than travelTime.
func (p *Pattern) DynamicTravelDistance(t, unadjustedSpeed, travelTime, maxDistance float64) (distance, elapsed float64) {
	if len(p.items) == 0 {
		distance = math.Min(travelTime*unadjustedSpeed, maxDistance)
		return distance, distance / unadjustedSpeed
	}
	if t >= float64(p.lastEpochBeginTime) {
		adjustedSpeed := unadjustedSpeed * p.lastSpeedFactor
		distance = math.Min(travelTime*adjustedSpeed, maxDistance)
		return distance, distance / adjustedSpeed
	}
	if t < float64(p.firstEpochBeginTime) {
		adjustedSpeed := unadjustedSpeed * p.firstSpeedFactor
		distance = math.Min(travelTime*adjustedSpeed, maxDistance)
		return distance, distance / adjustedSpeed
	}

	totalDistance := 0.0
	totalTime := 0.0
	currentTime := t

	for totalTime < travelTime && totalDistance < maxDistance {
		index := int((currentTime - float64(p.firstEpochBeginTime)) / float64(p.Step))
		var factor float64
		var windowEnd float64
		if index >= len(p.items) {
			factor = p.lastSpeedFactor
			windowEnd = math.Inf(1)
		} else {
			factor = p.items[index].SpeedFactor
			windowEnd = float64(p.items[index].EpochBeginTime + p.Step)
		}
		adjustedSpeed := unadjustedSpeed * factor

		remainingTime := travelTime - totalTime
		timeToUse := math.Min(windowEnd-currentTime, remainingTime)
		distanceInWindow := adjustedSpeed * timeToUse

		if totalDistance+distanceInWindow > maxDistance {
			remainingDistance := maxDistance - totalDistance
			totalTime += remainingDistance / adjustedSpeed
			totalDistance = maxDistance
			break
		}
		totalDistance += distanceInWindow
		totalTime += timeToUse
		currentTime += timeToUse
	}
	return totalDistance, totalTime
}

// RoadForwardTravelTime returns the scaled time to travel from loc1 forward
// to loc2 on the same road starting at time t. loc1 must be upstream to
// loc2.
func (p *Pattern) RoadForwardTravelTime(t int64, loc1, loc2 citymap.LocationOnRoad) int64 {
	return int64(math.Round(p.roadForwardTravelTime(float64(t), loc1, loc2)))
}

func (p *Pattern) roadForwardTravelTime(t float64, loc1, loc2 citymap.LocationOnRoad) float64 {
	return p.DynamicForwardTravelTime(t, loc1.Road.Speed, loc1.DisplacementOnRoad(loc2))
}

// RoadTravelTimeToEndIntersection returns the scaled time to travel from loc
// to the end of its road starting at time t.
func (p *Pattern) RoadTravelTimeToEndIntersection(t int64, loc citymap.LocationOnRoad) int64 {
	return int64(math.Round(p.roadForwardTravelTime(float64(t), loc, citymap.LocationAtRoadEnd(loc.Road))))
}

// RoadTravelTimeFromStartIntersection returns the scaled time to travel from
// the start of the road to loc starting at time t.
func (p *Pattern) RoadTravelTimeFromStartIntersection(t int64, loc citymap.LocationOnRoad) int64 {
	return int64(math.Round(p.roadForwardTravelTime(float64(t), citymap.LocationAtRoadStart(loc.Road), loc)))
}

// TravelRoadForTime returns the location reached when traveling along the
// road from loc for travelTime starting at time t. If the road ends first
// the end-of-road location is returned.
func (p *Pattern) TravelRoadForTime(t int64, loc citymap.LocationOnRoad, travelTime int64) citymap.LocationOnRoad {
	maxDistance := loc.Road.Length - loc.DistanceFromStartIntersection
	distance, elapsed := p.DynamicTravelDistance(float64(t), loc.Road.Speed, float64(travelTime), maxDistance)
	if elapsed < float64(travelTime) {
		return citymap.LocationAtRoadEnd(loc.Road)
	}
	return loc.Displaced(distance)
}
