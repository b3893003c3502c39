package fleet

import (
	"math"
	"sort"

	"dispatchsim/citymap"
	"dispatchsim/simulation"
)

// GreedyNearestFleetManager always assigns a new resource to the available
// agent with the earliest expected arrival, regardless of whether the agent
// can beat the resource's expiration. Freed agents are immediately re-tasked
// to the closest waiting resource; empty agents cruise toward the nearest
// waiting pickup.
type GreedyNearestFleetManager struct {
	simulation.FleetManagerBase

	agentLastAppearTime map[int64]int64
	agentLastLocation   map[int64]citymap.LocationOnRoad

	resourceAssignment map[int64]*simulation.Resource
	waitingResources   map[int64]simulation.Resource
	availableAgents    map[int64]struct{}
}

// NewGreedyNearestFleetManager builds the policy over the agent-side map
// copy.
func NewGreedyNearestFleetManager(m *citymap.CityMap) simulation.FleetManager {
	return &GreedyNearestFleetManager{
		FleetManagerBase:    simulation.FleetManagerBase{Map: m},
		agentLastAppearTime: make(map[int64]int64),
		agentLastLocation:   make(map[int64]citymap.LocationOnRoad),
		resourceAssignment:  make(map[int64]*simulation.Resource),
		waitingResources:    make(map[int64]simulation.Resource),
		availableAgents:     make(map[int64]struct{}),
	}
}

// OnAgentIntroduced implements simulation.FleetManager.
func (f *GreedyNearestFleetManager) OnAgentIntroduced(agentID int64, currentLoc citymap.LocationOnRoad, time int64) {
	f.agentLastAppearTime[agentID] = time
	f.agentLastLocation[agentID] = currentLoc
	f.availableAgents[agentID] = struct{}{}
}

// OnResourceAvailabilityChange implements simulation.FleetManager.
func (f *GreedyNearestFleetManager) OnResourceAvailabilityChange(resource simulation.Resource, state simulation.ResourceState, currentLoc citymap.LocationOnRoad, time int64) simulation.AgentAction {
	switch state {
	case simulation.ResourceAvailable:
		if agentID, ok := f.nearestAvailableAgent(resource, time); ok {
			f.assign(agentID, resource)
			return simulation.AssignAction(agentID, resource.ID)
		}
		f.waitingResources[resource.ID] = resource
		return simulation.NothingAction()

	case simulation.ResourceDroppedOff:
		agentID := resource.AssignedAgentID
		f.agentLastLocation[agentID] = currentLoc
		f.agentLastAppearTime[agentID] = time
		delete(f.resourceAssignment, agentID)
		f.availableAgents[agentID] = struct{}{}
		return f.taskAgentToWaiting(agentID, currentLoc, time)

	case simulation.ResourceExpired:
		delete(f.waitingResources, resource.ID)
		agentID := resource.AssignedAgentID
		if agentID == -1 {
			return simulation.NothingAction()
		}
		delete(f.resourceAssignment, agentID)
		f.availableAgents[agentID] = struct{}{}
		loc := f.CurrentLocation(f.agentLastAppearTime[agentID], f.agentLastLocation[agentID], time)
		return f.taskAgentToWaiting(agentID, loc, time)

	case simulation.ResourcePickedUp:
		return simulation.NothingAction()

	default:
		return simulation.NothingAction()
	}
}

// OnReachIntersection implements simulation.FleetManager.
func (f *GreedyNearestFleetManager) OnReachIntersection(agentID int64, time int64, currentLoc citymap.LocationOnRoad) *citymap.Intersection {
	f.agentLastAppearTime[agentID] = time

	var target *citymap.Intersection
	if assigned, ok := f.resourceAssignment[agentID]; ok && assigned != nil {
		target = assigned.PickupLoc.Road.From
	} else if res, ok := f.nearestWaiting(currentLoc, time); ok {
		target = res.PickupLoc.Road.From
	}

	next := f.stepToward(currentLoc.Road.To, target)
	if next != nil {
		if road, err := currentLoc.Road.To.RoadTo(next); err == nil {
			f.agentLastLocation[agentID] = citymap.LocationAtRoadStart(road)
		}
	}
	return next
}

// OnReachIntersectionWithResource implements simulation.FleetManager.
func (f *GreedyNearestFleetManager) OnReachIntersectionWithResource(agentID int64, time int64, currentLoc citymap.LocationOnRoad, resource simulation.Resource) *citymap.Intersection {
	f.agentLastAppearTime[agentID] = time

	next := f.stepToward(currentLoc.Road.To, resource.DropoffLoc.Road.From)
	if next != nil {
		if road, err := currentLoc.Road.To.RoadTo(next); err == nil {
			f.agentLastLocation[agentID] = citymap.LocationAtRoadStart(road)
		}
	}
	return next
}

func (f *GreedyNearestFleetManager) assign(agentID int64, resource simulation.Resource) {
	assigned := resource
	f.resourceAssignment[agentID] = &assigned
	delete(f.availableAgents, agentID)
}

// taskAgentToWaiting assigns the agent to the waiting resource with the
// earliest expected arrival, if any.
func (f *GreedyNearestFleetManager) taskAgentToWaiting(agentID int64, loc citymap.LocationOnRoad, time int64) simulation.AgentAction {
	res, ok := f.nearestWaiting(loc, time)
	if !ok {
		return simulation.NothingAction()
	}
	delete(f.waitingResources, res.ID)
	f.assign(agentID, res)
	return simulation.AssignAction(agentID, res.ID)
}

func (f *GreedyNearestFleetManager) nearestAvailableAgent(resource simulation.Resource, currentTime int64) (int64, bool) {
	earliestArrival := int64(math.MaxInt64)
	var bestAgent int64
	found := false

	ids := make([]int64, 0, len(f.availableAgents))
	for id := range f.availableAgents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, agentID := range ids {
		lastLoc, ok := f.agentLastLocation[agentID]
		if !ok {
			continue
		}
		curLoc := f.CurrentLocation(f.agentLastAppearTime[agentID], lastLoc, currentTime)
		arriveTime := currentTime + f.Map.TravelTimeBetweenLocations(curLoc, resource.PickupLoc)
		if arriveTime < earliestArrival {
			earliestArrival = arriveTime
			bestAgent = agentID
			found = true
		}
	}
	return bestAgent, found
}

func (f *GreedyNearestFleetManager) nearestWaiting(loc citymap.LocationOnRoad, time int64) (simulation.Resource, bool) {
	earliestArrival := int64(math.MaxInt64)
	var best simulation.Resource
	found := false

	ids := make([]int64, 0, len(f.waitingResources))
	for id := range f.waitingResources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, resID := range ids {
		res := f.waitingResources[resID]
		arriveTime := time + f.Map.TravelTimeBetweenLocations(loc, res.PickupLoc)
		if arriveTime < earliestArrival {
			earliestArrival = arriveTime
			best = res
			found = true
		}
	}
	return best, found
}

// stepToward returns the next intersection on the shortest path from source
// to target, falling back to the smallest-id neighbor when there is no
// target or no path.
func (f *GreedyNearestFleetManager) stepToward(source, target *citymap.Intersection) *citymap.Intersection {
	if target != nil && target.ID != source.ID {
		if path, err := f.Map.ShortestTravelTimePath(source, target); err == nil && len(path) > 1 {
			return path[1]
		}
	}
	roads := sortedRoads(source)
	if len(roads) == 0 {
		return nil
	}
	return roads[0].To
}
