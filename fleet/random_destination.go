package fleet

import (
	"math"
	"math/rand"
	"sort"

	"dispatchsim/citymap"
	"dispatchsim/simulation"
)

// RandomDestinationFleetManager assigns each newly available resource to the
// available agent with the earliest expected arrival, and cruises empty
// agents along shortest paths to uniformly random destinations.
type RandomDestinationFleetManager struct {
	simulation.FleetManagerBase

	agentLastAppearTime map[int64]int64
	agentLastLocation   map[int64]citymap.LocationOnRoad

	// resourceAssignment maps an agent to the resource it is serving.
	resourceAssignment map[int64]*simulation.Resource

	waitingResources map[int64]simulation.Resource
	availableAgents  map[int64]struct{}

	agentRnd    map[int64]*rand.Rand
	agentRoutes map[int64][]*citymap.Intersection

	sortedIntersectionIDs []int64
}

// NewRandomDestinationFleetManager builds the policy over the agent-side map
// copy.
func NewRandomDestinationFleetManager(m *citymap.CityMap) simulation.FleetManager {
	ids := make([]int64, 0, len(m.Intersections))
	for id := range m.Intersections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &RandomDestinationFleetManager{
		FleetManagerBase:      simulation.FleetManagerBase{Map: m},
		agentLastAppearTime:   make(map[int64]int64),
		agentLastLocation:     make(map[int64]citymap.LocationOnRoad),
		resourceAssignment:    make(map[int64]*simulation.Resource),
		waitingResources:      make(map[int64]simulation.Resource),
		availableAgents:       make(map[int64]struct{}),
		agentRnd:              make(map[int64]*rand.Rand),
		agentRoutes:           make(map[int64][]*citymap.Intersection),
		sortedIntersectionIDs: ids,
	}
}

// OnAgentIntroduced implements simulation.FleetManager.
func (f *RandomDestinationFleetManager) OnAgentIntroduced(agentID int64, currentLoc citymap.LocationOnRoad, time int64) {
	f.agentLastAppearTime[agentID] = time
	f.agentLastLocation[agentID] = currentLoc
	f.availableAgents[agentID] = struct{}{}
}

// OnResourceAvailabilityChange implements simulation.FleetManager.
func (f *RandomDestinationFleetManager) OnResourceAvailabilityChange(resource simulation.Resource, state simulation.ResourceState, currentLoc citymap.LocationOnRoad, time int64) simulation.AgentAction {
	switch state {
	case simulation.ResourceAvailable:
		if agentID, ok := f.nearestAvailableAgent(resource, time); ok {
			assigned := resource
			f.resourceAssignment[agentID] = &assigned
			f.agentRoutes[agentID] = nil
			delete(f.availableAgents, agentID)
			return simulation.AssignAction(agentID, resource.ID)
		}
		f.waitingResources[resource.ID] = resource
		return simulation.NothingAction()

	case simulation.ResourceDroppedOff:
		agentID := resource.AssignedAgentID
		f.agentLastLocation[agentID] = currentLoc
		f.agentLastAppearTime[agentID] = time

		if best, ok := f.earliestReachableWaiting(currentLoc, time); ok {
			delete(f.waitingResources, best.ID)
			assigned := best
			f.resourceAssignment[agentID] = &assigned
			return simulation.AssignAction(agentID, best.ID)
		}
		delete(f.resourceAssignment, agentID)
		f.availableAgents[agentID] = struct{}{}
		return simulation.NothingAction()

	case simulation.ResourceExpired:
		delete(f.waitingResources, resource.ID)
		if resource.AssignedAgentID != -1 {
			f.agentRoutes[resource.AssignedAgentID] = nil
			f.availableAgents[resource.AssignedAgentID] = struct{}{}
			delete(f.resourceAssignment, resource.AssignedAgentID)
		}
		return simulation.NothingAction()

	case simulation.ResourcePickedUp:
		f.agentRoutes[resource.AssignedAgentID] = nil
		return simulation.NothingAction()

	default:
		return simulation.NothingAction()
	}
}

// OnReachIntersection implements simulation.FleetManager.
func (f *RandomDestinationFleetManager) OnReachIntersection(agentID int64, time int64, currentLoc citymap.LocationOnRoad) *citymap.Intersection {
	f.agentLastAppearTime[agentID] = time

	route := f.agentRoutes[agentID]
	if len(route) == 0 {
		route = f.planRoute(agentID, currentLoc)
	}
	if len(route) == 0 {
		return nil
	}
	next := route[0]
	f.agentRoutes[agentID] = route[1:]

	if road, err := currentLoc.Road.To.RoadTo(next); err == nil {
		f.agentLastLocation[agentID] = citymap.LocationAtRoadStart(road)
	}
	return next
}

// OnReachIntersectionWithResource implements simulation.FleetManager.
func (f *RandomDestinationFleetManager) OnReachIntersectionWithResource(agentID int64, time int64, currentLoc citymap.LocationOnRoad, resource simulation.Resource) *citymap.Intersection {
	f.agentLastAppearTime[agentID] = time

	route := f.agentRoutes[agentID]
	if len(route) == 0 {
		route = f.planRouteToTarget(resource.PickupLoc, resource.DropoffLoc)
	}
	if len(route) == 0 {
		return nil
	}
	next := route[0]
	f.agentRoutes[agentID] = route[1:]

	if road, err := currentLoc.Road.To.RoadTo(next); err == nil {
		f.agentLastLocation[agentID] = citymap.LocationAtRoadStart(road)
	}
	return next
}

// nearestAvailableAgent returns the available agent with the earliest
// expected arrival at the resource's pickup, if any arrives before the
// resource expires.
func (f *RandomDestinationFleetManager) nearestAvailableAgent(resource simulation.Resource, currentTime int64) (int64, bool) {
	earliestArrival := int64(math.MaxInt64)
	var bestAgent int64
	found := false

	for _, agentID := range sortedKeys(f.availableAgents) {
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
	if !found || earliestArrival > resource.ExpirationTime {
		return 0, false
	}
	return bestAgent, true
}

// earliestReachableWaiting scans the waiting resources for the one the agent
// can reach soonest before its expiration.
func (f *RandomDestinationFleetManager) earliestReachableWaiting(currentLoc citymap.LocationOnRoad, time int64) (simulation.Resource, bool) {
	earliestArrival := int64(math.MaxInt64)
	var best simulation.Resource
	found := false

	for _, resID := range sortedKeysResources(f.waitingResources) {
		res := f.waitingResources[resID]
		arriveTime := time + f.Map.TravelTimeBetweenLocations(currentLoc, res.PickupLoc)
		if arriveTime <= res.ExpirationTime && arriveTime < earliestArrival {
			earliestArrival = arriveTime
			best = res
			found = true
		}
	}
	return best, found
}

func (f *RandomDestinationFleetManager) planRoute(agentID int64, currentLocation citymap.LocationOnRoad) []*citymap.Intersection {
	if assigned, ok := f.resourceAssignment[agentID]; ok && assigned != nil {
		source := currentLocation.Road.To
		dest := assigned.PickupLoc.Road.From
		path, err := f.Map.ShortestTravelTimePath(source, dest)
		if err != nil || len(path) == 0 {
			return nil
		}
		return path[1:]
	}
	return f.randomRoute(agentID, currentLocation)
}

func (f *RandomDestinationFleetManager) planRouteToTarget(sourceLoc, destLoc citymap.LocationOnRoad) []*citymap.Intersection {
	path, err := f.Map.ShortestTravelTimePath(sourceLoc.Road.To, destLoc.Road.From)
	if err != nil || len(path) == 0 {
		return nil
	}
	return path[1:]
}

// randomRoute plans a shortest path to a uniformly random intersection. The
// per-agent generator is seeded with the agent id so cruising is
// reproducible.
func (f *RandomDestinationFleetManager) randomRoute(agentID int64, currentLocation citymap.LocationOnRoad) []*citymap.Intersection {
	rnd, ok := f.agentRnd[agentID]
	if !ok {
		rnd = rand.New(rand.NewSource(agentID))
		f.agentRnd[agentID] = rnd
	}

	source := currentLocation.Road.To
	dest := f.Map.Intersections[f.sortedIntersectionIDs[rnd.Intn(len(f.sortedIntersectionIDs))]]

	if dest.ID == source.ID {
		roads := sortedRoads(source)
		if len(roads) == 0 {
			return nil
		}
		dest = roads[0].To
	}

	path, err := f.Map.ShortestTravelTimePath(source, dest)
	if err != nil || len(path) == 0 {
		return nil
	}
	return path[1:]
}

func sortedKeys(set map[int64]struct{}) []int64 {
	keys := make([]int64, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedKeysResources(m map[int64]simulation.Resource) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedRoads(i *citymap.Intersection) []*citymap.Road {
	roads := i.RoadsFromSlice()
	sort.Slice(roads, func(a, b int) bool { return roads[a].ID < roads[b].ID })
	return roads
}
