package simulation

import (
	"dispatchsim/citymap"
)

// AgentState is the state of the agent state machine.
type AgentState int

const (
	AgentInitial AgentState = iota + 1
	AgentIntersectionReached
	AgentPickingUp
	AgentDroppingOff
)

// AgentEvent represents a moment an agent is going to perform an action:
// reaching an intersection, picking up a resource, or dropping one off.
//
// While searching, the event re-triggers at every intersection the agent
// reaches, asking the fleet manager for the next move. Once assigned, the
// event is rescheduled for the pickup location, then for the dropoff
// location, and the cycle starts again.
type AgentEvent struct {
	baseEvent

	sim *Simulator

	loc      citymap.LocationOnRoad
	isPickup bool
	state    AgentState

	startSearchTime  int64
	assignedResource *ResourceEvent
	assignTime       int64
	assignLocation   citymap.LocationOnRoad

	// Last-known snapshot used to interpolate the agent's position between
	// events.
	lastAppearTime     int64
	lastAppearLocation citymap.LocationOnRoad
}

func (e *AgentEvent) priority() int { return agentPriority }

// Loc returns the agent's location at its next trigger.
func (e *AgentEvent) Loc() citymap.LocationOnRoad { return e.loc }

// State returns the agent's state machine state.
func (e *AgentEvent) State() AgentState { return e.state }

// HasResPickup reports whether the agent is currently carrying a resource.
func (e *AgentEvent) HasResPickup() bool { return e.isPickup }

// StartSearchTime returns when the agent last entered search.
func (e *AgentEvent) StartSearchTime() int64 { return e.startSearchTime }

func (e *AgentEvent) trigger() (Event, error) {
	e.sim.logger.Debug("agent event triggered", "agent_id", e.id, "time", e.time, "loc", e.loc.String())

	var err error
	switch e.state {
	case AgentInitial:
		err = e.navigateToNearestIntersection()
	case AgentIntersectionReached:
		err = e.navigate()
	case AgentPickingUp:
		if e.assignedResource == nil {
			err = e.moveToEndIntersection()
		} else {
			err = e.pickup()
		}
	case AgentDroppingOff:
		err = e.dropOff()
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// assignTo wires this agent to a resource. If the pickup is upstream on the
// agent's current road the pickup is scheduled directly; otherwise the agent
// keeps driving and picks the assignment up at the next intersection plan.
func (e *AgentEvent) assignTo(resourceEvent *ResourceEvent, assignTime int64) error {
	elapsed := assignTime - e.lastAppearTime
	currentLocation := e.sim.trafficPattern.TravelRoadForTime(e.lastAppearTime, e.lastAppearLocation, elapsed)
	e.assignLocation = currentLocation
	e.assignTime = assignTime
	if err := e.assignResource(resourceEvent); err != nil {
		return err
	}

	if e.loc.SameRoad(e.assignedResource.pickupLoc) && currentLocation.UpstreamTo(e.assignedResource.pickupLoc) {
		nextEventTime := assignTime + e.sim.trafficPattern.RoadForwardTravelTime(assignTime, currentLocation, e.assignedResource.pickupLoc)
		if err := e.sim.removeEvent(e); err != nil {
			return err
		}
		if err := e.update(nextEventTime, e.assignedResource.pickupLoc, AgentPickingUp, assignTime, currentLocation); err != nil {
			return err
		}
		e.sim.addEvent(e)
	}
	return nil
}

// abortResource cancels the current assignment: the agent event is removed
// from the queue, unassigned, reset to move to the end of its current road,
// and re-added. Event times are never mutated in place while queued.
func (e *AgentEvent) abortResource() error {
	if err := e.sim.removeEvent(e); err != nil {
		return err
	}
	if err := e.unassignResource(); err != nil {
		return err
	}
	e.isPickup = false
	if e.state == AgentPickingUp {
		if err := e.moveToEndIntersection(); err != nil {
			return err
		}
	}
	e.sim.addEvent(e)
	return nil
}

func (e *AgentEvent) navigateToNearestIntersection() error {
	e.startSearchTime = e.time
	e.sim.fleetManager.OnAgentIntroduced(e.id, e.sim.agentCopy(e.loc), e.time)
	return e.moveToEndIntersection()
}

func (e *AgentEvent) navigate() error {
	if !e.loc.AtEndIntersection() {
		return invariantf("agent %d navigating while not at an intersection", e.id)
	}

	if e.isArrivingPickupLoc() {
		travelTime := e.sim.trafficPattern.RoadTravelTimeFromStartIntersection(e.time, e.assignedResource.pickupLoc)
		return e.update(e.time+travelTime, e.assignedResource.pickupLoc, AgentPickingUp, e.time, e.loc)
	}

	if e.isArrivingDropOffLoc() {
		travelTime := e.sim.trafficPattern.RoadTravelTimeFromStartIntersection(e.time, e.assignedResource.dropoffLoc)
		return e.update(e.time+travelTime, e.assignedResource.dropoffLoc, AgentDroppingOff, e.time, e.loc)
	}

	var nextIntersection *citymap.Intersection
	if e.isPickup && e.assignedResource != nil {
		nextIntersection = e.sim.fleetManager.OnReachIntersectionWithResource(e.id, e.time, e.sim.agentCopy(e.loc), e.assignedResource.copyResource())
	} else {
		nextIntersection = e.sim.fleetManager.OnReachIntersection(e.id, e.time, e.sim.agentCopy(e.loc))
	}

	if nextIntersection == nil {
		return &ProtocolError{AgentID: e.id, ResourceID: -1, Reason: "fleet manager did not return a next intersection"}
	}
	// The manager answers with an intersection of its own map copy; resolve
	// it against the engine's map before routing.
	engineNext, ok := e.sim.cityMap.Intersections[nextIntersection.ID]
	if !ok {
		return &ProtocolError{AgentID: e.id, ResourceID: -1, Reason: "fleet manager returned an unknown intersection"}
	}
	if !e.loc.Road.To.IsAdjacent(engineNext) {
		return &ProtocolError{AgentID: e.id, ResourceID: -1, Reason: "move not made to an adjacent intersection"}
	}

	nextRoad, err := e.loc.Road.To.RoadTo(engineNext)
	if err != nil {
		return &ProtocolError{AgentID: e.id, ResourceID: -1, Reason: err.Error()}
	}
	nextLocation := citymap.LocationAtRoadEnd(nextRoad)
	travelTime := e.sim.trafficPattern.RoadTravelTimeFromStartIntersection(e.time, nextLocation)
	return e.update(e.time+travelTime, nextLocation, AgentIntersectionReached, e.time, citymap.LocationAtRoadStart(nextRoad))
}

func (e *AgentEvent) isArrivingPickupLoc() bool {
	return !e.isPickup && e.assignedResource != nil &&
		e.assignedResource.pickupLoc.Road.From.ID == e.loc.Road.To.ID
}

func (e *AgentEvent) isArrivingDropOffLoc() bool {
	return e.isPickup && e.assignedResource != nil &&
		e.assignedResource.dropoffLoc.Road.From.ID == e.loc.Road.To.ID
}

func (e *AgentEvent) pickup() error {
	e.sim.logger.Debug("pickup", "agent_id", e.id, "time", e.time, "loc", e.loc.String())

	e.isPickup = true
	staticApproachTime := e.sim.cityMap.TravelTimeBetweenLocations(e.assignLocation, e.loc)
	e.sim.score.recordApproachTime(e.time, e.startSearchTime, e.assignTime, e.assignedResource.availableTime, staticApproachTime)

	if err := e.assignedResource.pickup(e.time); err != nil {
		return err
	}

	action := e.sim.fleetManager.OnResourceAvailabilityChange(e.assignedResource.copyResource(), ResourcePickedUp, e.sim.agentCopy(e.loc), e.time)
	valid, err := e.sim.validAssignmentAction(action)
	if err != nil {
		return err
	}
	if valid {
		resourceEvent := e.sim.resMap[action.ResourceID]
		agentEvent := e.sim.agentMap[action.AgentID]
		if err := agentEvent.assignTo(resourceEvent, e.time); err != nil {
			return err
		}
		resourceEvent.assignTo(agentEvent)
	}

	if e.assignedResource.dropoffLoc.SameRoad(e.loc) && e.loc.UpstreamTo(e.assignedResource.dropoffLoc) {
		travelTime := e.sim.trafficPattern.RoadForwardTravelTime(e.time, e.loc, e.assignedResource.dropoffLoc)
		return e.update(e.time+travelTime, e.assignedResource.dropoffLoc, AgentDroppingOff, e.time, e.loc)
	}
	return e.moveToEndIntersection()
}

func (e *AgentEvent) dropOff() error {
	e.sim.logger.Debug("dropoff", "agent_id", e.id, "time", e.time, "loc", e.loc.String())

	e.startSearchTime = e.time
	e.isPickup = false
	e.assignedResource.dropOff(e.time)

	action := e.sim.fleetManager.OnResourceAvailabilityChange(e.assignedResource.copyResource(), ResourceDroppedOff, e.sim.agentCopy(e.loc), e.time)

	if err := e.unassignResource(); err != nil {
		return err
	}

	valid, err := e.sim.validAssignmentAction(action)
	if err != nil {
		return err
	}
	if !valid {
		return e.moveToEndIntersection()
	}

	resourceEvent := e.sim.resMap[action.ResourceID]
	if action.AgentID == e.id {
		if err := e.assignResource(resourceEvent); err != nil {
			return err
		}
		e.assignedResource.assignTo(e)
		e.assignTime = e.time
		e.assignLocation = e.loc

		if e.loc.SameRoad(e.assignedResource.pickupLoc) && e.loc.UpstreamTo(e.assignedResource.pickupLoc) {
			// The pickup is reached before the end intersection.
			travelTime := e.sim.trafficPattern.RoadForwardTravelTime(e.time, e.loc, e.assignedResource.pickupLoc)
			return e.update(e.time+travelTime, e.assignedResource.pickupLoc, AgentPickingUp, e.time, e.loc)
		}
		return e.moveToEndIntersection()
	}

	agentEvent := e.sim.agentMap[action.AgentID]
	if err := agentEvent.assignTo(resourceEvent, e.time); err != nil {
		return err
	}
	resourceEvent.assignTo(agentEvent)
	return e.moveToEndIntersection()
}

func (e *AgentEvent) moveToEndIntersection() error {
	travelTime := e.sim.trafficPattern.RoadTravelTimeToEndIntersection(e.time, e.loc)
	nextLoc := citymap.LocationAtRoadEnd(e.loc.Road)
	return e.update(e.time+travelTime, nextLoc, AgentIntersectionReached, e.time, e.loc)
}

func (e *AgentEvent) update(time int64, loc citymap.LocationOnRoad, state AgentState, lastAppearTime int64, lastAppearLocation citymap.LocationOnRoad) error {
	if time < e.sim.simulationTime {
		return invariantf("agent %d updated to past time %d (now %d)", e.id, time, e.sim.simulationTime)
	}
	if loc.DistanceFromStartIntersection < 0 || loc.DistanceFromStartIntersection > loc.Road.Length {
		return invariantf("agent %d location %v out of road bounds", e.id, loc.DistanceFromStartIntersection)
	}
	e.time = time
	e.loc = loc
	e.state = state
	e.lastAppearTime = lastAppearTime
	e.lastAppearLocation = lastAppearLocation
	return nil
}

func (e *AgentEvent) assignResource(resourceEvent *ResourceEvent) error {
	if e.assignedResource != nil {
		return &ProtocolError{AgentID: e.id, ResourceID: resourceEvent.id, Reason: "agent is already assigned a resource"}
	}
	e.assignedResource = resourceEvent
	e.sim.markAgentServing(e)
	return nil
}

func (e *AgentEvent) unassignResource() error {
	if e.assignedResource == nil {
		return invariantf("agent %d unassigning without an assigned resource", e.id)
	}
	e.assignedResource = nil
	e.sim.markAgentEmpty(e)
	return nil
}
