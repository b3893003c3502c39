package simulation

import (
	"dispatchsim/citymap"
	"dispatchsim/traffic"
)

// ResourceState is the availability state reported to the fleet manager.
type ResourceState int

const (
	ResourceAvailable ResourceState = iota + 1
	ResourcePickedUp
	ResourceDroppedOff
	ResourceExpired
)

func (s ResourceState) String() string {
	switch s {
	case ResourceAvailable:
		return "AVAILABLE"
	case ResourcePickedUp:
		return "PICKED_UP"
	case ResourceDroppedOff:
		return "DROPPED_OFF"
	case ResourceExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Resource is the value snapshot of a resource handed to the fleet manager.
// It is a copy so that a policy cannot change the engine's state; its
// locations reference the fleet-manager-side map copy.
type Resource struct {
	ID              int64
	ExpirationTime  int64
	AssignedAgentID int64
	PickupLoc       citymap.LocationOnRoad
	DropoffLoc      citymap.LocationOnRoad
}

// AgentActionType tags an AgentAction.
type AgentActionType int

const (
	ActionNone AgentActionType = iota
	ActionAssign
	ActionAbort
)

// AgentAction is what a fleet manager asks the engine to do in response to a
// resource availability change.
type AgentAction struct {
	AgentID    int64
	ResourceID int64
	Type       AgentActionType
}

// NothingAction is the no-op action.
func NothingAction() AgentAction {
	return AgentAction{AgentID: -1, ResourceID: -1, Type: ActionNone}
}

// AssignAction assigns an agent to a resource.
func AssignAction(agentID, resourceID int64) AgentAction {
	return AgentAction{AgentID: agentID, ResourceID: resourceID, Type: ActionAssign}
}

// AbortAction builds an abort action for an agent. The engine accepts it but
// takes no action on it; an assignment is aborted only when its resource
// expires.
func AbortAction(agentID int64) AgentAction {
	return AgentAction{AgentID: agentID, ResourceID: -1, Type: ActionAbort}
}

// FleetManager is the policy contract. The engine calls back in global event
// order; implementations see only defensive copies of engine state and a
// deep copy of the city map that shares the frozen path table.
type FleetManager interface {
	// OnAgentIntroduced notifies the manager of a new agent and its initial
	// location.
	OnAgentIntroduced(agentID int64, currentLoc citymap.LocationOnRoad, time int64)

	// OnResourceAvailabilityChange notifies the manager of a resource state
	// transition and returns the action the engine should take.
	OnResourceAvailabilityChange(resource Resource, state ResourceState, currentLoc citymap.LocationOnRoad, time int64) AgentAction

	// OnReachIntersection is called when an empty agent reaches an
	// intersection; the manager returns the adjacent intersection to move to.
	OnReachIntersection(agentID int64, time int64, currentLoc citymap.LocationOnRoad) *citymap.Intersection

	// OnReachIntersectionWithResource is the same for an agent carrying a
	// resource.
	OnReachIntersectionWithResource(agentID int64, time int64, currentLoc citymap.LocationOnRoad, resource Resource) *citymap.Intersection

	// SetTrafficPattern installs the calibrated traffic pattern before the
	// run starts.
	SetTrafficPattern(pattern *traffic.Pattern)
}

// FleetManagerBase carries the state every fleet manager needs: the map copy
// and the traffic pattern. Embed it and override the callbacks.
type FleetManagerBase struct {
	Map            *citymap.CityMap
	TrafficPattern *traffic.Pattern
}

// SetTrafficPattern implements FleetManager.
func (b *FleetManagerBase) SetTrafficPattern(pattern *traffic.Pattern) {
	b.TrafficPattern = pattern
}

// CurrentLocation interpolates an agent's position from its last known
// snapshot under the traffic pattern.
func (b *FleetManagerBase) CurrentLocation(lastAppearTime int64, lastLocation citymap.LocationOnRoad, currentTime int64) citymap.LocationOnRoad {
	return b.TrafficPattern.TravelRoadForTime(lastAppearTime, lastLocation, currentTime-lastAppearTime)
}
