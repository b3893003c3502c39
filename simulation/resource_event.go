package simulation

import (
	"dispatchsim/citymap"
)

// ResourceEventState is the state of the resource state machine.
type ResourceEventState int

const (
	// ResourceStateAvailable means the event's next trigger introduces the
	// resource. Once introduced, a resource waiting for a pickup is in
	// ResourceStateExpired.
	ResourceStateAvailable ResourceEventState = iota + 1
	// ResourceStateExpired means the event's next trigger is the expiration.
	ResourceStateExpired
)

// ResourceEvent represents the moments a resource becomes available and, if
// never picked up, expires. The expiration is self-scheduled: the
// availability trigger re-queues the same event at the expiration time, so
// no external timer is needed.
type ResourceEvent struct {
	baseEvent

	sim *Simulator

	pickupLoc  citymap.LocationOnRoad
	dropoffLoc citymap.LocationOnRoad

	availableTime  int64
	expirationTime int64
	staticTripTime int64
	pickupTime     int64

	state      ResourceEventState
	agentEvent *AgentEvent
}

func (e *ResourceEvent) priority() int { return resourcePriority }

// PickupLoc returns the resource's pickup location on the engine map.
func (e *ResourceEvent) PickupLoc() citymap.LocationOnRoad { return e.pickupLoc }

// DropoffLoc returns the resource's dropoff location on the engine map.
func (e *ResourceEvent) DropoffLoc() citymap.LocationOnRoad { return e.dropoffLoc }

// ExpirationTime returns the scaled time at which the resource expires.
func (e *ResourceEvent) ExpirationTime() int64 { return e.expirationTime }

func (e *ResourceEvent) trigger() (Event, error) {
	e.sim.logger.Debug("resource event triggered", "resource_id", e.id, "time", e.time,
		"pickup", e.pickupLoc.String(), "dropoff", e.dropoffLoc.String())

	if e.state == ResourceStateAvailable {
		if err := e.available(); err != nil {
			return nil, err
		}
		return e, nil
	}
	if err := e.expire(); err != nil {
		return nil, err
	}
	return nil, nil
}

// assignTo records the agent this resource is assigned to.
func (e *ResourceEvent) assignTo(agentEvent *AgentEvent) {
	e.agentEvent = agentEvent
}

// copyResource builds the defensive snapshot handed to the fleet manager.
func (e *ResourceEvent) copyResource() Resource {
	agentID := int64(-1)
	if e.agentEvent != nil {
		agentID = e.agentEvent.id
	}
	return Resource{
		ID:              e.id,
		ExpirationTime:  e.expirationTime,
		AssignedAgentID: agentID,
		PickupLoc:       e.sim.agentCopy(e.pickupLoc),
		DropoffLoc:      e.sim.agentCopy(e.dropoffLoc),
	}
}

// pickup records the pickup time and removes the pending expiration from the
// queue.
func (e *ResourceEvent) pickup(pickupTime int64) error {
	e.pickupTime = pickupTime
	return e.sim.removeEvent(e)
}

func (e *ResourceEvent) isPickedUp() bool {
	return e.pickupTime >= 0
}

// dropOff records the completed trip in the score.
func (e *ResourceEvent) dropOff(dropOffTime int64) {
	staticTripTime := e.sim.cityMap.TravelTimeBetweenLocations(e.pickupLoc, e.dropoffLoc)
	e.sim.score.recordCompletedTrip(dropOffTime, e.pickupTime, staticTripTime)
}

func (e *ResourceEvent) available() error {
	e.sim.score.totalResources++

	action := e.sim.fleetManager.OnResourceAvailabilityChange(e.copyResource(), ResourceAvailable, e.sim.agentCopy(e.pickupLoc), e.time)
	if err := e.processAgentAction(action); err != nil {
		return err
	}

	// Reschedule self as the expiration; the event is off the queue while
	// triggering, so mutating its time here is safe.
	e.time = e.expirationTime
	e.state = ResourceStateExpired
	return nil
}

func (e *ResourceEvent) expire() error {
	if e.isPickedUp() {
		return invariantf("resource %d expiring after having been picked up", e.id)
	}

	action := e.sim.fleetManager.OnResourceAvailabilityChange(e.copyResource(), ResourceExpired, e.sim.agentCopy(e.pickupLoc), e.time)

	// Abort before processing the returned action, so the fleet manager can
	// re-task the freed agent from the same callback.
	if e.agentEvent != nil {
		// Assigned but not picked up: the trip is being aborted.
		if err := e.agentEvent.abortResource(); err != nil {
			return err
		}
		e.sim.score.recordAbortion()
	}

	if err := e.processAgentAction(action); err != nil {
		return err
	}
	e.sim.score.recordExpiration()
	e.sim.logger.Debug("resource expired", "resource_id", e.id, "time", e.time)
	return nil
}

func (e *ResourceEvent) processAgentAction(action AgentAction) error {
	valid, err := e.sim.validAssignmentAction(action)
	if err != nil {
		return err
	}
	if !valid {
		return nil
	}
	agentEvent := e.sim.agentMap[action.AgentID]
	resourceEvent := e.sim.resMap[action.ResourceID]
	if err := agentEvent.assignTo(resourceEvent, e.time); err != nil {
		return err
	}
	resourceEvent.assignTo(agentEvent)
	return nil
}
