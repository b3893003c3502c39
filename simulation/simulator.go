package simulation

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"dispatchsim/citymap"
	"dispatchsim/config"
	"dispatchsim/traffic"
)

// Progress is a read-only snapshot of a running simulation, safe to read
// from other goroutines while Run is executing.
type Progress struct {
	RunID            string `json:"runId"`
	SimulationTime   int64  `json:"simulationTime"`
	StartTime        int64  `json:"startTime"`
	EndTime          int64  `json:"endTime"`
	EventsProcessed  int64  `json:"eventsProcessed"`
	EmptyAgents      int    `json:"emptyAgents"`
	ServingAgents    int    `json:"servingAgents"`
	TotalResources   int64  `json:"totalResources"`
	TotalAssignments int64  `json:"totalAssignments"`
	ExpiredResources int64  `json:"expiredResources"`
	TotalAbortions   int64  `json:"totalAbortions"`
	Finished         bool   `json:"finished"`
}

// Simulator owns the event queue and all agent and resource state, and
// drives the single-threaded dispatch loop. Agents cruise the map, the fleet
// manager assigns them to resources, and the score accumulator observes
// pickups, dropoffs, and expirations.
type Simulator struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  uuid.UUID

	cityMap *citymap.CityMap

	// A deep copy of the map passed to the fleet manager, so a policy cannot
	// modify the map used by the engine.
	mapForAgents *citymap.CityMap

	events *eventQueue

	emptyAgentsSet   map[*AgentEvent]struct{}
	servingAgentsSet map[*AgentEvent]struct{}

	simulationStartTime int64
	simulationTime      int64
	simulationEndTime   int64

	score          *ScoreInfo
	fleetManager   FleetManager
	trafficPattern *traffic.Pattern

	agentMap map[int64]*AgentEvent
	resMap   map[int64]*ResourceEvent

	nextEventID     int64
	eventsProcessed int64

	earliestResourceTime int64

	// progress is the engine's published snapshot; the engine goroutine
	// writes it under progressMu and other goroutines only ever read the
	// published copy.
	progressMu sync.RWMutex
	progress   Progress
	started    bool
}

func (s *Simulator) markAgentEmpty(agent *AgentEvent) {
	delete(s.servingAgentsSet, agent)
	s.emptyAgentsSet[agent] = struct{}{}
	servingAgents.Set(float64(len(s.servingAgentsSet)))
	emptyAgents.Set(float64(len(s.emptyAgentsSet)))
}

func (s *Simulator) markAgentServing(agent *AgentEvent) {
	delete(s.emptyAgentsSet, agent)
	s.servingAgentsSet[agent] = struct{}{}
	servingAgents.Set(float64(len(s.servingAgentsSet)))
	emptyAgents.Set(float64(len(s.emptyAgentsSet)))
}

// New constructs a simulator over a built city map. The fleet manager is
// created by the given factory against the agent-side map copy.
func New(cfg *config.Config, cityMap *citymap.CityMap, newFleetManager func(*citymap.CityMap) FleetManager) *Simulator {
	mapForAgents := cityMap.MakeCopy()
	s := &Simulator{
		cfg:                  cfg,
		logger:               slog.Default(),
		runID:                uuid.New(),
		cityMap:              cityMap,
		mapForAgents:         mapForAgents,
		events:               newEventQueue(),
		emptyAgentsSet:       make(map[*AgentEvent]struct{}),
		servingAgentsSet:     make(map[*AgentEvent]struct{}),
		agentMap:             make(map[int64]*AgentEvent),
		resMap:               make(map[int64]*ResourceEvent),
		trafficPattern:       traffic.NewPattern(1),
		earliestResourceTime: -1,
	}
	s.fleetManager = newFleetManager(mapForAgents)
	s.score = newScoreInfo(cfg, s)
	s.progress = Progress{RunID: s.runID.String()}
	return s
}

// WithLogger configures structured logging.
func (s *Simulator) WithLogger(logger *slog.Logger) *Simulator {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// RunID returns the unique id of this run.
func (s *Simulator) RunID() uuid.UUID { return s.runID }

// Map returns the engine-side city map.
func (s *Simulator) Map() *citymap.CityMap { return s.cityMap }

// MapForAgents returns the fleet-manager-side map copy.
func (s *Simulator) MapForAgents() *citymap.CityMap { return s.mapForAgents }

// Score returns the score accumulator.
func (s *Simulator) Score() *ScoreInfo { return s.score }

// FleetManager returns the plugged policy.
func (s *Simulator) FleetManager() FleetManager { return s.fleetManager }

// SetTrafficPattern installs the traffic pattern on the engine and the fleet
// manager.
func (s *Simulator) SetTrafficPattern(pattern *traffic.Pattern) {
	s.trafficPattern = pattern
	s.fleetManager.SetTrafficPattern(pattern)
}

// TrafficPattern returns the installed traffic pattern.
func (s *Simulator) TrafficPattern() *traffic.Pattern { return s.trafficPattern }

// SimulationEndTime returns the configured end of the run.
func (s *Simulator) SimulationEndTime() int64 { return s.simulationEndTime }

// SetSimulationEndTime overrides the end of the run; normally it is extended
// as resources are added to cover each expiration plus its static trip time.
func (s *Simulator) SetSimulationEndTime(t int64) { s.simulationEndTime = t }

// EarliestResourceTime returns the appearance time of the earliest resource
// added so far, or -1 if none.
func (s *Simulator) EarliestResourceTime() int64 { return s.earliestResourceTime }

// AddResource creates a resource event from matched pickup and dropoff
// locations and queues its availability. The simulation end time is extended
// to cover the resource's expiration plus its static trip time.
func (s *Simulator) AddResource(pickupLoc, dropoffLoc citymap.LocationOnRoad, availableTime int64) *ResourceEvent {
	return s.AddResourceWithMaxLife(pickupLoc, dropoffLoc, availableTime, s.cfg.ResourceMaximumLifeTime)
}

// AddResourceWithMaxLife is AddResource with an explicit expiration window,
// overriding the configured maximum life time.
func (s *Simulator) AddResourceWithMaxLife(pickupLoc, dropoffLoc citymap.LocationOnRoad, availableTime, maxLifeTime int64) *ResourceEvent {
	staticTripTime := s.cityMap.TravelTimeBetweenLocations(pickupLoc, dropoffLoc)
	e := &ResourceEvent{
		baseEvent:      baseEvent{id: s.issueEventID(), time: availableTime},
		sim:            s,
		pickupLoc:      pickupLoc,
		dropoffLoc:     dropoffLoc,
		availableTime:  availableTime,
		expirationTime: availableTime + maxLifeTime,
		staticTripTime: staticTripTime,
		pickupTime:     -1,
		state:          ResourceStateAvailable,
	}
	s.resMap[e.id] = e
	s.events.Add(e)

	if s.earliestResourceTime < 0 || availableTime < s.earliestResourceTime {
		s.earliestResourceTime = availableTime
	}
	if latest := availableTime + maxLifeTime + staticTripTime; latest > s.simulationEndTime {
		s.simulationEndTime = latest
	}
	return e
}

// AddAgent creates an agent event at the given location, scheduled for its
// first trigger at deployTime.
func (s *Simulator) AddAgent(loc citymap.LocationOnRoad, deployTime int64) *AgentEvent {
	e := &AgentEvent{
		baseEvent:          baseEvent{id: s.issueEventID(), time: deployTime},
		sim:                s,
		loc:                loc,
		state:              AgentInitial,
		startSearchTime:    deployTime,
		lastAppearTime:     deployTime,
		lastAppearLocation: loc,
	}
	s.agentMap[e.id] = e
	s.markAgentEmpty(e)
	s.events.Add(e)
	return e
}

// PlaceAgentsRandomly deploys count agents at uniform random on-road
// locations: a uniform random road, then a uniform random distance along it.
// The seeded generator makes placement reproducible.
func (s *Simulator) PlaceAgentsRandomly(count int, seed int64, deployTime int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < count; i++ {
		road := s.cityMap.Roads[rng.Intn(len(s.cityMap.Roads))]
		distance := rng.Float64() * road.Length
		s.AddAgent(citymap.NewLocationOnRoad(road, distance), deployTime)
	}
}

func (s *Simulator) issueEventID() int64 {
	id := s.nextEventID
	s.nextEventID++
	return id
}

func (s *Simulator) addEvent(e Event) error {
	if e.Time() < s.simulationTime {
		return invariantf("event %d added with past time %d (now %d)", e.ID(), e.Time(), s.simulationTime)
	}
	s.events.Add(e)
	return nil
}

func (s *Simulator) removeEvent(e Event) error {
	return s.events.Remove(e)
}

// HasEvent reports whether the event is queued; used by tests and asserts.
func (s *Simulator) HasEvent(e Event) bool {
	return s.events.Has(e)
}

// agentCopy re-expresses an engine-side location against the fleet-manager
// map copy so that a policy cannot reach engine road objects.
func (s *Simulator) agentCopy(loc citymap.LocationOnRoad) citymap.LocationOnRoad {
	from := s.mapForAgents.Intersections[loc.Road.From.ID]
	to := s.mapForAgents.Intersections[loc.Road.To.ID]
	roadCopy, err := from.RoadTo(to)
	if err != nil {
		// The copy mirrors the engine map road for road; a miss means the
		// copy is corrupt.
		panic(err)
	}
	return loc.ReplaceRoad(roadCopy)
}

// validAssignmentAction decides whether an assignment action should be
// wired. A no-op or abort action is not an assignment; unknown ids or an
// assignment to an agent that is already serving violate the protocol.
func (s *Simulator) validAssignmentAction(action AgentAction) (bool, error) {
	if action.Type != ActionAssign {
		return false, nil
	}
	agentEvent, okAgent := s.agentMap[action.AgentID]
	_, okRes := s.resMap[action.ResourceID]
	if !okAgent || !okRes {
		return false, &ProtocolError{AgentID: action.AgentID, ResourceID: action.ResourceID, Reason: "action references unknown ids"}
	}
	if agentEvent.isPickup {
		return false, &ProtocolError{AgentID: action.AgentID, ResourceID: action.ResourceID, Reason: "agent is carrying a resource"}
	}
	if agentEvent.assignedResource != nil {
		return false, &ProtocolError{AgentID: action.AgentID, ResourceID: action.ResourceID, Reason: "agent is already serving another resource"}
	}
	return true, nil
}

// Run executes the main dispatch loop: pop events in (time, priority, id)
// order and trigger them until the queue drains. Past the simulation end
// time events are only triggered while agents are still serving, so any
// overrun tail is consumed.
func (s *Simulator) Run(ctx context.Context) error {
	if s.events.Len() == 0 {
		return errors.New("simulation has no events")
	}

	s.simulationStartTime = s.events.Peek().Time()
	s.simulationTime = s.simulationStartTime
	s.setStarted()

	s.logger.Info("running the simulation",
		"run_id", s.runID.String(),
		"start_time", s.simulationStartTime,
		"end_time", s.simulationEndTime,
		"agents", len(s.agentMap),
		"resources", len(s.resMap),
	)

	for s.events.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		e := s.events.Pop()
		if e.Time() < s.simulationTime {
			return invariantf("event %d time %d before simulation time %d", e.ID(), e.Time(), s.simulationTime)
		}
		s.simulationTime = e.Time()

		if s.simulationTime <= s.simulationEndTime || len(s.servingAgentsSet) > 0 {
			next, err := e.trigger()
			if err != nil {
				return err
			}
			if next != nil {
				if err := s.addEvent(next); err != nil {
					return err
				}
			}
		}

		s.eventsProcessed++
		eventsProcessedTotal.Inc()
		if s.eventsProcessed%1024 == 0 {
			s.publishProgress(false)
		}
	}

	s.publishProgress(true)
	s.logger.Info("simulation finished", "run_id", s.runID.String(), "events_processed", s.eventsProcessed)
	return nil
}

func (s *Simulator) setStarted() {
	s.progressMu.Lock()
	s.started = true
	s.progressMu.Unlock()
}

// publishProgress is only called from the engine goroutine, so reading the
// engine's own state here is safe; readers see the copy published under the
// lock.
func (s *Simulator) publishProgress(finished bool) {
	snapshot := Progress{
		RunID:            s.runID.String(),
		SimulationTime:   s.simulationTime,
		StartTime:        s.simulationStartTime,
		EndTime:          s.simulationEndTime,
		EventsProcessed:  s.eventsProcessed,
		EmptyAgents:      len(s.emptyAgentsSet),
		ServingAgents:    len(s.servingAgentsSet),
		TotalResources:   s.score.totalResources,
		TotalAssignments: s.score.totalAssignments,
		ExpiredResources: s.score.expiredResources,
		TotalAbortions:   s.score.totalAbortions,
		Finished:         finished,
	}
	s.progressMu.Lock()
	s.progress = snapshot
	s.progressMu.Unlock()
}

// Started reports whether Run has begun.
func (s *Simulator) Started() bool {
	s.progressMu.RLock()
	defer s.progressMu.RUnlock()
	return s.started
}

// Snapshot returns the most recently published progress of the run.
func (s *Simulator) Snapshot() Progress {
	s.progressMu.RLock()
	defer s.progressMu.RUnlock()
	return s.progress
}
