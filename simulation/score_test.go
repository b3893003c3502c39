package simulation

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"dispatchsim/citymap"
	"dispatchsim/config"
	"dispatchsim/traffic"
)

type idleFleetManager struct {
	FleetManagerBase
}

func (f *idleFleetManager) OnAgentIntroduced(agentID int64, currentLoc citymap.LocationOnRoad, time int64) {
}

func (f *idleFleetManager) OnResourceAvailabilityChange(resource Resource, state ResourceState, currentLoc citymap.LocationOnRoad, time int64) AgentAction {
	return NothingAction()
}

// The idle manager never assigns; its agents just shuttle back along the
// road they came from.
func (f *idleFleetManager) OnReachIntersection(agentID int64, time int64, currentLoc citymap.LocationOnRoad) *citymap.Intersection {
	return currentLoc.Road.From
}

func (f *idleFleetManager) OnReachIntersectionWithResource(agentID int64, time int64, currentLoc citymap.LocationOnRoad, resource Resource) *citymap.Intersection {
	return currentLoc.Road.From
}

func scoreTestSimulator(t *testing.T) *Simulator {
	t.Helper()

	speed := config.ToSimulatedSpeed(10)
	vA := citymap.NewVertex(1, -74.0, 40.0, citymap.Point2D{X: 0, Y: 0})
	vB := citymap.NewVertex(2, -73.99, 40.0, citymap.Point2D{X: 1000, Y: 0})
	iA := citymap.NewIntersection(vA)
	iB := citymap.NewIntersection(vB)

	vA.AddEdge(vB, 1000, speed)
	vB.AddEdge(vA, 1000, speed)
	link, err := vA.To(vB)
	if err != nil {
		t.Fatal(err)
	}
	reverseLink, err := vB.To(vA)
	if err != nil {
		t.Fatal(err)
	}
	road := citymap.NewRoad()
	road.AddLink(link)
	road.SetSpeed()
	road.From, road.To = iA, iB
	iA.RoadsFrom[iB] = road
	iB.RoadsTo[iA] = road

	reverse := citymap.NewRoad()
	reverse.AddLink(reverseLink)
	reverse.SetSpeed()
	reverse.From, reverse.To = iB, iA
	iB.RoadsFrom[iA] = reverse
	iA.RoadsTo[iB] = reverse

	kdTree := citymap.NewKdTree()
	kdTree.Insert(link)
	kdTree.Insert(reverseLink)
	m := citymap.New(map[int64]*citymap.Intersection{1: iA, 2: iB}, []*citymap.Road{road, reverse}, citymap.NewGeoProjector(40, -74), kdTree)
	m.BuildPaths(1)

	cfg := &config.Config{
		MapJSONFile:             "m.json",
		DatasetFile:             "d.csv",
		BoundingPolygonKMLFile:  "p.kml",
		AgentClassName:          "IdleFleetManager",
		NumberOfAgents:          1,
		ResourceMaximumLifeTime: 60 * config.TimeResolution,
		TrafficPatternEpoch:     900 * config.TimeResolution,
		TrafficPatternStep:      60 * config.TimeResolution,
	}
	sim := New(cfg, m, func(cm *citymap.CityMap) FleetManager { return &idleFleetManager{} })
	pattern := traffic.NewPattern(300 * config.TimeResolution)
	pattern.Append(0, 1.0)
	sim.SetTrafficPattern(pattern)
	return sim
}

func TestScoreRecordsApproachAndTrip(t *testing.T) {
	sim := scoreTestSimulator(t)
	score := sim.score

	sec := int64(config.TimeResolution)
	score.recordApproachTime(20*sec, 0, 10*sec, 5*sec, 10*sec)

	if score.TotalAgentSearchTime != 20*sec {
		t.Fatalf("search time = %d, want %d", score.TotalAgentSearchTime, 20*sec)
	}
	if score.TotalAgentCruiseTime != 10*sec {
		t.Fatalf("cruise time = %d, want %d", score.TotalAgentCruiseTime, 10*sec)
	}
	if score.TotalAgentApproachTime != 10*sec {
		t.Fatalf("approach time = %d, want %d", score.TotalAgentApproachTime, 10*sec)
	}
	if score.TotalResourceWaitTime != 15*sec {
		t.Fatalf("wait time = %d, want %d", score.TotalResourceWaitTime, 15*sec)
	}
	if score.totalSearches != 1 {
		t.Fatalf("searches = %d, want 1", score.totalSearches)
	}

	score.recordCompletedTrip(120*sec, 20*sec, 100*sec)
	if score.totalAssignments != 1 {
		t.Fatalf("assignments = %d, want 1", score.totalAssignments)
	}
	if got := score.CompletedTripTime[0].Interval; got != 100*sec {
		t.Fatalf("trip interval = %d, want %d", got, 100*sec)
	}
}

func TestScoreReportIsWellFormed(t *testing.T) {
	sim := scoreTestSimulator(t)

	road := sim.cityMap.Roads[0]
	sim.AddResource(citymap.LocationAtRoadStart(road), citymap.LocationAtRoadEnd(road), 0)
	sim.AddAgent(citymap.LocationAtRoadStart(road), -1)

	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var buf bytes.Buffer
	sim.score.WriteReport(&buf)
	report := buf.String()

	for _, want := range []string{
		"***Simulation environment***",
		"***Statistics***",
		"Number of resources: 1",
		"resource expiration percentage: 100%",
		"Completed Trips time checks",
		"Approach time checks",
		"Ratios RMS",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestScoreReportWithoutResources(t *testing.T) {
	sim := scoreTestSimulator(t)
	var buf bytes.Buffer
	sim.score.WriteReport(&buf)
	if !strings.Contains(buf.String(), "No resources.") {
		t.Fatal("expected the empty-run report to mention missing resources")
	}
}
