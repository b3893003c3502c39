package simulation

import (
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"dispatchsim/config"
)

// IntervalCheckRecord is one per-trip sample used for post-hoc consistency
// checks: the measured interval against the expected static interval.
type IntervalCheckRecord struct {
	Time             int64
	Interval         int64
	ExpectedInterval int64
}

// ScoreInfo accumulates the performance of a fleet manager over a run:
// search, wait, cruise, approach, and trip times, plus the counters that
// drive the final report.
type ScoreInfo struct {
	cfg *config.Config
	sim *Simulator

	TotalResourceTripTime  int64
	TotalResourceWaitTime  int64
	TotalAgentSearchTime   int64
	TotalAgentCruiseTime   int64
	TotalAgentApproachTime int64

	expiredResources int64
	totalResources   int64
	totalAssignments int64
	totalSearches    int64
	totalAbortions   int64

	ApproachTimeCheckRecords []IntervalCheckRecord
	CompletedTripTime        []IntervalCheckRecord

	startWall time.Time
}

func newScoreInfo(cfg *config.Config, sim *Simulator) *ScoreInfo {
	return &ScoreInfo{cfg: cfg, sim: sim, startWall: time.Now()}
}

// ExpiredResources returns the number of expired resources.
func (s *ScoreInfo) ExpiredResources() int64 { return s.expiredResources }

// TotalResources returns the number of resources introduced so far.
func (s *ScoreInfo) TotalResources() int64 { return s.totalResources }

// TotalAssignments returns the number of completed trips.
func (s *ScoreInfo) TotalAssignments() int64 { return s.totalAssignments }

// TotalAbortions returns the number of aborted assignments.
func (s *ScoreInfo) TotalAbortions() int64 { return s.totalAbortions }

// TotalSearches returns the number of completed searches (pickups).
func (s *ScoreInfo) TotalSearches() int64 { return s.totalSearches }

func (s *ScoreInfo) accumulateResourceWaitTime(waitTime int64) {
	s.TotalResourceWaitTime += waitTime
}

func (s *ScoreInfo) recordApproachTime(currentTime, startSearchTime, assignTime, availableTime, staticApproachTime int64) {
	s.TotalAgentSearchTime += currentTime - startSearchTime
	s.totalSearches++
	s.accumulateResourceWaitTime(currentTime - availableTime)
	s.TotalAgentCruiseTime += assignTime - startSearchTime

	approachTime := currentTime - assignTime
	s.TotalAgentApproachTime += approachTime
	s.ApproachTimeCheckRecords = append(s.ApproachTimeCheckRecords, IntervalCheckRecord{
		Time:             assignTime,
		Interval:         approachTime,
		ExpectedInterval: staticApproachTime,
	})
}

func (s *ScoreInfo) recordExpiration() {
	s.expiredResources++
	s.accumulateResourceWaitTime(s.cfg.ResourceMaximumLifeTime)
	expirationsTotal.Inc()
}

func (s *ScoreInfo) recordAbortion() {
	s.totalAbortions++
	abortionsTotal.Inc()
}

func (s *ScoreInfo) recordCompletedTrip(dropOffTime, pickupTime, staticTripTime int64) {
	tripTime := dropOffTime - pickupTime
	s.TotalResourceTripTime += tripTime
	s.totalAssignments++
	s.CompletedTripTime = append(s.CompletedTripTime, IntervalCheckRecord{
		Time:             pickupTime,
		Interval:         tripTime,
		ExpectedInterval: staticTripTime,
	})
	assignmentsTotal.Inc()
}

// WriteReport prints the human-readable report: environment echo, averages
// and counters, then the two interval-consistency checks.
func (s *ScoreInfo) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "\nrunning time: %d seconds\n", int64(time.Since(s.startWall).Seconds()))
	fmt.Fprintf(w, "\n***Simulation environment***\n")
	fmt.Fprintf(w, "Run ID: %s\n", s.sim.runID)
	fmt.Fprintf(w, "JSON map file: %s\n", s.cfg.MapJSONFile)
	fmt.Fprintf(w, "Resource dataset file: %s\n", s.cfg.DatasetFile)
	fmt.Fprintf(w, "Bounding polygon KML file: %s\n", s.cfg.BoundingPolygonKMLFile)
	fmt.Fprintf(w, "Number of agents: %d\n", s.cfg.NumberOfAgents)
	fmt.Fprintf(w, "Number of resources: %d\n", s.totalResources)
	fmt.Fprintf(w, "Resource Maximum Life Time: %d seconds\n", s.cfg.ResourceMaximumLifeTime/config.TimeResolution)
	fmt.Fprintf(w, "Fleet Manager class: %s\n", s.cfg.AgentClassName)
	fmt.Fprintf(w, "Time resolution: %d\n", int64(config.TimeResolution))
	fmt.Fprintf(w, "Simulation Start Time: %d\n", s.sim.simulationStartTime)
	fmt.Fprintf(w, "Simulation End Time: %d\n", s.sim.simulationEndTime)
	fmt.Fprintf(w, "Final Simulation Time: %d\n", s.sim.simulationTime)

	fmt.Fprintf(w, "\n***Statistics***\n")
	if s.totalResources == 0 {
		fmt.Fprintln(w, "No resources.")
	} else {
		// Agents still empty at the end spent the tail of the run searching;
		// that time counts toward the total search time.
		var totalRemainTime int64
		for agent := range s.sim.emptyAgentsSet {
			totalRemainTime += s.sim.simulationEndTime - agent.startSearchTime
		}

		if denom := s.totalAssignments + int64(len(s.sim.emptyAgentsSet)); denom > 0 {
			avgSearchTime := toSecondsInt(s.TotalAgentSearchTime+totalRemainTime) / denom
			fmt.Fprintf(w, "average agent search time: %d seconds\n", avgSearchTime)
		}
		avgWaitTime := toSecondsInt(s.TotalResourceWaitTime) / s.totalResources
		expirationPercentage := s.expiredResources * 100 / s.totalResources

		fmt.Fprintf(w, "average resource wait time: %d seconds\n", avgWaitTime)
		fmt.Fprintf(w, "resource expiration percentage: %d%%\n", expirationPercentage)
		if s.totalAssignments > 0 {
			fmt.Fprintf(w, "average agent cruise time: %d seconds\n", toSecondsInt(s.TotalAgentCruiseTime)/s.totalAssignments)
			fmt.Fprintf(w, "average agent approach time: %d seconds\n", toSecondsInt(s.TotalAgentApproachTime)/s.totalAssignments)
			fmt.Fprintf(w, "average resource trip time: %d seconds\n", toSecondsInt(s.TotalResourceTripTime)/s.totalAssignments)
		}
		fmt.Fprintf(w, "total number of assignments: %d\n", s.totalAssignments)
		fmt.Fprintf(w, "total number of abortions: %d\n", s.totalAbortions)
		fmt.Fprintf(w, "total number of searches: %d\n", s.totalSearches)
	}

	fmt.Fprintln(w, "********** Completed Trips time checks")
	s.checkAndPrintIntervalRecords(w, s.CompletedTripTime, 10, 0.06)

	fmt.Fprintln(w, "********** Approach time checks")
	s.checkAndPrintIntervalRecords(w, s.ApproachTimeCheckRecords, 10, 0.06)
}

// checkAndPrintIntervalRecords compares the expected/measured ratio of every
// record against the time-indexed speed factor and reports the RMS of the
// ratios plus the count of records beyond the threshold.
func (s *ScoreInfo) checkAndPrintIntervalRecords(w io.Writer, records []IntervalCheckRecord, printLimit int, threshold float64) {
	fmt.Fprintln(w, "time, simulated_ratio, expected_ratio, difference")

	beyondThreshold := 0
	squares := make([]float64, 0, len(records))
	for _, record := range records {
		ratio := s.computeRatio(record)
		referenceRatio := s.sim.trafficPattern.SpeedFactor(record.Time)
		diff := ratio - referenceRatio
		if math.Abs(diff) > threshold || math.IsNaN(diff) {
			if printLimit > 0 {
				fmt.Fprintf(w, "%d, %v, %v, %v\n", record.Time, ratio, referenceRatio, diff)
			}
			printLimit--
			beyondThreshold++
		}
		squares = append(squares, ratio*ratio)
	}

	fmt.Fprintf(w, "Threshold = %v; Count = %d\n", threshold, beyondThreshold)
	if len(squares) > 0 {
		rms := math.Sqrt(stat.Mean(squares, nil))
		fmt.Fprintf(w, "Ratios RMS = %v; Count = %d\n", rms, len(squares))
	} else {
		fmt.Fprintln(w, "Ratios RMS = N/A; Count = 0")
	}
}

// computeRatio handles the 0/0 case as the limit in which the reference
// speed factor applies.
func (s *ScoreInfo) computeRatio(record IntervalCheckRecord) float64 {
	if record.Interval == 0 && record.ExpectedInterval == 0 {
		return s.sim.trafficPattern.SpeedFactor(record.Time)
	}
	return float64(record.ExpectedInterval) / float64(record.Interval)
}

func toSecondsInt(scaled int64) int64 {
	return scaled / config.TimeResolution
}
