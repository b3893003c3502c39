package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"dispatchsim/config"
	"dispatchsim/fleet"
	"dispatchsim/mapdata"
	"dispatchsim/simulation"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and print the score report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging)
			slog.SetDefault(logger)

			sim, err := buildSimulator(cfg, logger)
			if err != nil {
				return err
			}
			if err := sim.Run(cmd.Context()); err != nil {
				return err
			}
			sim.Score().WriteReport(os.Stdout)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", envString("DISPATCHSIM_CONFIG", "etc/config.properties"), "path to the properties file")
	return cmd
}

// buildSimulator wires the whole harness: build the map and its path table,
// load and map match the trip records, calibrate the traffic pattern, plug
// the fleet manager, and place the agents.
func buildSimulator(cfg *config.Config, logger *slog.Logger) (*simulation.Simulator, error) {
	logger.Info("creating map", "file", cfg.MapJSONFile)
	cityMap, err := mapdata.LoadGraphJSON(cfg.MapJSONFile)
	if err != nil {
		return nil, err
	}

	logger.Info("pre-computing all pair travel times", "intersections", len(cityMap.Intersections))
	buildStart := time.Now()
	cityMap.BuildPaths(runtime.NumCPU())
	simulation.ObservePathTableBuild(time.Since(buildStart))
	logger.Info("path table built", "duration", time.Since(buildStart).String())

	polygon, err := mapdata.LoadBoundingPolygonKML(cfg.BoundingPolygonKMLFile)
	if err != nil {
		return nil, err
	}

	logger.Info("loading trip records", "file", cfg.DatasetFile)
	records, dropped, err := mapdata.ParseTripCSV(cfg.DatasetFile, cityMap.Location(), config.TimeResolution, polygon)
	if err != nil {
		return nil, err
	}
	logger.Info("trip records loaded", "kept", len(records), "dropped", dropped)
	if len(records) == 0 {
		return nil, fmt.Errorf("no trip records inside the bounding polygon")
	}

	mwd := mapdata.NewMapWithData(cityMap, records)
	logger.Info("map-matching resources", "workers", runtime.NumCPU())
	if err := mwd.MatchResources(runtime.NumCPU(), cfg.ResourceMaximumLifeTime); err != nil {
		return nil, err
	}

	factory, err := fleet.Lookup(cfg.AgentClassName)
	if err != nil {
		return nil, err
	}

	sim := simulation.New(cfg, cityMap, factory).WithLogger(logger)

	logger.Info("building traffic patterns", "dynamic", cfg.DynamicTraffic)
	pattern := mwd.BuildSlidingTrafficPattern(cfg.TrafficPatternEpoch, cfg.TrafficPatternStep, cfg.DynamicTraffic)
	sim.SetTrafficPattern(pattern)

	for _, record := range mwd.Records {
		sim.AddResource(record.PickupLocation, record.DropoffLocation, record.Time)
	}

	seed := cfg.AgentPlacementSeed
	if seed < 0 {
		seed = time.Now().UnixNano()
		logger.Info("agent placement seed picked at random", "seed", seed)
	}
	logger.Info("randomly placing agents on the map", "agents", cfg.NumberOfAgents)
	sim.PlaceAgentsRandomly(cfg.NumberOfAgents, seed, mwd.EarliestResourceTime-1)

	return sim, nil
}

// runWithContext is a seam for the serve command, which runs the simulation
// while the HTTP server is up.
func runWithContext(ctx context.Context, sim *simulation.Simulator) error {
	return sim.Run(ctx)
}
