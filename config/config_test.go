package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dispatchsim/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.properties")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
# dispatchsim run parameters
[dispatchsim]
map_JSON_file = maps/manhattan.json
dataset_file = data/trips.csv
bounding_polygon_KML_file = maps/manhattan.kml
agent_class = RandomDestinationFleetManager
number_of_agents = 5000
resource_maximum_life_time = 600
dynamic_traffic = true
traffic_pattern_epoch = 900
traffic_pattern_step = 60
agent_placement_seed = 12345
logging = true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "maps/manhattan.json", cfg.MapJSONFile)
	require.Equal(t, "data/trips.csv", cfg.DatasetFile)
	require.Equal(t, "maps/manhattan.kml", cfg.BoundingPolygonKMLFile)
	require.Equal(t, "RandomDestinationFleetManager", cfg.AgentClassName)
	require.Equal(t, 5000, cfg.NumberOfAgents)
	require.Equal(t, int64(600)*config.TimeResolution, cfg.ResourceMaximumLifeTime)
	require.True(t, cfg.DynamicTraffic)
	require.Equal(t, int64(900)*config.TimeResolution, cfg.TrafficPatternEpoch)
	require.Equal(t, int64(60)*config.TimeResolution, cfg.TrafficPatternStep)
	require.Equal(t, int64(12345), cfg.AgentPlacementSeed)
	require.True(t, cfg.Logging)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
map_JSON_file = m.json
dataset_file = d.csv
bounding_polygon_KML_file = p.kml
agent_class = GreedyNearestFleetManager
number_of_agents = 10
resource_maximum_life_time = 300
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.False(t, cfg.DynamicTraffic)
	require.Equal(t, int64(900)*config.TimeResolution, cfg.TrafficPatternEpoch)
	require.Equal(t, int64(60)*config.TimeResolution, cfg.TrafficPatternStep)
	require.Equal(t, int64(-1), cfg.AgentPlacementSeed)
	require.False(t, cfg.Logging)
}

func TestLoadMissingKey(t *testing.T) {
	path := writeConfig(t, `
map_JSON_file = m.json
dataset_file = d.csv
`)

	_, err := config.Load(path)
	var missing *config.ErrMissingKey
	require.ErrorAs(t, err, &missing)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
map_JSON_file = m.json
dataset_file = d.csv
bounding_polygon_KML_file = p.kml
agent_class = GreedyNearestFleetManager
number_of_agents = 0
resource_maximum_life_time = 300
`)
	_, err := config.Load(path)
	require.ErrorContains(t, err, "number_of_agents")
}

func TestScaledTimeHelpers(t *testing.T) {
	require.Equal(t, int64(5)*config.TimeResolution, config.ToScaled(5))
	require.Equal(t, 5.0, config.ToSeconds(config.ToScaled(5)))
	require.InDelta(t, 1e-5, config.ToSimulatedSpeed(10), 1e-15)
}
