package mapdata

import (
	"encoding/json"
	"fmt"
	"os"

	"dispatchsim/citymap"
	"dispatchsim/config"
)

// graphFile is the pre-digested road-graph input: nodes with coordinates and
// roads as ordered node chains with a speed limit in meters per second. The
// first and last node of every road are intersections; interior nodes are
// plain geometry vertices.
type graphFile struct {
	Nodes []GraphNode `json:"nodes"`
	Roads []GraphRoad `json:"roads"`
}

// GraphNode is one node of the input graph.
type GraphNode struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GraphRoad is one directed road of the input graph, as an ordered node
// chain with a speed limit in meters per second.
type GraphRoad struct {
	Nodes []int64 `json:"nodes"`
	Speed float64 `json:"speed"`
}

// LoadGraphJSON reads a road graph and assembles a CityMap: vertices are
// projected around the nodes' centroid, links are built between consecutive
// nodes of every road, and all links are indexed in the k-d tree. A road
// with a non-positive speed is a build-time fault.
func LoadGraphJSON(path string) (*citymap.CityMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("map graph: %w", err)
	}
	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("map graph: %w", err)
	}
	return BuildCityMap(gf.Nodes, gf.Roads)
}

// BuildCityMap assembles the CityMap from parsed graph data.
func BuildCityMap(nodes []GraphNode, roads []GraphRoad) (*citymap.CityMap, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("map graph: no nodes")
	}

	var sumLat, sumLon float64
	for _, n := range nodes {
		sumLat += n.Lat
		sumLon += n.Lon
	}
	projector := citymap.NewGeoProjector(sumLat/float64(len(nodes)), sumLon/float64(len(nodes)))

	vertices := make(map[int64]*citymap.Vertex, len(nodes))
	for _, n := range nodes {
		vertices[n.ID] = citymap.NewVertex(n.ID, n.Lon, n.Lat, projector.FromLatLon(n.Lat, n.Lon))
	}

	intersections := make(map[int64]*citymap.Intersection)
	intersectionFor := func(v *citymap.Vertex) *citymap.Intersection {
		if i, ok := intersections[v.ID]; ok {
			return i
		}
		i := citymap.NewIntersection(v)
		intersections[v.ID] = i
		return i
	}

	kdTree := citymap.NewKdTree()
	cityRoads := make([]*citymap.Road, 0, len(roads))
	for _, gr := range roads {
		if len(gr.Nodes) < 2 {
			return nil, fmt.Errorf("map graph: road with fewer than two nodes")
		}
		if gr.Speed <= 0 {
			return nil, fmt.Errorf("map graph: road through node %d has non-positive speed", gr.Nodes[0])
		}
		speed := config.ToSimulatedSpeed(gr.Speed)

		road := citymap.NewRoad()
		for i := 0; i+1 < len(gr.Nodes); i++ {
			from, ok := vertices[gr.Nodes[i]]
			if !ok {
				return nil, fmt.Errorf("map graph: unknown node %d", gr.Nodes[i])
			}
			to, ok := vertices[gr.Nodes[i+1]]
			if !ok {
				return nil, fmt.Errorf("map graph: unknown node %d", gr.Nodes[i+1])
			}
			from.AddEdge(to, from.DistanceTo(to), speed)
			link, err := from.To(to)
			if err != nil {
				return nil, fmt.Errorf("map graph: %w", err)
			}
			road.AddLink(link)
			kdTree.Insert(link)
		}
		road.SetSpeed()

		fromI := intersectionFor(road.Links[0].From)
		toI := intersectionFor(road.Links[len(road.Links)-1].To)
		road.From = fromI
		road.To = toI
		fromI.RoadsFrom[toI] = road
		toI.RoadsTo[fromI] = road
		cityRoads = append(cityRoads, road)
	}

	return citymap.New(intersections, cityRoads, projector, kdTree), nil
}
