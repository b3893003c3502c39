package citymap

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrNoPath is returned when no path exists between two intersections.
type ErrNoPath struct {
	From int64
	To   int64
}

func (e *ErrNoPath) Error() string {
	return fmt.Sprintf("no path from intersection %d to intersection %d", e.From, e.To)
}

// PathTableEntry is one cell of the all-pairs shortest travel-time table.
// Predecessor is the path-table index of the previous intersection on the
// shortest path; -1 marks an unreachable pair.
type PathTableEntry struct {
	TravelTime  float64
	Predecessor int
}

// CityMap represents the map of a city as a directed graph of intersections
// connected by roads. After BuildPaths the map is read-only and shared by the
// engine; fleet managers receive a deep copy via MakeCopy.
type CityMap struct {
	Intersections map[int64]*Intersection
	Roads         []*Road

	projector *GeoProjector
	kdTree    *KdTree

	pathTable            [][]PathTableEntry
	intersectionsByIndex []*Intersection
}

// New assembles a CityMap from loader output. Path-table indexes are
// assigned in increasing intersection-id order so that builds are
// deterministic.
func New(intersections map[int64]*Intersection, roads []*Road, projector *GeoProjector, kdTree *KdTree) *CityMap {
	m := &CityMap{
		Intersections: intersections,
		Roads:         roads,
		projector:     projector,
		kdTree:        kdTree,
	}
	ids := make([]int64, 0, len(intersections))
	for id := range intersections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	m.intersectionsByIndex = make([]*Intersection, len(ids))
	for index, id := range ids {
		intersection := intersections[id]
		intersection.PathTableIndex = index
		m.intersectionsByIndex[index] = intersection
	}
	return m
}

// Projector returns the lat/lon projector of this map.
func (m *CityMap) Projector() *GeoProjector {
	return m.projector
}

// IntersectionByIndex returns the intersection with the given path-table
// index.
func (m *CityMap) IntersectionByIndex(index int) *Intersection {
	return m.intersectionsByIndex[index]
}

// PathTable exposes the frozen all-pairs table; shared by reference with map
// copies.
func (m *CityMap) PathTable() [][]PathTableEntry {
	return m.pathTable
}

// NearestLink returns the road link nearest to the given geographic
// location.
func (m *CityMap) NearestLink(longitude, latitude float64) *Link {
	return m.kdTree.Nearest(m.projector.FromLatLon(latitude, longitude))
}

// KdTree returns the spatial index over the map's links.
func (m *CityMap) KdTree() *KdTree {
	return m.kdTree
}

// Location returns the map's time zone, a fixed zone derived from the
// projector's reference longitude, or UTC for a map without a projector. The
// entire map is assumed to fall within a single zone.
func (m *CityMap) Location() *time.Location {
	if m.projector == nil {
		return time.UTC
	}
	lon := m.projector.RefLon
	offsetHours := int(math.Round(lon / 15))
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// BuildPaths runs single-source Dijkstra from every intersection, in
// parallel over a fixed worker pool, and freezes the resulting all-pairs
// table.
func (m *CityMap) BuildPaths(workers int) {
	n := len(m.intersectionsByIndex)
	table := make([][]PathTableEntry, n)

	if workers <= 0 {
		workers = 4
	}
	if workers > n {
		workers = n
	}

	sources := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for source := range sources {
				table[source] = m.dijkstraFrom(source)
			}
		}()
	}
	for source := 0; source < n; source++ {
		sources <- source
	}
	close(sources)
	wg.Wait()

	m.pathTable = table
}

// dijkstraFrom computes one row of the path table over the outgoing-road
// graph using static road travel times as weights. On equal cost the path
// whose predecessor has the smaller intersection id wins, making
// reconstruction deterministic.
func (m *CityMap) dijkstraFrom(source int) []PathTableEntry {
	n := len(m.intersectionsByIndex)
	row := make([]PathTableEntry, n)
	for i := range row {
		row[i] = PathTableEntry{TravelTime: math.Inf(1), Predecessor: -1}
	}
	row[source] = PathTableEntry{TravelTime: 0, Predecessor: source}

	pq := &dijkstraQueue{}
	heap.Init(pq)
	heap.Push(pq, dijkstraItem{index: source, cost: 0, id: m.intersectionsByIndex[source].ID})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(dijkstraItem)
		if item.cost > row[item.index].TravelTime {
			continue
		}
		current := m.intersectionsByIndex[item.index]
		for _, road := range current.RoadsFrom {
			neighborIndex := road.To.PathTableIndex
			newCost := item.cost + road.TravelTime
			entry := &row[neighborIndex]
			if newCost < entry.TravelTime ||
				(newCost == entry.TravelTime && entry.Predecessor >= 0 &&
					current.ID < m.intersectionsByIndex[entry.Predecessor].ID) {
				better := newCost < entry.TravelTime
				entry.TravelTime = newCost
				entry.Predecessor = item.index
				if better {
					heap.Push(pq, dijkstraItem{index: neighborIndex, cost: newCost, id: road.To.ID})
				}
			}
		}
	}
	return row
}

type dijkstraItem struct {
	index int
	cost  float64
	id    int64
}

type dijkstraQueue []dijkstraItem

func (q dijkstraQueue) Len() int { return len(q) }

func (q dijkstraQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].id < q[j].id
}

func (q dijkstraQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *dijkstraQueue) Push(x any) { *q = append(*q, x.(dijkstraItem)) }

func (q *dijkstraQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// TravelTimeBetweenIntersections returns the static shortest travel time in
// scaled units, or +Inf if the destination is unreachable.
func (m *CityMap) TravelTimeBetweenIntersections(source, destination *Intersection) float64 {
	return m.pathTable[source.PathTableIndex][destination.PathTableIndex].TravelTime
}

// TravelTimeBetweenLocations returns the static travel time between two
// on-road locations, rounded to integer scaled units.
//
// Travel is assumed to proceed at the speed limits of the roads; the actual
// travel time under traffic may differ.
func (m *CityMap) TravelTimeBetweenLocations(source, destination LocationOnRoad) int64 {
	var travelTime float64
	if source.SameRoad(destination) && source.DisplacementOnRoad(destination) >= 0 {
		travelTime = source.DisplacementOnRoad(destination) / source.Road.Speed
	} else {
		timeToEnd := (source.Road.Length - source.DistanceFromStartIntersection) / source.Road.Speed
		timeFromStart := destination.DistanceFromStartIntersection / destination.Road.Speed
		timeBetween := m.TravelTimeBetweenIntersections(source.Road.To, destination.Road.From)
		travelTime = timeToEnd + timeBetween + timeFromStart
	}
	if math.IsInf(travelTime, 1) {
		// Unreachable pair: report a finite sentinel so callers comparing
		// arrival times never overflow.
		return math.MaxInt64 / 4
	}
	return int64(math.Round(travelTime))
}

// ShortestTravelTimePath reconstructs the shortest path from source to
// destination by following predecessor pointers.
func (m *CityMap) ShortestTravelTimePath(source, destination *Intersection) ([]*Intersection, error) {
	path := []*Intersection{destination}
	current := destination.PathTableIndex
	for current != source.PathTableIndex {
		entry := m.pathTable[source.PathTableIndex][current]
		if entry.Predecessor < 0 {
			return nil, &ErrNoPath{From: source.ID, To: destination.ID}
		}
		predecessor := m.intersectionsByIndex[entry.Predecessor]
		path = append(path, predecessor)
		current = entry.Predecessor
	}
	// Reverse into source..destination order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// MakeCopy returns a deep copy of the map: intersections, vertices, links,
// and roads are cloned, while the frozen path table, projector, and k-d tree
// are shared by reference. The copy is handed to fleet managers so that a
// policy cannot mutate the engine's graph.
func (m *CityMap) MakeCopy() *CityMap {
	verticesCopy := make(map[int64]*Vertex)
	intersectionsCopy := make(map[int64]*Intersection)

	vertexCopy := func(orig *Vertex) *Vertex {
		if v, ok := verticesCopy[orig.ID]; ok {
			return v
		}
		v := copyVertex(orig)
		verticesCopy[orig.ID] = v
		return v
	}
	intersectionCopy := func(orig *Intersection) *Intersection {
		if i, ok := intersectionsCopy[orig.ID]; ok {
			return i
		}
		i := copyIntersection(orig)
		i.Vertex = vertexCopy(orig.Vertex)
		i.Vertex.Intersection = i
		intersectionsCopy[orig.ID] = i
		return i
	}

	roadsCopy := make([]*Road, 0, len(m.Roads))
	for _, intersection := range m.intersectionsByIndex {
		for _, road := range sortedRoadsFrom(intersection) {
			linksCopy := make([]*Link, 0, len(road.Links))
			for _, link := range road.Links {
				fromV := vertexCopy(link.From)
				toV := vertexCopy(link.To)
				newLink := copyLink(link, fromV, toV)
				fromV.LinksFrom[toV] = newLink
				toV.LinksTo[fromV] = newLink
				linksCopy = append(linksCopy, newLink)
			}

			fromI := intersectionCopy(road.From)
			toI := intersectionCopy(road.To)
			newRoad := copyRoad(road, fromI, toI, linksCopy)
			for _, linkCopied := range linksCopy {
				linkCopied.Road = newRoad
			}
			fromI.RoadsFrom[toI] = newRoad
			toI.RoadsTo[fromI] = newRoad
			roadsCopy = append(roadsCopy, newRoad)
		}
	}

	copyMap := &CityMap{
		Intersections: intersectionsCopy,
		Roads:         roadsCopy,
		projector:     m.projector,
		kdTree:        m.kdTree,
		pathTable:     m.pathTable,
	}
	copyMap.intersectionsByIndex = make([]*Intersection, len(m.intersectionsByIndex))
	for _, intersection := range intersectionsCopy {
		copyMap.intersectionsByIndex[intersection.PathTableIndex] = intersection
	}
	return copyMap
}

func sortedRoadsFrom(i *Intersection) []*Road {
	roads := i.RoadsFromSlice()
	sort.Slice(roads, func(a, b int) bool { return roads[a].ID < roads[b].ID })
	return roads
}
