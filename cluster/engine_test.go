package cluster

import (
	"fmt"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

type staticSource struct {
	features []feature.Feature
}

func (s *staticSource) Snapshot() []feature.Feature {
	return s.features
}

func point(id string, lng, lat float64) feature.Feature {
	return feature.Feature{
		ID:         id,
		Provenance: feature.Committed,
		Geometry:   orb.Point{lng, lat},
		Properties: geojson.Properties{},
	}
}

// boxDataset spreads 150 points over a 0.1 x 0.1 degree box.
func boxDataset() []feature.Feature {
	features := make([]feature.Feature, 0, 150)
	for i := 0; i < 15; i++ {
		for j := 0; j < 10; j++ {
			lng := 106.70 + 0.1*float64(i)/15
			lat := 10.80 + 0.1*float64(j)/10
			features = append(features, point(fmt.Sprintf("p%03d", i*10+j), lng, lat))
		}
	}
	return features
}

func worldBounds() orb.Bound {
	return orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}
}

func nodeCounts(nodes []Node) (clusters, leaves, covered int) {
	for _, n := range nodes {
		if n.IsCluster {
			clusters++
		} else {
			leaves++
		}
		covered += n.Count
	}
	return
}

func TestClusteringEndToEnd(t *testing.T) {
	e := New(Config{}, &staticSource{features: boxDataset()})

	nodes := e.Cluster(worldBounds(), 10)
	clusters, leaves, covered := nodeCounts(nodes)
	if len(nodes) >= 150 {
		t.Errorf("expected fewer than 150 nodes at zoom 10, got %d", len(nodes))
	}
	if clusters == 0 {
		t.Error("expected at least one cluster at zoom 10")
	}
	if covered != 150 {
		t.Errorf("coverage broken: %d clusters + %d leaves cover %d of 150 points", clusters, leaves, covered)
	}

	nodes = e.Cluster(worldBounds(), 18)
	clusters, leaves, _ = nodeCounts(nodes)
	if clusters != 0 {
		t.Errorf("no clusters expected above max cluster zoom, got %d", clusters)
	}
	if leaves != 150 {
		t.Errorf("expected 150 leaves at zoom 18, got %d", leaves)
	}
}

func TestClusteringDeterminism(t *testing.T) {
	e := New(Config{}, &staticSource{features: boxDataset()})
	bounds := worldBounds()

	key := func(nodes []Node) string {
		s := ""
		for _, n := range nodes {
			s += fmt.Sprintf("%v:%d:%.9f:%.9f;", n.IsCluster, n.Count, n.Center.Lon(), n.Center.Lat())
		}
		return s
	}

	first := key(e.Cluster(bounds, 10))
	for i := 0; i < 5; i++ {
		if got := key(e.Cluster(bounds, 10)); got != first {
			t.Fatalf("run %d differs from first run", i)
		}
	}
}

func TestCoverageWithinQueriedBounds(t *testing.T) {
	features := boxDataset()
	e := New(Config{}, &staticSource{features: features})

	bounds := orb.Bound{Min: orb.Point{106.70, 10.80}, Max: orb.Point{106.75, 10.85}}
	inBounds := 0
	for _, f := range features {
		if bounds.Contains(f.Geometry.(orb.Point)) {
			inBounds++
		}
	}

	_, _, covered := nodeCounts(e.Cluster(bounds, 12))
	if covered != inBounds {
		t.Errorf("expected %d covered points within bounds, got %d", inBounds, covered)
	}
}

func TestExpansionZoomMonotonic(t *testing.T) {
	e := New(Config{}, &staticSource{features: boxDataset()})
	bounds := worldBounds()
	const zoom = 10

	nodes := e.Cluster(bounds, zoom)
	var target *Node
	for i := range nodes {
		if nodes[i].IsCluster {
			target = &nodes[i]
			break
		}
	}
	if target == nil {
		t.Fatal("no cluster found at zoom 10")
	}

	ez := e.ExpansionZoom(target.ID, zoom)
	if ez <= zoom {
		t.Fatalf("expansion zoom %d not greater than current %d", ez, zoom)
	}
	if ez > 18 {
		t.Fatalf("expansion zoom %d beyond max zoom", ez)
	}

	before := len(e.Cluster(bounds, zoom))
	after := len(e.Cluster(bounds, ez))
	if after <= before && ez != 18 {
		t.Errorf("expected more nodes at expansion zoom %d: before %d, after %d", ez, before, after)
	}
}

func TestExpansionZoomFallback(t *testing.T) {
	e := New(Config{}, &staticSource{features: boxDataset()})
	if got := e.ExpansionZoom(999, 10); got != 12 {
		t.Errorf("expected fallback zoom 12 for stale cluster id, got %d", got)
	}
	if got := e.ExpansionZoom(999, 17); got != 18 {
		t.Errorf("fallback must cap at max zoom, got %d", got)
	}
}

func TestMalformedRecordsExcluded(t *testing.T) {
	features := []feature.Feature{
		point("good", 10, 10),
		point("nan", math.NaN(), 10),
		point("range", 200, 10),
		{ID: "line", Provenance: feature.Committed, Geometry: orb.LineString{{0, 0}, {1, 1}}},
	}
	e := New(Config{}, &staticSource{features: features})

	nodes := e.Cluster(worldBounds(), 5)
	if len(nodes) != 1 || nodes[0].Feature.ID != "good" {
		t.Errorf("expected only the valid point, got %v", nodes)
	}
	if e.Dropped() != 2 {
		t.Errorf("expected 2 dropped records, got %d", e.Dropped())
	}
}

func TestIndexRebuildOnDatasetChange(t *testing.T) {
	src := &staticSource{features: boxDataset()}
	e := New(Config{}, src)

	before := len(e.Cluster(worldBounds(), 18))
	src.features = src.features[:100]
	after := len(e.Cluster(worldBounds(), 18))
	if before != 150 || after != 100 {
		t.Errorf("index did not follow dataset change: before %d, after %d", before, after)
	}
}

func TestZoomClamped(t *testing.T) {
	e := New(Config{}, &staticSource{features: boxDataset()})
	_, leaves, _ := nodeCounts(e.Cluster(worldBounds(), 99))
	if leaves != 150 {
		t.Errorf("zoom above max should clamp and render leaves, got %d", leaves)
	}
}
