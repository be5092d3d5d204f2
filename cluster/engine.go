package cluster

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

var (
	log = logrus.WithField("module", "cluster")
)

type (
	Config struct {
		MinZoom int `mapstructure:"min_zoom,omitempty"`
		MaxZoom int `mapstructure:"max_zoom,omitempty"`
		// MaxClusterZoom is the last zoom at which clusters form; above
		// it every record renders as a leaf.
		MaxClusterZoom int `mapstructure:"max_cluster_zoom,omitempty"`
		// MinPoints is the minimum membership for a cluster node.
		MinPoints int `mapstructure:"min_points,omitempty"`
		// Radius is the merge distance in screen pixels.
		Radius float64 `mapstructure:"radius,omitempty"`
		// Extent is the pixel size of a world tile at zoom 0.
		Extent float64 `mapstructure:"extent,omitempty"`
	}

	// Node is either a cluster or a single-record leaf. Cluster ids are
	// internal indexes, valid only until the next computation.
	Node struct {
		IsCluster bool
		ID        int
		Center    orb.Point
		Count     int
		Feature   feature.Feature
	}

	// Snapshotter is the slice of the geometry store the engine reads.
	Snapshotter interface {
		Snapshot() []feature.Feature
	}

	indexed struct {
		f feature.Feature
		p orb.Point
	}

	// Engine computes zoom-dependent cluster sets over the store
	// snapshot. The spatial index is private and rebuilt only when the
	// record set signature changes.
	Engine struct {
		cfg    Config
		source Snapshotter

		mu      sync.Mutex
		sig     uint64
		haveSig bool
		pts     []indexed
		dropped int
		// members per cluster id from the latest computation, consumed
		// by ExpansionZoom right after a click
		lastMembers [][]int
	}
)

func normalize(cfg Config) Config {
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 18
	}
	if cfg.MinZoom < 0 {
		cfg.MinZoom = 0
	}
	if cfg.MinZoom > cfg.MaxZoom {
		cfg.MinZoom = cfg.MaxZoom
	}
	if cfg.MaxClusterZoom <= 0 {
		cfg.MaxClusterZoom = 16
	}
	if cfg.MinPoints < 2 {
		cfg.MinPoints = 2
	}
	if cfg.Radius <= 0 {
		cfg.Radius = 60
	}
	if cfg.Extent <= 0 {
		cfg.Extent = 256
	}
	return cfg
}

func New(cfg Config, source Snapshotter) *Engine {
	return &Engine{cfg: normalize(cfg), source: source}
}

// Dropped is the count of malformed records excluded by the last index
// rebuild, surfaced as a diagnostic only.
func (e *Engine) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Cluster computes the node set for the given geographic bounds and
// zoom. Zoom is clamped to the configured range. The result is built
// fresh on every call; only the spatial index is cached.
func (e *Engine) Cluster(bounds orb.Bound, zoom int) []Node {
	if zoom < e.cfg.MinZoom {
		zoom = e.cfg.MinZoom
	}
	if zoom > e.cfg.MaxZoom {
		zoom = e.cfg.MaxZoom
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureIndex()

	candidates := make([]int, 0, len(e.pts))
	for i, pt := range e.pts {
		if bounds.Contains(pt.p) {
			candidates = append(candidates, i)
		}
	}

	if zoom > e.cfg.MaxClusterZoom {
		nodes := make([]Node, 0, len(candidates))
		for _, i := range candidates {
			nodes = append(nodes, e.leaf(i))
		}
		e.lastMembers = nil
		return nodes
	}

	nodes, members := e.clusterMembers(candidates, zoom)
	e.lastMembers = members
	return nodes
}

// ExpansionZoom returns the minimal zoom at which the given cluster's
// members separate into at least 2 nodes, capped at MaxZoom. A stale or
// unknown cluster id degrades to currentZoom+2; it never fails.
func (e *Engine) ExpansionZoom(clusterID, currentZoom int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if clusterID < 0 || clusterID >= len(e.lastMembers) || len(e.lastMembers[clusterID]) == 0 {
		log.WithField("cluster_id", clusterID).Debug("stale cluster id, using fallback expansion zoom")
		z := currentZoom + 2
		if z > e.cfg.MaxZoom {
			z = e.cfg.MaxZoom
		}
		return z
	}

	members := e.lastMembers[clusterID]
	for z := currentZoom + 1; z < e.cfg.MaxZoom; z++ {
		if z > e.cfg.MaxClusterZoom {
			return z
		}
		nodes, _ := e.clusterMembers(members, z)
		if len(nodes) >= 2 {
			return z
		}
	}
	return e.cfg.MaxZoom
}

// ensureIndex rebuilds the point index only when the record set
// signature (count + id summary) changed. A signature collision can miss
// a rebuild; that trade is accepted for O(1) change detection.
func (e *Engine) ensureIndex() {
	snapshot := e.source.Snapshot()
	sig := signature(snapshot)
	if e.haveSig && sig == e.sig {
		return
	}

	pts := make([]indexed, 0, len(snapshot))
	dropped := 0
	for _, f := range snapshot {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			// lines and polygons are rendered as overlays, never clustered
			continue
		}
		if !feature.ValidPoint(p) {
			dropped++
			continue
		}
		pts = append(pts, indexed{f: f, p: p})
	}

	// stable order keeps clustering deterministic across rebuilds
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].p[0] != pts[j].p[0] {
			return pts[i].p[0] < pts[j].p[0]
		}
		if pts[i].p[1] != pts[j].p[1] {
			return pts[i].p[1] < pts[j].p[1]
		}
		return pts[i].f.ID < pts[j].f.ID
	})

	if dropped > 0 {
		log.WithField("dropped", dropped).Debug("excluded malformed records from index")
	}

	e.pts = pts
	e.dropped = dropped
	e.sig = sig
	e.haveSig = true
	e.lastMembers = nil
}

// clusterMembers merges the given point indexes at the given zoom with
// an X-sorted radius scan. Every input point lands in exactly one
// cluster or leaf.
func (e *Engine) clusterMembers(idxs []int, zoom int) ([]Node, [][]int) {
	type projected struct {
		idx  int
		x, y float64
	}

	pts := make([]projected, len(idxs))
	for i, idx := range idxs {
		x, y := project(e.pts[idx].p, zoom, e.cfg.Extent)
		pts[i] = projected{idx: idx, x: x, y: y}
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		if pts[i].y != pts[j].y {
			return pts[i].y < pts[j].y
		}
		return e.pts[pts[i].idx].f.ID < e.pts[pts[j].idx].f.ID
	})

	radius := e.cfg.Radius
	nodes := make([]Node, 0, len(pts))
	members := make([][]int, 0)
	processed := make([]bool, len(pts))

	for i, p := range pts {
		if processed[i] {
			continue
		}

		group := []int{i}
		for j := i + 1; j < len(pts); j++ {
			other := pts[j]
			if other.x-p.x > radius {
				break
			}
			if processed[j] {
				continue
			}
			dx := other.x - p.x
			dy := other.y - p.y
			if dx*dx+dy*dy <= radius*radius {
				group = append(group, j)
			}
		}

		if len(group) >= e.cfg.MinPoints {
			var sumX, sumY float64
			idxGroup := make([]int, len(group))
			for gi, g := range group {
				sumX += pts[g].x
				sumY += pts[g].y
				idxGroup[gi] = pts[g].idx
				processed[g] = true
			}
			inv := 1 / float64(len(group))
			nodes = append(nodes, Node{
				IsCluster: true,
				ID:        len(members),
				Center:    unproject(sumX*inv, sumY*inv, zoom, e.cfg.Extent),
				Count:     len(group),
			})
			members = append(members, idxGroup)
		} else {
			processed[i] = true
			nodes = append(nodes, e.leaf(p.idx))
		}
	}

	return nodes, members
}

func (e *Engine) leaf(idx int) Node {
	pt := e.pts[idx]
	return Node{
		IsCluster: false,
		ID:        -1,
		Center:    pt.p,
		Count:     1,
		Feature:   pt.f,
	}
}

// signature is a cheap structural summary of the record set: count plus
// an order-independent hash of identities. Content changes that keep ids
// stable are deliberately invisible here.
func signature(features []feature.Feature) uint64 {
	var acc uint64
	for _, f := range features {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f.ID))
		acc ^= h.Sum64()
	}
	return acc ^ uint64(len(features))<<48
}
