// Package mapengine composes the feature store, polling refresher,
// cluster engine, viewport, draw/sync reconciler and optimistic
// mutation controller into one live map session.
package mapengine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"github.com/vatsimnerd/util/pubsub"

	"github.com/Trung-Nam-2512/floodsos-sub001/cluster"
	"github.com/Trung-Nam-2512/floodsos-sub001/debounce"
	"github.com/Trung-Nam-2512/floodsos-sub001/drawsync"
	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
	"github.com/Trung-Nam-2512/floodsos-sub001/optimistic"
	reliefapi "github.com/Trung-Nam-2512/floodsos-sub001/relief-api"
	"github.com/Trung-Nam-2512/floodsos-sub001/store"
	"github.com/Trung-Nam-2512/floodsos-sub001/viewport"
)

var (
	log = logrus.WithField("module", "map-engine")

	errNotFound = fmt.Errorf("not found")
)

const (
	statusField = "status"

	defaultSearchDelay = 300 * time.Millisecond
	defaultRenderDelay = 50 * time.Millisecond

	// focusZoom is the minimum zoom a single-record fly-to lands on,
	// deep enough that the target renders as a leaf.
	focusZoom = 17
)

type Engine struct {
	cfg Config

	client    *reliefapi.Client
	store     *store.Store
	refresher *store.Refresher
	grid      *cluster.Engine
	view      *viewport.Controller
	draw      *drawsync.Reconciler
	mutations *optimistic.Controller

	stop    chan bool
	stopped bool

	mu           sync.Mutex
	query        string
	onClusters   func([]cluster.Node)
	onSearch     func(query string, hits []feature.Feature)
	searchKick   func()
	searchCancel func()
	renderKick   func()
	renderCancel func()
}

// New wires the session together. The renderer is the embedding UI's
// map surface; onError receives recoverable persistence failures (nil
// falls back to logging).
func New(cfg Config, initial viewport.Camera, renderer drawsync.Renderer, onError drawsync.ErrorFunc) *Engine {
	if cfg.SearchDelay <= 0 {
		cfg.SearchDelay = defaultSearchDelay
	}
	if cfg.RenderDelay <= 0 {
		cfg.RenderDelay = defaultRenderDelay
	}

	client := reliefapi.New(&cfg.API)
	if cfg.Store.URL == "" {
		cfg.Store.URL = client.FeaturesURL()
	}

	st := store.New()

	e := &Engine{
		cfg:       cfg,
		client:    client,
		store:     st,
		refresher: store.NewRefresher(&cfg.Store, st),
		grid:      cluster.New(cfg.Cluster, st),
		view:      viewport.New(cfg.Viewport, initial),
		draw:      drawsync.New(&cfg.Draw, client, st, renderer, onError),
		stop:      make(chan bool),
	}
	e.mutations = optimistic.New(st, e.remoteMutation, mutationErrors(onError))
	e.searchKick, e.searchCancel = debounce.Debounce(cfg.SearchDelay, e.runSearch)
	e.renderKick, e.renderCancel = debounce.Throttle(cfg.RenderDelay, e.refreshView)
	return e
}

func (e *Engine) Start() error {
	if e.stopped {
		return fmt.Errorf("can't start once stopped engine")
	}
	e.view.OnSettle(func(viewport.Camera) {
		e.notifyClusters()
	})
	sub := e.store.Subscribe(32768)
	if err := e.refresher.Start(); err != nil {
		return err
	}
	go e.loop(sub)
	return nil
}

func (e *Engine) Stop() {
	e.stopped = true
	e.stop <- true
	e.refresher.Stop()
	e.view.Close()
	e.searchCancel()
	e.renderCancel()
}

func (e *Engine) loop(sub pubsub.Subscription) {
	count := 0
	for {
		select {
		case upd := <-sub.Updates():
			count++
			if count%1000 == 0 {
				log.Debugf("accumulated %d updates from the feature store", count)
			}
			switch upd.UType {
			case pubsub.UpdateTypeFin:
				// authoritative refresh tick, render right away
				e.refreshView()
			case pubsub.UpdateTypeSet, pubsub.UpdateTypeDelete:
				// a local edit renders on the leading edge; the rest of
				// the burst coalesces into one trailing write
				e.renderKick()
			}
		case <-e.stop:
			return
		}
	}
}

// refreshView pushes the committed set to the renderer and recomputes
// everything derived from it.
func (e *Engine) refreshView() {
	e.draw.SyncRender()
	e.notifyClusters()

	e.mu.Lock()
	active := e.query != ""
	e.mu.Unlock()
	if active {
		e.searchKick()
	}
}

// OnClusters registers the listener receiving the node set after every
// camera settle and data change.
func (e *Engine) OnClusters(fn func([]cluster.Node)) {
	e.mu.Lock()
	e.onClusters = fn
	e.mu.Unlock()
}

func (e *Engine) notifyClusters() {
	e.mu.Lock()
	fn := e.onClusters
	e.mu.Unlock()
	if fn == nil {
		return
	}
	fn(e.Clusters())
}

// Clusters computes the node set for the current camera.
func (e *Engine) Clusters() []cluster.Node {
	cam := e.view.Camera()
	return e.grid.Cluster(e.view.Bounds(), int(math.Round(cam.Zoom)))
}

// ExpandCluster zooms into a clicked cluster node. A leaf just
// recenters at the current zoom.
func (e *Engine) ExpandCluster(node cluster.Node) {
	cam := e.view.Camera()
	if !node.IsCluster {
		e.view.FlyTo(node.Center, cam.Zoom)
		return
	}
	z := e.grid.ExpansionZoom(node.ID, int(math.Round(cam.Zoom)))
	e.view.FlyTo(node.Center, float64(z))
}

// FocusFeature recenters on a single record, zooming in far enough
// that it renders as a leaf.
func (e *Engine) FocusFeature(id string) error {
	f, found := e.store.Get(id)
	if !found {
		return fmt.Errorf("%w: %s", errNotFound, id)
	}
	cam := e.view.Camera()
	e.view.FlyTo(f.Center(), math.Max(cam.Zoom, focusZoom))
	return nil
}

// SetStatus mutates the triage status of a record optimistically.
func (e *Engine) SetStatus(ctx context.Context, id, status string) error {
	return e.mutations.Mutate(ctx, id, statusField, status)
}

// MutateProperty applies any other property change optimistically.
func (e *Engine) MutateProperty(ctx context.Context, id, field string, value interface{}) error {
	return e.mutations.Mutate(ctx, id, field, value)
}

func (e *Engine) remoteMutation(ctx context.Context, id, field string, value interface{}) (*feature.Feature, error) {
	if field == statusField {
		status, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("status value is expected to be string, got %T", value)
		}
		f, err := e.client.SetStatus(ctx, id, status)
		if err != nil {
			return nil, err
		}
		return &f, nil
	}
	f, err := e.client.UpdateFeature(ctx, id, nil, geojson.Properties{field: value})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FilterBySearch schedules a text search over the committed set.
// Results arrive via OnSearchResults once the query rests; an empty
// query clears the filter and reports the full set.
func (e *Engine) FilterBySearch(query string) {
	e.mu.Lock()
	e.query = strings.TrimSpace(query)
	e.mu.Unlock()
	e.searchKick()
}

func (e *Engine) OnSearchResults(fn func(query string, hits []feature.Feature)) {
	e.mu.Lock()
	e.onSearch = fn
	e.mu.Unlock()
}

func (e *Engine) runSearch() {
	e.mu.Lock()
	query := e.query
	fn := e.onSearch
	e.mu.Unlock()
	if fn == nil {
		return
	}
	fn(query, searchFeatures(e.store.Snapshot(), query))
}

// SetVisible reports map view visibility; the poll period doubles
// while hidden.
func (e *Engine) SetVisible(visible bool) {
	e.refresher.SetVisible(visible)
}

func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) Viewport() *viewport.Controller {
	return e.view
}

func (e *Engine) Draw() *drawsync.Reconciler {
	return e.draw
}

func searchFeatures(features []feature.Feature, query string) []feature.Feature {
	q := strings.ToLower(query)
	hits := make([]feature.Feature, 0, len(features))
	for _, f := range features {
		if q == "" || matches(f, q) {
			hits = append(hits, f)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].ID < hits[j].ID
	})
	return hits
}

func matches(f feature.Feature, q string) bool {
	for _, key := range []string{"title", "description", "status"} {
		v, found := f.Properties[key]
		if !found {
			continue
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

func mutationErrors(onError drawsync.ErrorFunc) optimistic.ErrorFunc {
	if onError == nil {
		return nil
	}
	return func(id, field string, err error) {
		onError(fmt.Errorf("mutation of %s on %s failed: %v", field, id, err))
	}
}
