// Package drawsync mediates between the interactive drawing surface and
// the persistence API. Drafts stay purely local until submitted;
// committed features get serialized writes with rollback on failure.
package drawsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"github.com/vatsimnerd/util/set"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
	"github.com/Trung-Nam-2512/floodsos-sub001/store"
)

var (
	log = logrus.WithField("module", "drawsync")

	ErrUnknownFeature = fmt.Errorf("unknown feature")
	ErrBusy           = fmt.Errorf("operation already in flight")
)

const defaultSourceName = "relief-features"

type (
	draft struct {
		f     feature.Feature
		state State
	}

	// pendingUpdate is one geometry-edit chain on a committed feature.
	// origin is the last-known-good record restored on failure; next
	// holds a superseding edit made while the first call was in flight.
	pendingUpdate struct {
		origin feature.Feature
		next   orb.Geometry
	}

	Reconciler struct {
		api      API
		store    *store.Store
		renderer Renderer
		source   string
		onError  ErrorFunc

		mu      sync.Mutex
		drafts  map[string]*draft
		updates map[string]*pendingUpdate
		deletes map[string]bool
	}
)

func New(cfg *Config, api API, st *store.Store, renderer Renderer, onError ErrorFunc) *Reconciler {
	source := cfg.SourceName
	if source == "" {
		source = defaultSourceName
	}
	if onError == nil {
		onError = func(err error) {
			log.WithError(err).Error("draw/sync error")
		}
	}
	return &Reconciler{
		api:      api,
		store:    st,
		renderer: renderer,
		source:   source,
		onError:  onError,
		drafts:   make(map[string]*draft),
		updates:  make(map[string]*pendingUpdate),
		deletes:  make(map[string]bool),
	}
}

// BeginDraft captures a finished draw gesture. The geometry is validated
// (open polygon rings are auto-closed) and kept purely local.
func (r *Reconciler) BeginDraft(g orb.Geometry, props geojson.Properties) (string, error) {
	valid, err := feature.ValidateGeometry(g)
	if err != nil {
		return "", err
	}

	d := feature.NewDraft(valid, props)
	r.mu.Lock()
	r.drafts[d.ID] = &draft{f: d, state: StateDrafting}
	r.mu.Unlock()

	log.WithField("id", d.ID).Debug("draft started")
	return d.ID, nil
}

// DiscardDraft drops an unsaved drawing.
func (r *Reconciler) DiscardDraft(localID string) {
	r.mu.Lock()
	delete(r.drafts, localID)
	r.mu.Unlock()
	r.renderer.RemoveDrawing(localID)
}

// Drafts lists the unsaved features currently on the surface.
func (r *Reconciler) Drafts() []feature.Feature {
	r.mu.Lock()
	defer r.mu.Unlock()
	features := make([]feature.Feature, 0, len(r.drafts))
	for _, d := range r.drafts {
		features = append(features, d.f)
	}
	return features
}

// SubmitDraft sends a draft to the persistence API. On success the
// feature is promoted under its server id, merged into the store, and
// the surface's transient copy removed. On failure the draft stays open
// for correction; it is never retried silently.
func (r *Reconciler) SubmitDraft(ctx context.Context, localID string, props geojson.Properties, attachmentBase64 string) error {
	r.mu.Lock()
	d, found := r.drafts[localID]
	if !found {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFeature, localID)
	}
	if d.state != StateDrafting {
		r.mu.Unlock()
		return ErrBusy
	}
	if props != nil {
		d.f.Properties = props
	}
	d.state = StatePendingCreate
	g := d.f.Geometry
	sendProps := d.f.Properties
	r.mu.Unlock()

	created, err := r.api.CreateFeature(ctx, g, sendProps, attachmentBase64)

	r.mu.Lock()
	if err != nil {
		if d, still := r.drafts[localID]; still {
			d.state = StateDrafting
		}
		r.mu.Unlock()
		r.onError(fmt.Errorf("create failed: %v", err))
		return err
	}
	delete(r.drafts, localID)
	r.mu.Unlock()

	log.WithFields(logrus.Fields{
		"local_id":  localID,
		"server_id": created.ID,
	}).Debug("draft committed")

	r.store.Set(created)
	r.renderer.RemoveDrawing(localID)
	r.SyncRender()
	return nil
}

// MoveGeometry handles a drag-release on the surface. A draft moves
// purely locally; a committed feature gets an optimistic store update
// and exactly one persistence call per release, serialized per feature
// with supersede semantics.
func (r *Reconciler) MoveGeometry(ctx context.Context, id string, g orb.Geometry) error {
	valid, err := feature.ValidateGeometry(g)
	if err != nil {
		return err
	}

	r.mu.Lock()

	if d, isDraft := r.drafts[id]; isDraft {
		d.f.Geometry = valid
		r.mu.Unlock()
		return nil
	}

	current, found := r.store.Get(id)
	if !found {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFeature, id)
	}
	if r.deletes[id] {
		r.mu.Unlock()
		return ErrBusy
	}

	moved := current
	moved.Geometry = valid
	r.store.Set(moved)

	if pu, inFlight := r.updates[id]; inFlight {
		pu.next = valid
		r.mu.Unlock()
		return nil
	}
	r.updates[id] = &pendingUpdate{origin: current}
	r.mu.Unlock()

	go r.issueUpdate(ctx, id, valid)
	return nil
}

func (r *Reconciler) issueUpdate(ctx context.Context, id string, g orb.Geometry) {
	canonical, err := r.api.UpdateFeature(ctx, id, g, nil)

	r.mu.Lock()
	pu := r.updates[id]
	if pu == nil {
		r.mu.Unlock()
		return
	}

	if err != nil {
		// restore last-known-good and drop any superseding edit
		delete(r.updates, id)
		origin := pu.origin
		r.mu.Unlock()
		r.store.Set(origin)
		r.onError(fmt.Errorf("update of %s failed: %v", id, err))
		return
	}

	if pu.next != nil {
		next := pu.next
		pu.next = nil
		r.mu.Unlock()
		go r.issueUpdate(ctx, id, next)
		return
	}

	delete(r.updates, id)
	r.mu.Unlock()
	r.store.Set(canonical)
}

// Delete removes committed features. Deletes are not optimistic: the
// remote call settles first. Multiple ids are issued sequentially and
// independently; one failure does not block the rest.
func (r *Reconciler) Delete(ctx context.Context, ids ...string) {
	seen := set.New[string]()
	for _, id := range ids {
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		r.deleteOne(ctx, id)
	}
}

func (r *Reconciler) deleteOne(ctx context.Context, id string) {
	r.mu.Lock()

	if _, isDraft := r.drafts[id]; isDraft {
		delete(r.drafts, id)
		r.mu.Unlock()
		r.renderer.RemoveDrawing(id)
		return
	}

	if _, found := r.store.Get(id); !found {
		r.mu.Unlock()
		r.onError(fmt.Errorf("%w: %s", ErrUnknownFeature, id))
		return
	}
	if r.deletes[id] || r.updates[id] != nil {
		r.mu.Unlock()
		r.onError(fmt.Errorf("%w: %s", ErrBusy, id))
		return
	}
	r.deletes[id] = true
	r.mu.Unlock()

	err := r.api.DeleteFeature(ctx, id)

	r.mu.Lock()
	delete(r.deletes, id)
	r.mu.Unlock()

	if err != nil {
		r.onError(fmt.Errorf("delete of %s failed: %v", id, err))
		return
	}
	r.store.Delete(id)
}

// State reports the lifecycle position of a feature by id.
func (r *Reconciler) State(id string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, found := r.drafts[id]; found {
		return d.state, true
	}
	if r.deletes[id] {
		return StatePendingDelete, true
	}
	if r.updates[id] != nil {
		return StatePendingUpdate, true
	}
	if _, found := r.store.Get(id); found {
		return StateCommitted, true
	}
	return StateCommitted, false
}

// SyncRender replaces the render source with the full committed set.
// No diffing: the render layer is the single visual source of truth and
// an in-flight edit is expected to be overwritten by the next tick. A
// missing source is re-initialized and the write retried once.
func (r *Reconciler) SyncRender() {
	fc := geojson.NewFeatureCollection()
	for _, f := range r.store.Snapshot() {
		fc.Append(f.ToGeoJSON())
	}

	if !r.renderer.HasSource(r.source) {
		if err := r.renderer.AddSource(r.source); err != nil {
			r.onError(fmt.Errorf("render source init failed: %v", err))
			return
		}
	}

	if err := r.renderer.SetData(r.source, fc); err != nil {
		log.WithError(err).Debug("render sync failed, re-initializing source")
		if err := r.renderer.AddSource(r.source); err != nil {
			r.onError(fmt.Errorf("render source re-init failed: %v", err))
			return
		}
		if err := r.renderer.SetData(r.source, fc); err != nil {
			r.onError(fmt.Errorf("render sync failed after re-init: %v", err))
		}
	}
}
