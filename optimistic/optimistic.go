// Package optimistic applies property mutations locally before the
// remote write confirms, and rolls the whole chain back to its origin
// value when the write fails. Creates and deletes are not optimistic;
// they live in the draw/sync layer.
package optimistic

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

var (
	log = logrus.WithField("module", "optimistic")

	ErrUnknownRecord = fmt.Errorf("unknown record")
)

type (
	// Applier is the slice of the geometry store mutations flow through.
	Applier interface {
		Get(id string) (feature.Feature, bool)
		Set(f feature.Feature)
	}

	// RemoteFunc issues the authoritative write. A non-nil canonical
	// feature carries server-normalized fields to merge back.
	RemoteFunc func(ctx context.Context, id, field string, value interface{}) (*feature.Feature, error)

	// ErrorFunc surfaces a failed chain to the operator, exactly once.
	ErrorFunc func(id, field string, err error)

	mutationKey struct {
		id    string
		field string
	}

	// chain tracks overlapping mutations of one (record, field) pair.
	// The origin snapshot is taken before the first in-flight call and
	// is the single rollback target for the whole chain.
	chain struct {
		origin        interface{}
		originPresent bool
		latestSeq     uint64
		inflight      int
		failed        bool
		lastErr       error
	}

	Controller struct {
		store   Applier
		remote  RemoteFunc
		onError ErrorFunc

		mu      sync.Mutex
		pending map[mutationKey]*chain
	}
)

func New(store Applier, remote RemoteFunc, onError ErrorFunc) *Controller {
	if onError == nil {
		onError = func(id, field string, err error) {
			log.WithError(err).WithFields(logrus.Fields{
				"id":    id,
				"field": field,
			}).Error("mutation failed")
		}
	}
	return &Controller{
		store:   store,
		remote:  remote,
		onError: onError,
		pending: make(map[mutationKey]*chain),
	}
}

// Mutate applies newValue to the store immediately and issues the remote
// write. Overlapping calls on the same (record, field) supersede each
// other: the latest requested value wins, and a failure anywhere in the
// chain restores the value that was current before the first call.
func (c *Controller) Mutate(ctx context.Context, id, field string, newValue interface{}) error {
	c.mu.Lock()

	rec, found := c.store.Get(id)
	if !found {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}

	key := mutationKey{id: id, field: field}
	ch, inFlight := c.pending[key]
	if !inFlight {
		origin, present := rec.Properties[field]
		ch = &chain{origin: origin, originPresent: present}
		c.pending[key] = ch
	}

	rec.Properties = cloneProps(rec.Properties)
	rec.Properties[field] = newValue
	c.store.Set(rec)

	ch.inflight++
	ch.latestSeq++
	seq := ch.latestSeq
	c.mu.Unlock()

	go c.resolve(ctx, key, seq, newValue)
	return nil
}

// InFlight reports whether a mutation chain is pending for the pair.
func (c *Controller) InFlight(id, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, found := c.pending[mutationKey{id: id, field: field}]
	return found
}

func (c *Controller) resolve(ctx context.Context, key mutationKey, seq uint64, value interface{}) {
	canonical, err := c.remote(ctx, key.id, key.field, value)

	c.mu.Lock()
	ch := c.pending[key]
	if ch == nil {
		c.mu.Unlock()
		return
	}
	ch.inflight--

	if err != nil {
		ch.failed = true
		ch.lastErr = err
	} else if seq == ch.latestSeq && canonical != nil && !ch.failed {
		// merge server-normalized fields, but never let a stale
		// response overwrite a superseding local value
		c.store.Set(*canonical)
	}

	if ch.inflight > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)

	if !ch.failed {
		c.mu.Unlock()
		return
	}

	// rollback to the pre-chain value, never to an intermediate one
	if rec, found := c.store.Get(key.id); found {
		rec.Properties = cloneProps(rec.Properties)
		if ch.originPresent {
			rec.Properties[key.field] = ch.origin
		} else {
			delete(rec.Properties, key.field)
		}
		c.store.Set(rec)
	}
	onError := c.onError
	lastErr := ch.lastErr
	c.mu.Unlock()

	onError(key.id, key.field, lastErr)
}

func cloneProps(props geojson.Properties) geojson.Properties {
	clone := make(geojson.Properties, len(props)+1)
	for k, v := range props {
		clone[k] = v
	}
	return clone
}
