package optimistic

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

type memStore struct {
	mu       sync.Mutex
	features map[string]feature.Feature
}

func newMemStore(features ...feature.Feature) *memStore {
	m := &memStore{features: make(map[string]feature.Feature)}
	for _, f := range features {
		m.features[f.ID] = f
	}
	return m
}

func (m *memStore) Get(id string) (feature.Feature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, found := m.features[id]
	return f, found
}

func (m *memStore) Set(f feature.Feature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[f.ID] = f
}

func (m *memStore) status(t *testing.T, id string) string {
	t.Helper()
	f, found := m.Get(id)
	require.True(t, found)
	return f.Status()
}

type errorCounter struct {
	mu    sync.Mutex
	count int
}

func (e *errorCounter) fn(string, string, error) {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()
}

func (e *errorCounter) get() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func record(id, status string) feature.Feature {
	return feature.Feature{
		ID:         id,
		Provenance: feature.Committed,
		Geometry:   orb.Point{1, 2},
		Properties: geojson.Properties{"status": status},
	}
}

func waitSettled(t *testing.T, c *Controller, id, field string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.InFlight(id, field) {
		if time.Now().After(deadline) {
			t.Fatal("mutation chain never settled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOptimisticApplyThenCommit(t *testing.T) {
	store := newMemStore(record("r1", "A"))
	remote := func(ctx context.Context, id, field string, value interface{}) (*feature.Feature, error) {
		f := record(id, value.(string))
		return &f, nil
	}
	errs := &errorCounter{}
	c := New(store, remote, errs.fn)

	require.NoError(t, c.Mutate(context.Background(), "r1", "status", "B"))
	// optimistic apply is synchronous
	assert.Equal(t, "B", store.status(t, "r1"))

	waitSettled(t, c, "r1", "status")
	assert.Equal(t, "B", store.status(t, "r1"))
	assert.Equal(t, 0, errs.get())
}

func TestRollbackOnFailure(t *testing.T) {
	store := newMemStore(record("r1", "A"))
	release := make(chan struct{})
	remote := func(ctx context.Context, id, field string, value interface{}) (*feature.Feature, error) {
		<-release
		return nil, fmt.Errorf("write rejected")
	}
	errs := &errorCounter{}
	c := New(store, remote, errs.fn)

	require.NoError(t, c.Mutate(context.Background(), "r1", "status", "B"))
	assert.Equal(t, "B", store.status(t, "r1"), "UI must reflect the change before the write settles")

	close(release)
	waitSettled(t, c, "r1", "status")

	assert.Equal(t, "A", store.status(t, "r1"), "failed mutation must roll back")
	assert.Equal(t, 1, errs.get(), "error surfaced exactly once")
}

func TestChainedRollbackTargetsOrigin(t *testing.T) {
	store := newMemStore(record("r1", "A"))

	gates := map[string]chan error{
		"B": make(chan error, 1),
		"C": make(chan error, 1),
	}
	remote := func(ctx context.Context, id, field string, value interface{}) (*feature.Feature, error) {
		if err := <-gates[value.(string)]; err != nil {
			return nil, err
		}
		f := record(id, value.(string))
		return &f, nil
	}
	errs := &errorCounter{}
	c := New(store, remote, errs.fn)
	ctx := context.Background()

	require.NoError(t, c.Mutate(ctx, "r1", "status", "B"))
	require.NoError(t, c.Mutate(ctx, "r1", "status", "C"))
	assert.Equal(t, "C", store.status(t, "r1"), "latest requested value wins while in flight")

	gates["B"] <- fmt.Errorf("rejected B")
	gates["C"] <- fmt.Errorf("rejected C")
	waitSettled(t, c, "r1", "status")

	assert.Equal(t, "A", store.status(t, "r1"), "rollback must restore the pre-chain value, never B")
	assert.Equal(t, 1, errs.get(), "one error for the whole chain")
}

func TestStaleSuccessDoesNotClobberSupersedingValue(t *testing.T) {
	store := newMemStore(record("r1", "A"))

	gates := map[string]chan error{
		"B": make(chan error, 1),
		"C": make(chan error, 1),
	}
	remote := func(ctx context.Context, id, field string, value interface{}) (*feature.Feature, error) {
		if err := <-gates[value.(string)]; err != nil {
			return nil, err
		}
		f := record(id, "canon-"+value.(string))
		return &f, nil
	}
	c := New(store, remote, nil)
	ctx := context.Background()

	require.NoError(t, c.Mutate(ctx, "r1", "status", "B"))
	require.NoError(t, c.Mutate(ctx, "r1", "status", "C"))

	// C settles first, then B's late success arrives
	gates["C"] <- nil
	time.Sleep(20 * time.Millisecond)
	gates["B"] <- nil
	waitSettled(t, c, "r1", "status")

	assert.Equal(t, "canon-C", store.status(t, "r1"), "stale canonical response must be discarded")
}

func TestMutateUnknownRecord(t *testing.T) {
	c := New(newMemStore(), nil, nil)
	err := c.Mutate(context.Background(), "ghost", "status", "B")
	assert.ErrorIs(t, err, ErrUnknownRecord)
}
