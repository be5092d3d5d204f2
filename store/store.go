package store

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vatsimnerd/util/mapupdate"
	"github.com/vatsimnerd/util/pubsub"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

const (
	ObjectTypeFeature pubsub.ObjectType = 100 + iota
)

var (
	log = logrus.WithField("module", "store")
)

// Store is the session-authoritative set of committed features. It is
// mutated only by the refresher merge, the draw/sync layer and the
// optimistic mutation controller; render code reads snapshots.
type Store struct {
	*pubsub.Provider

	features map[string]feature.Feature

	dataLock sync.RWMutex
}

func New() *Store {
	s := &Store{
		Provider: pubsub.NewProvider(),
		features: make(map[string]feature.Feature),
	}

	s.SetInitialNotifier(func(sub pubsub.Subscription) {
		// async so a large initial set can't fill the chan buffer
		// before the subscriber starts reading
		go func() {
			s.dataLock.RLock()
			defer s.dataLock.RUnlock()
			for _, f := range s.features {
				sub.Send(pubsub.Update{UType: pubsub.UpdateTypeSet, OType: ObjectTypeFeature, Obj: f})
			}
		}()
	})

	return s
}

func (s *Store) Get(id string) (feature.Feature, bool) {
	s.dataLock.RLock()
	defer s.dataLock.RUnlock()
	f, found := s.features[id]
	return f, found
}

// Set inserts or replaces a committed feature. Drafts never enter the
// store; they live on the drawing surface until a create settles.
func (s *Store) Set(f feature.Feature) {
	if f.IsDraft() {
		log.WithField("id", f.ID).Error("refusing to store a draft feature")
		return
	}
	s.dataLock.Lock()
	s.features[f.ID] = f
	s.dataLock.Unlock()
	s.Notify(pubsub.Update{UType: pubsub.UpdateTypeSet, OType: ObjectTypeFeature, Obj: f})
}

func (s *Store) Delete(id string) {
	s.dataLock.Lock()
	ex, found := s.features[id]
	if found {
		delete(s.features, id)
	}
	s.dataLock.Unlock()
	if found {
		s.Notify(pubsub.Update{UType: pubsub.UpdateTypeDelete, OType: ObjectTypeFeature, Obj: ex})
	}
}

func (s *Store) Len() int {
	s.dataLock.RLock()
	defer s.dataLock.RUnlock()
	return len(s.features)
}

// Snapshot returns a copy of the committed set, safe to iterate while
// the store keeps changing.
func (s *Store) Snapshot() []feature.Feature {
	s.dataLock.RLock()
	defer s.dataLock.RUnlock()
	features := make([]feature.Feature, 0, len(s.features))
	for _, f := range s.features {
		features = append(features, f)
	}
	return features
}

// ApplyRefresh merges a full authoritative fetch into the store. A
// record present locally but missing from the fetch is removed; changed
// records produce set updates, unchanged ones stay silent.
func (s *Store) ApplyRefresh(fresh []feature.Feature) {
	next := make(map[string]feature.Feature, len(fresh))
	for _, f := range fresh {
		if f.IsDraft() || f.ID == "" {
			log.WithField("id", f.ID).Trace("skipping non-committed record in refresh")
			continue
		}
		next[f.ID] = f
	}

	set, del := mapupdate.Update[feature.Feature, mapupdate.Comparable[feature.Feature]](s.features, next, &s.dataLock)
	log.WithFields(logrus.Fields{
		"total":   len(next),
		"set":     len(set),
		"deleted": len(del),
	}).Debug("refresh merged")

	for _, update := range pubsub.MakeUpdates(set, del, ObjectTypeFeature) {
		s.Notify(update)
	}
	s.Fin()
	s.SetDataReady(true)
}
