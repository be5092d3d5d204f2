package drawsync

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

type (
	// State is the per-feature lifecycle position. Failures resolve back
	// to Committed (rollback) or Drafting (failed create, left open).
	State int

	// Renderer is the map rendering collaborator: a named vector source
	// whose collection is replaced wholesale, plus removal of the draw
	// surface's transient copy once a create commits.
	Renderer interface {
		HasSource(name string) bool
		AddSource(name string) error
		SetData(name string, fc *geojson.FeatureCollection) error
		RemoveDrawing(localID string)
	}

	// API is the slice of the persistence client the reconciler issues
	// writes through.
	API interface {
		CreateFeature(ctx context.Context, g orb.Geometry, props geojson.Properties, attachmentBase64 string) (feature.Feature, error)
		UpdateFeature(ctx context.Context, id string, g orb.Geometry, props geojson.Properties) (feature.Feature, error)
		DeleteFeature(ctx context.Context, id string) error
	}

	// ErrorFunc surfaces recoverable errors to the operator (toast or
	// notification in the embedding UI).
	ErrorFunc func(err error)

	Config struct {
		// SourceName is the vector source the committed set renders to.
		SourceName string `mapstructure:"source_name,omitempty"`
	}
)

const (
	StateDrafting State = iota
	StatePendingCreate
	StateCommitted
	StatePendingUpdate
	StatePendingDelete
)

func (s State) String() string {
	switch s {
	case StateDrafting:
		return "drafting"
	case StatePendingCreate:
		return "pending-create"
	case StateCommitted:
		return "committed"
	case StatePendingUpdate:
		return "pending-update"
	case StatePendingDelete:
		return "pending-delete"
	}
	return "unknown"
}
