package feature

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type (
	// Provenance tells whether a feature identity is recognized by the
	// server. Drafts carry a locally generated id that must never be sent
	// as a server id.
	Provenance int

	// Feature is a single map record: a rescue request, a safe point or a
	// free-form annotation drawn by an operator.
	Feature struct {
		ID         string             `json:"id"`
		Provenance Provenance         `json:"-"`
		Geometry   orb.Geometry       `json:"geometry"`
		Properties geojson.Properties `json:"properties"`
	}
)

const (
	Draft Provenance = iota
	Committed
)

// NewDraft builds a locally owned feature with a generated identity.
func NewDraft(g orb.Geometry, props geojson.Properties) Feature {
	if props == nil {
		props = geojson.Properties{}
	}
	return Feature{
		ID:         "draft-" + uuid.NewString(),
		Provenance: Draft,
		Geometry:   g,
		Properties: props,
	}
}

// Promote returns the committed form of a draft under the server-assigned id.
func (f Feature) Promote(serverID string) Feature {
	f.ID = serverID
	f.Provenance = Committed
	return f
}

func (f Feature) IsDraft() bool {
	return f.Provenance == Draft
}

// Status reads the triage status property, empty if unset.
func (f Feature) Status() string {
	if f.Properties == nil {
		return ""
	}
	if s, ok := f.Properties["status"].(string); ok {
		return s
	}
	return ""
}

// Center is the representative point used for clustering and fly-to.
func (f Feature) Center() orb.Point {
	if f.Geometry == nil {
		return orb.Point{}
	}
	if p, ok := f.Geometry.(orb.Point); ok {
		return p
	}
	return f.Geometry.Bound().Center()
}

func (f Feature) NE(o Feature) bool {
	if f.ID != o.ID || f.Provenance != o.Provenance {
		return true
	}
	if (f.Geometry == nil) != (o.Geometry == nil) {
		return true
	}
	if f.Geometry != nil && !orb.Equal(f.Geometry, o.Geometry) {
		return true
	}
	if len(f.Properties) != len(o.Properties) {
		return true
	}
	for k, v := range f.Properties {
		ov, found := o.Properties[k]
		if !found || !reflect.DeepEqual(v, ov) {
			return true
		}
	}
	return false
}

// ToGeoJSON produces the render-layer form of the feature. The color
// property is normalized on every conversion, not just on create, because
// externally seeded records may carry invalid values.
func (f Feature) ToGeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	gf.Properties["id"] = f.ID
	gf.Properties["color"] = NormalizeColor(stringProp(f.Properties, "color"))
	return gf
}

// FromGeoJSON builds a committed feature from a server payload feature.
func FromGeoJSON(gf *geojson.Feature, id string) Feature {
	props := geojson.Properties{}
	for k, v := range gf.Properties {
		props[k] = v
	}
	return Feature{
		ID:         id,
		Provenance: Committed,
		Geometry:   gf.Geometry,
		Properties: props,
	}
}

func stringProp(props geojson.Properties, key string) string {
	if props == nil {
		return ""
	}
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
