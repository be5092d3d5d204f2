package reliefapi

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

type (
	// Record is the wire form of a persisted feature.
	Record struct {
		ID         string                 `json:"id"`
		Geometry   *geojson.Geometry      `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	}

	listResponse struct {
		Success bool     `json:"success"`
		Data    []Record `json:"data"`
	}

	recordResponse struct {
		Success bool   `json:"success"`
		Data    Record `json:"data"`
	}

	ackResponse struct {
		Success bool `json:"success"`
	}

	createRequest struct {
		Geometry         *geojson.Geometry      `json:"geometry"`
		Properties       map[string]interface{} `json:"properties"`
		AttachmentBase64 string                 `json:"attachmentBase64,omitempty"`
	}

	updateRequest struct {
		Geometry   *geojson.Geometry      `json:"geometry,omitempty"`
		Properties map[string]interface{} `json:"properties,omitempty"`
	}

	statusRequest struct {
		Status string `json:"status"`
	}
)

func (r Record) toFeature() (feature.Feature, error) {
	if r.ID == "" {
		return feature.Feature{}, fmt.Errorf("record without id")
	}
	if r.Geometry == nil {
		return feature.Feature{}, fmt.Errorf("record %s without geometry", r.ID)
	}
	props := geojson.Properties{}
	for k, v := range r.Properties {
		props[k] = v
	}
	return feature.Feature{
		ID:         r.ID,
		Provenance: feature.Committed,
		Geometry:   r.Geometry.Geometry(),
		Properties: props,
	}, nil
}
