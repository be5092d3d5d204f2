package feature

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrEmptyGeometry  = fmt.Errorf("empty geometry")
	ErrBadCoordinate  = fmt.Errorf("coordinate is not a finite lng/lat pair")
	ErrShortLine      = fmt.Errorf("line needs at least 2 points")
	ErrShortRing      = fmt.Errorf("polygon ring needs at least 4 points")
	ErrUnsupportedGeo = fmt.Errorf("unsupported geometry type")
)

// ValidPoint reports whether a point is a finite coordinate within valid
// longitude/latitude ranges.
func ValidPoint(p orb.Point) bool {
	lng, lat := p.Lon(), p.Lat()
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

// CloseRing returns a closed copy of the ring. An open ring with at least
// 4 points gets its first point appended; fewer than 4 points is a
// validation error, not something to auto-repair.
func CloseRing(ring orb.Ring) (orb.Ring, error) {
	if len(ring) >= 4 && ring[0] == ring[len(ring)-1] {
		return ring, nil
	}
	if len(ring) < 4 {
		return nil, ErrShortRing
	}
	closed := make(orb.Ring, len(ring), len(ring)+1)
	copy(closed, ring)
	return append(closed, ring[0]), nil
}

// ValidateGeometry checks a geometry before any network call and returns
// a possibly repaired copy (open polygon rings are closed). The caller
// keeps the draft open for correction when an error is returned.
func ValidateGeometry(g orb.Geometry) (orb.Geometry, error) {
	switch geo := g.(type) {
	case orb.Point:
		if !ValidPoint(geo) {
			return nil, ErrBadCoordinate
		}
		return geo, nil

	case orb.LineString:
		if len(geo) < 2 {
			return nil, ErrShortLine
		}
		for _, p := range geo {
			if !ValidPoint(p) {
				return nil, ErrBadCoordinate
			}
		}
		return geo, nil

	case orb.Polygon:
		if len(geo) == 0 {
			return nil, ErrEmptyGeometry
		}
		repaired := make(orb.Polygon, len(geo))
		for i, ring := range geo {
			for _, p := range ring {
				if !ValidPoint(p) {
					return nil, ErrBadCoordinate
				}
			}
			closed, err := CloseRing(ring)
			if err != nil {
				return nil, err
			}
			repaired[i] = closed
		}
		return repaired, nil

	case nil:
		return nil, ErrEmptyGeometry

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeo, g)
	}
}
