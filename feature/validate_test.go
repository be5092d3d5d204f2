package feature

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestCloseRing(t *testing.T) {
	open := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	closed, err := CloseRing(open)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closed) != 5 {
		t.Fatalf("expected 5 points after closing, got %d", len(closed))
	}
	if closed[4] != closed[0] {
		t.Errorf("ring is not closed: first %v, last %v", closed[0], closed[4])
	}
	if len(open) != 4 {
		t.Errorf("input ring was mutated, len=%d", len(open))
	}
}

func TestCloseRingAlreadyClosed(t *testing.T) {
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	closed, err := CloseRing(ring)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closed) != 5 {
		t.Errorf("expected closed ring unchanged, got %d points", len(closed))
	}
}

func TestCloseRingTooShort(t *testing.T) {
	if _, err := CloseRing(orb.Ring{{0, 0}, {1, 0}, {1, 1}}); !errors.Is(err, ErrShortRing) {
		t.Errorf("expected ErrShortRing, got %v", err)
	}
}

func TestValidateGeometry(t *testing.T) {
	type testcase struct {
		name string
		geo  orb.Geometry
		err  error
	}

	testcases := []testcase{
		{"point", orb.Point{105.8, 21.0}, nil},
		{"nan point", orb.Point{math.NaN(), 21.0}, ErrBadCoordinate},
		{"out of range", orb.Point{181, 0}, ErrBadCoordinate},
		{"line", orb.LineString{{0, 0}, {1, 1}}, nil},
		{"short line", orb.LineString{{0, 0}}, ErrShortLine},
		{"open polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}, nil},
		{"short ring", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}}}, ErrShortRing},
		{"nil", nil, ErrEmptyGeometry},
	}

	for _, tc := range testcases {
		got, err := ValidateGeometry(tc.geo)
		if tc.err == nil {
			if err != nil {
				t.Errorf("[%s] unexpected error: %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.err) {
			t.Errorf("[%s] expected %v, got %v", tc.name, tc.err, err)
		}
		if got != nil {
			t.Errorf("[%s] expected nil geometry on error", tc.name)
		}
	}
}

func TestValidateGeometryClosesPolygon(t *testing.T) {
	geo, err := ValidateGeometry(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	poly := geo.(orb.Polygon)
	if len(poly[0]) != 5 || poly[0][0] != poly[0][4] {
		t.Errorf("expected auto-closed ring, got %v", poly[0])
	}
}
