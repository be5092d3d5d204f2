package cluster

import (
	"math"

	"github.com/paulmach/orb"
)

// web-mercator latitude limit
const maxMercatorLat = 85.05112878

// project converts lng/lat to pixel coordinates at the given zoom.
func project(p orb.Point, zoom int, extent float64) (float64, float64) {
	lng := math.Max(-180, math.Min(180, p.Lon()))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat()))

	latRad := lat * math.Pi / 180
	x := (lng + 180) / 360
	y := 0.5 - math.Log(math.Tan(latRad*0.5+math.Pi/4))/math.Pi*0.5

	scale := math.Pow(2, float64(zoom)) * extent
	return x * scale, y * scale
}

// unproject converts pixel coordinates back to lng/lat.
func unproject(x, y float64, zoom int, extent float64) orb.Point {
	scale := math.Pow(2, float64(zoom)) * extent
	x /= scale
	y /= scale

	lng := x*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y)))
	return orb.Point{lng, latRad * 180 / math.Pi}
}
