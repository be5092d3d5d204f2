// Package viewport owns the camera state the cluster engine reads. It
// is the single writer for pan/zoom/fly-to and notifies listeners on a
// settle cadence rather than every frame.
package viewport

import (
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/Trung-Nam-2512/floodsos-sub001/debounce"
)

var (
	log = logrus.WithField("module", "viewport")
)

type (
	Config struct {
		MinZoom float64 `mapstructure:"min_zoom,omitempty"`
		MaxZoom float64 `mapstructure:"max_zoom,omitempty"`
		// BufferFactor widens the derived bounds so clusters just
		// outside the frame are still materialized during pan.
		BufferFactor float64 `mapstructure:"buffer_factor,omitempty"`
		// SettleDelay is how long the camera must rest before listeners
		// are notified.
		SettleDelay time.Duration `mapstructure:"settle_delay,omitempty"`
	}

	// Camera is the continuous map camera state.
	Camera struct {
		Lng  float64 `json:"lng"`
		Lat  float64 `json:"lat"`
		Zoom float64 `json:"zoom"`
	}

	Controller struct {
		cfg Config

		mu  sync.RWMutex
		cam Camera

		notify func()
		cancel func()
	}
)

func normalize(cfg Config) Config {
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 18
	}
	if cfg.BufferFactor <= 0 {
		cfg.BufferFactor = 1.5
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 150 * time.Millisecond
	}
	return cfg
}

func New(cfg Config, initial Camera) *Controller {
	c := &Controller{cfg: normalize(cfg)}
	c.cam = c.clamp(initial)
	return c
}

// OnSettle registers the listener invoked once the camera has rested for
// the settle delay. Only one listener is kept; a pending notification of
// a replaced listener is dropped.
func (c *Controller) OnSettle(fn func(Camera)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.notify, c.cancel = debounce.Debounce(c.cfg.SettleDelay, func() {
		fn(c.Camera())
	})
}

// Close drops any pending settle notification.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) Camera() Camera {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cam
}

// SetCamera applies a pan/zoom frame. Called on every gesture frame; the
// settle debounce keeps downstream recomputation bounded.
func (c *Controller) SetCamera(cam Camera) {
	c.mu.Lock()
	c.cam = c.clamp(cam)
	notify := c.notify
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// FlyTo recenters the camera programmatically (list selection, search
// hit, cluster expansion).
func (c *Controller) FlyTo(center orb.Point, zoom float64) {
	log.WithFields(logrus.Fields{
		"lng":  center.Lon(),
		"lat":  center.Lat(),
		"zoom": zoom,
	}).Debug("fly to")
	c.SetCamera(Camera{Lng: center.Lon(), Lat: center.Lat(), Zoom: zoom})
}

// Bounds derives the buffered visible rectangle from the current camera:
// span (360/2^z, 180/2^z) scaled by the buffer factor, clamped to valid
// coordinate ranges.
func (c *Controller) Bounds() orb.Bound {
	cam := c.Camera()

	lngSpan := 360 / math.Pow(2, cam.Zoom) * c.cfg.BufferFactor
	latSpan := 180 / math.Pow(2, cam.Zoom) * c.cfg.BufferFactor

	return orb.Bound{
		Min: orb.Point{
			math.Max(-180, cam.Lng-lngSpan/2),
			math.Max(-90, cam.Lat-latSpan/2),
		},
		Max: orb.Point{
			math.Min(180, cam.Lng+lngSpan/2),
			math.Min(90, cam.Lat+latSpan/2),
		},
	}
}

func (c *Controller) clamp(cam Camera) Camera {
	cam.Zoom = math.Max(c.cfg.MinZoom, math.Min(c.cfg.MaxZoom, cam.Zoom))
	cam.Lng = math.Max(-180, math.Min(180, cam.Lng))
	cam.Lat = math.Max(-90, math.Min(90, cam.Lat))
	return cam
}
