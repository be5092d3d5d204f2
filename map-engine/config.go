package mapengine

import (
	"time"

	"github.com/Trung-Nam-2512/floodsos-sub001/cluster"
	"github.com/Trung-Nam-2512/floodsos-sub001/drawsync"
	reliefapi "github.com/Trung-Nam-2512/floodsos-sub001/relief-api"
	"github.com/Trung-Nam-2512/floodsos-sub001/store"
	"github.com/Trung-Nam-2512/floodsos-sub001/viewport"
)

type Config struct {
	API      reliefapi.Config `mapstructure:"api"`
	Store    store.Config     `mapstructure:"store"`
	Cluster  cluster.Config   `mapstructure:"cluster,omitempty"`
	Viewport viewport.Config  `mapstructure:"viewport,omitempty"`
	Draw     drawsync.Config  `mapstructure:"draw,omitempty"`

	// SearchDelay is how long a search query must rest before results
	// are recomputed. Defaults to 300ms.
	SearchDelay time.Duration `mapstructure:"search_delay,omitempty"`
	// RenderDelay bounds render writes during a burst of local edits:
	// at most one per window plus a trailing write. Defaults to 50ms.
	RenderDelay time.Duration `mapstructure:"render_delay,omitempty"`
}
