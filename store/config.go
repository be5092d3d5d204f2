package store

import (
	floodsos "github.com/Trung-Nam-2512/floodsos-sub001"
)

type Config struct {
	URL  string              `mapstructure:"url,omitempty"`
	Poll floodsos.PollConfig `mapstructure:"poll"`
	Boot floodsos.BootConfig `mapstructure:"boot,omitempty"`
	// HiddenFactor multiplies the poll period while the map view is not
	// visible. Defaults to 2.
	HiddenFactor int `mapstructure:"hidden_factor,omitempty"`
}
