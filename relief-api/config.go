package reliefapi

import "time"

type Config struct {
	BaseURL string        `mapstructure:"base_url,omitempty"`
	Timeout time.Duration `mapstructure:"timeout,omitempty"`
}
