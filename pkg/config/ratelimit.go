package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/time/rate"
)

// RateLimitOptions is the decoded form of clients.rate_limit.
type RateLimitOptions struct {
	// Enabled turns per-client throttling on
	Enabled bool `mapstructure:"enabled"`

	// Requests admitted per Per window, sustained
	Requests uint `mapstructure:"requests"`

	// Per is the refill window for Requests (e.g. "1s", "1m")
	Per time.Duration `mapstructure:"per"`

	// Burst is the bucket capacity
	Burst uint `mapstructure:"burst"`
}

// Limit converts Requests/Per to a per-second rate. Windows longer than a
// second yield fractional rates (30 per 1m is 0.5). Zero means no rate.
func (o RateLimitOptions) Limit() rate.Limit {
	if o.Requests == 0 || o.Per <= 0 {
		return 0
	}
	return rate.Limit(float64(o.Requests) / o.Per.Seconds())
}

// RateLimitOptions decodes the rate_limit options map.
//
// Durations accept Go duration strings; numeric values are weakly typed so
// that "100" from an environment variable decodes as 100.
func (c ClientsConfig) RateLimitOptions() (RateLimitOptions, error) {
	var opts RateLimitOptions

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return opts, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(c.RateLimit); err != nil {
		return opts, fmt.Errorf("clients.rate_limit: %w", err)
	}

	return opts, nil
}
