package retry

import (
	"time"

	"github.com/vaultwork/orchestrator/pkg/clock"
)

// ChannelConfig names one rate-limited outbound channel, per spec.md
// §4.3's configured-channel examples.
type ChannelConfig struct {
	Name     string        `yaml:"name"`
	Capacity float64       `yaml:"capacity"`
	Refill   float64       `yaml:"refill"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultChannels is the out-of-the-box channel table from spec.md §4.3:
// email (10/hour), social_post (3/hour), payment (3/day).
var DefaultChannels = []ChannelConfig{
	{Name: "email", Capacity: 10, Refill: 10, Interval: time.Hour},
	{Name: "social_post", Capacity: 3, Refill: 3, Interval: time.Hour},
	{Name: "payment", Capacity: 3, Refill: 3, Interval: 24 * time.Hour},
}

// Buckets is a named collection of TokenBuckets, one per configured
// channel, all sharing one clock so tests can advance every channel's
// notion of "now" together.
type Buckets struct {
	byName map[string]*TokenBucket
}

// NewBuckets builds a TokenBucket for each entry in cfgs against clk.
func NewBuckets(cfgs []ChannelConfig, clk clock.Clock) *Buckets {
	b := &Buckets{byName: make(map[string]*TokenBucket, len(cfgs))}
	for _, c := range cfgs {
		b.byName[c.Name] = NewTokenBucket(c.Capacity, c.Refill, c.Interval, clk)
	}
	return b
}

// For returns the bucket for a configured channel name, or nil if unconfigured.
func (b *Buckets) For(name string) *TokenBucket {
	return b.byName[name]
}
