package stream

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/hupe1980/pcedit/pointbuf"
	"golang.org/x/time/rate"
)

// Options configures a Streamer.
type Options struct {
	// Workers is the number of concurrent fetch/decode workers.
	// Defaults to min(8, GOMAXPROCS).
	Workers int

	// MaxAttempts bounds fetch attempts per tile for transient failures.
	// Defaults to 3. Malformed tiles are attempted once.
	MaxAttempts int

	// InitialBackoff is the first retry delay. Defaults to 200ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay. Defaults to 5s.
	MaxBackoff time.Duration

	// RateLimit paces tile requests. Zero means unlimited.
	RateLimit rate.Limit

	// Burst is the limiter burst size. Defaults to Workers.
	Burst int

	// StoreOptions are applied to every store the streamer allocates.
	StoreOptions []func(*pointbuf.Options)

	Logger   *slog.Logger
	Observer Observer
}

// DefaultWorkers returns min(8, GOMAXPROCS), or 4 when unknown.
func DefaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n <= 0 {
		return 4
	}
	return min(8, n)
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers()
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.Burst <= 0 {
		o.Burst = o.Workers
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Observer == nil {
		o.Observer = NoopObserver{}
	}
}
