package pcedit

import (
	"time"

	"github.com/hupe1980/pcedit/config"
	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/oplog"
	"github.com/hupe1980/pcedit/overlay"
	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/hupe1980/pcedit/tilesource"
)

type options struct {
	logger       *Logger
	metrics      MetricsCollector
	config       config.Config
	backend      oplog.Backend
	catalog      tilesource.Catalog
	ml           *overlay.Client
	bus          *event.Bus
	render       func()
	frame        time.Duration
	storeOptions []func(*pointbuf.Options)
}

// Option configures an Editor.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithConfig replaces the default configuration. New validates it.
func WithConfig(c config.Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithBackend sets the server holding edit sessions. Without one, sessions
// and commits fail with ErrNoBackend.
func WithBackend(b oplog.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithCatalog sets where Load looks up tile lists when none is given.
// Sources that also list tiles are used as catalog automatically.
func WithCatalog(c tilesource.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithMLClient enables ML previews.
func WithMLClient(c *overlay.Client) Option {
	return func(o *options) {
		o.ml = c
	}
}

// WithBus shares an event bus with other components. By default the editor
// creates its own.
func WithBus(b *event.Bus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// WithRenderFunc sets the function called at most once per frame after
// anything visible changed. frame <= 0 uses render.DefaultFrame.
func WithRenderFunc(fn func(), frame time.Duration) Option {
	return func(o *options) {
		o.render = fn
		o.frame = frame
	}
}

// WithStoreOptions sets options applied to every allocated point store,
// e.g. pointbuf.WithIntensity.
func WithStoreOptions(fns ...func(*pointbuf.Options)) Option {
	return func(o *options) {
		o.storeOptions = append(o.storeOptions, fns...)
	}
}
