package camera

import (
	"log/slog"
	"sync"

	"github.com/hupe1980/pcedit/event"
	"github.com/hupe1980/pcedit/pointbuf"
)

// Initializer frames the camera once per load. It triggers when the
// renderable prefix reaches Threshold points, or falls back to the bounding
// box when the load finishes below it.
type Initializer struct {
	bus           *event.Bus
	logger        *slog.Logger
	threshold     int
	sample        int
	farMultiplier float32

	mu        sync.Mutex
	store     *pointbuf.Store
	signature string
	framed    bool
	pose      Pose
	unsubs    []func()
}

// InitializerOptions configures an Initializer.
type InitializerOptions struct {
	Threshold     int // defaults to MinPoints
	Sample        int // defaults to MaxSample
	FarMultiplier float32
	Logger        *slog.Logger
}

// NewInitializer creates an initializer listening on bus.
func NewInitializer(bus *event.Bus, opts InitializerOptions) *Initializer {
	if opts.Threshold <= 0 {
		opts.Threshold = MinPoints
	}
	if opts.Sample <= 0 {
		opts.Sample = MaxSample
	}
	if opts.FarMultiplier <= 0 {
		opts.FarMultiplier = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	in := &Initializer{
		bus:           bus,
		logger:        opts.Logger,
		threshold:     opts.Threshold,
		sample:        opts.Sample,
		farMultiplier: opts.FarMultiplier,
	}
	in.unsubs = append(in.unsubs,
		bus.StoreReplaced.Subscribe(func(ev event.StoreReplaced) {
			in.mu.Lock()
			in.store = ev.Store
			in.mu.Unlock()
		}),
		bus.LoadProgress.Subscribe(func(p event.LoadProgress) {
			in.Observe(p)
		}),
	)
	return in
}

// SetFarMultiplier changes the far-plane scale for future poses.
func (in *Initializer) SetFarMultiplier(m float32) {
	in.mu.Lock()
	in.farMultiplier = m
	in.mu.Unlock()
}

// Observe reacts to load progress and returns the pose when this call
// framed the camera. Progress of a store other than the attached one is
// ignored.
func (in *Initializer) Observe(p event.LoadProgress) (Pose, bool) {
	in.mu.Lock()
	if p.Store != in.store {
		in.mu.Unlock()
		return Pose{}, false
	}
	if p.Signature != in.signature {
		in.signature = p.Signature
		in.framed = false
	}
	if in.framed || in.store == nil {
		in.mu.Unlock()
		return Pose{}, false
	}

	var pose Pose
	switch {
	case p.Renderable >= in.threshold:
		points := in.store.Sample(p.Renderable, in.sample)
		var err error
		pose, err = Estimate(points, in.farMultiplier)
		if err != nil {
			pose = FitBounds(in.store.Bounds(p.Renderable), in.farMultiplier)
		}
	case p.Done:
		pose = FitBounds(in.store.Bounds(p.Renderable), in.farMultiplier)
	default:
		in.mu.Unlock()
		return Pose{}, false
	}
	in.framed = true
	in.pose = pose
	in.mu.Unlock()

	in.logger.Info("camera framed",
		"points", p.Renderable,
		"fallback", pose.Fallback,
		"road_width", pose.RoadWidth,
		"elevated", pose.Elevated,
	)
	in.bus.CameraFramed.Publish(event.CameraFramed{
		Position: pose.Position,
		Target:   pose.Target,
		Up:       pose.Up,
		Near:     pose.Near,
		Far:      pose.Far,
		Fallback: pose.Fallback,
	})
	return pose, true
}

// Pose returns the last computed pose and whether the current load has been
// framed.
func (in *Initializer) Pose() (Pose, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pose, in.framed
}

// Close detaches the initializer from the bus.
func (in *Initializer) Close() {
	for _, u := range in.unsubs {
		u()
	}
}
