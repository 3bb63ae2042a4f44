package engine

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/substream/internal/config"
	"github.com/lazypower/substream/internal/micro"
	"github.com/lazypower/substream/internal/predecon"
	"github.com/lazypower/substream/internal/store"
)

var (
	// ErrDimensionMismatch rejects a point whose length differs from the
	// engine's dimensionality. The point is dropped without side effects.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidPoint rejects points carrying NaN or infinite coordinates.
	ErrInvalidPoint = errors.New("invalid point")
)

// Engine maintains the potential and outlier micro-cluster pools of one
// stream and publishes offline clusterings derived from the potential pool.
// All methods are safe for concurrent use; points are processed one at a
// time in arrival order.
type Engine struct {
	DB      *store.DB
	RunID   string
	Metrics *Metrics

	cfg     config.ClusteringConfig
	th      *micro.Thresholds
	tspan   uint64
	initNb  predecon.Neighborhood
	recl    *predecon.Reclusterer
	macro   atomic.Pointer[MacroSnapshot]
	stopCh  chan struct{}
	stopped sync.Once

	mu        sync.Mutex
	sc        streamContext
	potential []*micro.ProjectedMicroCluster
	outlier   []*micro.ProjectedMicroCluster
	initBuf   []bufferedPoint
	warm      bool
	inserted  []uint64
	deleted   []uint64
	counters  tickCounters

	recordMu sync.Mutex
	recorded uint64 // last pass written to DB
}

// streamContext carries the state a stream threads through every call: the
// current tick, the processing-speed clock and the id allocator.
type streamContext struct {
	started  bool
	tick     uint64
	clock    uint64
	inTick   int
	nextID   uint64
	points   int64
	dim      int
	epoch    uint64 // t/tspan of the last pruning pass or the first tick
	pruned   bool
	passes   uint64
}

type bufferedPoint struct {
	values []float64
	t      uint64
}

// New creates an engine from a validated clustering configuration.
func New(cfg config.ClusteringConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	e := &Engine{
		RunID:   uuid.NewString(),
		Metrics: newMetrics(),
		cfg:     cfg,
		th: &micro.Thresholds{
			Epsilon: cfg.Epsilon,
			Mu:      cfg.Mu,
			Beta:    cfg.Beta,
			Lambda:  cfg.Lambda,
			Delta:   cfg.Delta,
			Kappa:   cfg.Kappa,
			Pi:      cfg.Pi,
		},
		tspan: cfg.PruneInterval(),
		initNb: predecon.Neighborhood{
			Epsilon: cfg.Epsilon,
			Mu:      cfg.Mu,
			Delta:   cfg.Delta,
			Kappa:   cfg.Kappa,
			Tau:     cfg.Pi,
		},
		recl: predecon.NewReclusterer(predecon.Neighborhood{
			Epsilon: cfg.Epsilon * cfg.OfflineFactor,
			Mu:      cfg.MuOffline,
			Delta:   cfg.Delta,
			Kappa:   cfg.Kappa,
			Tau:     cfg.Tau,
		}),
		stopCh: make(chan struct{}),
		warm:   cfg.InitPoints == 0,
	}
	e.sc.nextID = 1
	e.sc.dim = cfg.Dimensions
	e.macro.Store(&MacroSnapshot{Mode: "none", CreatedAt: time.Now().UTC()})
	log.Printf("engine: run %s, tspan %d ticks", e.RunID, e.tspan)
	return e, nil
}

// Config returns the clustering configuration.
func (e *Engine) Config() config.ClusteringConfig { return e.cfg }

// Tspan returns the number of ticks between pruning passes.
func (e *Engine) Tspan() uint64 { return e.tspan }

// Tick returns the current stream tick.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.tick
}

// Dimensions returns the stream dimensionality, 0 until known.
func (e *Engine) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.dim
}

// Points returns the number of accepted points.
func (e *Engine) Points() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sc.points
}

// Train feeds one point arriving at tick t. Ticks must not go backwards.
func (e *Engine) Train(point []float64, t uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.train(point, t)
}

// Observe feeds one point on the processing-speed clock: the tick advances
// after every ProcessingSpeed accepted points. It returns the tick used.
func (e *Engine) Observe(point []float64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sc.started && e.sc.clock < e.sc.tick {
		e.sc.clock, e.sc.inTick = e.sc.tick, 0
	}
	t := e.sc.clock
	if err := e.train(point, t); err != nil {
		return t, err
	}
	e.sc.inTick++
	if e.sc.inTick >= e.cfg.ProcessingSpeed {
		e.sc.clock++
		e.sc.inTick = 0
	}
	return t, nil
}

func (e *Engine) check(point []float64) error {
	want := e.sc.dim
	if want == 0 {
		want = len(point)
	}
	if len(point) == 0 || len(point) != want {
		return fmt.Errorf("point has %d dimensions, want %d: %w", len(point), want, ErrDimensionMismatch)
	}
	for d, v := range point {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("coordinate %d is %v: %w", d, v, ErrInvalidPoint)
		}
	}
	return nil
}

func (e *Engine) train(point []float64, t uint64) error {
	if err := e.check(point); err != nil {
		e.Metrics.point("rejected")
		return err
	}
	if e.sc.started && t < e.sc.tick {
		e.Metrics.point("rejected")
		return fmt.Errorf("point at tick %d after tick %d: %w", t, e.sc.tick, micro.ErrInvalidTimestamp)
	}
	if e.sc.dim == 0 {
		e.sc.dim = len(point)
	}
	e.advance(t)
	e.sc.points++
	e.counters.points++
	p := append([]float64(nil), point...)

	if !e.warm {
		e.initBuf = append(e.initBuf, bufferedPoint{values: p, t: t})
		e.Metrics.point("buffered")
		if len(e.initBuf) >= e.cfg.InitPoints {
			return e.coldStart(t)
		}
		return nil
	}

	hit, err := e.assign(p, t)
	if err != nil {
		return err
	}
	if err := e.decayIdle(hit, t); err != nil {
		return err
	}
	if e.pruneDue(t) {
		e.prune(t)
		e.sc.pruned, e.sc.epoch = true, t/e.tspan
		e.recluster(t)
	}
	e.updateGauges()
	return nil
}

// advance moves the stream to tick t and logs the counters of the tick
// being left.
func (e *Engine) advance(t uint64) {
	if !e.sc.started {
		e.sc.started = true
		e.sc.tick = t
		e.sc.epoch = t / e.tspan
		e.Metrics.tickGauge.Set(float64(t))
		return
	}
	if t == e.sc.tick {
		return
	}
	if c := e.counters; !c.empty() {
		log.Printf("tick %d: %d points, +potential %d, +outlier %d, created %d, deleted %d, promoted %d, demoted %d",
			e.sc.tick, c.points, c.inPotential, c.inOutlier, c.created, c.deleted, c.promoted, c.demoted)
	}
	e.counters = tickCounters{}
	e.sc.tick = t
	e.Metrics.tickGauge.Set(float64(t))
}

// pruneDue reports whether t reached a multiple of tspan since the last
// pruning pass. Ticks skipped by the stream still trigger the pass once.
func (e *Engine) pruneDue(t uint64) bool {
	if t/e.tspan > e.sc.epoch {
		return true
	}
	return t%e.tspan == 0 && !e.sc.pruned
}

func (e *Engine) newID() uint64 {
	id := e.sc.nextID
	e.sc.nextID++
	return id
}

// MicroClustering returns copies of both pools.
func (e *Engine) MicroClustering() MicroSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := MicroSnapshot{
		Tick:      e.sc.tick,
		Potential: make([]MicroCluster, 0, len(e.potential)),
		Outlier:   make([]MicroCluster, 0, len(e.outlier)),
	}
	for _, pc := range e.potential {
		snap.Potential = append(snap.Potential, viewOf(pc, PoolPotential))
	}
	for _, pc := range e.outlier {
		snap.Outlier = append(snap.Outlier, viewOf(pc, PoolOutlier))
	}
	return snap
}

// MacroClustering returns the latest published offline clustering. The
// returned snapshot is shared and must not be modified.
func (e *Engine) MacroClustering() *MacroSnapshot {
	return e.macro.Load()
}

// Recluster runs an offline pass now and publishes it. Before cold start has
// completed it clusters the buffered points first; with an empty buffer it
// publishes an empty pass and keeps buffering.
func (e *Engine) Recluster() (*MacroSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.warm && len(e.initBuf) > 0 {
		if err := e.coldStart(e.sc.tick); err != nil {
			return nil, err
		}
		return e.macro.Load(), nil
	}
	e.recluster(e.sc.tick)
	return e.macro.Load(), nil
}

func (e *Engine) updateGauges() {
	e.Metrics.potentialGauge.Set(float64(len(e.potential)))
	e.Metrics.outlierGauge.Set(float64(len(e.outlier)))
}
