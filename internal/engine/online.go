package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/lazypower/substream/internal/micro"
	"github.com/lazypower/substream/internal/predecon"
)

// nearest returns the index of the cluster closest to point by projected
// distance among those that stay tight after a tentative insert, or -1. The
// first of equally close clusters wins.
func nearest(pool []*micro.ProjectedMicroCluster, point []float64, t uint64) int {
	best := -1
	var bestDist float64
	for i, pc := range pool {
		if !pc.TentativeInsert(point, t) {
			continue
		}
		d := pc.ProjectedDistance(point)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// assign places point into the potential pool, else the outlier pool, else
// a new outlier cluster, and returns the cluster that received it.
func (e *Engine) assign(point []float64, t uint64) (*micro.ProjectedMicroCluster, error) {
	if i := nearest(e.potential, point, t); i >= 0 {
		pc := e.potential[i]
		if err := pc.Insert(point, t); err != nil {
			return nil, fmt.Errorf("insert into potential: %w", err)
		}
		e.counters.inPotential++
		e.Metrics.point("potential")
		return pc, nil
	}

	if i := nearest(e.outlier, point, t); i >= 0 {
		pc := e.outlier[i]
		if err := pc.Insert(point, t); err != nil {
			return nil, fmt.Errorf("insert into outlier: %w", err)
		}
		e.counters.inOutlier++
		e.Metrics.point("outlier")
		if pc.IsPotentialCore() {
			e.outlier = append(e.outlier[:i], e.outlier[i+1:]...)
			e.potential = append(e.potential, pc)
			e.inserted = append(e.inserted, pc.ID())
			e.counters.promoted++
			e.Metrics.transition("promoted", 1)
		}
		return pc, nil
	}

	pc := micro.NewProjected(e.newID(), point, t, e.th)
	e.outlier = append(e.outlier, pc)
	e.counters.created++
	e.Metrics.point("created")
	e.Metrics.transition("created", 1)
	return pc, nil
}

// decayIdle ages every cluster that did not receive the point to t.
func (e *Engine) decayIdle(hit *micro.ProjectedMicroCluster, t uint64) error {
	for _, pool := range [][]*micro.ProjectedMicroCluster{e.potential, e.outlier} {
		for _, pc := range pool {
			if pc == hit {
				continue
			}
			if err := pc.DecayTo(t); err != nil {
				return fmt.Errorf("decay idle: %w", err)
			}
		}
	}
	return nil
}

// prune deletes expired outliers and demotes potential clusters that are no
// longer potential cores.
func (e *Engine) prune(t uint64) {
	var deleted, demoted int
	outlier := make([]*micro.ProjectedMicroCluster, 0, len(e.outlier))
	for _, pc := range e.outlier {
		if pc.IsExpired(t, e.tspan) {
			deleted++
			continue
		}
		outlier = append(outlier, pc)
	}

	potential := make([]*micro.ProjectedMicroCluster, 0, len(e.potential))
	for _, pc := range e.potential {
		if pc.IsPotentialCore() {
			potential = append(potential, pc)
			continue
		}
		outlier = append(outlier, pc)
		e.deleted = append(e.deleted, pc.ID())
		demoted++
	}
	e.potential, e.outlier = potential, outlier

	e.counters.deleted += deleted
	e.counters.demoted += demoted
	e.Metrics.transition("deleted", deleted)
	e.Metrics.transition("demoted", demoted)
	if deleted > 0 || demoted > 0 {
		log.Printf("prune: tick %d, deleted %d outliers, demoted %d", t, deleted, demoted)
	}
}

func (e *Engine) potentialMembers() []predecon.Member {
	pool := make([]predecon.Member, len(e.potential))
	for i, pc := range e.potential {
		pool[i] = pc
	}
	return pool
}

// recluster runs one offline pass over the potential pool and publishes it.
func (e *Engine) recluster(t uint64) {
	start := time.Now()
	mode := "full"
	var clusters []*predecon.OfflineCluster
	if e.cfg.Incremental {
		mode = "incremental"
		clusters = e.recl.Update(e.potentialMembers(), e.inserted, e.deleted)
	} else {
		clusters = e.recl.Full(e.potentialMembers())
	}
	e.inserted, e.deleted = nil, nil
	e.publish(t, mode, clusters)
	e.Metrics.reclusterTiming.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

func (e *Engine) publish(t uint64, mode string, clusters []*predecon.OfflineCluster) {
	e.sc.passes++
	snap := &MacroSnapshot{
		Pass:      e.sc.passes,
		Tick:      t,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		Clusters:  make([]MacroCluster, 0, len(clusters)),
		Noise:     e.recl.Noise(),
	}
	for _, c := range clusters {
		snap.Clusters = append(snap.Clusters, macroOf(c))
	}
	e.macro.Store(snap)
	e.Metrics.macroGauge.Set(float64(len(snap.Clusters)))
	e.updateGauges()
}

// coldStart clusters the buffered points by density expansion and seeds the
// pools with one micro-cluster per group. Each point weighs its decay up to
// tick t; noise is discarded.
func (e *Engine) coldStart(t uint64) error {
	members := make([]predecon.Member, len(e.initBuf))
	for i, bp := range e.initBuf {
		members[i] = predecon.Point{
			Key:    uint64(i),
			Values: bp.values,
			W:      micro.DecayFactor(e.cfg.Lambda, t-bp.t),
		}
	}
	set := predecon.NewSet(members)
	e.initNb.Preprocess(set)
	groups := e.initNb.Expand(set, set.IDs())

	var potential, outlier int
	for _, g := range groups {
		pc := micro.NewProjected(e.newID(), e.initBuf[g[0]].values, t, e.th)
		for _, idx := range g[1:] {
			if err := pc.Insert(e.initBuf[idx].values, t); err != nil {
				return fmt.Errorf("cold start: %w", err)
			}
		}
		if pc.IsPotentialCore() {
			e.potential = append(e.potential, pc)
			e.inserted = append(e.inserted, pc.ID())
			potential++
		} else {
			e.outlier = append(e.outlier, pc)
			outlier++
		}
	}
	e.counters.created += len(groups)
	e.Metrics.transition("created", len(groups))
	log.Printf("coldstart: %d points, %d groups, %d potential, %d outlier", len(e.initBuf), len(groups), potential, outlier)

	e.initBuf = nil
	e.warm = true

	clusters := e.recl.Full(e.potentialMembers())
	e.inserted, e.deleted = nil, nil
	e.publish(t, "coldstart", clusters)
	return nil
}
