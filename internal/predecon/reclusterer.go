package predecon

import (
	"sort"
)

// Reclusterer maintains an offline clustering over a changing pool of
// members. Between passes the caller reports which ids entered and left the
// pool; Update then re-expands only the region those changes perturbed.
type Reclusterer struct {
	nb Neighborhood

	set      *Set
	clusters map[uint64]*OfflineCluster
	owner    map[uint64]uint64 // member id -> cluster id
	nextID   uint64
	ready    bool
}

// NewReclusterer returns a reclusterer that has not clustered anything yet.
// The first Update performs a full pass.
func NewReclusterer(nb Neighborhood) *Reclusterer {
	return &Reclusterer{
		nb:       nb,
		set:      NewSet(nil),
		clusters: make(map[uint64]*OfflineCluster),
		owner:    make(map[uint64]uint64),
		nextID:   1,
	}
}

// Full discards all previous state and clusters pool from scratch. Cluster
// ids keep increasing across calls.
func (r *Reclusterer) Full(pool []Member) []*OfflineCluster {
	r.set = NewSet(pool)
	r.clusters = make(map[uint64]*OfflineCluster)
	r.owner = make(map[uint64]uint64)
	r.nb.Preprocess(r.set)
	r.emit(r.nb.Expand(r.set, r.set.IDs()))
	r.ready = true
	return r.Clusters()
}

// Update reconciles the arena with pool and re-expands the region affected
// by inserted and deleted ids since the previous pass. Members present in
// pool but unknown to the arena count as inserted; arena members missing
// from pool count as deleted.
func (r *Reclusterer) Update(pool []Member, inserted, deleted []uint64) []*OfflineCluster {
	if !r.ready {
		return r.Full(pool)
	}

	current := make(map[uint64]Member, len(pool))
	for _, m := range pool {
		current[m.ID()] = m
	}

	ins := make(map[uint64]bool)
	del := make(map[uint64]bool)
	for _, id := range deleted {
		if _, ok := current[id]; !ok && r.set.Has(id) {
			del[id] = true
		}
	}
	for _, id := range r.set.IDs() {
		if _, ok := current[id]; !ok {
			del[id] = true
		}
	}
	for _, id := range inserted {
		if _, ok := current[id]; ok && !r.set.Has(id) {
			ins[id] = true
		}
	}
	for _, m := range pool {
		if p := r.set.Get(m.ID()); p != nil {
			p.Member = m
		} else {
			ins[m.ID()] = true
		}
	}
	r.set.Refresh()

	if len(ins) == 0 && len(del) == 0 {
		return r.Clusters()
	}

	// Region whose preference and neighborhoods must be recomputed.
	region := make(map[uint64]bool)
	for id := range del {
		p := r.set.Remove(id)
		for _, q := range p.weighted {
			region[q] = true
		}
		for _, q := range p.neighbors {
			region[q] = true
		}
	}
	for _, p := range r.set.Points() {
		if references(p.weighted, del) || references(p.neighbors, del) {
			region[p.ID()] = true
		}
	}
	for _, m := range pool {
		if ins[m.ID()] {
			r.set.Add(m)
		}
	}
	points := r.set.Points()
	for _, p := range points {
		if !ins[p.ID()] {
			continue
		}
		region[p.ID()] = true
		for _, q := range points {
			if q.weight > 0 && Distance(p.center, q.center) <= r.nb.Epsilon {
				region[q.ID()] = true
			}
		}
	}
	for id := range del {
		delete(region, id)
	}

	type state struct {
		core bool
		pref []float64
	}
	before := make(map[uint64]state, len(points))
	for _, p := range points {
		before[p.ID()] = state{core: p.core, pref: p.pref}
	}

	for _, p := range points {
		if region[p.ID()] {
			r.nb.Preference(p, points)
		}
	}
	for _, p := range points {
		if region[p.ID()] {
			r.nb.Weighted(p, points)
		}
	}
	// The weighted relation is symmetric: points outside the region gain or
	// lose region members without their own preference changing.
	var changed []*PreferencePoint
	for _, p := range points {
		if region[p.ID()] && !p.degenerate {
			changed = append(changed, p)
		}
	}
	for _, q := range points {
		if region[q.ID()] || q.degenerate {
			continue
		}
		r.syncWeighted(q, changed, region)
	}

	affected := make(map[uint64]bool)
	for _, p := range points {
		id := p.ID()
		b := before[id]
		if ins[id] || b.core != p.core || !sameVector(b.pref, p.pref) {
			affected[id] = true
		}
	}

	// Clusters touched by an affected core or a deleted member.
	stale := make(map[uint64]bool)
	for id := range affected {
		if cid, ok := r.owner[id]; ok {
			stale[cid] = true
		}
	}
	for id := range del {
		if cid, ok := r.owner[id]; ok {
			stale[cid] = true
		}
		delete(r.owner, id)
	}

	seed := make(map[uint64]bool)
	for id := range affected {
		seed[id] = true
		for _, q := range r.set.Get(id).weighted {
			seed[q] = true
		}
	}
	for cid := range stale {
		for _, m := range r.clusters[cid].MemberIDs() {
			if r.set.Has(m) {
				seed[m] = true
			}
		}
	}
	// A retained cluster owning a seed member joins the stale set so every
	// member ends up in at most one cluster.
	for id := range seed {
		cid, ok := r.owner[id]
		if !ok || stale[cid] {
			continue
		}
		stale[cid] = true
		for _, m := range r.clusters[cid].MemberIDs() {
			if r.set.Has(m) {
				seed[m] = true
			}
		}
	}

	for cid := range stale {
		for _, m := range r.clusters[cid].MemberIDs() {
			if r.owner[m] == cid {
				delete(r.owner, m)
			}
		}
		delete(r.clusters, cid)
	}

	ordered := make([]uint64, 0, len(seed))
	for _, p := range points {
		if seed[p.ID()] {
			p.status = Unclassified
			ordered = append(ordered, p.ID())
		}
	}
	r.emit(r.nb.Expand(r.set, ordered))
	return r.Clusters()
}

// syncWeighted adds or drops region points from q's weighted neighborhood
// and re-evaluates its core status.
func (r *Reclusterer) syncWeighted(q *PreferencePoint, changed []*PreferencePoint, region map[uint64]bool) {
	kept := q.weighted[:0]
	for _, id := range q.weighted {
		if !region[id] && r.set.Has(id) {
			kept = append(kept, id)
		}
	}
	q.weighted = kept
	for _, p := range changed {
		if PreferenceWeightedDistance(q, p) <= r.nb.Epsilon {
			q.weighted = append(q.weighted, p.ID())
		}
	}
	q.weightSum = 0
	for _, id := range q.weighted {
		q.weightSum += r.set.Get(id).weight
	}
	q.core = r.nb.isCore(q)
}

func (r *Reclusterer) emit(groups [][]uint64) {
	for _, g := range groups {
		members := make([]Member, len(g))
		for i, id := range g {
			members[i] = r.set.Get(id).Member
		}
		c := NewOfflineCluster(r.nextID, members)
		r.nextID++
		r.clusters[c.ID()] = c
		for _, id := range g {
			r.owner[id] = c.ID()
		}
	}
}

// Clusters returns the current clustering ordered by cluster id.
func (r *Reclusterer) Clusters() []*OfflineCluster {
	out := make([]*OfflineCluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Noise returns the arena members that belong to no cluster, in arena order.
func (r *Reclusterer) Noise() []uint64 {
	var out []uint64
	for _, id := range r.set.IDs() {
		if _, ok := r.owner[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Owner reports which cluster currently holds member id.
func (r *Reclusterer) Owner(id uint64) (uint64, bool) {
	cid, ok := r.owner[id]
	return cid, ok
}

func references(ids []uint64, set map[uint64]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}

func sameVector(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
