package predecon

import "gonum.org/v1/gonum/floats"

// MemberSummary is the state of one member captured when its offline
// cluster was formed.
type MemberSummary struct {
	ID        uint64    `json:"id"`
	Weight    float64   `json:"weight"`
	Center    []float64 `json:"center"`
	LinearSum []float64 `json:"linear_sum"`
}

// OfflineCluster is a density-connected union of members. It is immutable
// after creation; a later pass that touches any member supersedes it.
type OfflineCluster struct {
	id      uint64
	members []MemberSummary
	weight  float64
	center  []float64
}

// NewOfflineCluster aggregates members into a cluster. The center is the sum
// of member linear sums over the sum of member weights, so heavy members pull
// it harder than light ones.
func NewOfflineCluster(id uint64, members []Member) *OfflineCluster {
	c := &OfflineCluster{id: id, members: make([]MemberSummary, 0, len(members))}
	var ls []float64
	for _, m := range members {
		mls := m.LinearSum()
		if ls == nil {
			ls = make([]float64, len(mls))
		}
		floats.Add(ls, mls)
		w := m.Weight()
		c.weight += w
		c.members = append(c.members, MemberSummary{
			ID:        m.ID(),
			Weight:    w,
			Center:    append([]float64(nil), m.Center()...),
			LinearSum: mls,
		})
	}
	c.center = make([]float64, len(ls))
	if c.weight > 0 {
		floats.ScaleTo(c.center, 1/c.weight, ls)
	}
	return c
}

func (c *OfflineCluster) ID() uint64      { return c.id }
func (c *OfflineCluster) Weight() float64 { return c.weight }
func (c *OfflineCluster) Size() int       { return len(c.members) }

// Center returns a copy of the aggregate center.
func (c *OfflineCluster) Center() []float64 {
	return append([]float64(nil), c.center...)
}

// Members returns copies of the member summaries.
func (c *OfflineCluster) Members() []MemberSummary {
	out := make([]MemberSummary, len(c.members))
	for i, m := range c.members {
		m.Center = append([]float64(nil), m.Center...)
		m.LinearSum = append([]float64(nil), m.LinearSum...)
		out[i] = m
	}
	return out
}

// MemberIDs lists the member ids in the order they joined.
func (c *OfflineCluster) MemberIDs() []uint64 {
	ids := make([]uint64, len(c.members))
	for i, m := range c.members {
		ids[i] = m.ID
	}
	return ids
}
