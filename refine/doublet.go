package refine

import (
	"fmt"

	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/fate"
)

// group is a set of members of one orbit with the same pattern of chain
// columns.
type group struct {
	key     string
	rows    []int
	cells   int
	cdr3s   map[string]bool
	pattern []int
}

func (g *group) shares(o *group) bool {
	for c := range g.cdr3s {
		if o.cdr3s[c] {
			return true
		}
	}
	return false
}

// pureGroups partitions the rows of mat by chain column pattern, in order of
// first occurrence.
func (p *Partition) pureGroups(mat *cluster.Mat) []*group {
	var groups []*group
	byKey := map[string]*group{}
	for r, k := range mat.Rows {
		pattern := mat.Pattern(r)
		key := fmt.Sprint(pattern)
		g := byKey[key]
		if g == nil {
			g = &group{key: key, cdr3s: map[string]bool{}, pattern: pattern}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
		g.cells += p.Info[k].NCells
		for _, c := range p.Info[k].CDR3s {
			g.cdr3s[c] = true
		}
	}
	return groups
}

// DeleteDoublets deletes the members of a pattern group C when two other
// groups A and B of the orbit share CDR3s with C but not with each other, and
// each has at least opts.DoubletRatio times as many cells as C. Such a C
// looks like two cells of A and B captured together.
func DeleteDoublets(p *Partition, opts Opts) (PassStats, error) {
	return p.run("doublets", fate.Doublet, opts, func(orbit []int) Decision {
		mat := p.mat(orbit, opts)
		groups := p.pureGroups(&mat)
		var d Decision
		for _, c := range groups {
			if doublet(groups, c, opts.DoubletRatio) {
				for _, r := range c.rows {
					d.Delete = append(d.Delete, mat.Rows[r])
				}
			}
		}
		return d
	})
}

func doublet(groups []*group, c *group, ratio float64) bool {
	min := ratio * float64(c.cells)
	for i, a := range groups {
		if a == c || float64(a.cells) < min || !a.shares(c) {
			continue
		}
		for _, b := range groups[i+1:] {
			if b == c || float64(b.cells) < min || !b.shares(c) || a.shares(b) {
				continue
			}
			return true
		}
	}
	return false
}
