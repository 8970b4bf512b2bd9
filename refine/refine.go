// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package refine implements the passes that clean up the initial clonotype
// partition: they delete members that look like artifacts, merge single-chain
// members into clonotypes, and split clonotypes that lost their connections.
//
// Each pass examines every orbit in parallel and returns a Decision per
// orbit, without modifying shared state. Decisions are then applied in orbit
// order by a single goroutine, which is also the only writer of the fate map.
package refine

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/join"
	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/util"
	"github.com/grailbio/clonotype/vdj"
)

// Opts configures the refinement passes.
type Opts struct {
	// DoubletRatio is the minimum ratio of the cell counts of the two
	// groups a doublet signature bridges to its own cell count.
	DoubletRatio float64
	// SignatureRatio is the minimum ratio of the cells of competing
	// two-chain signatures to the cells of a signature that is deleted.
	SignatureRatio float64
	// A column of a clonotype with more than two columns is weak if it has
	// at most WeakChainMaxCells cells and at most WeakChainFraction of the
	// clonotype's cells.
	WeakChainMaxCells int
	WeakChainFraction float64
	// A variant base is deleted if none of its calls reach QualHigh and
	// fewer than two reach QualMedium.
	QualHigh   byte
	QualMedium byte
	// Parallelism bounds the number of orbits processed concurrently. Zero
	// means one per CPU.
	Parallelism int
	// Mat configures chain alignment.
	Mat cluster.Opts
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	DoubletRatio:      5,
	SignatureRatio:    20,
	WeakChainMaxCells: 20,
	WeakChainFraction: 0.125,
	QualHigh:          30,
	QualMedium:        20,
	Mat:               cluster.DefaultOpts,
}

// Partition is the clonotype partition being refined.
type Partition struct {
	Exacts []vdj.ExactClonotype
	Info   []vdj.CloneInfo
	// Orbits lists the CloneInfo indices of the members of each clonotype.
	// Members are sorted, and orbits are ordered by their first member.
	Orbits [][]int
	// Deleted marks deleted CloneInfo entries.
	Deleted []bool
	// Links are the joins that connect members; Split keeps members
	// together only if a path of links connects them.
	Links []vdj.PotentialJoin
	Raw   cluster.RawIndex

	Ref    *refdata.RefData
	Scorer join.Scorer
	Fate   *fate.Map
}

// NewPartition creates the partition computed by cluster.Join.
func NewPartition(exacts []vdj.ExactClonotype, info []vdj.CloneInfo, res *cluster.Result,
	ref *refdata.RefData, scorer join.Scorer, fates *fate.Map) *Partition {
	return &Partition{
		Exacts:  exacts,
		Info:    info,
		Orbits:  res.Relation.Orbits(),
		Deleted: make([]bool, len(info)),
		Links:   append([]vdj.PotentialJoin(nil), res.Links...),
		Raw:     cluster.IndexRaw(res.Raw),
		Ref:     ref,
		Scorer:  scorer,
		Fate:    fates,
	}
}

// Cells returns the number of cells of the members that are not deleted.
func (p *Partition) Cells() int {
	n := 0
	for _, o := range p.Orbits {
		for _, k := range o {
			n += p.Info[k].NCells
		}
	}
	return n
}

func (p *Partition) exact(k int) *vdj.ExactClonotype { return &p.Exacts[p.Info[k].Exact] }

func (p *Partition) mat(orbit []int, opts Opts) cluster.Mat {
	return cluster.DefineMat(orbit, p.Info, p.Raw, p.Scorer, opts.Mat)
}

// Move moves Member into the orbit that contains Target.
type Move struct {
	Member, Target int
}

// Decision is the outcome of a pass for one orbit.
type Decision struct {
	// Delete lists members to delete.
	Delete []int
	// Components, if non-nil, replaces the orbit.
	Components [][]int
	Moves      []Move
}

// PassStats summarizes one run of a pass.
type PassStats struct {
	Name string
	// Exacts and Cells count the deleted exact subclonotypes and their
	// cells.
	Exacts int
	Cells  int
	// Merged counts members moved to another orbit.
	Merged int
	// Split counts orbits that were split.
	Split int
}

// Changed reports whether the pass modified the partition.
func (s PassStats) Changed() bool { return s.Exacts > 0 || s.Merged > 0 || s.Split > 0 }

// run evaluates fn on every orbit in parallel, and applies the decisions.
func (p *Partition) run(name, reason string, opts Opts, fn func(orbit []int) Decision) (PassStats, error) {
	decisions := make([]Decision, len(p.Orbits))
	err := util.Each(opts.Parallelism, len(p.Orbits), func(i int) error {
		decisions[i] = fn(p.Orbits[i])
		return nil
	})
	if err != nil {
		return PassStats{}, err
	}
	stats := p.apply(decisions, reason)
	stats.Name = name
	if stats.Changed() {
		log.Printf("refine: %s: deleted %d exact subclonotypes (%d cells), merged %d, split %d orbits",
			name, stats.Exacts, stats.Cells, stats.Merged, stats.Split)
	}
	return stats, nil
}

func (p *Partition) delete(k int, reason string) int {
	if p.Deleted[k] {
		log.Panicf("refine: member %d deleted twice", k)
	}
	p.Deleted[k] = true
	e := p.exact(k)
	for _, c := range e.Clones {
		p.Fate.Add(c.Dataset, c.Barcode, reason)
	}
	return e.NCells()
}

// apply applies decisions, indexed like p.Orbits, in order.
func (p *Partition) apply(decisions []Decision, reason string) PassStats {
	var stats PassStats
	dest := map[int]int{}
	for i, o := range p.Orbits {
		for _, k := range o {
			dest[k] = i
		}
	}
	orbits := make([][]int, len(p.Orbits))
	for i, o := range p.Orbits {
		orbits[i] = append([]int(nil), o...)
	}
	for i, d := range decisions {
		if len(d.Delete) > 0 {
			del := map[int]bool{}
			for _, k := range d.Delete {
				if !del[k] {
					del[k] = true
					stats.Exacts++
					stats.Cells += p.delete(k, reason)
				}
			}
			var kept []int
			for _, k := range orbits[i] {
				if !del[k] {
					kept = append(kept, k)
				}
			}
			orbits[i] = kept
		}
		for _, m := range d.Moves {
			t := dest[m.Target]
			orbits[t] = append(orbits[t], m.Member)
			removeMember(&orbits[i], m.Member)
			p.Links = append(p.Links, vdj.PotentialJoin{K1: m.Member, K2: m.Target})
			stats.Merged++
		}
	}
	var next [][]int
	for i, o := range orbits {
		if decisions[i].Components != nil {
			stats.Split++
			next = append(next, decisions[i].Components...)
			continue
		}
		if len(o) > 0 {
			next = append(next, o)
		}
	}
	for _, o := range next {
		sort.Ints(o)
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i][0] < next[j][0] })
	p.Orbits = next
	return stats
}

func removeMember(o *[]int, k int) {
	v := (*o)[:0:0]
	for _, x := range *o {
		if x != k {
			v = append(v, x)
		}
	}
	*o = v
}

// Check verifies that every member of every orbit is live and appears once.
// A violation is a bug.
func (p *Partition) Check() {
	seen := make([]bool, len(p.Info))
	for _, o := range p.Orbits {
		for _, k := range o {
			if p.Deleted[k] || seen[k] {
				log.Panicf("refine: orbit member %d deleted or repeated", k)
			}
			seen[k] = true
		}
	}
}
