// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package pipeline runs the clonotyping stages in order: exact subclonotype
// grouping, allele inference and reference correction, clustering, and the
// refinement passes.
//
// The work is split in two phases so that the exact subclonotypes can be
// checkpointed: BuildExacts runs the per-dataset stages, and Cluster runs the
// rest. Run runs both.
package pipeline

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/allele"
	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/exact"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/refine"
	"github.com/grailbio/clonotype/vdj"
)

// Exacts is the output of BuildExacts.
type Exacts struct {
	// Exacts holds the exact subclonotypes, with corrected V references.
	Exacts []vdj.ExactClonotype
	// AltRefs holds the inferred alternate alleles. TigShare.VRefAlt
	// indexes it.
	AltRefs []vdj.AltRef
	// Fate records the cells removed so far.
	Fate  *fate.Map
	Stats Stats
}

// Result is the final clonotype partition.
type Result struct {
	// Exacts holds the surviving exact subclonotypes, grouped by clonotype.
	Exacts []vdj.ExactClonotype
	// Info[i] describes Exacts[i].
	Info []vdj.CloneInfo
	// Orbits lists, for each clonotype, the Info indices of its members.
	// Members are sorted and orbits are ordered by their first member.
	Orbits  [][]int
	AltRefs []vdj.AltRef
	// Fate records why each removed cell was removed.
	Fate *fate.Map
	// ErrJoins lists the joins that the scorer flagged as errors, in the
	// order they were applied.
	ErrJoins []ErrJoin
	Stats    Stats
}

// ErrJoin is an applied join that the scorer believes spurious. Exact1 and
// Exact2 index Result.Exacts, or are -1 when refinement deleted the member.
type ErrJoin struct {
	Exact1, Exact2 int
	CDR3Diffs      int
}

// BuildExacts groups tigs into exact subclonotypes, infers alternate alleles
// and corrects the V reference of every chain. It fails only on malformed
// input.
func BuildExacts(tigs []vdj.TigData, ref *refdata.RefData, opts Opts) (*Exacts, error) {
	opts = opts.resolve()
	r := &Exacts{Fate: fate.New()}
	exacts, stats, err := exact.Build(tigs, opts.Exact, r.Fate)
	if err != nil {
		return nil, err
	}
	r.Exacts = exacts
	r.Stats.Exact = stats
	log.Printf("pipeline: built %d exact subclonotypes from %d cells", stats.Exacts, stats.Cells)

	if r.AltRefs, err = allele.Infer(r.Exacts, ref, opts.Allele); err != nil {
		return nil, err
	}
	r.Stats.AltRefs = len(r.AltRefs)
	r.Stats.Correct = allele.Correct(r.Exacts, r.AltRefs, ref, opts.Allele)
	return r, nil
}

// Cluster clusters the exact subclonotypes of e into clonotypes and refines
// the partition. Cells removed by refinement are recorded in e.Fate, which
// becomes the fate map of the result.
func Cluster(e *Exacts, ref *refdata.RefData, opts Opts) (*Result, error) {
	opts = opts.resolve()
	scorer := opts.scorer()
	info := cluster.BuildInfo(e.Exacts, e.AltRefs, ref)
	res, err := cluster.Join(info, scorer, opts.Cluster)
	if err != nil {
		return nil, err
	}
	var stats Stats
	stats.Join = res.Stats
	p := refine.NewPartition(e.Exacts, info, res, ref, scorer, e.Fate)
	stats.InitialCells = p.Cells()
	if stats.Passes, err = refinePartition(p, opts); err != nil {
		return nil, err
	}
	p.Check()

	r, index := compact(p)
	for _, j := range res.ErrLinks {
		r.ErrJoins = append(r.ErrJoins, ErrJoin{Exact1: index[j.K1], Exact2: index[j.K2], CDR3Diffs: j.CDR3Diffs})
	}
	r.AltRefs = e.AltRefs
	r.Fate = e.Fate
	stats.Cells = p.Cells()
	stats.Exacts = len(r.Exacts)
	stats.Clonotypes = len(r.Orbits)
	r.Stats = e.Stats.Merge(stats)
	r.Stats.log()
	return r, nil
}

// Run runs the whole pipeline on tigs.
func Run(tigs []vdj.TigData, ref *refdata.RefData, opts Opts) (*Result, error) {
	e, err := BuildExacts(tigs, ref, opts)
	if err != nil {
		return nil, err
	}
	return Cluster(e, ref, opts)
}

type pass func(*refine.Partition, refine.Opts) (refine.PassStats, error)

// refinePartition runs the refinement passes. Doublets and rare signatures
// are removed before weak chains, since those filters judge columns by cell
// counts that doublets distort.
func refinePartition(p *refine.Partition, opts Opts) ([]refine.PassStats, error) {
	var all []refine.PassStats
	runPasses := func(passes ...pass) (changed bool, err error) {
		for _, fn := range passes {
			s, err := fn(p, opts.Refine)
			if err != nil {
				return false, err
			}
			all = append(all, s)
			changed = changed || s.Changed()
		}
		return changed, nil
	}
	if _, err := runPasses(refine.DeleteDoublets, refine.Split, refine.FilterSignatures,
		refine.MergeOnesies, refine.Split); err != nil {
		return nil, err
	}
	for round := 0; round < opts.MaxRefineRounds; round++ {
		changed, err := runPasses(refine.FilterWeakChains, refine.FilterQuality, refine.Split)
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}
	}
	if _, err := runPasses(refine.DeleteUnmatchedOnesies, refine.Split); err != nil {
		return nil, err
	}
	return all, nil
}

// compact drops deleted exact subclonotypes and renumbers the survivors in
// orbit order. index maps each CloneInfo index of p to its index in the
// result, or to -1.
func compact(p *refine.Partition) (r *Result, index []int) {
	r = &Result{}
	index = make([]int, len(p.Info))
	for i := range index {
		index[i] = -1
	}
	for _, o := range p.Orbits {
		orbit := make([]int, len(o))
		for i, k := range o {
			n := len(r.Info)
			info := p.Info[k]
			r.Exacts = append(r.Exacts, p.Exacts[info.Exact])
			index[k] = n
			info.Index, info.Exact = n, n
			r.Info = append(r.Info, info)
			orbit[i] = n
		}
		r.Orbits = append(r.Orbits, orbit)
	}
	return r, index
}
