// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cluster groups exact subclonotypes into clonotypes.
//
// Exact subclonotypes are flattened into CloneInfo entries (BuildInfo), which
// are compared only within blocks of identical chain length signatures
// (Join). Links are collected per block in parallel and applied to a single
// equivalence relation afterwards. DefineMat aligns the chains of the members
// of one clonotype into columns.
package cluster

import (
	"sort"

	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/vdj"
)

// BuildInfo creates one CloneInfo per exact subclonotype. The result is
// sorted by chain length signature, then by exact digest, so entries of one
// block are contiguous. VRefSeqs holds the allele chosen by allele
// correction, or the universal reference.
func BuildInfo(exacts []vdj.ExactClonotype, alts []vdj.AltRef, ref *refdata.RefData) []vdj.CloneInfo {
	info := make([]vdj.CloneInfo, len(exacts))
	for i := range exacts {
		info[i] = newInfo(i, &exacts[i], alts, ref)
	}
	sort.SliceStable(info, func(i, j int) bool {
		a, b := &info[i], &info[j]
		if vdj.LessLens(a, b) {
			return true
		}
		if vdj.LessLens(b, a) {
			return false
		}
		return exacts[a.Exact].Digest.Less(exacts[b.Exact].Digest)
	})
	for i := range info {
		info[i].Index = i
	}
	return info
}

func newInfo(i int, e *vdj.ExactClonotype, alts []vdj.AltRef, ref *refdata.RefData) vdj.CloneInfo {
	n := e.NChains()
	c := vdj.CloneInfo{
		Exact:      i,
		Lens:       make([]int, n),
		Tigs:       make([]string, n),
		CDR3s:      make([]string, n),
		CDR3Starts: make([]int, n),
		ChainTypes: make([]string, n),
		VRefIDs:    make([]int, n),
		JRefIDs:    make([]int, n),
		VRefSeqs:   make([]string, n),
		Donors:     e.Donors(),
		NCells:     e.NCells(),
	}
	for m := range e.Share {
		s := &e.Share[m]
		c.Lens[m] = len(s.Seq)
		c.Tigs[m] = s.Seq
		c.CDR3s[m] = s.CDR3
		c.CDR3Starts[m] = s.CDR3Start
		c.ChainTypes[m] = s.ChainType
		c.VRefIDs[m] = s.VRefID
		c.JRefIDs[m] = s.JRefID
		if s.VRefAlt != vdj.Absent {
			c.VRefSeqs[m] = alts[s.VRefAlt].Seq
		} else {
			c.VRefSeqs[m] = ref.Seq(s.VRefID)
		}
	}
	origins := map[int]bool{}
	for _, cl := range e.Clones {
		if !origins[cl.Origin] {
			origins[cl.Origin] = true
			c.Origins = append(c.Origins, cl.Origin)
		}
	}
	sort.Ints(c.Origins)
	return c
}
