// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package allele infers donor-specific alternate alleles of V reference
// segments from the observed chain sequences, and reassigns each chain to the
// allele that explains it best.
package allele

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/util"
	"github.com/grailbio/clonotype/vdj"
)

// Opts configures Infer and Correct.
type Opts struct {
	// VTrailingTrim is the number of bases at the 3' end of each V segment
	// that are neither inferred nor compared. They overlap the CDR3, where
	// differences are junctional rather than germline.
	VTrailingTrim int
	// A position is flagged as variant if its second most frequent base is
	// seen at least MinAltCount times and in at least MinAltFraction of the
	// observations. The same thresholds select the footprints kept as
	// alleles.
	MinAltCount    int
	MinAltFraction float64
	// Parallelism bounds the number of (donor, segment) groups inferred
	// concurrently. Zero means one per CPU.
	Parallelism int
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	VTrailingTrim:  15,
	MinAltCount:    4,
	MinAltFraction: 0.25,
}

type groupKey struct {
	donor, refID int
}

// dedupKey identifies observations that are likely to come from one clonal
// expansion.
type dedupKey struct {
	cdr3Len, partnerV, partnerJ, partnerCDR3Len int
}

type observation struct {
	seq    string
	digest vdj.Digest
}

// partner returns the index of the first chain of e on the opposite locus
// from chain m, or -1.
func partner(e *vdj.ExactClonotype, m int) int {
	for i := range e.Share {
		if e.Share[i].Left != e.Share[m].Left {
			return i
		}
	}
	return -1
}

// Infer finds donor-specific alternate alleles of V segments. Only chains of
// exact subclonotypes with a partner chain of the opposite locus are used.
// The result is ordered by donor, then reference id, then sequence; it is
// empty if no alleles are found.
func Infer(exacts []vdj.ExactClonotype, ref *refdata.RefData, opts Opts) ([]vdj.AltRef, error) {
	groups := map[groupKey]map[dedupKey]observation{}
	for i := range exacts {
		e := &exacts[i]
		if e.NChains() < 2 || e.NCells() == 0 {
			continue
		}
		donor := e.Clones[0].Donor
		for m := range e.Share {
			s := &e.Share[m]
			p := partner(e, m)
			if p < 0 || s.VRefID == vdj.Absent {
				continue
			}
			if _, ok := ref.Segment(s.VRefID); !ok {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("chain %s: V segment %d not in reference", s.CDR3, s.VRefID))
			}
			gk := groupKey{donor, s.VRefID}
			obs := groups[gk]
			if obs == nil {
				obs = map[dedupKey]observation{}
				groups[gk] = obs
			}
			dk := dedupKey{len(s.CDR3), e.Share[p].VRefID, e.Share[p].JRefID, len(e.Share[p].CDR3)}
			if o, ok := obs[dk]; !ok || e.Digest.Less(o.digest) {
				obs[dk] = observation{s.Seq, e.Digest}
			}
		}
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].donor != keys[j].donor {
			return keys[i].donor < keys[j].donor
		}
		return keys[i].refID < keys[j].refID
	})

	results := make([][]vdj.AltRef, len(keys))
	err := util.Each(opts.Parallelism, len(keys), func(i int) error {
		k := keys[i]
		obs := make([]observation, 0, len(groups[k]))
		for _, o := range groups[k] {
			obs = append(obs, o)
		}
		sort.Slice(obs, func(i, j int) bool { return obs[i].digest.Less(obs[j].digest) })
		results[i] = inferGroup(k, ref.Seq(k.refID), obs, opts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var alts []vdj.AltRef
	for _, r := range results {
		alts = append(alts, r...)
	}
	log.Printf("allele: %d alternate alleles from %d (donor, V segment) groups", len(alts), len(keys))
	return alts, nil
}

func baseIndex(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	}
	return -1
}

// flagVariants returns the positions in [0, limit) at which the
// observations disagree with each other or with refSeq in a coherent way.
func flagVariants(refSeq string, obs []observation, limit int, opts Opts) []int {
	var flagged []int
	for p := 0; p < limit; p++ {
		var counts [4]int
		n := 0
		for _, o := range obs {
			if p >= len(o.seq) {
				continue
			}
			if b := baseIndex(o.seq[p]); b >= 0 {
				counts[b]++
				n++
			}
		}
		if n == 0 {
			continue
		}
		first, second := -1, -1
		for b := 0; b < 4; b++ {
			switch {
			case first < 0 || counts[b] > counts[first]:
				first, second = b, first
			case second < 0 || counts[b] > counts[second]:
				second = b
			}
		}
		secondOK := counts[second] >= opts.MinAltCount && float64(counts[second]) >= opts.MinAltFraction*float64(n)
		firstAlt := "ACGT"[first] != refSeq[p] && counts[first] >= opts.MinAltCount
		if secondOK || firstAlt {
			flagged = append(flagged, p)
		}
	}
	return flagged
}

// inferGroup infers the alleles of one V segment in one donor.
func inferGroup(k groupKey, refSeq string, obs []observation, opts Opts) []vdj.AltRef {
	limit := len(refSeq) - opts.VTrailingTrim
	if limit <= 0 || len(obs) == 0 {
		return nil
	}
	flagged := flagVariants(refSeq, obs, limit, opts)
	if len(flagged) == 0 {
		return nil
	}

	footprint := func(s string) (string, bool) {
		fp := make([]byte, len(flagged))
		for i, p := range flagged {
			if p >= len(s) || baseIndex(s[p]) < 0 {
				return "", false
			}
			fp[i] = s[p]
		}
		return string(fp), true
	}
	refFP, _ := footprint(refSeq)
	counts := map[string]int{}
	for _, o := range obs {
		if fp, ok := footprint(o.seq); ok {
			counts[fp]++
		}
	}
	var kept []string
	for fp, c := range counts {
		if fp == refFP || (c >= opts.MinAltCount && float64(c) >= opts.MinAltFraction*float64(len(obs))) {
			kept = append(kept, fp)
		}
	}
	sort.Strings(kept)

	// Only columns at which some kept footprint differs from the reference
	// discriminate between alleles.
	var cols []int
	for i := range flagged {
		for _, fp := range kept {
			if fp[i] != refFP[i] {
				cols = append(cols, i)
				break
			}
		}
	}
	var alts []vdj.AltRef
	for _, fp := range kept {
		if fp == refFP {
			continue
		}
		seq := []byte(refSeq)
		for _, i := range cols {
			seq[flagged[i]] = fp[i]
		}
		alts = append(alts, vdj.AltRef{Donor: k.donor, RefID: k.refID, Seq: string(seq), Support: counts[fp]})
		log.Debug.Printf("allele: donor %d segment %d: allele with %d differences, support %d",
			k.donor, k.refID, util.Mismatches(refSeq, string(seq), 0, len(seq)), counts[fp])
	}
	return alts
}
