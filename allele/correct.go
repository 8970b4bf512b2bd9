package allele

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/util"
	"github.com/grailbio/clonotype/vdj"
)

// CorrectStats summarizes a Correct run.
type CorrectStats struct {
	// Chains is the number of chains considered.
	Chains int
	// Changed counts chains whose VRefAlt changed.
	Changed int
	// Conflicts counts chains whose donors disagree on the best allele. Such
	// chains keep the universal reference.
	Conflicts int
}

// Merge adds the counters of o to s and returns the result.
func (s CorrectStats) Merge(o CorrectStats) CorrectStats {
	s.Chains += o.Chains
	s.Changed += o.Changed
	s.Conflicts += o.Conflicts
	return s
}

// Correct sets TigShare.VRefAlt of every chain to the allele in alts (or the
// universal reference, vdj.Absent) with the fewest mismatches against the
// chain over the V segment minus its trailing trim. Ties favor the universal
// reference, then the earlier allele. Correct never changes sequences or chain
// composition, and applying it twice has the same effect as applying it once.
func Correct(exacts []vdj.ExactClonotype, alts []vdj.AltRef, ref *refdata.RefData, opts Opts) CorrectStats {
	byGroup := map[groupKey][]int{}
	for i, a := range alts {
		k := groupKey{a.Donor, a.RefID}
		byGroup[k] = append(byGroup[k], i)
	}
	var stats CorrectStats
	for i := range exacts {
		e := &exacts[i]
		donors := e.Donors()
		for m := range e.Share {
			s := &e.Share[m]
			if s.VRefID == vdj.Absent {
				continue
			}
			stats.Chains++
			choice := vdj.Absent
			for d, donor := range donors {
				c := bestAllele(s, ref.Seq(s.VRefID), alts, byGroup[groupKey{donor, s.VRefID}], opts)
				if d == 0 {
					choice = c
				} else if c != choice {
					choice = vdj.Absent
					stats.Conflicts++
					break
				}
			}
			if s.VRefAlt != choice {
				stats.Changed++
				s.VRefAlt = choice
			}
		}
	}
	if stats.Conflicts > 0 {
		log.Printf("allele: %d chains with conflicting donor alleles kept the universal reference", stats.Conflicts)
	}
	log.Printf("allele: reassigned %d of %d chains", stats.Changed, stats.Chains)
	return stats
}

// bestAllele returns the index in alts of the allele among candidates that
// best explains s, or vdj.Absent if the universal reference does.
func bestAllele(s *vdj.TigShare, refSeq string, alts []vdj.AltRef, candidates []int, opts Opts) int {
	limit := len(refSeq) - opts.VTrailingTrim
	if limit <= 0 || len(candidates) == 0 {
		return vdj.Absent
	}
	best, min := vdj.Absent, util.Mismatches(s.Seq, refSeq, 0, limit)
	for _, a := range candidates {
		if n := util.Mismatches(s.Seq, alts[a].Seq, 0, limit); n < min {
			best, min = a, n
		}
	}
	return best
}
