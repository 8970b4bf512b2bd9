package refine

import "github.com/grailbio/clonotype/fate"

// seqIndex maps a chain sequence to the members that carry it.
type seqIndex map[string][]int

func (p *Partition) indexSeqs() seqIndex {
	idx := seqIndex{}
	for _, o := range p.Orbits {
		for _, k := range o {
			seen := map[string]bool{}
			for _, s := range p.Info[k].Tigs {
				if !seen[s] {
					seen[s] = true
					idx[s] = append(idx[s], k)
				}
			}
		}
	}
	return idx
}

func (p *Partition) onesieOrbit(orbit []int) bool {
	for _, k := range orbit {
		if len(p.Info[k].Lens) != 1 {
			return false
		}
	}
	return true
}

// MergeOnesies moves clonotypes made only of single-chain members into the
// one multi-chain clonotype having a member with a chain identical to one of
// theirs. Clonotypes with matches in more than one clonotype are left alone.
func MergeOnesies(p *Partition, opts Opts) (PassStats, error) {
	idx := p.indexSeqs()
	orbitOf := map[int]int{}
	for i, o := range p.Orbits {
		for _, k := range o {
			orbitOf[k] = i
		}
	}
	return p.run("merge onesies", "", opts, func(orbit []int) Decision {
		if !p.onesieOrbit(orbit) {
			return Decision{}
		}
		target, via := -1, -1
		for _, k := range orbit {
			for _, l := range idx[p.Info[k].Tigs[0]] {
				if len(p.Info[l].Lens) < 2 {
					continue
				}
				switch t := orbitOf[l]; {
				case target < 0:
					target, via = t, l
				case t != target:
					return Decision{}
				}
			}
		}
		if target < 0 {
			return Decision{}
		}
		var d Decision
		for _, k := range orbit {
			d.Moves = append(d.Moves, Move{Member: k, Target: via})
		}
		return d
	})
}

// DeleteUnmatchedOnesies deletes single-chain members whose chain is not
// carried by any other member.
func DeleteUnmatchedOnesies(p *Partition, opts Opts) (PassStats, error) {
	idx := p.indexSeqs()
	return p.run("unmatched onesies", fate.UnmatchedOnesie, opts, func(orbit []int) Decision {
		var d Decision
		for _, k := range orbit {
			if len(p.Info[k].Lens) == 1 && len(idx[p.Info[k].Tigs[0]]) < 2 {
				d.Delete = append(d.Delete, k)
			}
		}
		return d
	})
}
