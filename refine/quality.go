package refine

import (
	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/vdj"
)

// refBase returns the reference base of chain m of member k at position pos,
// or 0 if pos is in the junction or beyond the reference. The V segment is
// aligned to the start of the chain and the J segment to its end.
func (p *Partition) refBase(k, m, pos int) byte {
	c := &p.Info[k]
	cdr3Start, cdr3Stop := c.CDR3Starts[m], c.CDR3Starts[m]+len(c.CDR3s[m])
	if v := c.VRefSeqs[m]; pos < cdr3Start {
		if pos < len(v) {
			return v[pos]
		}
		return 0
	}
	if pos < cdr3Stop || c.JRefIDs[m] == vdj.Absent {
		return 0
	}
	j := p.Ref.Seq(c.JRefIDs[m])
	off := c.Lens[m] - len(j)
	if pos-off >= 0 && pos-off < len(j) {
		return j[pos-off]
	}
	return 0
}

// FilterQuality deletes members carrying a variant base that is likely a
// sequencing error. At a position of a chain column where members disagree,
// a base that differs from the reference is deleted if none of its calls,
// across all cells of the members carrying it, reaches opts.QualHigh and
// fewer than two reach opts.QualMedium. Columns whose chains differ in length
// are skipped, since their positions are not comparable.
func FilterQuality(p *Partition, opts Opts) (PassStats, error) {
	return p.run("quality", fate.Quality, opts, func(orbit []int) Decision {
		mat := p.mat(orbit, opts)
		del := map[int]bool{}
		for c := range mat.Cols {
			p.qualityColumn(&mat, c, opts, del)
		}
		var d Decision
		for _, k := range mat.Rows {
			if del[k] {
				d.Delete = append(d.Delete, k)
			}
		}
		return d
	})
}

func (p *Partition) qualityColumn(mat *cluster.Mat, c int, opts Opts, del map[int]bool) {
	var rows []int
	length := -1
	for r := range mat.Rows {
		if !mat.Present(r, c) {
			continue
		}
		n := len(p.Info[mat.Rows[r]].Tigs[mat.Cols[c].Chains[r]])
		if length >= 0 && n != length {
			// Neutered.
			return
		}
		length = n
		rows = append(rows, r)
	}
	if len(rows) < 2 {
		return
	}
	seq := func(r int) string { return p.Info[mat.Rows[r]].Tigs[mat.Cols[c].Chains[r]] }
	for pos := 0; pos < length; pos++ {
		b0 := seq(rows[0])[pos]
		variant := false
		for _, r := range rows[1:] {
			if seq(r)[pos] != b0 {
				variant = true
				break
			}
		}
		if !variant {
			continue
		}
		// Group rows by their base, and judge each non-reference base.
		var bases []byte
		carriers := map[byte][]int{}
		for _, r := range rows {
			b := seq(r)[pos]
			if _, ok := carriers[b]; !ok {
				bases = append(bases, b)
			}
			carriers[b] = append(carriers[b], r)
		}
		for _, b := range bases {
			var high, medium int
			nonRef := false
			for _, r := range carriers[b] {
				k, m := mat.Rows[r], mat.Cols[c].Chains[r]
				if ref := p.refBase(k, m, pos); ref != 0 && ref != b {
					nonRef = true
				}
				for _, cl := range p.exact(k).Clones {
					q := cl.Tigs[m].Quals[pos]
					if q >= opts.QualHigh {
						high++
					}
					if q >= opts.QualMedium {
						medium++
					}
				}
			}
			if nonRef && high == 0 && medium < 2 {
				for _, r := range carriers[b] {
					del[mat.Rows[r]] = true
				}
			}
		}
	}
}
