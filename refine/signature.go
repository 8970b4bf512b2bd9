package refine

import "github.com/grailbio/clonotype/fate"

// FilterSignatures deletes members with a rare two-column signature. A
// signature is rare when the other two-column signatures that share a column
// with it have more than opts.SignatureRatio times as many cells.
func FilterSignatures(p *Partition, opts Opts) (PassStats, error) {
	return p.run("signatures", fate.Signature, opts, func(orbit []int) Decision {
		mat := p.mat(orbit, opts)
		var sigs []*group
		for _, g := range p.pureGroups(&mat) {
			if len(g.pattern) == 2 {
				sigs = append(sigs, g)
			}
		}
		var d Decision
		for _, s := range sigs {
			other := 0
			for _, t := range sigs {
				if t != s && overlaps(s.pattern, t.pattern) {
					other += t.cells
				}
			}
			if float64(other) > opts.SignatureRatio*float64(s.cells) {
				for _, r := range s.rows {
					d.Delete = append(d.Delete, mat.Rows[r])
				}
			}
		}
		return d
	})
}

func overlaps(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
