package refine

import "github.com/grailbio/clonotype/fate"

// FilterWeakChains deletes, in clonotypes with more than two chain columns,
// the members having a chain in a weak column: one with at most
// opts.WeakChainMaxCells cells and at most opts.WeakChainFraction of the
// clonotype's cells.
func FilterWeakChains(p *Partition, opts Opts) (PassStats, error) {
	return p.run("weak chains", fate.WeakChain, opts, func(orbit []int) Decision {
		mat := p.mat(orbit, opts)
		if len(mat.Cols) <= 2 {
			return Decision{}
		}
		total := 0
		for _, k := range mat.Rows {
			total += p.Info[k].NCells
		}
		weak := make([]bool, len(mat.Cols))
		for c := range mat.Cols {
			cells := 0
			for r, k := range mat.Rows {
				if mat.Present(r, c) {
					cells += p.Info[k].NCells
				}
			}
			weak[c] = cells <= opts.WeakChainMaxCells && float64(cells) <= opts.WeakChainFraction*float64(total)
		}
		var d Decision
		for r, k := range mat.Rows {
			for c := range mat.Cols {
				if weak[c] && mat.Present(r, c) {
					d.Delete = append(d.Delete, k)
					break
				}
			}
		}
		return d
	})
}
