package refine

import "github.com/grailbio/clonotype/equiv"

// Split replaces each orbit by the connected components of the links
// between its members. Deletions can disconnect orbits that were held
// together only through the deleted members.
func Split(p *Partition, opts Opts) (PassStats, error) {
	linksOf := map[int][]int{}
	for i, j := range p.Links {
		linksOf[j.K1] = append(linksOf[j.K1], i)
		linksOf[j.K2] = append(linksOf[j.K2], i)
	}
	return p.run("split", "", opts, func(orbit []int) Decision {
		if len(orbit) < 2 {
			return Decision{}
		}
		pos := make(map[int]int, len(orbit))
		for i, k := range orbit {
			pos[k] = i
		}
		rel := equiv.New(len(orbit))
		for i, k := range orbit {
			for _, l := range linksOf[k] {
				other := p.Links[l].K1
				if other == k {
					other = p.Links[l].K2
				}
				if o, ok := pos[other]; ok {
					rel.Join(i, o)
				}
			}
		}
		if rel.NumOrbits() == 1 {
			return Decision{}
		}
		var d Decision
		for _, c := range rel.Orbits() {
			comp := make([]int, len(c))
			for i, x := range c {
				comp[i] = orbit[x]
			}
			d.Components = append(d.Components, comp)
		}
		return d
	})
}
