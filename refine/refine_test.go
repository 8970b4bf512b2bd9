package refine

import (
	"fmt"
	"sort"
	"testing"

	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/equiv"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/join"
	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/vdj"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	hv = "CAGGTGCAGCTGGTGCAGTCTGGGGCTGAGG"
	hj = "TGGGGCCAGGGAACC"
	kv = "GACATCCAGATGACCCAGTCTCCATCC"
	kj = "TTCGGCCAAGGGACC"

	h1 = "TGTGCGAGAGATTACTGG"
	h2 = "TGTGCGAGGGGTATAGCA"
	h9 = "TGTACCACCCCCCCCTGG"
	k1 = "TGCCAGCAGTATAATAGT"
	k2 = "TGCCAACAGTTTGATACT"
	// k3 differs from the other kappa CDR3s in length.
	k3 = "TGCCAACAGTTTGATACTCCG"
)

var testRef = refdata.New([]refdata.Segment{
	{ID: 1, Seq: hv}, {ID: 2, Seq: hj}, {ID: 3, Seq: kv}, {ID: 4, Seq: kj},
})

func share(chainType, v, cdr3, j string, vid, jid int) vdj.TigShare {
	return vdj.TigShare{
		ChainType: chainType,
		Left:      vdj.IsLeft(chainType),
		Seq:       v + cdr3 + j,
		CDR3:      cdr3,
		CDR3Start: len(v),
		VRefID:    vid,
		JRefID:    jid,
		VRefAlt:   vdj.Absent,
	}
}

func heavy(cdr3 string) vdj.TigShare { return share("IGH", hv, cdr3, hj, 1, 2) }
func kappa(cdr3 string) vdj.TigShare { return share("IGK", kv, cdr3, kj, 3, 4) }

func mutate(s string, pos int) string {
	b := []byte(s)
	if b[pos] == 'A' {
		b[pos] = 'C'
	} else {
		b[pos] = 'A'
	}
	return string(b)
}

var nextBarcode int

func testExact(ncells int, chains ...vdj.TigShare) vdj.ExactClonotype {
	e := vdj.ExactClonotype{Share: chains}
	for i := 0; i < ncells; i++ {
		nextBarcode++
		c := vdj.Clone{Barcode: fmt.Sprintf("BC%06d-1", nextBarcode)}
		for _, s := range chains {
			quals := make([]byte, len(s.Seq))
			for j := range quals {
				quals[j] = 40
			}
			c.Tigs = append(c.Tigs, vdj.CloneTig{Quals: quals})
		}
		e.Clones = append(e.Clones, c)
	}
	e.ComputeDigest()
	return e
}

// testPartition creates a partition with the given orbits and links, both
// expressed as indices into exacts.
func testPartition(exacts []vdj.ExactClonotype, orbits [][]int, links [][2]int) *Partition {
	info := cluster.BuildInfo(exacts, nil, testRef)
	infoOf := make([]int, len(exacts))
	for i := range info {
		infoOf[info[i].Exact] = i
	}
	res := &cluster.Result{Relation: equiv.New(len(info))}
	for _, l := range links {
		j := vdj.PotentialJoin{K1: infoOf[l[0]], K2: infoOf[l[1]]}
		if j.K1 > j.K2 {
			j.K1, j.K2 = j.K2, j.K1
		}
		res.Links = append(res.Links, j)
		res.Raw = append(res.Raw, j)
		res.Relation.Join(j.K1, j.K2)
	}
	for _, o := range orbits {
		for _, e := range o[1:] {
			res.Relation.Join(infoOf[o[0]], infoOf[e])
		}
	}
	return NewPartition(exacts, info, res, testRef, join.NewDefaultScorer(join.DefaultOpts), fate.New())
}

// exactOrbits returns the orbits of p as sorted exact indices.
func exactOrbits(p *Partition) [][]int {
	var orbits [][]int
	for _, o := range p.Orbits {
		var v []int
		for _, k := range o {
			v = append(v, p.Info[k].Exact)
		}
		sort.Ints(v)
		orbits = append(orbits, v)
	}
	sort.Slice(orbits, func(i, j int) bool { return orbits[i][0] < orbits[j][0] })
	return orbits
}

func expectFates(t *testing.T, p *Partition, e int, reason string) {
	t.Helper()
	for _, c := range p.Exacts[e].Clones {
		r, ok := p.Fate.Get(c.Dataset, c.Barcode)
		expect.True(t, ok, c.Barcode)
		expect.EQ(t, r, reason)
	}
}

func TestDeleteDoublets(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(50, heavy(h1), kappa(k1)),
		testExact(50, heavy(h2), kappa(k2)),
		testExact(5, heavy(h1), heavy(h2), kappa(k1), kappa(k2)),
	}
	p := testPartition(exacts, [][]int{{0, 1, 2}}, nil)
	stats, err := DeleteDoublets(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Exacts, 1)
	expect.EQ(t, stats.Cells, 5)
	expect.EQ(t, exactOrbits(p), [][]int{{0, 1}})
	expectFates(t, p, 2, fate.Doublet)
	expect.EQ(t, p.Fate.Len(), 5)
	p.Check()

	// A bridge with enough cells is kept.
	exacts[2] = testExact(20, heavy(h1), heavy(h2), kappa(k1), kappa(k2))
	p = testPartition(exacts, [][]int{{0, 1, 2}}, nil)
	stats, err = DeleteDoublets(p, DefaultOpts)
	assert.NoError(t, err)
	expect.False(t, stats.Changed())
	expect.EQ(t, exactOrbits(p), [][]int{{0, 1, 2}})
}

func TestFilterSignatures(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(100, heavy(h1), kappa(k1)),
		testExact(3, heavy(h1), kappa(k3)),
		testExact(10, heavy(h1), kappa(k1), kappa(k3)),
	}
	p := testPartition(exacts, [][]int{{0, 1, 2}}, nil)
	stats, err := FilterSignatures(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Exacts, 1)
	expect.EQ(t, exactOrbits(p), [][]int{{0, 2}})
	expectFates(t, p, 1, fate.Signature)

	exacts[1] = testExact(6, heavy(h1), kappa(k3))
	p = testPartition(exacts, [][]int{{0, 1, 2}}, nil)
	stats, err = FilterSignatures(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Exacts, 0)
}

func TestFilterWeakChains(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(100, heavy(h1), kappa(k1)),
		testExact(3, heavy(h1), kappa(k1), kappa(k3)),
	}
	p := testPartition(exacts, [][]int{{0, 1}}, nil)
	stats, err := FilterWeakChains(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Exacts, 1)
	expect.EQ(t, exactOrbits(p), [][]int{{0}})
	expectFates(t, p, 1, fate.WeakChain)

	// Two chain columns are never weak.
	exacts = []vdj.ExactClonotype{
		testExact(100, heavy(h1), kappa(k1)),
		testExact(1, heavy(h1)),
	}
	p = testPartition(exacts, [][]int{{0, 1}}, nil)
	stats, err = FilterWeakChains(p, DefaultOpts)
	assert.NoError(t, err)
	expect.False(t, stats.Changed())
}

func TestOnesies(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(5, heavy(h1), kappa(k1)),
		testExact(2, heavy(h1)),
		testExact(2, heavy(h9)),
		testExact(5, heavy(h2), kappa(k2)),
		testExact(1, kappa(k2)),
		testExact(4, heavy(h2), kappa(k1)),
	}
	p := testPartition(exacts, [][]int{{0}, {1}, {2}, {3}, {4}, {5}}, nil)
	stats, err := MergeOnesies(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Merged, 2)
	expect.EQ(t, exactOrbits(p), [][]int{{0, 1}, {2}, {3, 4}, {5}})

	stats, err = DeleteUnmatchedOnesies(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Exacts, 1)
	expect.EQ(t, exactOrbits(p), [][]int{{0, 1}, {3, 4}, {5}})
	expectFates(t, p, 2, fate.UnmatchedOnesie)

	// Merged onesies stay connected.
	stats, err = Split(p, DefaultOpts)
	assert.NoError(t, err)
	expect.False(t, stats.Changed())
	p.Check()
}

func TestMergeOnesiesAmbiguous(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(5, heavy(h1), kappa(k1)),
		testExact(5, heavy(h1), kappa(k2)),
		testExact(2, heavy(h1)),
	}
	p := testPartition(exacts, [][]int{{0}, {1}, {2}}, nil)
	stats, err := MergeOnesies(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Merged, 0)
	expect.EQ(t, len(p.Orbits), 3)
}

func TestSplit(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(5, heavy(h1), kappa(k1)),
		testExact(5, heavy(mutate(h1, 3)), kappa(k1)),
		testExact(5, heavy(mutate(h1, 5)), kappa(k1)),
		testExact(5, heavy(h2), kappa(k2)),
	}
	p := testPartition(exacts, [][]int{{0, 1, 2, 3}}, [][2]int{{0, 1}, {1, 2}})
	stats, err := Split(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Split, 1)
	expect.EQ(t, exactOrbits(p), [][]int{{0, 1, 2}, {3}})
	expect.EQ(t, p.Fate.Len(), 0)
}

func TestFilterQuality(t *testing.T) {
	exacts := []vdj.ExactClonotype{
		testExact(10, heavy(h1), kappa(k1)),
		testExact(1, share("IGH", mutate(hv, 5), h1, hj, 1, 2), kappa(k1)),
		testExact(1, share("IGH", mutate(hv, 8), h1, hj, 1, 2), kappa(k1)),
		testExact(2, share("IGH", mutate(hv, 12), h1, hj, 1, 2), kappa(k1)),
		testExact(2, share("IGH", mutate(hv, 15), h1, hj, 1, 2), kappa(k1)),
	}
	exacts[1].Clones[0].Tigs[0].Quals[5] = 10
	exacts[2].Clones[0].Tigs[0].Quals[8] = 35
	exacts[3].Clones[0].Tigs[0].Quals[12] = 25
	exacts[3].Clones[1].Tigs[0].Quals[12] = 25
	exacts[4].Clones[0].Tigs[0].Quals[15] = 25
	exacts[4].Clones[1].Tigs[0].Quals[15] = 5
	links := [][2]int{{0, 1}, {0, 2}, {0, 3}, {0, 4}}
	p := testPartition(exacts, nil, links)
	stats, err := FilterQuality(p, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Exacts, 2)
	expect.EQ(t, exactOrbits(p), [][]int{{0, 2, 3}})
	expectFates(t, p, 1, fate.Quality)
	expectFates(t, p, 4, fate.Quality)

	// A chain with an indel makes positions incomparable.
	exacts = append(exacts[:2], testExact(1, share("IGH", hv[:20]+hv[21:], h1, hj, 1, 2), kappa(k1)))
	for i := range exacts[2].Clones[0].Tigs[0].Quals {
		exacts[2].Clones[0].Tigs[0].Quals[i] = 2
	}
	p = testPartition(exacts, [][]int{{0, 1, 2}}, [][2]int{{0, 1}})
	stats, err = FilterQuality(p, DefaultOpts)
	assert.NoError(t, err)
	expect.False(t, stats.Changed())
}
