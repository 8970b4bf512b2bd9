package cluster

import (
	"encoding/binary"
	"sort"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/equiv"
	"github.com/grailbio/clonotype/join"
	"github.com/grailbio/clonotype/util"
	"github.com/grailbio/clonotype/vdj"
)

// Opts configures Join and DefineMat.
type Opts struct {
	// Easy keeps joins of two-cell clonotypes that have too little shared
	// evidence for their CDR3 differences.
	Easy bool
	// Force counts joins between members that are already joined.
	Force bool
	// Parallelism bounds the number of blocks processed concurrently. Zero
	// means one per CPU.
	Parallelism int
	// DefineMatMaxTests caps the number of single-chain comparisons DefineMat
	// makes for each chain of a member it repairs.
	DefineMatMaxTests int
	// MaxThirdChainEdits is the largest edit distance between two otherwise
	// unlinked chains of three-chain members that DefineMat places in one
	// column.
	MaxThirdChainEdits int
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	DefineMatMaxTests:  5,
	MaxThirdChainEdits: 3,
}

// JoinStats summarizes a Join run.
type JoinStats struct {
	Blocks int
	// Compared counts the pairs passed to the scorer.
	Compared int
	// Raw counts all joins proposed by the scorer.
	Raw int
	// Pass1Rejected counts joins of two-cell clonotypes dropped for lack of
	// shared evidence.
	Pass1Rejected int
	// Joins counts joins that merged two clonotypes, plus, with Opts.Force,
	// joins between members already joined. Error joins are included.
	Joins int
	// ErrJoins counts the joins of Joins that the scorer flagged as errors.
	ErrJoins int
}

// Merge adds the counters of o to s and returns the result.
func (s JoinStats) Merge(o JoinStats) JoinStats {
	s.Blocks += o.Blocks
	s.Compared += o.Compared
	s.Raw += o.Raw
	s.Pass1Rejected += o.Pass1Rejected
	s.Joins += o.Joins
	s.ErrJoins += o.ErrJoins
	return s
}

// Result is the partition computed by Join.
type Result struct {
	Relation *equiv.Relation
	// Links are the joins that survived pass 1, in block order.
	Links []vdj.PotentialJoin
	// Raw holds every join the scorer proposed, ordered by (K1, K2). Raw
	// joins are used to align chains, never to decide membership.
	Raw []vdj.PotentialJoin
	// ErrLinks are the counted joins that the scorer flagged as errors, in
	// the order they were applied.
	ErrLinks []vdj.PotentialJoin
	Stats    JoinStats
}

// blockResult is the output of one block. Indices are global.
type blockResult struct {
	raw      []vdj.PotentialJoin
	links    []vdj.PotentialJoin
	compared int
	rejected int
}

func lensKey(lens []int) uint64 {
	buf := make([]byte, 8*len(lens))
	for i, l := range lens {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(l))
	}
	return farm.Hash64(buf)
}

// blocks returns the [start, end) bounds of the runs of info with identical
// chain length signatures. info must be sorted as BuildInfo sorts it.
func blocks(info []vdj.CloneInfo) [][2]int {
	var (
		out  [][2]int
		prev uint64
	)
	for i := range info {
		key := lensKey(info[i].Lens)
		if i == 0 || key != prev || !vdj.SameLens(&info[i-1], &info[i]) {
			if i > 0 {
				out[len(out)-1][1] = i
			}
			out = append(out, [2]int{i, i})
		}
		prev = key
	}
	if len(out) > 0 {
		out[len(out)-1][1] = len(info)
	}
	return out
}

// Join clusters info into clonotypes. Pairs are scored only within blocks of
// identical chain length signatures. Each block is processed in parallel: a
// provisional relation is built from all proposed joins (skipping pairs that
// are already joined), and in two-cell clonotypes, joins whose CDR3
// differences exceed half of their minimum shared mutations are dropped
// unless opts.Easy is set. The surviving joins are then applied to the global
// relation in block order.
func Join(info []vdj.CloneInfo, scorer join.Scorer, opts Opts) (*Result, error) {
	bounds := blocks(info)
	results := make([]blockResult, len(bounds))
	err := util.Each(opts.Parallelism, len(bounds), func(b int) error {
		results[b] = joinBlock(info, bounds[b][0], bounds[b][1], scorer, opts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Relation: equiv.New(len(info))}
	res.Stats.Blocks = len(bounds)
	for _, r := range results {
		res.Raw = append(res.Raw, r.raw...)
		res.Stats.Compared += r.compared
		res.Stats.Pass1Rejected += r.rejected
		for _, j := range r.links {
			res.Links = append(res.Links, j)
			if !res.Relation.Join(j.K1, j.K2) && !opts.Force {
				continue
			}
			res.Stats.Joins++
			if j.Err {
				res.Stats.ErrJoins++
				res.ErrLinks = append(res.ErrLinks, j)
			}
		}
	}
	res.Stats.Raw = len(res.Raw)
	sort.SliceStable(res.Raw, func(i, j int) bool {
		if res.Raw[i].K1 != res.Raw[j].K1 {
			return res.Raw[i].K1 < res.Raw[j].K1
		}
		return res.Raw[i].K2 < res.Raw[j].K2
	})
	log.Printf("cluster: %d blocks, %d comparisons, %d raw joins, %d rejected in pass 1, %d joins, %d error joins, %d clonotypes",
		res.Stats.Blocks, res.Stats.Compared, res.Stats.Raw, res.Stats.Pass1Rejected,
		res.Stats.Joins, res.Stats.ErrJoins, res.Relation.NumOrbits())
	return res, nil
}

func joinBlock(info []vdj.CloneInfo, start, end int, scorer join.Scorer, opts Opts) blockResult {
	var r blockResult
	local := equiv.New(end - start)
	for i := start; i < end; i++ {
		for k := i + 1; k < end; k++ {
			if local.Same(i-start, k-start) {
				continue
			}
			r.compared++
			joins := scorer.Score(&info[i], &info[k])
			for _, j := range joins {
				if !vdj.SameLens(&info[j.K1], &info[j.K2]) {
					log.Panicf("cluster: join between %d and %d with different chain lengths", j.K1, j.K2)
				}
				local.Join(j.K1-start, j.K2-start)
			}
			r.raw = append(r.raw, joins...)
		}
	}
	if len(r.raw) == 0 {
		return r
	}

	// Pass 1.
	cells := map[int]int{}
	for i := start; i < end; i++ {
		cells[local.Rep(i-start)] += info[i].NCells
	}
	for _, j := range r.raw {
		if !opts.Easy && cells[local.Rep(j.K1-start)] == 2 && 2*j.CDR3Diffs > j.MinShares() {
			r.rejected++
			continue
		}
		r.links = append(r.links, j)
	}
	return r
}
