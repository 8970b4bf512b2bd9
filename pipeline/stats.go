package pipeline

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/allele"
	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/exact"
	"github.com/grailbio/clonotype/refine"
)

// Stats stores the stats of a pipeline run.
type Stats struct {
	// Exact summarizes the grouping of contigs.
	Exact exact.Stats
	// AltRefs is the number of alternate alleles inferred.
	AltRefs int
	// Correct summarizes V reference correction.
	Correct allele.CorrectStats
	// Join summarizes the initial clustering.
	Join cluster.JoinStats
	// Passes lists the refinement passes in the order they ran.
	Passes []refine.PassStats
	// InitialCells is the number of cells in the initial partition.
	InitialCells int
	// Cells, Exacts and Clonotypes describe the final partition.
	Cells      int
	Exacts     int
	Clonotypes int
}

// Merge merges two stats objects and returns the result.
func (s Stats) Merge(o Stats) Stats {
	s.Exact = s.Exact.Merge(o.Exact)
	s.AltRefs += o.AltRefs
	s.Correct = s.Correct.Merge(o.Correct)
	s.Join = s.Join.Merge(o.Join)
	s.Passes = append(append([]refine.PassStats(nil), s.Passes...), o.Passes...)
	s.InitialCells += o.InitialCells
	s.Cells += o.Cells
	s.Exacts += o.Exacts
	s.Clonotypes += o.Clonotypes
	return s
}

// Deleted returns the number of cells deleted by the refinement passes,
// indexed by pass name.
func (s Stats) Deleted() map[string]int {
	m := map[string]int{}
	for _, p := range s.Passes {
		m[p.Name] += p.Cells
	}
	return m
}

func (s Stats) log() {
	log.Printf("pipeline: %d contigs, %d cells, %d exact subclonotypes built",
		s.Exact.Tigs, s.Exact.Cells, s.Exact.Exacts)
	log.Printf("pipeline: %d alternate alleles, %d/%d chains corrected, %d donor conflicts",
		s.AltRefs, s.Correct.Changed, s.Correct.Chains, s.Correct.Conflicts)
	log.Printf("pipeline: %d cells in initial clonotypes, %d cells in %d exact subclonotypes of %d clonotypes after refinement",
		s.InitialCells, s.Cells, s.Exacts, s.Clonotypes)
}
