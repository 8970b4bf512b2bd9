// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"github.com/grailbio/clonotype/allele"
	"github.com/grailbio/clonotype/cluster"
	"github.com/grailbio/clonotype/exact"
	"github.com/grailbio/clonotype/join"
	"github.com/grailbio/clonotype/refine"
)

// Opts defines the parameters of the clonotyping pipeline.
type Opts struct {
	// Exact configures grouping of contigs into exact subclonotypes.
	Exact exact.Opts
	// Allele configures alternate allele inference and V reference
	// correction.
	Allele allele.Opts
	// Join configures the default join scorer. It is ignored if Scorer is
	// set.
	Join join.Opts
	// Scorer, if non-nil, proposes joins between exact subclonotypes.
	Scorer join.Scorer
	// Cluster configures the initial clustering and chain alignment.
	Cluster cluster.Opts
	// Refine configures the refinement passes. Its Mat field is replaced by
	// Cluster.
	Refine refine.Opts
	// MaxRefineRounds bounds the number of rounds of weak chain filtering,
	// quality filtering and splitting. Rounds stop as soon as one of them
	// leaves the partition unchanged.
	MaxRefineRounds int
	// Parallelism bounds the number of concurrent tasks of every stage. Zero
	// means one per CPU.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	Exact:           exact.DefaultOpts,
	Allele:          allele.DefaultOpts,
	Join:            join.DefaultOpts,
	Cluster:         cluster.DefaultOpts,
	Refine:          refine.DefaultOpts,
	MaxRefineRounds: 3, // three split rounds, as in the fixed pass order.
}

// resolve propagates the shared settings of o into the per-stage options.
func (o Opts) resolve() Opts {
	o.Allele.Parallelism = o.Parallelism
	o.Cluster.Parallelism = o.Parallelism
	o.Refine.Parallelism = o.Parallelism
	o.Refine.Mat = o.Cluster
	return o
}

func (o Opts) scorer() join.Scorer {
	if o.Scorer != nil {
		return o.Scorer
	}
	return join.NewDefaultScorer(o.Join)
}
