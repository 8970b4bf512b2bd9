// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
Package vdj defines the records shared by the clonotype grouping stages.

A TigData is one assembled contig (one receptor chain of one cell) as produced
by the annotation step. Cells whose chains carry identical V..J sequences,
CDR3s, constant regions and donor are collapsed into an ExactClonotype (an
"exact subclonotype"). Each ExactClonotype keeps one TigShare per chain, holding
the information common to all its cells, and one Clone per contributing cell.

CloneInfo is the flattened view of an ExactClonotype that the clustering stage
compares and joins; a clonotype is an orbit of CloneInfo indices under the
equivalence relation built from PotentialJoins.

AltRef describes a donor-specific allele of a V segment, inferred from the data.
TigShare.VRefAlt points into the AltRef table, or is -1 when the chain is
explained best by the universal reference.
*/
package vdj
