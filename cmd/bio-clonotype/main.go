// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

// bio-clonotype groups single-cell immune receptor contigs into clonotypes.
//
// The work has two phases:
//
//   1. group contigs into exact subclonotypes and infer donor alleles
//      ("exact", which writes a checkpoint with -checkpoint).
//
//   2. cluster the exact subclonotypes into clonotypes and refine them
//      ("cluster", which reads the checkpoint).
//
// "run" runs both phases.
//
// Example:
//
//    bio-clonotype run -contigs=contigs.tsv.gz -ref=vdj_ref.fa -cells=cells.tsv -out=s3://bucket/sample

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/clonotype/cellfilter"
	"github.com/grailbio/clonotype/encoding/checkpoint"
	"github.com/grailbio/clonotype/encoding/compress"
	"github.com/grailbio/clonotype/encoding/contig"
	"github.com/grailbio/clonotype/encoding/report"
	"github.com/grailbio/clonotype/pipeline"
	"github.com/grailbio/clonotype/refdata"
	"v.io/x/lib/cmdline"
)

// Collection of options set via cmdline flags.
type flags struct {
	contigs    string
	ref        string
	cells      string
	out        string
	checkpoint string
	compress   string
	opts       pipeline.Opts
}

func (f *flags) registerInput(fs *flag.FlagSet) {
	fs.StringVar(&f.contigs, "contigs", "", "Annotated contig table (TSV, optionally .gz or .sz)")
	fs.StringVar(&f.cells, "cells", "", "Optional table of barcodes called as cells, with dataset and barcode columns")
	fs.BoolVar(&f.opts.Exact.MarkNonCells, "mark-non-cells", f.opts.Exact.MarkNonCells,
		"Keep barcodes missing from -cells and count them as marked instead of removing them")
	fs.BoolVar(&f.opts.Exact.AllowBarcodeReuse, "allow-barcode-reuse", f.opts.Exact.AllowBarcodeReuse,
		"Keep cells of different datasets that share a barcode within an exact subclonotype")
	fs.IntVar(&f.opts.Allele.MinAltCount, "min-alt-count", f.opts.Allele.MinAltCount,
		"Minimum number of independent observations supporting an alternate allele")
	fs.Float64Var(&f.opts.Allele.MinAltFraction, "min-alt-fraction", f.opts.Allele.MinAltFraction,
		"Minimum fraction of observations supporting an alternate allele")
}

func (f *flags) registerCluster(fs *flag.FlagSet) {
	fs.StringVar(&f.out, "out", "", "Prefix of the output files")
	fs.StringVar(&f.compress, "compress", "", "Compression of the output tables: none, gz or sz")
	fs.BoolVar(&f.opts.Cluster.Easy, "easy", f.opts.Cluster.Easy,
		"Keep joins of two-cell clonotypes that have little shared evidence")
	fs.IntVar(&f.opts.Join.MaxCDR3Diffs, "max-cdr3-diffs", f.opts.Join.MaxCDR3Diffs,
		"Maximum number of CDR3 differences of a join")
	fs.IntVar(&f.opts.MaxRefineRounds, "max-refine-rounds", f.opts.MaxRefineRounds,
		"Maximum number of rounds of weak chain and quality filtering")
}

func newFlags(fs *flag.FlagSet) *flags {
	f := &flags{opts: pipeline.DefaultOpts}
	fs.StringVar(&f.ref, "ref", "", "Reference segment FASTA")
	fs.IntVar(&f.opts.Parallelism, "parallelism", 0, "Number of concurrent tasks. Zero means one per CPU")
	return f
}

func (f *flags) codec() (compress.Codec, error) {
	c, ok := compress.Parse(f.compress)
	if !ok {
		return c, fmt.Errorf("unknown compression %q", f.compress)
	}
	return c, nil
}

func require(name, value string) error {
	if value == "" {
		return fmt.Errorf("-%s must be set", name)
	}
	return nil
}

// buildExacts reads the inputs and runs the first phase.
func buildExacts(ctx context.Context, f *flags, ref *refdata.RefData) (*pipeline.Exacts, error) {
	if err := require("contigs", f.contigs); err != nil {
		return nil, err
	}
	tigs, err := contig.Read(ctx, f.contigs)
	if err != nil {
		return nil, err
	}
	opts := f.opts
	if f.cells != "" {
		cells, err := cellfilter.ReadFile(ctx, f.cells)
		if err != nil {
			return nil, err
		}
		opts.Exact.CellFilter = cells
	}
	return pipeline.BuildExacts(tigs, ref, opts)
}

func cluster(ctx context.Context, f *flags, ref *refdata.RefData, e *pipeline.Exacts) error {
	if err := require("out", f.out); err != nil {
		return err
	}
	codec, err := f.codec()
	if err != nil {
		return err
	}
	r, err := pipeline.Cluster(e, ref, f.opts)
	if err != nil {
		return err
	}
	return report.WriteFiles(ctx, f.out, codec, r, ref)
}

func readRef(ctx context.Context, f *flags) (*refdata.RefData, error) {
	if err := require("ref", f.ref); err != nil {
		return nil, err
	}
	return refdata.ReadFasta(ctx, f.ref)
}

func runAll(ctx context.Context, f *flags) error {
	log.Printf("bio-clonotype: contigs %s, reference %s, output %s", f.contigs, f.ref, f.out)
	ref, err := readRef(ctx, f)
	if err != nil {
		return err
	}
	e, err := buildExacts(ctx, f, ref)
	if err != nil {
		return err
	}
	if f.checkpoint != "" {
		if err := checkpoint.Write(ctx, f.checkpoint, e); err != nil {
			return err
		}
	}
	return cluster(ctx, f, ref, e)
}

func runExact(ctx context.Context, f *flags) error {
	if err := require("checkpoint", f.checkpoint); err != nil {
		return err
	}
	ref, err := readRef(ctx, f)
	if err != nil {
		return err
	}
	e, err := buildExacts(ctx, f, ref)
	if err != nil {
		return err
	}
	return checkpoint.Write(ctx, f.checkpoint, e)
}

func runCluster(ctx context.Context, f *flags) error {
	if err := require("checkpoint", f.checkpoint); err != nil {
		return err
	}
	ref, err := readRef(ctx, f)
	if err != nil {
		return err
	}
	e, err := checkpoint.Read(ctx, f.checkpoint)
	if err != nil {
		return err
	}
	return cluster(ctx, f, ref, e)
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "run",
		Short: "Group contigs into clonotypes",
	}
	f := newFlags(&cmd.Flags)
	f.registerInput(&cmd.Flags)
	f.registerCluster(&cmd.Flags)
	cmd.Flags.StringVar(&f.checkpoint, "checkpoint", "", "If set, also write the exact subclonotypes to this recordio file")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("run takes no arguments, but got %v", argv)
		}
		return runAll(vcontext.Background(), f)
	})
	return cmd
}

func newCmdExact() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "exact",
		Short: "Group contigs into exact subclonotypes and write a checkpoint",
	}
	f := newFlags(&cmd.Flags)
	f.registerInput(&cmd.Flags)
	cmd.Flags.StringVar(&f.checkpoint, "checkpoint", "", "Output recordio file")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("exact takes no arguments, but got %v", argv)
		}
		return runExact(vcontext.Background(), f)
	})
	return cmd
}

func newCmdCluster() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "cluster",
		Short: "Cluster the exact subclonotypes of a checkpoint into clonotypes",
	}
	f := newFlags(&cmd.Flags)
	f.registerCluster(&cmd.Flags)
	cmd.Flags.StringVar(&f.checkpoint, "checkpoint", "", "Input recordio file written by the exact command")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("cluster takes no arguments, but got %v", argv)
		}
		return runCluster(vcontext.Background(), f)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-clonotype",
		Short:    "Single-cell immune receptor clonotyping",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRun(),
			newCmdExact(),
			newCmdCluster(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newCmdRoot(), env, os.Args[1:])
	shutdown()
	os.Exit(cmdline.ExitCode(err, env.Stderr))
}
