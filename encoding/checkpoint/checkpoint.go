// Package checkpoint saves the exact subclonotypes built by the first phase
// of the pipeline, so that clustering can be rerun without regrouping the
// contigs.
//
// A checkpoint is a recordio file with zstd-compressed blocks. Each record is
// one gob-encoded vdj.ExactClonotype. The trailer holds the alternate
// alleles, the fate records and the stats of the first phase.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/pipeline"
	"github.com/grailbio/clonotype/vdj"
)

const (
	// <versionHeader, version> is stored in a recordio header.
	versionHeader = "clonotypeversion"
	version       = "EXACT_V1"
)

// trailer is stored in the trailer section of the recordio file.
type trailer struct {
	AltRefs []vdj.AltRef
	Fates   []fate.Entry
	Stats   pipeline.Stats
}

func encode(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// Write writes e to path.
func Write(ctx context.Context, path string, e *pipeline.Exacts) (err error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "checkpoint", path)
	}
	var once errors.Once
	defer func() {
		once.Set(out.Close(ctx))
		if err == nil {
			err = once.Err()
		}
	}()
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(versionHeader, version)
	w.AddHeader(recordio.KeyTrailer, true)
	for i := range e.Exacts {
		b, err := encode(&e.Exacts[i])
		if err != nil {
			return errors.E(err, "checkpoint: encode exact subclonotype")
		}
		w.Append(b)
	}
	b, err := encode(trailer{AltRefs: e.AltRefs, Fates: e.Fate.Entries(), Stats: e.Stats})
	if err != nil {
		return errors.E(err, "checkpoint: encode trailer")
	}
	w.SetTrailer(b)
	if err := w.Finish(); err != nil {
		return errors.E(err, "checkpoint", path)
	}
	log.Printf("checkpoint: wrote %d exact subclonotypes to %s", len(e.Exacts), path)
	return nil
}

// Read reads a checkpoint written by Write.
func Read(ctx context.Context, path string) (e *pipeline.Exacts, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "checkpoint", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = errors.E(cerr, "checkpoint", path)
		}
	}()
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	found := false
	for _, kv := range r.Header() {
		if kv.Key != versionHeader {
			continue
		}
		if v, _ := kv.Value.(string); v != version {
			return nil, errors.E(errors.Invalid, "checkpoint", path,
				fmt.Sprintf("version mismatch: got %v, want %v", kv.Value, version))
		}
		found = true
	}
	if !found {
		return nil, errors.E(errors.Invalid, "checkpoint", path, versionHeader+" not found")
	}
	var t trailer
	if err := decode(r.Trailer(), &t); err != nil {
		return nil, errors.E(errors.Invalid, err, "checkpoint", path, "trailer")
	}
	e = &pipeline.Exacts{AltRefs: t.AltRefs, Fate: fate.New(), Stats: t.Stats}
	for _, f := range t.Fates {
		e.Fate.Add(f.Dataset, f.Barcode, f.Reason)
	}
	for r.Scan() {
		var x vdj.ExactClonotype
		if err := decode(r.Get().([]byte), &x); err != nil {
			return nil, errors.E(errors.Invalid, err, "checkpoint", path)
		}
		e.Exacts = append(e.Exacts, x)
	}
	if err := r.Err(); err != nil {
		return nil, errors.E(err, "checkpoint", path)
	}
	if err := r.Finish(); err != nil {
		return nil, errors.E(err, "checkpoint", path)
	}
	log.Printf("checkpoint: read %d exact subclonotypes from %s", len(e.Exacts), path)
	return e, nil
}
