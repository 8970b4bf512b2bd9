// Package cellfilter holds the set of barcodes called as cells by an
// independent assay, such as gene expression. It implements
// exact.CellOracle.
package cellfilter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
)

const numShards = 64

type shard struct {
	mu       sync.Mutex
	barcodes map[string]struct{}
}

// Set is a set of (dataset, barcode) pairs. It is safe for concurrent use.
type Set struct {
	shards [numShards]shard
}

// New creates an empty set.
func New() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i].barcodes = map[string]struct{}{}
	}
	return s
}

func key(dataset int, barcode string) string { return fmt.Sprintf("%d\t%s", dataset, barcode) }

func (s *Set) shard(k string) *shard {
	h := seahash.Sum64(gunsafe.StringToBytes(k))
	return &s.shards[h%numShards]
}

// Add adds a barcode of a dataset to the set.
func (s *Set) Add(dataset int, barcode string) {
	k := key(dataset, barcode)
	sh := s.shard(k)
	sh.mu.Lock()
	sh.barcodes[k] = struct{}{}
	sh.mu.Unlock()
}

// IsCell reports whether the barcode of the dataset is in the set.
func (s *Set) IsCell(dataset int, barcode string) bool {
	k := key(dataset, barcode)
	sh := s.shard(k)
	sh.mu.Lock()
	_, ok := sh.barcodes[k]
	sh.mu.Unlock()
	return ok
}

// Len returns the number of barcodes in the set.
func (s *Set) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.barcodes)
		sh.mu.Unlock()
	}
	return n
}

type row struct {
	Dataset int    `tsv:"dataset"`
	Barcode string `tsv:"barcode"`
}

// Read reads a tab-separated barcode table with a "dataset" and a "barcode"
// column, and a header row, and adds its barcodes to s.
func (s *Set) Read(r io.Reader) error {
	tr := tsv.NewReader(bufio.NewReaderSize(r, 64<<10))
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	tr.Comment = '#'
	for {
		var v row
		if err := tr.Read(&v); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.E(errors.Invalid, err)
		}
		if v.Barcode = strings.TrimSpace(v.Barcode); v.Barcode == "" {
			return errors.E(errors.Invalid, "empty barcode")
		}
		s.Add(v.Dataset, v.Barcode)
	}
}

// ReadFile reads the barcode table at path. See Set.Read.
func ReadFile(ctx context.Context, path string) (s *Set, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "cellfilter", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = errors.E(e, "cellfilter", path)
		}
	}()
	s = New()
	if err := s.Read(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("cellfilter: read %d barcodes from %s", s.Len(), path)
	return s, nil
}
