package refdata

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/encoding/compress"
	"github.com/pkg/errors"
)

const maxLineLen = 1024 * 1024

// ReadFasta reads a reference FASTA file from path. The path may name any
// file supported by grailbio/base/file, and may be compressed (see
// encoding/compress).
func ReadFasta(ctx context.Context, path string) (r *RefData, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, gerrors.E(err, "refdata", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = gerrors.E(e, "refdata", path)
		}
	}()
	rd, err := compress.NewReader(in.Reader(ctx), path)
	if err != nil {
		return nil, gerrors.E(err, "refdata", path)
	}
	if r, err = ParseFasta(rd); err != nil {
		return nil, gerrors.E(gerrors.Invalid, err, "refdata", path)
	}
	log.Printf("refdata: read %d segments from %s", r.Len(), path)
	return r, nil
}

// ParseFasta parses reference segments in FASTA format from r. Sequences are
// upper-cased and may span several lines.
func ParseFasta(r io.Reader) (*RefData, error) {
	var (
		segs    []Segment
		cur     *Segment
		seq     strings.Builder
		lineNum int
	)
	flush := func() error {
		if cur == nil {
			return nil
		}
		if seq.Len() == 0 {
			return errors.Errorf("segment %d (%s) has no sequence", cur.ID, cur.Name)
		}
		cur.Seq = strings.ToUpper(seq.String())
		segs = append(segs, *cur)
		seq.Reset()
		return nil
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineLen)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			if cur == nil {
				return nil, errors.Errorf("line %d: sequence before the first header", lineNum)
			}
			seq.WriteString(line)
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		s, err := parseHeader(line[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		cur = &s
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read reference FASTA data")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return New(segs), nil
}

func parseHeader(h string) (Segment, error) {
	fields := strings.Split(h, "|")
	var s Segment
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return s, errors.Wrapf(err, "malformed segment id in header %q", h)
	}
	s.ID = id
	switch {
	case len(fields) >= 6:
		s.Name, s.Region, s.ChainType = fields[2], ParseRegion(fields[3]), fields[5]
	case len(fields) == 4 || len(fields) == 5:
		s.Name, s.Region, s.ChainType = fields[1], ParseRegion(fields[2]), fields[3]
	default:
		return s, errors.Errorf("expect 4 or at least 6 '|'-separated fields in header %q", h)
	}
	return s, nil
}
