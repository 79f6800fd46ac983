// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extsort

import (
	"bufio"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/googlegenomics/readtrack/internal/binary"
	"github.com/googlegenomics/readtrack/internal/vfs"
)

// A run file starts with runMagic and a compression byte, both uncompressed.
// The rest of the file is a compressed stream of records, each preceded by a
// non-zero tag byte:
//
//	tag uint8 = 1
//	start int64
//	seq uint64
//	chromosome string (uint32 length prefixed)
//	text string (uint32 length prefixed)
//
// followed by a terminating zero tag, the record count and the xxhash64 of
// every uncompressed byte up to and including the terminating tag.
var runMagic = []byte("RUN\x01")

const (
	tagRecord = 1
	tagEnd    = 0
)

var errChecksum = errors.New("run checksum mismatch")

type runWriter struct {
	file   vfs.File
	comp   io.WriteCloser
	buf    *bufio.Writer
	digest *xxhash.Digest
	w      io.Writer
	count  uint64
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newRunWriter(file vfs.File, compression Compression) (*runWriter, error) {
	if _, err := file.Write(runMagic); err != nil {
		return nil, errors.Wrap(err, "writing run magic")
	}
	if _, err := file.Write([]byte{byte(compression)}); err != nil {
		return nil, errors.Wrap(err, "writing run compression")
	}
	rw := &runWriter{file: file, digest: xxhash.New()}
	switch compression {
	case Snappy:
		rw.comp = snappy.NewBufferedWriter(file)
	case LZ4:
		rw.comp = lz4.NewWriter(file)
	default:
		rw.comp = nopWriteCloser{file}
	}
	rw.buf = bufio.NewWriterSize(rw.comp, 64<<10)
	rw.w = io.MultiWriter(rw.buf, rw.digest)
	return rw, nil
}

func (rw *runWriter) write(r *Record) error {
	if _, err := rw.w.Write([]byte{tagRecord}); err != nil {
		return err
	}
	if err := binary.Write(rw.w, struct {
		Start int64
		Seq   uint64
	}{r.Start, r.seq}); err != nil {
		return err
	}
	if err := binary.WriteString(rw.w, r.Chromosome); err != nil {
		return err
	}
	if err := binary.WriteString(rw.w, r.Text); err != nil {
		return err
	}
	rw.count++
	return nil
}

// finish writes the trailer and flushes every layer.  The file itself is
// left open.
func (rw *runWriter) finish() error {
	if _, err := rw.w.Write([]byte{tagEnd}); err != nil {
		return err
	}
	if err := binary.Write(rw.buf, struct {
		Count    uint64
		Checksum uint64
	}{rw.count, rw.digest.Sum64()}); err != nil {
		return err
	}
	if err := rw.buf.Flush(); err != nil {
		return err
	}
	return rw.comp.Close()
}

// runReader streams the records of one run file in order.
type runReader struct {
	name   string
	file   vfs.File
	buf    *bufio.Reader
	digest *xxhash.Digest
	r      io.Reader
	count  uint64
	done   bool
}

func openRun(fs vfs.IFS, name string) (*runReader, error) {
	file, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	rr, err := newRunReader(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "opening run %s", name)
	}
	rr.name = name
	return rr, nil
}

func newRunReader(file vfs.File) (*runReader, error) {
	if err := binary.ExpectBytes(file, runMagic); err != nil {
		return nil, err
	}
	var compression [1]byte
	if _, err := io.ReadFull(file, compression[:]); err != nil {
		return nil, errors.Wrap(err, "reading run compression")
	}
	var src io.Reader
	switch Compression(compression[0]) {
	case None:
		src = file
	case Snappy:
		src = snappy.NewReader(file)
	case LZ4:
		src = lz4.NewReader(file)
	default:
		return nil, errors.Newf("unknown run compression %d", compression[0])
	}
	rr := &runReader{file: file, buf: bufio.NewReaderSize(src, 64<<10), digest: xxhash.New()}
	rr.r = io.TeeReader(rr.buf, rr.digest)
	return rr, nil
}

// next reads the next record into r.  It returns false once the trailer has
// been read and verified.
func (rr *runReader) next(r *Record) (bool, error) {
	if rr.done {
		return false, nil
	}
	var tag [1]byte
	if _, err := io.ReadFull(rr.r, tag[:]); err != nil {
		return false, errors.Wrap(err, "reading record tag")
	}
	switch tag[0] {
	case tagRecord:
	case tagEnd:
		return false, rr.verify()
	default:
		return false, errors.Newf("invalid record tag %d", tag[0])
	}
	var key struct {
		Start int64
		Seq   uint64
	}
	if err := binary.Read(rr.r, &key); err != nil {
		return false, errors.Wrap(err, "reading record key")
	}
	chromosome, err := binary.ReadString(rr.r)
	if err != nil {
		return false, errors.Wrap(err, "reading record chromosome")
	}
	text, err := binary.ReadString(rr.r)
	if err != nil {
		return false, errors.Wrap(err, "reading record text")
	}
	*r = Record{Chromosome: chromosome, Start: key.Start, Text: text, seq: key.Seq}
	rr.count++
	return true, nil
}

func (rr *runReader) verify() error {
	rr.done = true
	sum := rr.digest.Sum64()
	var trailer struct {
		Count    uint64
		Checksum uint64
	}
	if err := binary.Read(rr.buf, &trailer); err != nil {
		return errors.Wrap(err, "reading run trailer")
	}
	if trailer.Count != rr.count {
		return errors.Wrapf(errChecksum, "read %d records, trailer says %d", rr.count, trailer.Count)
	}
	if trailer.Checksum != sum {
		return errors.Wrapf(errChecksum, "checksum %016x, trailer says %016x", sum, trailer.Checksum)
	}
	return nil
}

func (rr *runReader) close() error {
	return rr.file.Close()
}
