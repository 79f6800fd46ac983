// Copyright 2017 Google Inc.
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

// Package bgzf provides support for reading and writing BGZF blocks.
//
// BGZF is the blocked gzip variant used for sorted genomic files: each block
// is an independent gzip member of at most MaximumBlockSize bytes whose extra
// field records the compressed block size, so that a file can be randomly
// accessed by an index while remaining readable by any gzip decoder.
package bgzf

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// MaximumBlockSize is the maximum BGZF block size.
const MaximumBlockSize = 65536

// blockDataSize is the amount of uncompressed data packed into each block by
// Writer.  It leaves room for incompressible data to expand without the
// compressed block exceeding MaximumBlockSize.
const blockDataSize = 0xff00

// DecodeBlock decodes a single BGZF block from r and returns the uncompressed
// data and the original block size (or an error).  Note that DecodeBlock may
// read bytes past the end of the block if r does not implement io.ByteReader.
func DecodeBlock(r io.Reader) ([]byte, uint16, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("initializing gzip reader: %v", err)
	}
	defer gzr.Close()

	extra := gzr.Header.Extra
	if len(extra) < 6 {
		return nil, 0, fmt.Errorf("missing BGZF extra field (%d bytes)", len(extra))
	}
	if extra[0] != 0x42 || extra[1] != 0x43 {
		return nil, 0, fmt.Errorf("unexpected extra ID: %x", extra[0:2])
	}
	if extra[2] != 2 || extra[3] != 0 {
		return nil, 0, fmt.Errorf("unexpected extra length: %x", extra[2:4])
	}

	gzr.Multistream(false)
	var buffer bytes.Buffer
	if _, err := io.Copy(&buffer, gzr); err != nil {
		return nil, 0, fmt.Errorf("decompressing data: %v", err)
	}
	return buffer.Bytes(), (uint16(extra[4]) | uint16(extra[5])<<8) + 1, nil
}

// EncodeBlock returns a single BGZF block that encodes the bytes in data.
func EncodeBlock(data []byte) ([]byte, error) {
	if len(data) > MaximumBlockSize {
		return nil, errors.New("data exceeds maximum block size")
	}

	var buffer bytes.Buffer
	gzw := gzip.NewWriter(&buffer)

	gzw.Header.Extra = []byte{
		0x42, 0x43, // Extra ID.
		0x02, 0x00, // Length of extra data (2 bytes).
		0x88, 0x88, // BSIZE (filled in after writing the archive).
	}
	if _, err := gzw.Write(data); err != nil {
		return nil, fmt.Errorf("writing compressed data: %v", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %v", err)
	}
	bsize := buffer.Len() - 1
	if bsize >= MaximumBlockSize {
		return nil, fmt.Errorf("compressed block too large (%d bytes)", bsize+1)
	}
	encoded := buffer.Bytes()
	encoded[16] = byte(bsize)
	encoded[17] = byte(bsize >> 8)
	return encoded, nil
}

// Writer packs everything written to it into BGZF blocks.  Close must be
// called to flush the final block and append the empty end-of-file block.
type Writer struct {
	w       io.Writer
	pending []byte
	closed  bool
}

// NewWriter returns a Writer that writes BGZF blocks to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, pending: make([]byte, 0, blockDataSize)}
}

// Write buffers p, emitting a block each time a full block of data is
// available.
func (bw *Writer) Write(p []byte) (int, error) {
	if bw.closed {
		return 0, errors.New("write to closed BGZF writer")
	}
	written := 0
	for len(p) > 0 {
		n := blockDataSize - len(bw.pending)
		if n > len(p) {
			n = len(p)
		}
		bw.pending = append(bw.pending, p[:n]...)
		p = p[n:]
		written += n
		if len(bw.pending) == blockDataSize {
			if err := bw.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (bw *Writer) flush() error {
	if len(bw.pending) == 0 {
		return nil
	}
	if err := bw.writeBlock(bw.pending); err != nil {
		return err
	}
	bw.pending = bw.pending[:0]
	return nil
}

func (bw *Writer) writeBlock(data []byte) error {
	block, err := EncodeBlock(data)
	if err != nil {
		return fmt.Errorf("encoding block: %v", err)
	}
	if _, err := bw.w.Write(block); err != nil {
		return fmt.Errorf("writing block: %v", err)
	}
	return nil
}

// Close flushes any buffered data and writes the end-of-file marker block.
// It does not close the underlying writer.
func (bw *Writer) Close() error {
	if bw.closed {
		return nil
	}
	bw.closed = true
	if err := bw.flush(); err != nil {
		return err
	}
	return bw.writeBlock(nil)
}

// NewReader returns a reader over the plain contents of r.  BGZF input is
// decoded block by block with DecodeBlock, other gzip input is decompressed
// as a whole and anything else is returned unchanged.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	header, err := br.Peek(14)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading magic: %v", err)
	}
	if len(header) < 2 || header[0] != 0x1f || header[1] != 0x8b {
		return br, nil
	}
	if isBlock(header) {
		return &blockReader{r: br}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %v", err)
	}
	return zr, nil
}

// isBlock reports whether header starts a gzip member whose first extra
// subfield is the BGZF block size.
func isBlock(header []byte) bool {
	const flagExtra = 1 << 2
	return len(header) >= 14 && header[3]&flagExtra != 0 && header[12] == 0x42 && header[13] == 0x43
}

type blockReader struct {
	r     *bufio.Reader
	block int
	data  []byte
	err   error
}

func (b *blockReader) Read(p []byte) (int, error) {
	for len(b.data) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		if _, err := b.r.Peek(1); err != nil {
			b.err = err
			continue
		}
		data, _, err := DecodeBlock(b.r)
		if err != nil {
			b.err = fmt.Errorf("decoding block %d: %v", b.block, err)
			continue
		}
		b.block++
		b.data = data
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}
