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

// Package binary provides support for operating on little endian framed
// binary data.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaximumStringLength bounds the length of strings read by ReadString so
// that malformed data cannot trigger arbitrarily long allocations.
const MaximumStringLength = 1 << 28

// ExpectBytes reads len(want) bytes from r and returns an error if they do
// not match want.
func ExpectBytes(r io.Reader, want []byte) error {
	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("reading magic: %v", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("wrong magic %v (wanted %v)", got, want)
	}
	return nil
}

// Read reads a little endian value from r into v using binary.Read.
func Read(r io.Reader, v interface{}) error {
	return binary.Read(r, binary.LittleEndian, v)
}

// Write writes v to w in little endian byte order using binary.Write.
func Write(w io.Writer, v interface{}) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// ReadString reads a uint32 length prefixed string from r.
func ReadString(r io.Reader) (string, error) {
	var length uint32
	if err := Read(r, &length); err != nil {
		return "", err
	}
	if length > MaximumStringLength {
		return "", fmt.Errorf("invalid string length (%d bytes)", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("reading string: %v", err)
	}
	return string(buf), nil
}

// WriteString writes s to w prefixed with its uint32 length.
func WriteString(w io.Writer, s string) error {
	if len(s) > MaximumStringLength {
		return fmt.Errorf("string too long (%d bytes)", len(s))
	}
	if err := Write(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
