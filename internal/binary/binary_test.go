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

package binary

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestExpectBytes(t *testing.T) {
	testCases := []struct {
		want  []byte
		input []byte
		match bool
	}{
		{[]byte("RUN\x01"), []byte("RUN\x01"), true},
		{[]byte("RUN\x01"), []byte("RUN\x01EXTRA"), true},
		{[]byte("RUN\x01"), []byte("RUN\x02"), false},
		{[]byte("RUN\x01"), []byte("RUN"), false},
		{[]byte("RUN\x01"), []byte(""), false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.input), func(t *testing.T) {
			err := ExpectBytes(bytes.NewReader(tc.input), tc.want)
			if err != nil && tc.match {
				t.Fatalf("ExpectBytes returned unexpected error: %v", err)
			} else if err == nil && !tc.match {
				t.Fatalf("ExpectBytes accepted mismatched input %v", tc.input)
			}
		})
	}
}

func TestString(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []string{"", "chr1", "chr1\t100\t200\tgene with spaces"} {
		if err := WriteString(&buf, s); err != nil {
			t.Fatalf("WriteString(%q) failed: %v", s, err)
		}
	}
	for _, want := range []string{"", "chr1", "chr1\t100\t200\tgene with spaces"} {
		got, err := ReadString(&buf)
		if err != nil {
			t.Fatalf("ReadString() failed: %v", err)
		}
		if got != want {
			t.Errorf("Wrong string: got %q, want %q", got, want)
		}
	}
	if _, err := ReadString(&buf); err != io.EOF {
		t.Errorf("ReadString() at end: got %v, want io.EOF", err)
	}
}

func TestReadString_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"truncated length", "\x05\x00"},
		{"truncated data", "\x05\x00\x00\x00abc"},
		{"oversized length", "\xff\xff\xff\xff"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadString(strings.NewReader(tc.input)); err == nil {
				t.Fatal("ReadString() succeeded on malformed input")
			}
		})
	}
}

func TestReadWrite(t *testing.T) {
	var buf bytes.Buffer
	want := struct {
		Start    int64
		Sequence uint64
	}{-42, 7}
	if err := Write(&buf, want); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if got, want := buf.Bytes()[:8], []byte{0xd6, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}; !bytes.Equal(got, want) {
		t.Errorf("Wrong encoding: got %x, want %x", got, want)
	}

	var got struct {
		Start    int64
		Sequence uint64
	}
	if err := Read(&buf, &got); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if got != want {
		t.Errorf("Wrong value: got %+v, want %+v", got, want)
	}
}
