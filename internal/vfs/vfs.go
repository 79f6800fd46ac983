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

// Package vfs is the file system abstraction used for temporary sort runs
// and sorted output.  It lets tests run against an in-memory file system and
// inject I/O failures.
package vfs

import (
	"github.com/cockroachdb/errors/oserror"
	gvfs "github.com/lni/vfs"
)

// IFS is the file system interface used by readtrack.
type IFS = gvfs.FS

// File is the file interface returned by IFS.
type File = gvfs.File

// DefaultFS is a vfs instance using the underlying OS file system.
var DefaultFS IFS = gvfs.Default

// NewMemFS creates an in-memory file system for tests.
func NewMemFS() IFS {
	return gvfs.NewStrictMem()
}

// ErrInjected is the error returned by an ErrorFS when an injection fires.
var ErrInjected = gvfs.ErrInjected

// Injector injects errors into FS.
type Injector = gvfs.Injector

// ErrorFS is an IFS that fails operations chosen by its Injector.
type ErrorFS = gvfs.ErrorFS

// Op is an enum describing the type of FS operations.
type Op = gvfs.Op

// OpRead describes read operations.
var OpRead = gvfs.OpRead

// OpWrite describes write operations.
var OpWrite = gvfs.OpWrite

// OnIndex creates an injector that returns ErrInjected on the (n+1)-th
// invocation of an operation of type op.
func OnIndex(index int32, op Op) *gvfs.InjectIndex {
	return gvfs.OnIndex(index, op)
}

// Wrap wraps fs so that operations fail as decided by inj.
func Wrap(fs IFS, inj Injector) *ErrorFS {
	return gvfs.Wrap(fs, inj)
}

// IsNotExist returns a boolean value indicating whether the specified error is
// to indicate that a file or directory does not exist.
func IsNotExist(err error) bool {
	return oserror.IsNotExist(err)
}

// Exists reports whether name exists on fs.
func Exists(fs IFS, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}
