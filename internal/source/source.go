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

// Package source opens tool inputs that may live on the local file system or
// in Google Cloud Storage (gs://bucket/object).
package source

import (
	"context"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/googlegenomics/readtrack/internal/vfs"
)

const gcsScheme = "gs://"

var (
	// ErrNotFound is returned when an input does not exist.
	ErrNotFound = errors.New("input not found")
	// ErrPermissionDenied is returned when access to an input is refused.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidAuthentication is returned when storage rejects the
	// credentials.
	ErrInvalidAuthentication = errors.New("invalid authentication")
)

// ObjectHandle is an interface to the actual storage engine in use.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// Client is an interface to a storage engine.
type Client interface {
	NewObjectHandle(bucket, object string) ObjectHandle
}

// GCSClient is a Client for Google Cloud Storage.
type GCSClient struct {
	*storage.Client
}

// NewObjectHandle returns a handle to a specified object in the storage
// engine.
func (c GCSClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return gcsObjectHandle{c.Bucket(bucket).Object(object)}
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

// NewGCSClient returns a storage client.  With an empty token it uses the
// application default credentials; otherwise every request carries token as
// an OAuth2 bearer token.
func NewGCSClient(ctx context.Context, token string) (GCSClient, error) {
	var opts []option.ClientOption
	if token != "" {
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		})))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return GCSClient{}, errors.Wrap(err, "creating storage client")
	}
	return GCSClient{client}, nil
}

// IsRemote reports whether name refers to Cloud Storage.
func IsRemote(name string) bool {
	return strings.HasPrefix(name, gcsScheme)
}

// ParseObject splits a gs://bucket/object name.
func ParseObject(name string) (bucket, object string, err error) {
	if !IsRemote(name) {
		return "", "", errors.Newf("%q is not a gs:// name", name)
	}
	path := strings.TrimPrefix(name, gcsScheme)
	slash := strings.IndexByte(path, '/')
	if slash <= 0 || slash == len(path)-1 {
		return "", "", errors.Newf("%q must have the form gs://bucket/object", name)
	}
	return path[:slash], path[slash+1:], nil
}

// Opener opens local and remote inputs.
type Opener struct {
	// FS is used for local paths.  It defaults to the OS file system.
	FS vfs.IFS
	// NewClient creates the Cloud Storage client on first use of a gs://
	// input.
	NewClient func(ctx context.Context) (Client, error)

	client Client
}

// NewOpener returns an Opener for the OS file system whose Cloud Storage
// client authenticates with token, or with the default credentials if token
// is empty.
func NewOpener(token string) *Opener {
	return &Opener{
		FS: vfs.DefaultFS,
		NewClient: func(ctx context.Context) (Client, error) {
			return NewGCSClient(ctx, token)
		},
	}
}

// Open returns a reader over the whole of name.
func (o *Opener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !IsRemote(name) {
		fs := o.FS
		if fs == nil {
			fs = vfs.DefaultFS
		}
		f, err := fs.Open(name)
		if err != nil {
			if vfs.IsNotExist(err) {
				return nil, errors.Mark(errors.Wrapf(err, "opening %s", name), ErrNotFound)
			}
			return nil, errors.Wrapf(err, "opening %s", name)
		}
		return f, nil
	}

	bucket, object, err := ParseObject(name)
	if err != nil {
		return nil, err
	}
	if o.client == nil {
		if o.NewClient == nil {
			return nil, errors.Newf("no storage client for %s", name)
		}
		if o.client, err = o.NewClient(ctx); err != nil {
			return nil, err
		}
	}
	r, err := o.client.NewObjectHandle(bucket, object).NewRangeReader(ctx, 0, -1)
	if err != nil {
		return nil, newStorageError("opening "+name, err)
	}
	return r, nil
}

func newStorageError(context string, err error) error {
	if err == storage.ErrObjectNotExist {
		return errors.Mark(errors.Wrap(err, context), ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return errors.Mark(errors.Wrap(err, context), ErrNotFound)
		case http.StatusUnauthorized:
			return errors.Mark(errors.Wrap(err, context), ErrInvalidAuthentication)
		case http.StatusForbidden:
			return errors.Mark(errors.Wrap(err, context), ErrPermissionDenied)
		}
	}
	return errors.Wrap(err, context)
}
