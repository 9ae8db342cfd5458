// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package filestore reads certificates from a directory, for local development and for
// deployments where the certificate is mounted into the container by the platform.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"go.certsso.dev/internal/credential"
	"go.certsso.dev/internal/secretstore"
)

// extensions are tried in order after the bare name.
var extensions = []struct { //nolint:gochecknoglobals
	ext         string
	contentType string
}{
	{ext: ".pfx", contentType: credential.ContentTypePKCS12},
	{ext: ".p12", contentType: credential.ContentTypePKCS12},
	{ext: ".pem", contentType: credential.ContentTypePEM},
}

type Store struct {
	fs  afero.Fs
	dir string
}

var _ secretstore.Store = (*Store)(nil)

func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) Location() string {
	return "file://" + filepath.ToSlash(s.dir)
}

// Fetch reads <dir>/<name>, or <dir>/<name>.pfx, .p12 or .pem, whichever exists first.
func (s *Store) Fetch(ctx context.Context, name string) (*secretstore.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid secret name %q", name)
	}

	candidates := []struct{ path, contentType string }{{path: filepath.Join(s.dir, name)}}
	for _, e := range extensions {
		candidates = append(candidates, struct{ path, contentType string }{
			path:        filepath.Join(s.dir, name+e.ext),
			contentType: e.contentType,
		})
	}

	for _, c := range candidates {
		data, err := afero.ReadFile(s.fs, c.path)
		switch {
		case err == nil:
			return &secretstore.Secret{Value: data, ContentType: c.contentType}, nil
		case errors.Is(err, fs.ErrNotExist):
			continue
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s: %w", secretstore.ErrForbidden, c.path, err)
		default:
			return nil, fmt.Errorf("could not read %s: %w", c.path, err)
		}
	}
	return nil, fmt.Errorf("%w: no file for %q in %s", secretstore.ErrNotFound, name, s.dir)
}
