// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package secretstore defines the read-only view of a remote secret store that holds
// the certificate used for client authentication.
package secretstore

import (
	"context"

	"go.certsso.dev/internal/constable"
)

const (
	// ErrNotFound is returned (wrapped) when the named secret does not exist.
	ErrNotFound = constable.Error("secret not found")
	// ErrForbidden is returned (wrapped) when the caller's identity may not read the named secret.
	ErrForbidden = constable.Error("access to secret denied")
)

// Secret is the raw value of a secret along with the content type the store recorded for it, if any.
type Secret struct {
	Value       []byte
	ContentType string
	// Version is the store specific version identifier, when the store has one.
	Version string
}

// Store fetches the current version of a named secret.
// Implementations must honor cancellation of ctx and must be safe for concurrent use.
type Store interface {
	Fetch(ctx context.Context, name string) (*Secret, error)
}

// Location describes where a Store reads from, for logging and configuration validation.
type Location interface {
	Location() string
}
