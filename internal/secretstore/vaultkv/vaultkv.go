// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package vaultkv reads certificates from a HashiCorp Vault KV version 2 secrets engine.
package vaultkv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/api"

	"go.certsso.dev/internal/secretstore"
)

const (
	DefaultMountPath = "secret"
	DefaultField     = "certificate"
	// contentTypeField optionally names the content type of the certificate field.
	contentTypeField = "contentType"
)

type Config struct {
	Address   string
	Token     string
	MountPath string
	Field     string
}

type Store struct {
	kv    *api.KVv2
	addr  string
	mount string
	field string
}

var _ secretstore.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	vaultConfig := api.DefaultConfig()
	if cfg.Address != "" {
		vaultConfig.Address = cfg.Address
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := strings.Trim(cfg.MountPath, "/")
	if mount == "" {
		mount = DefaultMountPath
	}
	field := cfg.Field
	if field == "" {
		field = DefaultField
	}

	// the client falls back to VAULT_ADDR or a local default, neither of which counts as configured
	var addr string
	if cfg.Address != "" {
		addr = client.Address()
	}

	return &Store{kv: client.KVv2(mount), addr: addr, mount: mount, field: field}, nil
}

// Location is empty when no address was configured.
func (s *Store) Location() string {
	if s.addr == "" {
		return ""
	}
	return s.addr + "/v1/" + s.mount
}

// Fetch reads the latest version of the KV secret at name and returns its certificate field.
// Binary PKCS#12 bundles must be stored base64 encoded.
func (s *Store) Fetch(ctx context.Context, name string) (*secretstore.Secret, error) {
	kvSecret, err := s.kv.Get(ctx, name)
	if err != nil {
		return nil, classify(name, err)
	}

	raw, ok := kvSecret.Data[s.field]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no field %q", secretstore.ErrNotFound, name, s.field)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("field %q of secret %q is not a non-empty string", s.field, name)
	}

	secret := &secretstore.Secret{Value: []byte(value)}
	if contentType, ok := kvSecret.Data[contentTypeField].(string); ok {
		secret.ContentType = contentType
	}
	if kvSecret.VersionMetadata != nil {
		secret.Version = strconv.Itoa(kvSecret.VersionMetadata.Version)
	}
	return secret, nil
}

func classify(name string, err error) error {
	if errors.Is(err, api.ErrSecretNotFound) {
		return fmt.Errorf("%w: %q: %w", secretstore.ErrNotFound, name, err)
	}
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %q: %w", secretstore.ErrNotFound, name, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %q: %w", secretstore.ErrForbidden, name, err)
		}
	}
	return fmt.Errorf("could not read secret %q: %w", name, err)
}
