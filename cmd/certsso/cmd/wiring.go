// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/afero"

	"go.certsso.dev/internal/config/certsso"
	"go.certsso.dev/internal/credcache"
	"go.certsso.dev/internal/metrics"
	"go.certsso.dev/internal/net/phttp"
	"go.certsso.dev/internal/obo"
	"go.certsso.dev/internal/plog"
	"go.certsso.dev/internal/secretstore"
	"go.certsso.dev/internal/secretstore/awssm"
	"go.certsso.dev/internal/secretstore/azurekv"
	"go.certsso.dev/internal/secretstore/filestore"
	"go.certsso.dev/internal/secretstore/vaultkv"
)

// newSecretStore builds the store named by cfg. fs is only used by the file store.
func newSecretStore(ctx context.Context, cfg certsso.SecretStoreSpec, fs afero.Fs, getenv func(string) string) (secretstore.Store, error) {
	switch cfg.Type {
	case certsso.StoreAzureKeyVault:
		return azurekv.New(cfg.URL, cfg.ManagedIdentityClientID, &azsecrets.ClientOptions{
			ClientOptions: azcore.ClientOptions{Transport: phttp.Default()},
		})
	case certsso.StoreAWSSecretsManager:
		return awssm.New(ctx, awssm.Config{
			Region:      cfg.Region,
			Endpoint:    cfg.Endpoint,
			LoadOptions: []func(*awsconfig.LoadOptions) error{awsconfig.WithHTTPClient(phttp.Default())},
		})
	case certsso.StoreVault:
		return vaultkv.New(vaultkv.Config{
			Address:   cfg.URL,
			Token:     getenv(cfg.TokenEnvVar),
			MountPath: cfg.MountPath,
			Field:     cfg.Field,
		})
	case certsso.StoreFile:
		return filestore.New(fs, cfg.Directory), nil
	default:
		return nil, fmt.Errorf("unknown secret store type %q", cfg.Type)
	}
}

// newExchanger builds the credential cache over the configured secret store and the exchanger on top of it.
func newExchanger(ctx context.Context, cfg *certsso.Config, fs afero.Fs, getenv func(string) string, m *metrics.Metrics) (*obo.Exchanger, error) {
	store, err := newSecretStore(ctx, cfg.SecretStore, fs, getenv)
	if err != nil {
		return nil, fmt.Errorf("could not create %s secret store: %w", cfg.SecretStore.Type, err)
	}

	cacheOpts := []credcache.Opt{
		credcache.WithTTL(cfg.CacheTTL()),
		credcache.WithMetrics(m),
		credcache.WithLogger(plog.New().WithName("credcache")),
	}
	if !*cfg.CheckCertificateExpiry {
		cacheOpts = append(cacheOpts, credcache.WithoutCertificateExpiryCheck())
	}
	cache, err := credcache.New(store, cfg.SecretStore.CertificateName, cacheOpts...)
	if err != nil {
		return nil, err
	}

	return obo.New(
		obo.Config{
			TenantID:      cfg.TenantID,
			ClientID:      cfg.ClientID,
			AuthorityHost: cfg.AuthorityHost,
			Scope:         cfg.Scope,
		},
		cache,
		obo.WithMetrics(m),
	)
}
