// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package azurekv reads certificates from Azure Key Vault.
//
// A Key Vault certificate is always backed by a secret of the same name whose value is the
// certificate together with its private key, either as base64 PKCS#12 or as PEM depending on the
// certificate policy. Reading that secret requires only the "get" secret permission.
package azurekv

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"go.certsso.dev/internal/secretstore"
)

// latestVersion asks Key Vault for the current version of a secret.
const latestVersion = ""

type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

type Store struct {
	client   secretGetter
	vaultURL string
}

var _ secretstore.Store = (*Store)(nil)

// New returns a Store for the vault at vaultURL. When managedIdentityClientID is set the
// user-assigned managed identity with that client id is used, otherwise the default Azure
// credential chain (environment, workload identity, managed identity, Azure CLI).
func New(vaultURL, managedIdentityClientID string, options *azsecrets.ClientOptions) (*Store, error) {
	var (
		cred azcore.TokenCredential
		err  error
	)
	if managedIdentityClientID != "" {
		cred, err = azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(managedIdentityClientID),
		})
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("could not create Azure credential: %w", err)
	}
	return NewWithCredential(vaultURL, cred, options)
}

// NewWithCredential returns a Store that authenticates to Key Vault with cred.
func NewWithCredential(vaultURL string, cred azcore.TokenCredential, options *azsecrets.ClientOptions) (*Store, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, options)
	if err != nil {
		return nil, fmt.Errorf("could not create Key Vault client: %w", err)
	}
	return &Store{client: client, vaultURL: vaultURL}, nil
}

func (s *Store) Location() string {
	return s.vaultURL
}

func (s *Store) Fetch(ctx context.Context, name string) (*secretstore.Secret, error) {
	resp, err := s.client.GetSecret(ctx, name, latestVersion, nil)
	if err != nil {
		return nil, classify(name, err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret %q has no value", name)
	}

	secret := &secretstore.Secret{Value: []byte(*resp.Value)}
	if resp.ContentType != nil {
		secret.ContentType = *resp.ContentType
	}
	if resp.ID != nil {
		secret.Version = resp.ID.Version()
	}
	return secret, nil
}

func classify(name string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %q: %w", secretstore.ErrNotFound, name, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %q: %w", secretstore.ErrForbidden, name, err)
		}
	}
	return fmt.Errorf("could not get secret %q: %w", name, err)
}
