// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/config/certsso"
	"go.certsso.dev/internal/secretstore"
)

func TestNewSecretStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		spec         certsso.SecretStoreSpec
		wantLocation string
		wantError    string
	}{
		{
			name:         "file",
			spec:         certsso.SecretStoreSpec{Type: certsso.StoreFile, Directory: "/etc/certsso/certs"},
			wantLocation: "file:///etc/certsso/certs",
		},
		{
			name: "vault",
			spec: certsso.SecretStoreSpec{
				Type:        certsso.StoreVault,
				URL:         "https://vault.example.com:8200",
				MountPath:   "kv",
				TokenEnvVar: "MY_VAULT_TOKEN",
			},
			wantLocation: "https://vault.example.com:8200/v1/kv",
		},
		{
			name: "azure key vault with a user-assigned identity",
			spec: certsso.SecretStoreSpec{
				Type:                    certsso.StoreAzureKeyVault,
				URL:                     "https://myvault.vault.azure.net/",
				ManagedIdentityClientID: "00000000-0000-0000-0000-000000000001",
			},
			wantLocation: "https://myvault.vault.azure.net/",
		},
		{
			name:      "unknown",
			spec:      certsso.SecretStoreSpec{Type: "gcp"},
			wantError: `unknown secret store type "gcp"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var askedFor []string
			store, err := newSecretStore(context.Background(), tt.spec, afero.NewMemMapFs(), func(key string) string {
				askedFor = append(askedFor, key)
				return "s.token"
			})
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			located, ok := store.(secretstore.Location)
			require.True(t, ok)
			require.Equal(t, tt.wantLocation, located.Location())
			if tt.spec.Type == certsso.StoreVault {
				require.Equal(t, []string{"MY_VAULT_TOKEN"}, askedFor)
			}
		})
	}
}

func TestNewExchanger(t *testing.T) {
	t.Parallel()

	cfg := &certsso.Config{
		TenantID:               "contoso",
		ClientID:               "abc123",
		AuthorityHost:          "https://login.microsoftonline.us",
		Scope:                  "https://graph.microsoft.us/.default",
		CertificateCacheTTL:    &metav1.Duration{Duration: 10 * time.Minute},
		CheckCertificateExpiry: ptr.To(false),
		SecretStore: certsso.SecretStoreSpec{
			Type:            certsso.StoreFile,
			Directory:       "/etc/certsso/certs",
			CertificateName: "sso-cert",
		},
	}

	exchanger, err := newExchanger(context.Background(), cfg, afero.NewMemMapFs(), func(string) string { return "" }, nil)
	require.NoError(t, err)
	require.Equal(t, "https://login.microsoftonline.us/contoso/oauth2/v2.0/token", exchanger.TokenURL())

	cfg.AuthorityHost = "login.microsoftonline.us"
	_, err = newExchanger(context.Background(), cfg, afero.NewMemMapFs(), func(string) string { return "" }, nil)
	require.EqualError(t, err, `invalid authority host "login.microsoftonline.us": must be an absolute http(s) URL`)

	cfg.AuthorityHost = "https://login.microsoftonline.us"
	cfg.SecretStore = certsso.SecretStoreSpec{Type: certsso.StoreVault, CertificateName: "sso-cert"}
	_, err = newExchanger(context.Background(), cfg, afero.NewMemMapFs(), func(string) string { return "" }, nil)
	var configErr *autherr.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, []string{"secretStore.url"}, configErr.Missing)
}
