// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package certsso loads the certsso configuration file.
package certsso

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/bot"
	"go.certsso.dev/internal/credcache"
	"go.certsso.dev/internal/graph"
	"go.certsso.dev/internal/obo"
)

const (
	NetworkDisabled = "disabled"
	NetworkUnix     = "unix"
	NetworkTCP      = "tcp"

	StoreAzureKeyVault     = "azureKeyVault"
	StoreAWSSecretsManager = "awsSecretsManager"
	StoreVault             = "vault"
	StoreFile              = "file"

	defaultVaultTokenEnvVar = "VAULT_TOKEN"
)

// Environment variables which take precedence over the file.
const (
	EnvTenantID        = "CERTSSO_TENANT_ID"
	EnvClientID        = "CERTSSO_CLIENT_ID"
	EnvKeyVaultURL     = "CERTSSO_KEY_VAULT_URL"
	EnvCertificateName = "CERTSSO_CERTIFICATE_NAME"
)

// FromPath loads a Config from a file in fs, applies environment overrides, inserts any defaults
// (from the Config documentation), and verifies that the config is valid. An empty path means
// the configuration comes from the environment alone.
func FromPath(fs afero.Fs, path string) (*Config, error) {
	return fromPath(fs, path, os.LookupEnv)
}

func fromPath(fs afero.Fs, path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	var config Config

	if len(path) > 0 {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &config); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	applyEnvOverrides(&config, lookupEnv)
	setDefaults(&config)

	if err := validateRequired(&config); err != nil {
		return nil, err
	}
	if err := validateSecretStoreType(config.SecretStore.Type); err != nil {
		return nil, fmt.Errorf("validate secretStore: %w", err)
	}
	if config.CertificateCacheTTL.Duration <= 0 {
		return nil, fmt.Errorf("validate certificateCacheTTL: must be positive, got %s", config.CertificateCacheTTL.Duration)
	}
	if config.Bot.MaxFetchAttempts < 1 {
		return nil, fmt.Errorf("validate bot: maxFetchAttempts must be at least 1, got %d", config.Bot.MaxFetchAttempts)
	}
	if err := validateEndpoint(*config.Endpoints.HTTP); err != nil {
		return nil, fmt.Errorf("validate http endpoint: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config, lookupEnv func(string) (string, bool)) {
	for env, field := range map[string]*string{
		EnvTenantID:        &config.TenantID,
		EnvClientID:        &config.ClientID,
		EnvKeyVaultURL:     &config.SecretStore.URL,
		EnvCertificateName: &config.SecretStore.CertificateName,
	} {
		if value, ok := lookupEnv(env); ok && len(value) > 0 {
			*field = value
		}
	}
}

func setDefaults(config *Config) {
	maybeSetStringDefault(&config.AuthorityHost, obo.DefaultAuthorityHost)
	maybeSetStringDefault(&config.Scope, obo.DefaultScope)
	if config.CertificateCacheTTL == nil {
		config.CertificateCacheTTL = &metav1.Duration{Duration: credcache.DefaultTTL}
	}
	if config.CheckCertificateExpiry == nil {
		config.CheckCertificateExpiry = ptr.To(true)
	}

	maybeSetStringDefault(&config.SecretStore.Type, StoreAzureKeyVault)
	if config.SecretStore.Type == StoreVault {
		maybeSetStringDefault(&config.SecretStore.TokenEnvVar, defaultVaultTokenEnvVar)
	}

	maybeSetStringDefault(&config.Bot.GraphBaseURL, graph.DefaultBaseURL)
	if config.Bot.MaxFetchAttempts == 0 {
		config.Bot.MaxFetchAttempts = bot.DefaultMaxFetchAttempts
	}

	// support setting this to null or {} or empty in the YAML
	if config.Endpoints == nil {
		config.Endpoints = &Endpoints{}
	}
	maybeSetEndpointDefault(&config.Endpoints.HTTP, Endpoint{
		Network: NetworkTCP,
		Address: ":8080",
	})
}

func maybeSetStringDefault(s *string, defaultValue string) {
	if len(*s) == 0 {
		*s = defaultValue
	}
}

func maybeSetEndpointDefault(endpoint **Endpoint, defaultEndpoint Endpoint) {
	if *endpoint != nil {
		return
	}
	*endpoint = &defaultEndpoint
}

// validateRequired reports every missing required setting at once.
func validateRequired(config *Config) error {
	store := config.SecretStore
	locationName, location := "secretStore.url", store.URL
	switch store.Type {
	case StoreAWSSecretsManager:
		locationName, location = "secretStore.region", store.Region
	case StoreFile:
		locationName, location = "secretStore.directory", store.Directory
	}
	return autherr.NewConfigurationError(
		"tenantID", config.TenantID,
		"clientID", config.ClientID,
		locationName, location,
		"secretStore.certificateName", store.CertificateName,
	)
}

func validateSecretStoreType(storeType string) error {
	switch storeType {
	case StoreAzureKeyVault, StoreAWSSecretsManager, StoreVault, StoreFile:
		return nil
	default:
		return fmt.Errorf("unknown type %q", storeType)
	}
}

func validateEndpoint(endpoint Endpoint) error {
	switch n := endpoint.Network; n {
	case NetworkTCP, NetworkUnix:
		if len(endpoint.Address) == 0 {
			return fmt.Errorf("address must be set with %q network", n)
		}
		return nil
	case NetworkDisabled:
		if len(endpoint.Address) != 0 {
			return fmt.Errorf("address set to %q when disabled, should be empty", endpoint.Address)
		}
		return nil
	default:
		return fmt.Errorf("unknown network %q", n)
	}
}

// CacheTTL is CertificateCacheTTL as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return c.CertificateCacheTTL.Duration
}
