// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package certsso

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.certsso.dev/internal/plog"
)

// Config contains knobs to setup an instance of certsso.
type Config struct {
	TenantID string `json:"tenantID"`
	ClientID string `json:"clientID"`

	AuthorityHost string `json:"authorityHost"`
	Scope         string `json:"scope"`

	// CertificateCacheTTL is how long a downloaded signing certificate is used before it is downloaded again.
	CertificateCacheTTL *metav1.Duration `json:"certificateCacheTTL"`
	// CheckCertificateExpiry rejects signing certificates that are not currently valid.
	CheckCertificateExpiry *bool `json:"checkCertificateExpiry"`

	SecretStore SecretStoreSpec `json:"secretStore"`
	Bot         BotSpec         `json:"bot"`
	Endpoints   *Endpoints      `json:"endpoints"`
	Log         plog.LogSpec    `json:"log"`
}

// SecretStoreSpec says where the signing certificate is kept. Which fields apply depends on Type.
type SecretStoreSpec struct {
	Type            string `json:"type"`
	CertificateName string `json:"certificateName"`

	// URL is the vault URL for azureKeyVault and the server address for vault.
	URL string `json:"url"`

	// azureKeyVault
	ManagedIdentityClientID string `json:"managedIdentityClientID"`

	// awsSecretsManager
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`

	// vault
	MountPath   string `json:"mountPath"`
	Field       string `json:"field"`
	TokenEnvVar string `json:"tokenEnvVar"`

	// file
	Directory string `json:"directory"`
}

type BotSpec struct {
	Enabled          bool   `json:"enabled"`
	GraphBaseURL     string `json:"graphBaseURL"`
	MaxFetchAttempts int    `json:"maxFetchAttempts"`
}

type Endpoints struct {
	HTTP *Endpoint `json:"http"`
}

type Endpoint struct {
	Network string `json:"network"`
	Address string `json:"address"`
}
