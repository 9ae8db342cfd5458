// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package testcert issues throwaway self-signed certificates for tests.
package testcert

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.certsso.dev/internal/credential"
)

// certBackdate matches the backdating used by the Kubernetes controller manager certificate signer.
const certBackdate = 5 * time.Minute

type KeyType string

const (
	RSA2048 KeyType = "rsa2048"
	P256    KeyType = "p256"
	P384    KeyType = "p384"
	P521    KeyType = "p521"
)

// Cert is a self-signed certificate and its private key.
type Cert struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
	CertPEM     []byte
	KeyPEM      []byte
}

// Bundle returns the certificate followed by the PKCS#8 private key, as a secret store would hold it.
func (c *Cert) Bundle() []byte {
	return bytes.Join([][]byte{c.CertPEM, c.KeyPEM}, nil)
}

// Credential wraps the certificate into a credential.Credential.
func (c *Cert) Credential(t *testing.T, fetchedAt time.Time) *credential.Credential {
	t.Helper()

	cred, err := credential.New(c.Key, []*x509.Certificate{c.Certificate}, fetchedAt)
	require.NoError(t, err)
	return cred
}

// New issues a self-signed certificate valid from now-5m until now+ttl.
func New(t *testing.T, keyType KeyType, commonName string, now time.Time, ttl time.Duration) *Cert {
	t.Helper()

	key := generateKey(t, keyType)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-certBackdate),
		NotAfter:              now.Add(ttl),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return &Cert{
		Key:         key,
		Certificate: cert,
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
	}
}

func generateKey(t *testing.T, keyType KeyType) crypto.Signer {
	t.Helper()

	var (
		key crypto.Signer
		err error
	)
	switch keyType {
	case RSA2048:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case P256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case P384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case P521:
		key, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		t.Fatalf("unknown key type %q", keyType)
	}
	require.NoError(t, err)
	return key
}
