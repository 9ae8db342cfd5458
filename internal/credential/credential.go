// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package credential holds the signing identity used to authenticate to the identity provider:
// a certificate with its private key, as downloaded from a secret store.
package credential

import (
	"crypto"
	"crypto/sha1" //nolint:gosec // x5t is defined as a SHA-1 thumbprint
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.certsso.dev/internal/constable"
)

const (
	ErrNoCertificate       = constable.Error("no certificate found")
	ErrNoPrivateKey        = constable.Error("no private key found")
	ErrKeyCertMismatch     = constable.Error("private key does not match any certificate")
	ErrUnsupportedKeyType  = constable.Error("unsupported private key type")
	ErrUnrecognizedContent = constable.Error("content is neither PEM nor PKCS#12")
)

// Credential is a certificate and its private key. It is immutable once constructed.
// The zero value is not usable, use New or Decode.
type Credential struct {
	signer    crypto.Signer
	leaf      *x509.Certificate
	chain     []*x509.Certificate // leaf first
	sha1Sum   [sha1.Size]byte
	sha256Sum [sha256.Size]byte
	fetchedAt time.Time
}

// New builds a Credential from a private key and a set of certificates in any order.
// The leaf is the certificate whose public key matches the private key, every other
// certificate is kept as the chain.
func New(key crypto.PrivateKey, certs []*x509.Certificate, fetchedAt time.Time) (*Credential, error) {
	if key == nil {
		return nil, ErrNoPrivateKey
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificate
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, key)
	}

	leafIndex := -1
	for i, cert := range certs {
		if publicKeysEqual(signer.Public(), cert.PublicKey) {
			leafIndex = i
			break
		}
	}
	if leafIndex < 0 {
		return nil, ErrKeyCertMismatch
	}

	chain := make([]*x509.Certificate, 0, len(certs))
	chain = append(chain, certs[leafIndex])
	for i, cert := range certs {
		if i != leafIndex {
			chain = append(chain, cert)
		}
	}

	leaf := certs[leafIndex]
	return &Credential{
		signer:    signer,
		leaf:      leaf,
		chain:     chain,
		sha1Sum:   sha1.Sum(leaf.Raw), //nolint:gosec // x5t is defined as a SHA-1 thumbprint
		sha256Sum: sha256.Sum256(leaf.Raw),
		fetchedAt: fetchedAt,
	}, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(x crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

// Signer returns the private key.
func (c *Credential) Signer() crypto.Signer {
	return c.signer
}

// Certificate returns the leaf certificate. Callers must not modify it.
func (c *Credential) Certificate() *x509.Certificate {
	return c.leaf
}

// Chain returns a copy of the certificate chain, leaf first.
func (c *Credential) Chain() []*x509.Certificate {
	out := make([]*x509.Certificate, len(c.chain))
	copy(out, c.chain)
	return out
}

// Thumbprint returns the upper case hex SHA-1 thumbprint of the leaf certificate,
// which is how the identity provider displays registered certificates.
func (c *Credential) Thumbprint() string {
	return strings.ToUpper(hex.EncodeToString(c.sha1Sum[:]))
}

// X5T returns the base64url SHA-1 thumbprint of the leaf certificate, i.e. the JWS x5t header.
func (c *Credential) X5T() string {
	return base64.RawURLEncoding.EncodeToString(c.sha1Sum[:])
}

// X5TS256 returns the base64url SHA-256 thumbprint of the leaf certificate, i.e. the JWS x5t#S256 header.
func (c *Credential) X5TS256() string {
	return base64.RawURLEncoding.EncodeToString(c.sha256Sum[:])
}

func (c *Credential) NotAfter() time.Time {
	return c.leaf.NotAfter
}

// FetchedAt is when this process obtained the credential from the secret store.
func (c *Credential) FetchedAt() time.Time {
	return c.fetchedAt
}

// ExpiredAt returns true when the leaf certificate is no longer valid at the given time.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.leaf.NotAfter)
}

func (c *Credential) String() string {
	return fmt.Sprintf("subject=%q thumbprint=%s notAfter=%s", c.leaf.Subject.String(), c.Thumbprint(), c.leaf.NotAfter.UTC().Format(time.RFC3339))
}
