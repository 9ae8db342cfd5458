// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// Content types used by secret stores to describe certificate material.
const (
	ContentTypePKCS12 = "application/x-pkcs12"
	ContentTypePEM    = "application/x-pem-file"
)

// Decode parses certificate material downloaded from a secret store.
// When contentType is empty the format is sniffed: PEM, base64 encoded PKCS#12 or raw PKCS#12.
// PKCS#12 bundles are expected to have an empty password, which is how key vaults export them.
func Decode(data []byte, contentType string, fetchedAt time.Time) (*Credential, error) {
	switch contentType {
	case ContentTypePEM:
		return decodePEM(data, fetchedAt)
	case ContentTypePKCS12:
		return decodePKCS12(maybeBase64(data), fetchedAt)
	case "":
		trimmed := bytes.TrimSpace(data)
		if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
			return decodePEM(trimmed, fetchedAt)
		}
		cred, err := decodePKCS12(maybeBase64(trimmed), fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnrecognizedContent, err)
		}
		return cred, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

func maybeBase64(data []byte) []byte {
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return data
	}
	return decoded
}

func decodePKCS12(pfx []byte, fetchedAt time.Time) (*Credential, error) {
	blocks, err := pkcs12.ToPEM(pfx, "")
	if err != nil {
		return nil, fmt.Errorf("could not decode PKCS#12 data: %w", err)
	}
	return fromBlocks(blocks, fetchedAt)
}

func decodePEM(data []byte, fetchedAt time.Time) (*Credential, error) {
	var blocks []*pem.Block
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("could not decode PEM data: %w", ErrNoCertificate)
	}
	return fromBlocks(blocks, fetchedAt)
}

func fromBlocks(blocks []*pem.Block, fetchedAt time.Time) (*Credential, error) {
	var (
		certs []*x509.Certificate
		key   crypto.PrivateKey
	)
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("could not parse certificate: %w", err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if key != nil {
				return nil, errors.New("found more than one private key")
			}
			parsed, err := parsePrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			key = parsed
		}
	}
	return New(key, certs, fetchedAt)
}

// parsePrivateKey accepts PKCS#8, PKCS#1 and SEC 1 keys regardless of the PEM block type,
// because PKCS#12 conversion labels every key as "PRIVATE KEY".
func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: could not parse private key as PKCS#8, PKCS#1 or SEC 1", ErrUnsupportedKeyType)
}
