// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package assertion builds the signed JWT that a confidential client presents to the token endpoint
// in place of a client secret (RFC 7523 client authentication).
package assertion

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"go.certsso.dev/internal/constable"
	"go.certsso.dev/internal/credential"
)

const (
	// Lifetime is how long an assertion is valid after it is built.
	Lifetime = 10 * time.Minute

	ErrUnsupportedKey = constable.Error("unsupported signing key")
)

// Builder builds client assertions. It is safe for concurrent use.
type Builder struct {
	clock clock.PassiveClock
	newID func() string
}

type Opt func(*Builder)

// WithClock overrides the clock used for nbf and exp.
func WithClock(c clock.PassiveClock) Opt {
	return func(b *Builder) {
		b.clock = c
	}
}

// WithIDGenerator overrides how jti values are generated.
func WithIDGenerator(newID func() string) Opt {
	return func(b *Builder) {
		b.newID = newID
	}
}

func NewBuilder(opts ...Opt) *Builder {
	b := &Builder{
		clock: clock.RealClock{},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a compact serialized JWT with iss and sub set to clientID, aud set to audience,
// a fresh jti, and a validity window of [now, now+Lifetime]. It is signed by the credential's
// private key and carries the certificate thumbprint in the kid and x5t headers.
func (b *Builder) Build(cred *credential.Credential, clientID, audience string) (string, error) {
	alg, err := SignatureAlgorithm(cred.Signer())
	if err != nil {
		return "", err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: cred.Signer()},
		(&jose.SignerOptions{}).
			WithType("JWT").
			WithHeader("kid", cred.Thumbprint()).
			WithHeader("x5t", cred.X5T()),
	)
	if err != nil {
		return "", fmt.Errorf("could not create assertion signer: %w", err)
	}

	now := b.clock.Now()
	claims := jwt.Claims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  jwt.Audience{audience},
		ID:        b.newID(),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(Lifetime)),
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("could not sign assertion: %w", err)
	}
	return token, nil
}

// SignatureAlgorithm picks the JWS algorithm for a private key.
func SignatureAlgorithm(key crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jose.RS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		default:
			return "", fmt.Errorf("%w: ecdsa curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
		}
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}
