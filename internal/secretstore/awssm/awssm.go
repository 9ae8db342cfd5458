// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package awssm reads certificates from AWS Secrets Manager. The secret may hold the
// certificate as binary (PKCS#12) or as a string (PEM or base64 PKCS#12).
package awssm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	"go.certsso.dev/internal/secretstore"
)

type Config struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for LocalStack.
	Endpoint string
	// LoadOptions are passed to config.LoadDefaultConfig after the region.
	LoadOptions []func(*config.LoadOptions) error
}

type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Store struct {
	client secretValueGetter
	region string
}

var _ secretstore.Store = (*Store)(nil)

// New loads the default AWS configuration (environment, shared config, IRSA, instance role)
// and returns a Store backed by a Secrets Manager client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	opts = append(opts, cfg.LoadOptions...)

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Store{
		client: secretsmanager.NewFromConfig(awsCfg, clientOpts...),
		region: awsCfg.Region,
	}, nil
}

func (s *Store) Location() string {
	return "aws-secretsmanager://" + s.region
}

func (s *Store) Fetch(ctx context.Context, name string) (*secretstore.Secret, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, classify(name, err)
	}

	secret := &secretstore.Secret{Version: aws.ToString(out.VersionId)}
	switch {
	case len(out.SecretBinary) > 0:
		secret.Value = out.SecretBinary
	case out.SecretString != nil:
		secret.Value = []byte(*out.SecretString)
	default:
		return nil, fmt.Errorf("secret %q has no value", name)
	}
	return secret, nil
}

func classify(name string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %q: %w", secretstore.ErrNotFound, name, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return fmt.Errorf("%w: %q: %w", secretstore.ErrForbidden, name, err)
		}
	}
	return fmt.Errorf("could not get secret %q: %w", name, err)
}
