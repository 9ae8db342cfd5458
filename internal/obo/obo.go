// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package obo exchanges a user's delegated access token for an access token to a downstream API
// using the OAuth 2.0 on-behalf-of flow, authenticating the application with a certificate.
//
// See https://learn.microsoft.com/entra/identity-platform/v2-oauth2-on-behalf-of-flow.
package obo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"go.certsso.dev/internal/assertion"
	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/constable"
	"go.certsso.dev/internal/credcache"
	"go.certsso.dev/internal/metrics"
	"go.certsso.dev/internal/net/phttp"
	"go.certsso.dev/internal/plog"
)

const (
	DefaultAuthorityHost = "https://login.microsoftonline.com"
	DefaultScope         = "https://graph.microsoft.com/.default"

	GrantTypeJWTBearer           = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	RequestedTokenUseOnBehalfOf  = "on_behalf_of"

	ErrEmptyUserToken = constable.Error("user token must not be empty")
)

// Reasons used as the metrics label of failed exchanges.
const (
	reasonEmptyUserToken    = "empty_user_token"
	reasonConfiguration     = "configuration"
	reasonCredentialFetch   = "credential_fetch"
	reasonExchangeFailed    = "exchange_failed"
	reasonMalformedResponse = "malformed_response"
	reasonCancelled         = "cancelled"
	reasonTransport         = "transport"
)

// loggableParams are the only token request parameters which may be logged verbatim.
var loggableParams = sets.New( //nolint:gochecknoglobals
	"grant_type",
	"client_id",
	"scope",
	"requested_token_use",
	"client_assertion_type",
)

// TokenExchanger is what callers that hold a user's token depend on.
type TokenExchanger interface {
	Exchange(ctx context.Context, userToken string) (*Result, error)
}

// Result is the token endpoint's successful response. It is not cached.
type Result struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	Scope        string
	RefreshToken string
	// Expiry is computed from ExpiresIn when the response was received. Zero when ExpiresIn was absent.
	Expiry time.Time
}

type Config struct {
	TenantID string
	ClientID string
	// AuthorityHost defaults to DefaultAuthorityHost.
	AuthorityHost string
	// Scope defaults to DefaultScope.
	Scope string
}

// Exchanger performs on-behalf-of exchanges. It is safe for concurrent use.
type Exchanger struct {
	config      Config
	tokenURL    string
	credentials credcache.Getter
	assertions  *assertion.Builder
	httpClient  *http.Client
	clock       clock.PassiveClock
	metrics     *metrics.Metrics
	logger      plog.Logger
}

var _ TokenExchanger = (*Exchanger)(nil)

type Opt func(*Exchanger)

func WithHTTPClient(c *http.Client) Opt {
	return func(e *Exchanger) {
		e.httpClient = c
	}
}

// WithClock sets the clock used for assertions, Result.Expiry and durations.
func WithClock(c clock.PassiveClock) Opt {
	return func(e *Exchanger) {
		e.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Opt {
	return func(e *Exchanger) {
		e.metrics = m
	}
}

func WithLogger(logger plog.Logger) Opt {
	return func(e *Exchanger) {
		e.logger = logger
	}
}

// New validates cfg and returns an Exchanger that signs assertions with the credentials from credentials.
func New(cfg Config, credentials credcache.Getter, opts ...Opt) (*Exchanger, error) {
	if err := autherr.NewConfigurationError("tenantID", cfg.TenantID, "clientID", cfg.ClientID); err != nil {
		return nil, err
	}
	if credentials == nil {
		return nil, &autherr.ConfigurationError{Missing: []string{"secretStore"}}
	}
	if cfg.AuthorityHost == "" {
		cfg.AuthorityHost = DefaultAuthorityHost
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}

	tokenURL, err := TokenURL(cfg.AuthorityHost, cfg.TenantID)
	if err != nil {
		return nil, err
	}

	e := &Exchanger{
		config:      cfg,
		tokenURL:    tokenURL,
		credentials: credentials,
		httpClient:  phttp.Default(),
		clock:       clock.RealClock{},
		logger:      plog.New().WithName("obo"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.assertions = assertion.NewBuilder(assertion.WithClock(e.clock))
	return e, nil
}

// TokenURL returns the v2.0 token endpoint of a tenant, which is also the audience of client assertions.
func TokenURL(authorityHost, tenantID string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(authorityHost, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid authority host %q: %w", authorityHost, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("invalid authority host %q: must be an absolute http(s) URL", authorityHost)
	}
	return u.JoinPath(tenantID, "oauth2", "v2.0", "token").String(), nil
}

func (e *Exchanger) TokenURL() string {
	return e.tokenURL
}

// Exchange trades userToken for an access token to the configured scope.
//
// An empty userToken returns ErrEmptyUserToken without any I/O. Otherwise the signing credential
// is obtained first, and if that fails the token endpoint is not called. Failures are returned as
// the types of package autherr, except for transport errors and cancellation which are wrapped as is.
// Nothing is retried.
func (e *Exchanger) Exchange(ctx context.Context, userToken string) (*Result, error) {
	start := e.clock.Now()
	result, err := e.exchange(ctx, userToken)
	e.metrics.ObserveExchange(reasonFor(err), e.clock.Since(start))
	return result, err
}

func (e *Exchanger) exchange(ctx context.Context, userToken string) (*Result, error) {
	if len(strings.TrimSpace(userToken)) == 0 {
		return nil, ErrEmptyUserToken
	}

	cred, err := e.credentials.GetCredential(ctx)
	if err != nil {
		// the credential cache already logged the failure at error level
		e.logger.DebugErr("could not obtain signing certificate for token exchange", err)
		return nil, err
	}

	clientAssertion, err := e.assertions.Build(cred, e.config.ClientID, e.tokenURL)
	if err != nil {
		return nil, fmt.Errorf("could not build client assertion: %w", err)
	}

	form := url.Values{
		"grant_type":            {GrantTypeJWTBearer},
		"client_id":             {e.config.ClientID},
		"client_assertion_type": {ClientAssertionTypeJWTBearer},
		"client_assertion":      {clientAssertion},
		"assertion":             {userToken},
		"scope":                 {e.config.Scope},
		"requested_token_use":   {RequestedTokenUseOnBehalfOf},
	}
	e.logger.All("token exchange request", "tokenURL", e.tokenURL, "form", plog.SanitizeParams(form, loggableParams))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("could not build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Error("token endpoint request failed", err, "tokenURL", e.tokenURL)
		return nil, fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	result, err := parseResponse(resp, e.clock.Now())
	if err != nil {
		var exchangeErr *autherr.ExchangeFailedError
		if errors.As(err, &exchangeErr) {
			e.logger.InfoErr("token exchange rejected", err,
				"status", exchangeErr.StatusCode,
				"errorCodes", exchangeErr.ErrorCodes,
				"correlationID", exchangeErr.CorrelationID,
				"traceID", exchangeErr.TraceID)
		} else {
			e.logger.Error("token exchange returned an unusable response", err)
		}
		return nil, err
	}

	e.logger.Debug("token exchange succeeded",
		"scope", result.Scope,
		"expiresIn", result.ExpiresIn,
		"certificateThumbprint", cred.Thumbprint())
	return result, nil
}

func reasonFor(err error) string {
	var (
		configErr    *autherr.ConfigurationError
		fetchErr     *autherr.CredentialFetchError
		exchangeErr  *autherr.ExchangeFailedError
		malformedErr *autherr.MalformedResponseError
	)
	switch {
	case err == nil:
		return metrics.ReasonNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonCancelled
	case errors.Is(err, ErrEmptyUserToken):
		return reasonEmptyUserToken
	case errors.As(err, &configErr):
		return reasonConfiguration
	case errors.As(err, &fetchErr):
		return reasonCredentialFetch
	case errors.As(err, &exchangeErr):
		return reasonExchangeFailed
	case errors.As(err, &malformedErr):
		return reasonMalformedResponse
	default:
		return reasonTransport
	}
}
