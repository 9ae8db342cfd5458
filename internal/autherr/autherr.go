// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package autherr defines the errors returned by the credential cache and the token exchanger.
//
// There are four kinds:
//   - ConfigurationError: a required setting is missing. Not retryable, fix the deployment.
//   - CredentialFetchError: the secret store could not produce the signing certificate.
//     Retryable with a small, bounded number of attempts.
//   - ExchangeFailedError: the identity provider rejected the assertion or the grant.
//     Generally requires user consent or re-authentication; ErrorCode tells which.
//   - MalformedResponseError: the identity provider returned success with an unusable body.
//
// All of them carry their cause and are meant to be inspected with errors.As.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError reports required settings which were not provided.
type ConfigurationError struct {
	// Missing lists the names of the settings which were empty, in a stable order.
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// NewConfigurationError returns a *ConfigurationError when any of the named values is empty, or nil otherwise.
// Pairs are given as name, value, name, value, ...
func NewConfigurationError(namesAndValues ...string) error {
	if len(namesAndValues)%2 != 0 {
		panic("autherr.NewConfigurationError requires name/value pairs") // programmer error
	}
	var missing []string
	for i := 0; i < len(namesAndValues); i += 2 {
		if len(strings.TrimSpace(namesAndValues[i+1])) == 0 {
			missing = append(missing, namesAndValues[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigurationError{Missing: missing}
}

// CredentialFetchError reports that the signing credential could not be obtained from the secret store.
type CredentialFetchError struct {
	// Name is the name of the credential in the secret store.
	Name string
	Err  error
}

func (e *CredentialFetchError) Error() string {
	return fmt.Sprintf("could not fetch credential %q from secret store: %v", e.Name, e.Err)
}

func (e *CredentialFetchError) Unwrap() error {
	return e.Err
}

// ExchangeFailedError reports a non-2xx response from the token endpoint.
// The raw body is kept so that operators can see the provider's full error payload.
type ExchangeFailedError struct {
	StatusCode int
	Body       string

	// The following fields are parsed from the body when it is a standard OAuth2 error response.
	ErrorCode        string
	ErrorDescription string
	ErrorCodes       []int
	CorrelationID    string
	TraceID          string
	SubError         string
}

func (e *ExchangeFailedError) Error() string {
	if len(e.ErrorCode) > 0 {
		if len(e.ErrorDescription) > 0 {
			return fmt.Sprintf("token exchange failed with status %d: %s: %s", e.StatusCode, e.ErrorCode, e.ErrorDescription)
		}
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError reports a 2xx response from the token endpoint which could not be used.
type MalformedResponseError struct {
	Reason string
	Body   string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed token endpoint response: %s: %v", e.Reason, e.Err)
	}
	return "malformed token endpoint response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true when a caller may reasonably retry the operation which returned err.
func IsRetryable(err error) bool {
	var fetchErr *CredentialFetchError
	if errors.As(err, &fetchErr) {
		return true
	}

	var exchangeErr *ExchangeFailedError
	if errors.As(err, &exchangeErr) {
		switch {
		case exchangeErr.StatusCode == http.StatusTooManyRequests,
			exchangeErr.StatusCode >= http.StatusInternalServerError,
			exchangeErr.ErrorCode == "temporarily_unavailable":
			return true
		}
	}

	return false
}

// IsConsentRequired returns true when the identity provider requires the user or an administrator to
// consent to the downstream scopes before the exchange can succeed.
func IsConsentRequired(err error) bool {
	var exchangeErr *ExchangeFailedError
	if !errors.As(err, &exchangeErr) {
		return false
	}
	return exchangeErr.ErrorCode == "consent_required" || exchangeErr.SubError == "consent_required"
}

// IsInteractionRequired returns true when the user must sign in again, e.g. because of a
// conditional access policy or an expired delegated token.
func IsInteractionRequired(err error) bool {
	var exchangeErr *ExchangeFailedError
	if !errors.As(err, &exchangeErr) {
		return false
	}
	switch exchangeErr.ErrorCode {
	case "interaction_required", "login_required", "invalid_grant":
		return true
	}
	return false
}
