// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfigurationError(t *testing.T) {
	require.NoError(t, NewConfigurationError("tenantID", "contoso", "clientID", "abc123"))

	err := NewConfigurationError("tenantID", "", "clientID", "abc123", "keyVaultURL", "  ")
	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, []string{"tenantID", "keyVaultURL"}, configErr.Missing)
	require.EqualError(t, err, "missing required configuration: tenantID, keyVaultURL")

	require.Panics(t, func() { _ = NewConfigurationError("odd") })
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("403 Forbidden")

	fetchErr := &CredentialFetchError{Name: "sso-cert", Err: cause}
	require.EqualError(t, fetchErr, `could not fetch credential "sso-cert" from secret store: 403 Forbidden`)
	require.ErrorIs(t, fmt.Errorf("wrapped: %w", fetchErr), cause)

	require.EqualError(t,
		&ExchangeFailedError{StatusCode: 400, Body: `{"error":"invalid_grant"}`, ErrorCode: "invalid_grant"},
		"token exchange failed with status 400: invalid_grant")
	require.EqualError(t,
		&ExchangeFailedError{StatusCode: 400, ErrorCode: "invalid_grant", ErrorDescription: "AADSTS50013: Assertion failed signature validation."},
		"token exchange failed with status 400: invalid_grant: AADSTS50013: Assertion failed signature validation.")
	require.EqualError(t,
		&ExchangeFailedError{StatusCode: 502, Body: "<html>bad gateway</html>"},
		"token exchange failed with status 502: <html>bad gateway</html>")

	require.EqualError(t, &MalformedResponseError{Reason: "missing access_token"}, "malformed token endpoint response: missing access_token")
	malformed := &MalformedResponseError{Reason: "could not decode JSON", Err: cause}
	require.EqualError(t, malformed, "malformed token endpoint response: could not decode JSON: 403 Forbidden")
	require.ErrorIs(t, malformed, cause)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name                  string
		err                   error
		wantRetryable         bool
		wantConsentRequired   bool
		wantInteractionNeeded bool
	}{
		{
			name: "configuration",
			err:  &ConfigurationError{Missing: []string{"clientID"}},
		},
		{
			name:          "credential fetch",
			err:           fmt.Errorf("outer: %w", &CredentialFetchError{Name: "n", Err: errors.New("timeout")}),
			wantRetryable: true,
		},
		{
			name:                  "invalid grant",
			err:                   &ExchangeFailedError{StatusCode: 400, ErrorCode: "invalid_grant"},
			wantInteractionNeeded: true,
		},
		{
			name:                "consent required",
			err:                 &ExchangeFailedError{StatusCode: 400, ErrorCode: "invalid_grant", SubError: "consent_required"},
			wantConsentRequired: true, wantInteractionNeeded: true,
		},
		{
			name:                "consent required as error code",
			err:                 &ExchangeFailedError{StatusCode: 400, ErrorCode: "consent_required"},
			wantConsentRequired: true,
		},
		{
			name:          "throttled",
			err:           &ExchangeFailedError{StatusCode: 429},
			wantRetryable: true,
		},
		{
			name:          "provider outage",
			err:           &ExchangeFailedError{StatusCode: 503},
			wantRetryable: true,
		},
		{
			name:          "temporarily unavailable",
			err:           &ExchangeFailedError{StatusCode: 400, ErrorCode: "temporarily_unavailable"},
			wantRetryable: true,
		},
		{
			name: "malformed",
			err:  &MalformedResponseError{Reason: "missing access_token"},
		},
		{
			name: "plain",
			err:  errors.New("boom"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.wantRetryable, IsRetryable(tt.err))
			require.Equal(t, tt.wantConsentRequired, IsConsentRequired(tt.err))
			require.Equal(t, tt.wantInteractionNeeded, IsInteractionRequired(tt.err))
		})
	}
}
