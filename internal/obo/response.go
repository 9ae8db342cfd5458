// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package obo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"go.certsso.dev/internal/autherr"
)

// maxResponseBytes bounds how much of a token endpoint response is read.
const maxResponseBytes = 1 << 20

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    expiresIn `json:"expires_in"`
	Scope        string    `json:"scope"`
	RefreshToken string    `json:"refresh_token"`
}

// errorResponse is the OAuth 2.0 error response, with the extensions Microsoft Entra ID adds.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	TraceID          string `json:"trace_id"`
	SubError         string `json:"suberror"`
}

// expiresIn accepts both a JSON number and a numeric string, since older endpoints send the latter.
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_in %q", data)
	}
	*e = expiresIn(v)
	return nil
}

func parseResponse(resp *http.Response, now time.Time) (*Result, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &autherr.ExchangeFailedError{StatusCode: resp.StatusCode}
		}
		return nil, &autherr.MalformedResponseError{Reason: "could not read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, exchangeFailed(resp.StatusCode, body)
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType != "application/json" {
		return nil, &autherr.MalformedResponseError{
			Reason: fmt.Sprintf("unexpected content type %q", mediaType),
			Body:   string(body),
		}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &autherr.MalformedResponseError{Reason: "body is not a token response", Body: string(body), Err: err}
	}
	if len(parsed.AccessToken) == 0 {
		// the body might still carry a refresh token, so it is not kept
		return nil, &autherr.MalformedResponseError{Reason: "missing access_token"}
	}

	result := &Result{
		AccessToken:  parsed.AccessToken,
		TokenType:    parsed.TokenType,
		ExpiresIn:    int64(parsed.ExpiresIn),
		Scope:        parsed.Scope,
		RefreshToken: parsed.RefreshToken,
	}
	if result.ExpiresIn > 0 {
		result.Expiry = now.Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	return result, nil
}

func exchangeFailed(status int, body []byte) *autherr.ExchangeFailedError {
	err := &autherr.ExchangeFailedError{StatusCode: status, Body: string(body)}

	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		err.ErrorCode = parsed.Error
		err.ErrorDescription = parsed.ErrorDescription
		err.ErrorCodes = parsed.ErrorCodes
		err.CorrelationID = parsed.CorrelationID
		err.TraceID = parsed.TraceID
		err.SubError = parsed.SubError
	}
	return err
}
