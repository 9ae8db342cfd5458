// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package phttp

import (
	"net/http"
	"net/url"
	"time"

	"go.certsso.dev/internal/httputil/roundtripper"
	"go.certsso.dev/internal/plog"
)

// safeDebugWrappers logs every request and response after removing everything that could be a secret:
// header values, query values, userinfo, and bodies. Token endpoint bodies carry the user's token
// and the client assertion, so they are never passed to the logger.
func safeDebugWrappers(rt http.RoundTripper, logger plog.Logger, shouldLog func() bool) http.RoundTripper {
	return roundtripper.WrapFunc(rt, func(req *http.Request) (*http.Response, error) {
		// checked per request so that the output can change at runtime
		if !shouldLog() {
			return rt.RoundTrip(req)
		}

		start := time.Now()
		resp, err := rt.RoundTrip(req)

		cleanedReq := cleanReq(req)
		keysAndValues := []any{
			"method", cleanedReq.Method,
			"url", cleanedReq.URL.String(),
			"requestHeaders", cleanedReq.Header,
			"duration", time.Since(start),
		}
		if cleanedResp := cleanResp(resp); cleanedResp != nil {
			keysAndValues = append(keysAndValues, "status", cleanedResp.Status, "responseHeaders", cleanedResp.Header)
		}
		if err != nil {
			logger.TraceErr("http request failed", err, keysAndValues...)
		} else {
			logger.Trace("http request", keysAndValues...)
		}
		return resp, err
	})
}

func cleanReq(req *http.Request) *http.Request {
	// only pass back things we know to be safe to log
	return &http.Request{
		Method: req.Method,
		URL:    cleanURL(req.URL),
		Header: cleanHeader(req.Header),
	}
}

func cleanResp(resp *http.Response) *http.Response {
	if resp == nil {
		return nil
	}

	// only pass back things we know to be safe to log
	return &http.Response{
		Status: resp.Status,
		Header: cleanHeader(resp.Header),
	}
}

func cleanURL(u *url.URL) *url.URL {
	var user *url.Userinfo
	if len(u.User.Username()) > 0 {
		user = url.User("masked_username")
	}

	var opaque string
	if len(u.Opaque) > 0 {
		opaque = "masked_opaque_data"
	}

	var fragment string
	if len(u.Fragment) > 0 || len(u.RawFragment) > 0 {
		fragment = "masked_fragment"
	}

	// only pass back things we know to be safe to log
	return &url.URL{
		Scheme:     u.Scheme,
		Opaque:     opaque,
		User:       user,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		ForceQuery: u.ForceQuery,
		RawQuery:   cleanQuery(u.Query()),
		Fragment:   fragment,
	}
}

func cleanQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	out := url.Values(cleanHeader(http.Header(query))) // cast so we can re-use logic
	return out.Encode()
}

func cleanHeader(header http.Header) http.Header {
	if len(header) == 0 {
		return nil
	}

	mask := []string{"masked_value"}
	out := make(http.Header, len(header))
	for key := range header {
		out[key] = mask // only copy the keys
	}
	return out
}
