// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package phttp builds the http.Client used for every outgoing call: the token endpoint,
// Microsoft Graph, and secret stores that accept a custom transport.
package phttp

import (
	"crypto/tls"
	"net/http"
	"time"

	"k8s.io/apimachinery/pkg/util/net"

	"go.certsso.dev/internal/httputil/roundtripper"
	"go.certsso.dev/internal/plog"
	"go.certsso.dev/internal/pversion"
)

// DefaultTimeout bounds a whole request, including reading the response body.
const DefaultTimeout = time.Minute

// Default returns a client that trusts the system roots, requires TLS 1.2,
// sends the certsso user agent, and logs cleaned requests at trace level.
func Default() *http.Client {
	return buildClient(defaultTransport(), DefaultTimeout)
}

// WithTransport is like Default but sends requests through base, e.g. an httptest server's transport.
func WithTransport(base http.RoundTripper) *http.Client {
	return buildClient(base, DefaultTimeout)
}

func buildClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: defaultWrap(base),
		Timeout:   timeout,
	}
}

func defaultTransport() *http.Transport {
	baseRT := http.DefaultTransport.(*http.Transport).Clone()
	baseRT.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	net.SetTransportDefaults(baseRT)
	baseRT.MaxIdleConnsPerHost = 25
	return baseRT
}

func defaultWrap(rt http.RoundTripper) http.RoundTripper {
	rt = safeDebugWrappers(rt, plog.New().WithName("http"), func() bool { return plog.Enabled(plog.LevelTrace) })
	rt = userAgentWrapper(rt, pversion.UserAgent())
	return rt
}

func userAgentWrapper(rt http.RoundTripper, userAgent string) http.RoundTripper {
	return roundtripper.WrapFunc(rt, func(req *http.Request) (*http.Response, error) {
		if len(req.Header.Get("User-Agent")) != 0 {
			return rt.RoundTrip(req)
		}
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
		return rt.RoundTrip(req)
	})
}
