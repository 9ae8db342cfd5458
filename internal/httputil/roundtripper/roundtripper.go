// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package roundtripper has helpers for composing http.RoundTrippers.
package roundtripper

import (
	"net/http"

	"k8s.io/apimachinery/pkg/util/net"
)

var _ http.RoundTripper = Func(nil)

type Func func(*http.Request) (*http.Response, error)

func (f Func) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// wrapped can be unwrapped by net.TLSClientConfig.
var _ net.RoundTripperWrapper = &wrapped{}

type wrapped struct {
	delegate http.RoundTripper
	f        Func
}

func (w *wrapped) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.f(req)
}

func (w *wrapped) WrappedRoundTripper() http.RoundTripper {
	return w.delegate
}

// WrapFunc returns a RoundTripper that calls f and reports delegate as the RoundTripper it wraps.
func WrapFunc(delegate http.RoundTripper, f Func) http.RoundTripper {
	return &wrapped{delegate: delegate, f: f}
}
