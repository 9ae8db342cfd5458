// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors for the credential cache and the token exchanger.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "certsso"

	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultSuccess = "success"
	ResultFailure = "failure"

	// ReasonNone is the reason label of successful exchanges.
	ReasonNone = ""
)

type Metrics struct {
	cacheRequests     *prometheus.CounterVec
	credentialFetches *prometheus.CounterVec
	exchanges         *prometheus.CounterVec
	exchangeDuration  prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg skips registration,
// which is useful in tests that only read values back with testutil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credential_cache",
				Name:      "requests_total",
				Help:      "Credential cache lookups by result (hit or miss)",
			},
			[]string{"result"},
		),
		credentialFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credential",
				Name:      "fetch_total",
				Help:      "Certificate downloads from the secret store by result",
			},
			[]string{"result"},
		),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token_exchange",
				Name:      "total",
				Help:      "On-behalf-of token exchanges by result and failure reason",
			},
			[]string{"result", "reason"},
		),
		exchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "token_exchange",
				Name:      "duration_seconds",
				Help:      "Time spent on on-behalf-of token exchanges, including any certificate download",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.cacheRequests, m.credentialFetches, m.exchanges, m.exchangeDuration)
	}
	return m
}

func (m *Metrics) ObserveCacheRequest(hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCredentialFetch(err error) {
	if m == nil {
		return
	}
	m.credentialFetches.WithLabelValues(resultFor(err)).Inc()
}

// ObserveExchange records one exchange. reason is ReasonNone for successful exchanges.
func (m *Metrics) ObserveExchange(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if reason != ReasonNone {
		result = ResultFailure
	}
	m.exchanges.WithLabelValues(result, reason).Inc()
	m.exchangeDuration.Observe(duration.Seconds())
}

func resultFor(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
