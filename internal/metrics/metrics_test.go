// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.ObserveCacheRequest(true)
	m.ObserveCacheRequest(true)
	m.ObserveCacheRequest(false)
	m.ObserveCredentialFetch(nil)
	m.ObserveCredentialFetch(errors.New("boom"))
	m.ObserveCredentialFetch(errors.New("boom"))
	m.ObserveExchange(ReasonNone, 150*time.Millisecond)
	m.ObserveExchange("exchange_failed", 2*time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues(ResultHit)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues(ResultMiss)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.credentialFetches.WithLabelValues(ResultSuccess)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.credentialFetches.WithLabelValues(ResultFailure)))

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(heredoc.Doc(`
		# HELP certsso_token_exchange_total On-behalf-of token exchanges by result and failure reason
		# TYPE certsso_token_exchange_total counter
		certsso_token_exchange_total{reason="",result="success"} 1
		certsso_token_exchange_total{reason="exchange_failed",result="failure"} 1
	`)), "certsso_token_exchange_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var sampleCount uint64
	for _, family := range families {
		if family.GetName() == "certsso_token_exchange_duration_seconds" {
			require.Len(t, family.GetMetric(), 1)
			sampleCount = family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	require.Equal(t, uint64(2), sampleCount)
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveCacheRequest(true)
		m.ObserveCredentialFetch(nil)
		m.ObserveExchange(ReasonNone, time.Second)
	})
}

func TestNilRegisterer(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.ObserveCacheRequest(false)
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues(ResultMiss)))
}
