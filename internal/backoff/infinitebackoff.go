// Copyright 2023-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// InfiniteBackoff grows from Duration by Factor up to MaxDuration and never gives up on its own.
// Combine it with Retry to bound the number of attempts.
type InfiniteBackoff struct {
	// The initial duration.
	Duration time.Duration

	// Factor is used to scale up the Duration until it reaches MaxDuration.
	// Should be at least 1.0.
	Factor float64

	// A limit on step size. Once reached, this value will be used as the interval.
	MaxDuration time.Duration

	// Jitter adds up to Jitter*step of random extra wait to every step. Zero disables it.
	Jitter float64

	hasStepped bool
}

// Step returns the next duration in the backoff sequence.
// It modifies the receiver and is not thread-safe.
func (b *InfiniteBackoff) Step() time.Duration {
	if !b.hasStepped {
		b.hasStepped = true
		return b.jitter(b.Duration)
	}

	b.Factor = math.Max(1, b.Factor)

	// Grow by the factor (which could be 1), but stop growing once we exceed the max duration.
	next := time.Duration(float64(b.Duration) * b.Factor)
	if b.MaxDuration > 0 && next > b.MaxDuration {
		next = b.MaxDuration
	}

	b.Duration = next
	return b.jitter(next)
}

func (b *InfiniteBackoff) jitter(d time.Duration) time.Duration {
	if b.Jitter <= 0 || d <= 0 {
		return d
	}
	return wait.Jitter(d, b.Jitter)
}
