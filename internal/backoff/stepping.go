// Copyright 2023-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package backoff runs conditions repeatedly with growing waits in between.
package backoff

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

type Stepper interface {
	Step() time.Duration
}

func wrapConditionWithNoPanics(ctx context.Context, condition wait.ConditionWithContextFunc) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if err2, ok := r.(error); ok {
				err = err2
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return condition(ctx)
}

// WithContext runs condition until it returns true or an error, or until ctx is done.
func WithContext(ctx context.Context, backoff Stepper, condition wait.ConditionWithContextFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Allow cancellation during the attempt if the condition function respects the ctx.
		if ok, err := wrapConditionWithNoPanics(ctx, condition); err != nil || ok {
			return err
		}

		timer := time.NewTimer(backoff.Step())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Retry calls fn until it succeeds, until it fails with an error that retryable rejects,
// or until it has been called maxAttempts times. The last error from fn is returned.
// A maxAttempts below one is treated as one.
func Retry(ctx context.Context, maxAttempts int, backoff Stepper, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var (
		attempts int
		pending  error // a retryable failure that has not been returned yet
	)
	err := WithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempts++
		pending = nil
		err := fn(ctx)
		switch {
		case err == nil:
			return true, nil
		case !retryable(err), attempts >= maxAttempts:
			return false, err
		default:
			pending = err
			return false, nil
		}
	})
	if err != nil && pending != nil {
		// cancelled while waiting between attempts
		return fmt.Errorf("%w (last attempt: %w)", err, pending)
	}
	return err
}
