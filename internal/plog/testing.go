// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestLogger returns a Logger which writes JSON lines into the returned buffer.
// All levels are enabled, the timestamp is frozen and stack traces are omitted.
func TestLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	return testLogger(t, &buf, "json"), &buf
}

// TestConsoleLogger is TestLogger with the human readable encoding used by the CLI.
func TestConsoleLogger(t *testing.T, w io.Writer) Logger {
	t.Helper()

	return testLogger(t, w, "console")
}

func testLogger(t *testing.T, w io.Writer, encoding string) Logger {
	t.Helper()

	now, err := time.Parse(time.RFC3339Nano, "2099-08-08T13:57:36.123456789Z")
	require.NoError(t, err)

	zl, _, err := newLogr(encoding, 0, sinkConfig{
		w:     w,
		level: zap.LevelEnablerFunc(func(zapcore.Level) bool { return true }),
		stack: zap.LevelEnablerFunc(func(zapcore.Level) bool { return false }),
		clock: frozenClock(now),
		// line numbers churn with every edit, so tests only see the file and function
		caller: func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			trimmed := caller.TrimmedPath()
			if idx := strings.LastIndexByte(trimmed, ':'); idx != -1 {
				trimmed = trimmed[:idx+1] + "<line>"
			}
			if encoding != "console" {
				trimmed += funcSuffix(caller)
			}
			enc.AppendString(trimmed)
		},
	})
	require.NoError(t, err)

	return New().withLogrMod(func(l logr.Logger) logr.Logger {
		return l.WithSink(zl.GetSink())
	})
}

var _ zapcore.Clock = frozenClock{}

type frozenClock time.Time

func (c frozenClock) Now() time.Time {
	return time.Time(c)
}

func (c frozenClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
