// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"k8s.io/klog/v2"
)

// These are set once at init and again after the config is parsed, never concurrently with logging.
//
//nolint:gochecknoglobals
var (
	globalLevel  = zap.NewAtomicLevelAt(0) // only the "always" logs until configured
	globalLogger logr.Logger
	globalFlush  func()
)

//nolint:gochecknoinits
func init() {
	log, flush, err := newLogr("json", 0, sinkConfig{})
	if err != nil {
		panic(err) // default logging config must always work
	}
	setGlobalLoggers(log, flush)
}

// Setup returns a function which flushes any buffered logs.  Call it right before the process exits.
func Setup() func() {
	return func() {
		klog.Flush()
		globalFlush()
	}
}

func setGlobalLoggers(log logr.Logger, flush func()) {
	// a contextual logger does its own level based enablement checks, which is true for all of our loggers
	klog.SetLoggerWithOptions(log, klog.ContextualLogger(true), klog.FlushLogger(flush))
	globalLogger = log
	globalFlush = flush
}
