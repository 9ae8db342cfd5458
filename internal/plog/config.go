// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/wait"

	"go.certsso.dev/internal/constable"
)

type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
	FormatCLI  LogFormat = "cli" // set by the CLI subcommands, never accepted from a config file

	errInvalidLogLevel  = constable.Error("invalid log level, valid choices are the empty string, info, debug, trace and all")
	errInvalidLogFormat = constable.Error("invalid log format, valid choices are the empty string, 'json' and 'text'")

	flushInterval = time.Minute
)

var _ json.Unmarshaler = (*LogFormat)(nil)

func (l *LogFormat) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errInvalidLogFormat
	}
	switch LogFormat(s) {
	case "", FormatJSON:
		*l = FormatJSON
	case FormatText:
		*l = FormatText
	default:
		return errInvalidLogFormat
	}
	return nil
}

// LogSpec is the "log" stanza of the configuration file.
type LogSpec struct {
	Level  LogLevel  `json:"level,omitempty"`
	Format LogFormat `json:"format,omitempty"`
}

// ValidateAndSetLogLevelAndFormatGlobally replaces the global logger. For every format but FormatCLI,
// buffered logs are flushed periodically until ctx is done.
func ValidateAndSetLogLevelAndFormatGlobally(ctx context.Context, spec LogSpec) error {
	klogLevel := klogLevelForPlogLevel(spec.Level)
	if klogLevel < 0 {
		return errInvalidLogLevel
	}
	encoding, err := encodingFor(spec.Format)
	if err != nil {
		return err
	}

	globalLevel.SetLevel(zapcore.Level(-klogLevel)) // klog levels are inverted when zap handles them

	log, flush, err := newLogr(encoding, klogLevel, sinkConfig{})
	if err != nil {
		return err
	}
	setGlobalLoggers(log, flush)

	// the CLI may reconfigure more than once and exits quickly, so it gets no background flushing
	if spec.Format != FormatCLI {
		go wait.UntilWithContext(ctx, func(context.Context) { flush() }, flushInterval)
		context.AfterFunc(ctx, flush)
	}

	return nil
}

func encodingFor(format LogFormat) (string, error) {
	switch format {
	case "", FormatJSON:
		return "json", nil
	case FormatCLI:
		return "console", nil
	case FormatText:
		return "text", nil
	default:
		return "", errInvalidLogFormat
	}
}
