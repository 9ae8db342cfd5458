// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"
	"k8s.io/klog/v2/textlogger"
)

// sinkConfig controls where a logger writes and what it emits.
// Unset fields fall back to stderr, the global level, the wall clock and the production encoders.
type sinkConfig struct {
	w      io.Writer
	level  zapcore.LevelEnabler
	stack  zapcore.LevelEnabler
	clock  zapcore.Clock
	caller zapcore.CallerEncoder
}

func newLogr(encoding string, klogLevel int8, sc sinkConfig) (logr.Logger, func(), error) {
	var w io.Writer = os.Stderr
	if sc.w != nil {
		w = sc.w
	}
	// every logger shares one writer across goroutines
	ws := zapcore.Lock(zapcore.AddSync(w))
	flush := func() { _ = ws.Sync() }

	if encoding == "text" {
		return textlogger.NewLogger(textlogger.NewConfig(textlogger.Verbosity(int(klogLevel)), textlogger.Output(ws))), flush, nil
	}

	level := sc.level
	if level == nil {
		level = globalLevel
	}
	stack := sc.stack
	if stack == nil {
		stack = stackWhenTracing
	}

	core := zapcore.NewCore(newEncoder(encoding, sc.caller), ws, level)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(stack), zap.ErrorOutput(ws)}
	if sc.clock != nil {
		opts = append(opts, zap.WithClock(sc.clock))
	}
	log := zap.New(core, opts...)

	return zapr.NewLogger(log), func() { _ = log.Sync() }, nil
}

// stackWhenTracing attaches a stack to error logs only while the global level is trace or all.
// A rejected token exchange is an expected error and a stack for every one is too noisy otherwise.
var stackWhenTracing = zap.LevelEnablerFunc(func(l zapcore.Level) bool { //nolint:gochecknoglobals
	return l >= zapcore.ErrorLevel && globalLevel.Enabled(zapcore.Level(-KlogLevelTrace))
})

func newEncoder(encoding string, caller zapcore.CallerEncoder) zapcore.Encoder {
	config := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "timestamp",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey, // included in caller
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(metav1.RFC3339Micro), // same precision as klog
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   callerEncoder,
	}
	if caller != nil {
		config.EncodeCaller = caller
	}

	if encoding != "console" {
		return zapcore.NewJSONEncoder(config)
	}

	config.LevelKey = zapcore.OmitKey
	config.EncodeTime = humanTimeEncoder
	config.EncodeDuration = humanDurationEncoder
	config.ConsoleSeparator = "  "
	if caller == nil {
		config.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return zapcore.NewConsoleEncoder(config)
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	plogLevel := zapLevelToPlogLevel(l)

	if len(plogLevel) == 0 {
		zapcore.LowercaseLevelEncoder(l, enc)
		return
	}

	enc.AppendString(string(plogLevel))
}

func zapLevelToPlogLevel(l zapcore.Level) LogLevel {
	if l > 0 {
		// warn, error and above come straight from zap
		return LogLevel(l.String())
	}

	// klog levels are inverted when zap handles them
	switch {
	case -l >= klogLevelAll:
		return LevelAll
	case -l >= KlogLevelTrace:
		return LevelTrace
	case -l >= KlogLevelDebug:
		return LevelDebug
	case -l >= KlogLevelInfo:
		return LevelInfo
	default:
		return "" // warnings are logged at level zero with a "warning" key
	}
}

func callerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(caller.String() + funcSuffix(caller))
}

func funcSuffix(caller zapcore.EntryCaller) string {
	funcName := caller.Function
	if idx := strings.LastIndexByte(funcName, '/'); idx != -1 {
		funcName = funcName[idx+1:]
	}
	return "$" + funcName
}

func humanDurationEncoder(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(duration.HumanDuration(d))
}

func humanTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Local().Format(time.RFC1123))
}
