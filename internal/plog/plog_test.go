// Copyright 2022-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line), "line was %q", scanner.Text())
		out = append(out, line)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestPlog(t *testing.T) {
	tests := []struct {
		name      string
		run       func(Logger)
		wantLevel string
		wantMsg   string
		wantKeys  map[string]any
	}{
		{
			name:      "error",
			run:       func(l Logger) { l.Error("exchange failed", errors.New("invalid_grant"), "status", 400) },
			wantLevel: "error",
			wantMsg:   "exchange failed",
			wantKeys:  map[string]any{"error": "invalid_grant", "status": float64(400)},
		},
		{
			name:      "warning",
			run:       func(l Logger) { l.Warning("certificate close to expiry", "name", "sso-cert") },
			wantLevel: "info",
			wantMsg:   "certificate close to expiry",
			wantKeys:  map[string]any{"warning": true, "name": "sso-cert"},
		},
		{
			name:      "warning with error",
			run:       func(l Logger) { l.WarningErr("could not fetch", errors.New("forbidden")) },
			wantLevel: "info",
			wantMsg:   "could not fetch",
			wantKeys:  map[string]any{"warning": true, "error": "forbidden"},
		},
		{
			name:      "info",
			run:       func(l Logger) { l.Info("exchanging token", "tenant", "contoso") },
			wantLevel: "info",
			wantMsg:   "exchanging token",
			wantKeys:  map[string]any{"tenant": "contoso"},
		},
		{
			name:      "info with error",
			run:       func(l Logger) { l.InfoErr("provider rejected grant", errors.New("consent_required")) },
			wantLevel: "info",
			wantMsg:   "provider rejected grant",
			wantKeys:  map[string]any{"error": "consent_required"},
		},
		{
			name:      "debug",
			run:       func(l Logger) { l.Debug("using cached certificate") },
			wantLevel: "debug",
			wantMsg:   "using cached certificate",
		},
		{
			name:      "debug with error",
			run:       func(l Logger) { l.DebugErr("decode failed", errors.New("bad pem")) },
			wantLevel: "debug",
			wantMsg:   "decode failed",
			wantKeys:  map[string]any{"error": "bad pem"},
		},
		{
			name:      "trace",
			run:       func(l Logger) { l.Trace("token exchange finished", "duration", "1s") },
			wantLevel: "trace",
			wantMsg:   "token exchange finished",
			wantKeys:  map[string]any{"duration": "1s"},
		},
		{
			name:      "trace with error",
			run:       func(l Logger) { l.TraceErr("round trip failed", errors.New("eof")) },
			wantLevel: "trace",
			wantMsg:   "round trip failed",
			wantKeys:  map[string]any{"error": "eof"},
		},
		{
			name:      "all",
			run:       func(l Logger) { l.All("token endpoint form", "form", "client_id=abc123") },
			wantLevel: "all",
			wantMsg:   "token endpoint form",
			wantKeys:  map[string]any{"form": "client_id=abc123"},
		},
		{
			name:      "always",
			run:       func(l Logger) { l.Always("starting server") },
			wantLevel: "info",
			wantMsg:   "starting server",
		},
		{
			name:      "with values and name",
			run:       func(l Logger) { l.WithName("credcache").WithValues("name", "sso-cert").Info("fetched") },
			wantLevel: "info",
			wantMsg:   "fetched",
			wantKeys:  map[string]any{"name": "sso-cert", "logger": "credcache"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, buf := TestLogger(t)
			tt.run(l)

			lines := decodeLines(t, buf)
			require.Len(t, lines, 1)
			line := lines[0]

			require.Equal(t, tt.wantLevel, line["level"])
			require.Equal(t, tt.wantMsg, line["message"])
			require.Equal(t, "2099-08-08T13:57:36.123456Z", line["timestamp"])
			require.True(t, strings.HasPrefix(line["caller"].(string), "plog/plog_test.go:<line>$plog.TestPlog"),
				"caller was %q", line["caller"])
			for k, v := range tt.wantKeys {
				require.Equal(t, v, line[k], "key %q", k)
			}
		})
	}
}

func TestValidateAndSetLogLevelAndFormatGlobally(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, ValidateAndSetLogLevelAndFormatGlobally(context.Background(), LogSpec{Format: FormatCLI}))
	})

	err := ValidateAndSetLogLevelAndFormatGlobally(context.Background(), LogSpec{Level: "panda"})
	require.EqualError(t, err, "invalid log level, valid choices are the empty string, info, debug, trace and all")

	err = ValidateAndSetLogLevelAndFormatGlobally(context.Background(), LogSpec{Format: "yaml"})
	require.EqualError(t, err, "invalid log format, valid choices are the empty string, 'json' and 'text'")

	require.NoError(t, ValidateAndSetLogLevelAndFormatGlobally(context.Background(), LogSpec{Level: LevelDebug, Format: FormatCLI}))
	require.True(t, Enabled(LevelWarning))
	require.True(t, Enabled(LevelInfo))
	require.True(t, Enabled(LevelDebug))
	require.False(t, Enabled(LevelTrace))
	require.False(t, Enabled(LevelAll))
	require.False(t, Enabled("panda"))

	require.NoError(t, ValidateAndSetLogLevelAndFormatGlobally(context.Background(), LogSpec{Level: LevelAll, Format: FormatCLI}))
	require.True(t, Enabled(LevelAll))
}

func TestLogFormatUnmarshalJSON(t *testing.T) {
	var spec LogSpec
	require.NoError(t, json.Unmarshal([]byte(`{"level":"trace","format":"text"}`), &spec))
	require.Equal(t, LogSpec{Level: LevelTrace, Format: FormatText}, spec)

	require.NoError(t, json.Unmarshal([]byte(`{"format":""}`), &spec))
	require.Equal(t, FormatJSON, spec.Format)

	require.EqualError(t, json.Unmarshal([]byte(`{"format":"cli"}`), &spec), errInvalidLogFormat.Error())
}

func TestSanitizeParams(t *testing.T) {
	params := url.Values{
		"grant_type":       []string{"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"client_id":        []string{"abc123"},
		"assertion":        []string{"u-token"},
		"client_assertion": []string{"header.payload.signature"},
	}

	got := SanitizeParams(params, sets.New("grant_type", "client_id"))
	require.Equal(t,
		"assertion=redacted&client_assertion=redacted&client_id=abc123&grant_type=urn%3Aietf%3Aparams%3Aoauth%3Agrant-type%3Ajwt-bearer",
		got)
	require.Empty(t, SanitizeParams(nil, sets.New[string]()))
}

func TestConsoleLoggerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	TestConsoleLogger(t, &buf).Info("exchanged token", "scope", "User.Read")

	out := buf.String()
	require.Contains(t, out, "  plog/plog_test.go:<line>  exchanged token  ")
	require.Contains(t, out, `"scope": "User.Read"`)
	require.NotContains(t, out, "$plog.")
	require.True(t, strings.HasSuffix(out, "\n"))
}

func TestEncodingFor(t *testing.T) {
	t.Parallel()

	for format, want := range map[LogFormat]string{"": "json", FormatJSON: "json", FormatText: "text", FormatCLI: "console"} {
		got, err := encodingFor(format)
		require.NoError(t, err)
		require.Equal(t, want, got, "format %q", format)
	}
	_, err := encodingFor("yaml")
	require.ErrorIs(t, err, errInvalidLogFormat)
}
