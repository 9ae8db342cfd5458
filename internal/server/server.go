// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package server serves the bot's messaging endpoint, health checks and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.certsso.dev/internal/bot"
	"go.certsso.dev/internal/httputil/httperr"
	"go.certsso.dev/internal/plog"
)

const (
	maxActivityBytes = 64 << 10

	readHeaderTimeout   = 10 * time.Second
	shutdownGracePeriod = time.Minute
)

// MessageHandler answers a chat message. The sender's delegated token, if any, is on the context
// and can be read with bot.ContextUserTokenProvider.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg bot.Message) bot.Reply
}

// NewHandler routes
//
//	POST /api/messages  chat activities, with the sender's token in "Authorization: Bearer"
//	GET  /healthz       liveness
//	GET  /metrics       the metrics in gatherer
func NewHandler(messages MessageHandler, gatherer prometheus.Gatherer, logger plog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/messages", httperr.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		return handleMessage(w, r, messages)
	}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return withAccessLog(mux, logger)
}

func handleMessage(w http.ResponseWriter, r *http.Request, messages MessageHandler) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return httperr.New(http.StatusUnsupportedMediaType, "expected application/json")
	}

	var msg bot.Message
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes))
	if err := decoder.Decode(&msg); err != nil {
		return httperr.Wrap(http.StatusBadRequest, "could not decode activity", err)
	}

	if msg.Type != bot.ActivityTypeMessage {
		// conversation updates, typing indicators and the like need no answer
		w.WriteHeader(http.StatusAccepted)
		return nil
	}

	ctx := r.Context()
	if token, ok := bearerToken(r); ok {
		ctx = bot.WithUserToken(ctx, token)
	}

	body, err := json.Marshal(messages.HandleMessage(ctx, msg))
	if err != nil {
		return fmt.Errorf("could not encode reply: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, len(token) > 0
}

func withAccessLog(handler http.Handler, logger plog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		logger.Debug("handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration", m.Duration,
			"bytes", m.Written,
		)
	})
}

// Run serves handler on l until ctx is cancelled, then waits for active requests to finish.
func Run(ctx context.Context, l net.Listener, handler http.Handler, logger plog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	served := make(chan error, 1)
	go func() {
		served <- server.Serve(l)
	}()
	logger.Info("listening", "address", l.Addr().String())

	select {
	case err := <-served:
		return fmt.Errorf("server exited: %w", err)
	case <-ctx.Done():
		logger.Debug("server context cancelled", "err", ctx.Err())
	}

	// allow up to a minute grace period for active connections to return to idle
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}
