// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"go.certsso.dev/internal/bot"
	"go.certsso.dev/internal/config/certsso"
	"go.certsso.dev/internal/constable"
	"go.certsso.dev/internal/graph"
	"go.certsso.dev/internal/metrics"
	"go.certsso.dev/internal/net/phttp"
	"go.certsso.dev/internal/plog"
	"go.certsso.dev/internal/pversion"
	"go.certsso.dev/internal/server"
)

const errHTTPDisabled = constable.Error("the http endpoint is disabled, there is nothing to serve")

type serveDeps struct {
	fs               afero.Fs
	getenv           func(key string) string
	signalCtx        func() context.Context
	configureLogging func(ctx context.Context, spec plog.LogSpec) error
	listen           func(network, address string) (net.Listener, error)
}

func serveRealDeps() serveDeps {
	return serveDeps{
		fs:               afero.NewOsFs(),
		getenv:           os.Getenv,
		signalCtx:        signalCtx,
		configureLogging: plog.ValidateAndSetLogLevelAndFormatGlobally,
		listen:           net.Listen,
	}
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newServeCommand(serveRealDeps()))
}

func newServeCommand(deps serveDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.NoArgs, // do not accept positional arguments for this command
		Use:          "serve",
		Short:        "Serve the bot messaging endpoint, health checks and metrics",
		SilenceUsage: true, // do not print usage message when commands fail
	}

	var configPath string
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the certsso configuration file (default: configure from the environment only)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runServe(deps, configPath)
	}

	return cmd
}

func runServe(deps serveDeps, configPath string) error {
	defer plog.Setup()()

	ctx := deps.signalCtx()

	cfg, err := certsso.FromPath(deps.fs, configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	if err := deps.configureLogging(ctx, cfg.Log); err != nil {
		return fmt.Errorf("could not configure logging: %w", err)
	}

	plog.Always("Running certsso",
		"user-agent", pversion.UserAgent(),
		"version", versionInfo(pversion.Get()),
	)

	endpoint := cfg.Endpoints.HTTP
	if endpoint.Network == certsso.NetworkDisabled {
		return errHTTPDisabled
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	exchanger, err := newExchanger(ctx, cfg, deps.fs, deps.getenv, m)
	if err != nil {
		return err
	}

	graphs, err := graph.NewFactory(cfg.Bot.GraphBaseURL, phttp.Default())
	if err != nil {
		return err
	}

	messages := bot.New(
		bot.Config{Enabled: cfg.Bot.Enabled, MaxFetchAttempts: cfg.Bot.MaxFetchAttempts},
		exchanger,
		bot.ContextUserTokenProvider{},
		func(accessToken string) bot.Graph { return graphs.Client(accessToken) },
	)

	l, err := deps.listen(endpoint.Network, endpoint.Address)
	if err != nil {
		return fmt.Errorf("cannot create http listener with network %q and address %q: %w", endpoint.Network, endpoint.Address, err)
	}
	defer func() { _ = l.Close() }()

	logger := plog.New().WithName("server")
	return server.Run(ctx, l, server.NewHandler(messages, registry, logger), logger)
}

func signalCtx() context.Context {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()

		s := <-signalCh
		plog.Debug("saw signal", "signal", s)
	}()

	return ctx
}
