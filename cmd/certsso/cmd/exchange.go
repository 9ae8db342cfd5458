// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/config/certsso"
	"go.certsso.dev/internal/obo"
	"go.certsso.dev/internal/plog"
)

const (
	defaultUserTokenEnv = "CERTSSO_USER_TOKEN"

	maxPipedTokenBytes = 64 << 10
)

type exchangeDeps struct {
	fs               afero.Fs
	getenv           func(key string) string
	stdin            io.Reader
	stdinIsTerminal  func() bool
	readSecret       func() (string, error)
	configureLogging func(ctx context.Context, spec plog.LogSpec) error
	newExchanger     func(ctx context.Context, cfg *certsso.Config, fs afero.Fs, getenv func(string) string) (obo.TokenExchanger, error)
}

func exchangeRealDeps() exchangeDeps {
	return exchangeDeps{
		fs:              afero.NewOsFs(),
		getenv:          os.Getenv,
		stdin:           os.Stdin,
		stdinIsTerminal: func() bool { return term.IsTerminal(stdin()) },
		readSecret: func() (string, error) {
			secret, err := term.ReadPassword(stdin())
			return string(secret), err
		},
		configureLogging: plog.ValidateAndSetLogLevelAndFormatGlobally,
		newExchanger: func(ctx context.Context, cfg *certsso.Config, fs afero.Fs, getenv func(string) string) (obo.TokenExchanger, error) {
			exchanger, err := newExchanger(ctx, cfg, fs, getenv, nil)
			if err != nil {
				return nil, err
			}
			return exchanger, nil
		},
	}
}

func stdin() int { return int(os.Stdin.Fd()) } //nolint:gosec // this is an int, cast to uintptr, cast back to int

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newExchangeCommand(exchangeRealDeps()))
}

type exchangeFlags struct {
	configPath   string
	userTokenEnv string
	output       outputFormat
	timeout      time.Duration
}

func newExchangeCommand(deps exchangeDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:  cobra.NoArgs, // do not accept positional arguments for this command
		Use:   "exchange",
		Short: "Exchange a user access token for a downstream token once and print the result",
		Long: "Exchange a user access token for a downstream token once and print the result.\n\n" +
			"The user token is read from the environment variable named by --token-env, " +
			"or else from a hidden prompt when stdin is a terminal, or else from stdin.",
		SilenceUsage: true, // do not print usage message when commands fail
	}
	flags := &exchangeFlags{output: outputText}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path to the certsso configuration file (default: configure from the environment only)")
	f.StringVar(&flags.userTokenEnv, "token-env", defaultUserTokenEnv, "Environment variable holding the user access token")
	f.VarP(&flags.output, "output", "o", "Output format (e.g., 'text', 'json')")
	f.DurationVar(&flags.timeout, "timeout", time.Minute, "Timeout for the whole exchange, including downloading the certificate")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runExchange(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), deps, flags)
	}

	return cmd
}

func runExchange(ctx context.Context, stdout, stderr io.Writer, deps exchangeDeps, flags *exchangeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := certsso.FromPath(deps.fs, flags.configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	if err := deps.configureLogging(ctx, plog.LogSpec{Level: cfg.Log.Level, Format: plog.FormatCLI}); err != nil {
		return fmt.Errorf("could not configure logging: %w", err)
	}

	userToken, err := readUserToken(deps, flags.userTokenEnv, stderr)
	if err != nil {
		return err
	}

	exchanger, err := deps.newExchanger(ctx, cfg, deps.fs, deps.getenv)
	if err != nil {
		return err
	}

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	result, err := exchanger.Exchange(ctx, userToken)
	if err != nil {
		writeExchangeFailure(stderr, err)
		return err
	}

	if err := writeExchangeResult(stdout, flags.output, result); err != nil {
		return fmt.Errorf("could not write output: %w", err)
	}
	return nil
}

func readUserToken(deps exchangeDeps, tokenEnv string, stderr io.Writer) (string, error) {
	if token := strings.TrimSpace(deps.getenv(tokenEnv)); len(token) > 0 {
		return token, nil
	}

	if deps.stdinIsTerminal() {
		if _, err := fmt.Fprint(stderr, "User access token: "); err != nil {
			return "", fmt.Errorf("could not print prompt to stderr: %w", err)
		}
		token, err := deps.readSecret()
		// the terminal swallows the newline that was typed by the user
		_, _ = fmt.Fprint(stderr, "\n")
		if err != nil {
			return "", fmt.Errorf("could not read user token: %w", err)
		}
		return strings.TrimSpace(token), nil
	}

	piped, err := io.ReadAll(io.LimitReader(deps.stdin, maxPipedTokenBytes))
	if err != nil {
		return "", fmt.Errorf("could not read user token from stdin: %w", err)
	}
	token := strings.TrimSpace(string(piped))
	if len(token) == 0 {
		return "", fmt.Errorf("no user token: set $%s or pipe the token on stdin", tokenEnv)
	}
	return token, nil
}

type exchangeOutput struct {
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func writeExchangeResult(out io.Writer, format outputFormat, result *obo.Result) error {
	output := exchangeOutput{
		TokenType:    result.TokenType,
		Scope:        result.Scope,
		ExpiresIn:    result.ExpiresIn,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
	if !result.Expiry.IsZero() {
		output.ExpiresAt = result.Expiry.UTC().Format(time.RFC3339)
	}

	if format == outputJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Token type:    %s\n", output.TokenType)
	if len(output.Scope) > 0 {
		fmt.Fprintf(&b, "Scope:         %s\n", output.Scope)
	}
	if len(output.ExpiresAt) > 0 {
		fmt.Fprintf(&b, "Expires at:    %s (in %ds)\n", output.ExpiresAt, output.ExpiresIn)
	}
	fmt.Fprintf(&b, "Access token:  %s\n", output.AccessToken)
	if len(output.RefreshToken) > 0 {
		fmt.Fprintf(&b, "Refresh token: %s\n", output.RefreshToken)
	}
	_, err := io.WriteString(out, b.String())
	return err
}

// writeExchangeFailure prints what an operator needs to look the failure up in the identity provider's logs.
func writeExchangeFailure(out io.Writer, err error) {
	var exchangeErr *autherr.ExchangeFailedError
	if !errors.As(err, &exchangeErr) {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The token endpoint rejected the exchange with status %d.\n", exchangeErr.StatusCode)
	if len(exchangeErr.ErrorCode) > 0 {
		fmt.Fprintf(&b, "  error:          %s\n", exchangeErr.ErrorCode)
	}
	if len(exchangeErr.SubError) > 0 {
		fmt.Fprintf(&b, "  suberror:       %s\n", exchangeErr.SubError)
	}
	if len(exchangeErr.ErrorCodes) > 0 {
		fmt.Fprintf(&b, "  error codes:    %v\n", exchangeErr.ErrorCodes)
	}
	if len(exchangeErr.CorrelationID) > 0 {
		fmt.Fprintf(&b, "  correlation ID: %s\n", exchangeErr.CorrelationID)
	}
	if len(exchangeErr.TraceID) > 0 {
		fmt.Fprintf(&b, "  trace ID:       %s\n", exchangeErr.TraceID)
	}
	switch {
	case autherr.IsConsentRequired(err):
		b.WriteString("The application needs user or admin consent for the requested scope.\n")
	case autherr.IsInteractionRequired(err):
		b.WriteString("The user must sign in again to get a fresh access token.\n")
	}
	_, _ = io.WriteString(out, b.String())
}
