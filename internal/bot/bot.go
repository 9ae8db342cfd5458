// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package bot answers chat commands with the user's Microsoft 365 data, using a Graph token
// obtained through the on-behalf-of exchange.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/backoff"
	"go.certsso.dev/internal/graph"
	"go.certsso.dev/internal/obo"
	"go.certsso.dev/internal/plog"
)

const (
	DefaultMaxFetchAttempts = 3

	ActivityTypeMessage = "message"

	recentFilesCount = 10

	notEnabledText = "Certificate-based authentication is not enabled. " +
		"Set bot.enabled=true in the configuration to use this feature."
	unauthenticatedText = "Unable to authenticate. Please try again."
	apologyPrefix       = "Sorry, I encountered an error: "
	consentHint         = "\n\nThis app has not been granted access to your Microsoft 365 data yet. " +
		"Ask an administrator to grant consent, then try again."
	signInHint = "\n\nPlease sign in again, then retry."

	helpText = "**Available Commands:**\n\n" +
		"• `files` or `my files` - Show your recent OneDrive files\n" +
		"• `profile` or `my profile` - Show your user profile\n" +
		"• `help` - Show this help message\n\n" +
		"This bot uses **certificate-based authentication** for secure access to your Microsoft 365 data."
)

type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message is an incoming chat activity.
type Message struct {
	Type string  `json:"type"`
	Text string  `json:"text"`
	From Account `json:"from"`
}

type Reply struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UserTokenProvider returns the delegated token of the user who sent msg, or an empty string when there is none.
type UserTokenProvider interface {
	UserToken(ctx context.Context, msg Message) (string, error)
}

// Graph is the part of the Graph API the commands use.
type Graph interface {
	Me(ctx context.Context) (*graph.User, error)
	RecentFiles(ctx context.Context, top int) ([]graph.DriveItem, error)
}

type Config struct {
	// Enabled turns on the commands which need certificate-based token exchange.
	Enabled bool
	// MaxFetchAttempts bounds how often an exchange is attempted when the signing certificate
	// could not be fetched. Defaults to DefaultMaxFetchAttempts.
	MaxFetchAttempts int
}

type Handler struct {
	config     Config
	exchanger  obo.TokenExchanger
	tokens     UserTokenProvider
	newGraph   func(accessToken string) Graph
	newBackoff func() backoff.Stepper
	location   *time.Location
	logger     plog.Logger
}

type Opt func(*Handler)

func WithLogger(logger plog.Logger) Opt {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithBackoff sets the waits between exchange attempts. A new Stepper is used for every message.
func WithBackoff(newBackoff func() backoff.Stepper) Opt {
	return func(h *Handler) {
		h.newBackoff = newBackoff
	}
}

// WithLocation sets the time zone used to render timestamps. Defaults to time.Local.
func WithLocation(location *time.Location) Opt {
	return func(h *Handler) {
		h.location = location
	}
}

func New(cfg Config, exchanger obo.TokenExchanger, tokens UserTokenProvider, newGraph func(accessToken string) Graph, opts ...Opt) *Handler {
	if cfg.MaxFetchAttempts <= 0 {
		cfg.MaxFetchAttempts = DefaultMaxFetchAttempts
	}
	h := &Handler{
		config:    cfg,
		exchanger: exchanger,
		tokens:    tokens,
		newGraph:  newGraph,
		newBackoff: func() backoff.Stepper {
			return &backoff.InfiniteBackoff{
				Duration:    200 * time.Millisecond,
				Factor:      2,
				MaxDuration: 2 * time.Second,
				Jitter:      0.1,
			}
		},
		location: time.Local,
		logger:   plog.New().WithName("bot"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleMessage runs the command in msg and returns the text to send back. It never fails:
// errors are reported to the user in the reply and logged.
func (h *Handler) HandleMessage(ctx context.Context, msg Message) Reply {
	command := strings.ToLower(strings.TrimSpace(msg.Text))
	h.logger.Debug("received message", "from", msg.From.ID, "command", command)

	if !h.config.Enabled {
		return reply(notEnabledText)
	}

	switch command {
	case "files", "show files", "my files":
		return reply(h.showFiles(ctx, msg))
	case "profile", "my profile":
		return reply(h.showProfile(ctx, msg))
	default:
		return reply(helpText)
	}
}

func reply(text string) Reply {
	return Reply{Type: ActivityTypeMessage, Text: text}
}

func (h *Handler) showFiles(ctx context.Context, msg Message) string {
	client, failure := h.graphFor(ctx, msg)
	if client == nil {
		return failure
	}

	items, err := client.RecentFiles(ctx, recentFilesCount)
	if err != nil {
		h.logger.Error("could not list recent files", err, "from", msg.From.ID)
		return apology(err)
	}

	var b strings.Builder
	b.WriteString("📁 **Your recent OneDrive files:**\n\n")
	if len(items) == 0 {
		b.WriteString("No recent files found.")
		return b.String()
	}
	for _, item := range items {
		fmt.Fprintf(&b, "• **%s**\n", item.Name)
		fmt.Fprintf(&b, "  Size: %s, Modified: %s\n", FormatFileSize(item.Size), h.formatTime(item.LastModified))
		if len(item.WebURL) > 0 {
			fmt.Fprintf(&b, "  [Open in browser](%s)\n", item.WebURL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (h *Handler) showProfile(ctx context.Context, msg Message) string {
	client, failure := h.graphFor(ctx, msg)
	if client == nil {
		return failure
	}

	user, err := client.Me(ctx)
	if err != nil {
		h.logger.Error("could not get user profile", err, "from", msg.From.ID)
		return apology(err)
	}

	email := user.Mail
	if len(email) == 0 {
		email = user.UserPrincipalName
	}

	var b strings.Builder
	b.WriteString("👤 **Your Profile:**\n\n")
	fmt.Fprintf(&b, "• Name: %s\n", user.DisplayName)
	fmt.Fprintf(&b, "• Email: %s\n", email)
	fmt.Fprintf(&b, "• Job Title: %s\n", orNotSpecified(user.JobTitle))
	fmt.Fprintf(&b, "• Department: %s\n", orNotSpecified(user.Department))
	fmt.Fprintf(&b, "• Office Location: %s\n", orNotSpecified(user.OfficeLocation))
	return b.String()
}

// graphFor exchanges the sender's token for a Graph token. When that fails the returned Graph is nil
// and the string is the reply to send instead.
func (h *Handler) graphFor(ctx context.Context, msg Message) (Graph, string) {
	userToken, err := h.tokens.UserToken(ctx, msg)
	if err != nil {
		h.logger.WarningErr("could not get user token", err, "from", msg.From.ID)
		return nil, unauthenticatedText
	}
	if len(strings.TrimSpace(userToken)) == 0 {
		h.logger.Warning("no user token available", "from", msg.From.ID)
		return nil, unauthenticatedText
	}

	var result *obo.Result
	err = backoff.Retry(ctx, h.config.MaxFetchAttempts, h.newBackoff(), isCredentialFetchError, func(ctx context.Context) error {
		var exchangeErr error
		result, exchangeErr = h.exchanger.Exchange(ctx, userToken)
		return exchangeErr
	})
	if err != nil {
		h.logger.Error("could not exchange user token", err, "from", msg.From.ID)
		return nil, apology(err)
	}

	return h.newGraph(result.AccessToken), ""
}

func isCredentialFetchError(err error) bool {
	var fetchErr *autherr.CredentialFetchError
	return errors.As(err, &fetchErr)
}

func apology(err error) string {
	text := apologyPrefix + err.Error()
	switch {
	case autherr.IsConsentRequired(err):
		text += consentHint
	case autherr.IsInteractionRequired(err):
		text += signInHint
	}
	return text
}

func orNotSpecified(s string) string {
	if len(s) == 0 {
		return "Not specified"
	}
	return s
}

func (h *Handler) formatTime(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.In(h.location).Format("1/2/2006 3:04 PM")
}
