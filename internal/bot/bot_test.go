// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/backoff"
	"go.certsso.dev/internal/graph"
	"go.certsso.dev/internal/mocks/mockobo"
	"go.certsso.dev/internal/obo"
	"go.certsso.dev/internal/plog"
	"go.certsso.dev/internal/secretstore"
)

type fakeGraph struct {
	user  *graph.User
	items []graph.DriveItem
	err   error

	tokens []string
	tops   []int
}

func (f *fakeGraph) Me(_ context.Context) (*graph.User, error) {
	return f.user, f.err
}

func (f *fakeGraph) RecentFiles(_ context.Context, top int) ([]graph.DriveItem, error) {
	f.tops = append(f.tops, top)
	return f.items, f.err
}

func (f *fakeGraph) newGraph(accessToken string) Graph {
	f.tokens = append(f.tokens, accessToken)
	return f
}

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) UserToken(_ context.Context, _ Message) (string, error) {
	return f.token, f.err
}

func message(text string) Message {
	return Message{Type: ActivityTypeMessage, Text: text, From: Account{ID: "29:1abc"}}
}

func fetchError() error {
	return &autherr.CredentialFetchError{Name: "sso-cert", Err: secretstore.ErrForbidden}
}

func TestHandleMessage(t *testing.T) {
	t.Parallel()

	graphResult := &obo.Result{AccessToken: "graph-token", TokenType: "Bearer", ExpiresIn: 3600}
	lastModified := time.Date(2026, time.October, 18, 9, 15, 0, 0, time.UTC)

	tests := []struct {
		name        string
		disabled    bool
		text        string
		tokens      fakeTokens
		graph       *fakeGraph
		expect      func(m *mockobo.MockTokenExchanger)
		want        string
		wantTokens  []string
		wantLogLine string
	}{
		{
			name:     "disabled",
			disabled: true,
			text:     "files",
			want:     "Certificate-based authentication is not enabled. Set bot.enabled=true in the configuration to use this feature.",
		},
		{
			name: "help",
			text: "help",
			want: "**Available Commands:**\n\n" +
				"• `files` or `my files` - Show your recent OneDrive files\n" +
				"• `profile` or `my profile` - Show your user profile\n" +
				"• `help` - Show this help message\n\n" +
				"This bot uses **certificate-based authentication** for secure access to your Microsoft 365 data.",
		},
		{
			name: "unknown command gets help",
			text: "what can you do?",
			want: helpText,
		},
		{
			name: "empty message gets help",
			text: "  ",
			want: helpText,
		},
		{
			name:   "files",
			text:   "  My Files ",
			tokens: fakeTokens{token: "user-token"},
			graph: &fakeGraph{items: []graph.DriveItem{
				{Name: "Budget.xlsx", Size: 23552, LastModified: lastModified, WebURL: "https://contoso-my.sharepoint.com/Budget.xlsx"},
				{Name: "notes.txt", Size: 12},
			}},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(graphResult, nil)
			},
			want: "📁 **Your recent OneDrive files:**\n\n" +
				"• **Budget.xlsx**\n" +
				"  Size: 23 KB, Modified: 10/18/2026 9:15 AM\n" +
				"  [Open in browser](https://contoso-my.sharepoint.com/Budget.xlsx)\n\n" +
				"• **notes.txt**\n" +
				"  Size: 12 B, Modified: Unknown\n\n",
			wantTokens: []string{"graph-token"},
		},
		{
			name:   "no files",
			text:   "show files",
			tokens: fakeTokens{token: "user-token"},
			graph:  &fakeGraph{},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(graphResult, nil)
			},
			want:       "📁 **Your recent OneDrive files:**\n\nNo recent files found.",
			wantTokens: []string{"graph-token"},
		},
		{
			name:   "profile",
			text:   "Profile",
			tokens: fakeTokens{token: "user-token"},
			graph: &fakeGraph{user: &graph.User{
				DisplayName:       "Adele Vance",
				UserPrincipalName: "AdeleV@contoso.com",
				JobTitle:          "Retail Manager",
			}},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(graphResult, nil)
			},
			want: "👤 **Your Profile:**\n\n" +
				"• Name: Adele Vance\n" +
				"• Email: AdeleV@contoso.com\n" +
				"• Job Title: Retail Manager\n" +
				"• Department: Not specified\n" +
				"• Office Location: Not specified\n",
			wantTokens: []string{"graph-token"},
		},
		{
			name:        "no user token",
			text:        "my profile",
			want:        "Unable to authenticate. Please try again.",
			wantLogLine: `"message":"no user token available"`,
		},
		{
			name:        "user token provider fails",
			text:        "my files",
			tokens:      fakeTokens{err: errors.New("token service unavailable")},
			want:        "Unable to authenticate. Please try again.",
			wantLogLine: `"error":"token service unavailable"`,
		},
		{
			name:   "credential fetch failures are retried",
			text:   "files",
			tokens: fakeTokens{token: "user-token"},
			graph:  &fakeGraph{},
			expect: func(m *mockobo.MockTokenExchanger) {
				gomock.InOrder(
					m.EXPECT().Exchange(gomock.Any(), "user-token").Return(nil, fetchError()).Times(2),
					m.EXPECT().Exchange(gomock.Any(), "user-token").Return(graphResult, nil),
				)
			},
			want:       "📁 **Your recent OneDrive files:**\n\nNo recent files found.",
			wantTokens: []string{"graph-token"},
		},
		{
			name:   "credential fetch failures give up",
			text:   "files",
			tokens: fakeTokens{token: "user-token"},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(nil, fetchError()).Times(DefaultMaxFetchAttempts)
			},
			want:        `Sorry, I encountered an error: could not fetch credential "sso-cert" from secret store: access to secret denied`,
			wantLogLine: `"message":"could not exchange user token"`,
		},
		{
			name:   "consent required is not retried",
			text:   "profile",
			tokens: fakeTokens{token: "user-token"},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(nil, &autherr.ExchangeFailedError{
					StatusCode:       http.StatusBadRequest,
					ErrorCode:        "invalid_grant",
					ErrorDescription: "AADSTS65001: consent",
					SubError:         "consent_required",
				})
			},
			want: "Sorry, I encountered an error: token exchange failed with status 400: invalid_grant: AADSTS65001: consent" +
				"\n\nThis app has not been granted access to your Microsoft 365 data yet. Ask an administrator to grant consent, then try again.",
		},
		{
			name:   "interaction required",
			text:   "profile",
			tokens: fakeTokens{token: "user-token"},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(nil, &autherr.ExchangeFailedError{
					StatusCode: http.StatusBadRequest,
					ErrorCode:  "interaction_required",
				})
			},
			want: "Sorry, I encountered an error: token exchange failed with status 400: interaction_required\n\nPlease sign in again, then retry.",
		},
		{
			name:   "graph failure",
			text:   "profile",
			tokens: fakeTokens{token: "user-token"},
			graph:  &fakeGraph{err: &graph.Error{StatusCode: http.StatusForbidden, Code: "accessDenied", Message: "Insufficient privileges."}},
			expect: func(m *mockobo.MockTokenExchanger) {
				m.EXPECT().Exchange(gomock.Any(), "user-token").Return(graphResult, nil)
			},
			want:        "Sorry, I encountered an error: graph request failed with status 403: accessDenied: Insufficient privileges.",
			wantTokens:  []string{"graph-token"},
			wantLogLine: `"message":"could not get user profile"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exchanger := mockobo.NewMockTokenExchanger(gomock.NewController(t))
			if tt.expect != nil {
				tt.expect(exchanger)
			}
			fg := tt.graph
			if fg == nil {
				fg = &fakeGraph{}
			}
			logger, log := plog.TestLogger(t)

			h := New(Config{Enabled: !tt.disabled}, exchanger, tt.tokens, fg.newGraph,
				WithLogger(logger),
				WithBackoff(func() backoff.Stepper { return &backoff.InfiniteBackoff{} }),
				WithLocation(time.UTC),
			)

			got := h.HandleMessage(context.Background(), message(tt.text))
			require.Equal(t, Reply{Type: "message", Text: tt.want}, got)
			require.Equal(t, tt.wantTokens, fg.tokens)
			require.NotContains(t, log.String(), "user-token")
			require.NotContains(t, log.String(), "graph-token")
			if tt.wantLogLine != "" {
				require.Contains(t, log.String(), tt.wantLogLine)
			}
		})
	}
}

func TestHandleMessageRequestsTenRecentFiles(t *testing.T) {
	t.Parallel()

	exchanger := mockobo.NewMockTokenExchanger(gomock.NewController(t))
	exchanger.EXPECT().Exchange(gomock.Any(), "user-token").Return(&obo.Result{AccessToken: "graph-token"}, nil)
	fg := &fakeGraph{}

	New(Config{Enabled: true}, exchanger, fakeTokens{token: "user-token"}, fg.newGraph).
		HandleMessage(context.Background(), message("files"))
	require.Equal(t, []int{10}, fg.tops)
}

func TestHandleMessageStopsRetryingWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	exchanger := mockobo.NewMockTokenExchanger(gomock.NewController(t))
	exchanger.EXPECT().Exchange(gomock.Any(), "user-token").DoAndReturn(func(context.Context, string) (*obo.Result, error) {
		cancel()
		return nil, fetchError()
	})

	h := New(Config{Enabled: true, MaxFetchAttempts: 5}, exchanger, fakeTokens{token: "user-token"}, (&fakeGraph{}).newGraph,
		WithBackoff(func() backoff.Stepper { return &backoff.InfiniteBackoff{Duration: time.Hour} }))

	got := h.HandleMessage(ctx, message("files"))
	require.Equal(t, `Sorry, I encountered an error: context canceled (last attempt: could not fetch credential "sso-cert" from secret store: access to secret denied)`, got.Text)
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{bytes: 0, want: "0 B"},
		{bytes: 1023, want: "1023 B"},
		{bytes: 1024, want: "1 KB"},
		{bytes: 1536, want: "1.5 KB"},
		{bytes: 23552, want: "23 KB"},
		{bytes: 1234567, want: "1.18 MB"},
		{bytes: 5 << 30, want: "5 GB"},
		{bytes: 3 << 40, want: "3 TB"},
		{bytes: 2048 << 40, want: "2048 TB"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatFileSize(tt.bytes), "FormatFileSize(%d)", tt.bytes)
	}
}

func TestContextUserTokenProvider(t *testing.T) {
	t.Parallel()

	token, err := ContextUserTokenProvider{}.UserToken(context.Background(), message("files"))
	require.NoError(t, err)
	require.Empty(t, token)

	token, err = ContextUserTokenProvider{}.UserToken(WithUserToken(context.Background(), "user-token"), message("files"))
	require.NoError(t, err)
	require.Equal(t, "user-token", token)
}
