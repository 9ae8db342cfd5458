// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package graph is a small Microsoft Graph client covering the calls the bot makes on behalf of a user.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"k8s.io/apimachinery/pkg/util/sets"

	"go.certsso.dev/internal/httputil/roundtripper"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultHost    = "graph.microsoft.com"

	maxResponseBytes = 4 << 20
)

type User struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	JobTitle          string `json:"jobTitle"`
	Department        string `json:"department"`
	OfficeLocation    string `json:"officeLocation"`
}

type DriveItem struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	WebURL       string    `json:"webUrl"`
}

// Error is a non-2xx response from Graph.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if len(e.Code) == 0 {
		return fmt.Sprintf("graph request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Factory creates per-user clients sharing one base URL and transport.
type Factory struct {
	baseURL      *url.URL
	allowedHosts sets.Set[string]
	httpClient   *http.Client
}

// NewFactory validates baseURL. Access tokens are only ever sent to graph.microsoft.com and the host of baseURL.
func NewFactory(baseURL string, httpClient *http.Client) (*Factory, error) {
	if len(baseURL) == 0 {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("invalid graph base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Factory{
		baseURL:      u,
		allowedHosts: sets.New(defaultHost, u.Hostname()),
		httpClient:   httpClient,
	}, nil
}

// Client returns a Client which authenticates as the owner of accessToken.
func (f *Factory) Client(accessToken string) *Client {
	base := f.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base})
	authorized := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})).Transport

	return &Client{
		baseURL: f.baseURL,
		httpClient: &http.Client{
			Transport: roundtripper.WrapFunc(base, func(req *http.Request) (*http.Response, error) {
				if f.allowedHosts.Has(req.URL.Hostname()) {
					return authorized.RoundTrip(req)
				}
				return base.RoundTrip(req)
			}),
			CheckRedirect: f.httpClient.CheckRedirect,
			Timeout:       f.httpClient.Timeout,
		},
	}
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, []string{"me"}, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RecentFiles returns up to top items the signed-in user recently used in OneDrive.
func (c *Client) RecentFiles(ctx context.Context, top int) ([]DriveItem, error) {
	var page struct {
		Value []DriveItem `json:"value"`
	}
	query := url.Values{}
	if top > 0 {
		query.Set("$top", strconv.Itoa(top))
	}
	if err := c.get(ctx, []string{"me", "drive", "recent"}, query, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

func (c *Client) get(ctx context.Context, path []string, query url.Values, into any) error {
	u := c.baseURL.JoinPath(path...)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("could not build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("could not read graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("could not decode graph response: %w", err)
	}
	return nil
}

func parseError(status int, body []byte) *Error {
	graphErr := &Error{StatusCode: status}
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		graphErr.Code = parsed.Error.Code
		graphErr.Message = parsed.Error.Message
	}
	return graphErr
}
