// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package credcache keeps the most recently downloaded signing certificate in memory so that
// token exchanges do not pay for a secret store round trip every time.
//
// The cache holds a single slot. An entry is served until its TTL elapses, which is measured
// from the moment the certificate was downloaded and is unrelated to the certificate's own
// validity period, except that a certificate which was valid when downloaded is not served past
// its NotAfter unless that check is disabled. A certificate that had already expired in the store
// is kept for the full TTL so that an unrotated store is not queried on every call.
package credcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"go.certsso.dev/internal/autherr"
	"go.certsso.dev/internal/credential"
	"go.certsso.dev/internal/metrics"
	"go.certsso.dev/internal/plog"
	"go.certsso.dev/internal/secretstore"
)

const (
	// DefaultTTL is how long a downloaded certificate is reused before it is downloaded again.
	DefaultTTL = time.Hour

	// DefaultFetchTimeout bounds one download, which is shared by every caller waiting for it.
	DefaultFetchTimeout = 30 * time.Second
)

// Getter is satisfied by *Cache.
type Getter interface {
	GetCredential(ctx context.Context) (*credential.Credential, error)
}

type entry struct {
	cred   *credential.Credential
	expiry time.Time
}

type Cache struct {
	store           secretstore.Store
	location        string
	name            string
	ttl             time.Duration
	fetchTimeout    time.Duration
	checkCertExpiry bool
	clock           clock.PassiveClock
	metrics         *metrics.Metrics
	logger          plog.Logger

	flight singleflight.Group

	mu   sync.Mutex
	slot *entry
}

var _ Getter = (*Cache)(nil)

type Opt func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Opt {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout. Non-positive values are ignored.
func WithFetchTimeout(timeout time.Duration) Opt {
	return func(c *Cache) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

func WithClock(clk clock.PassiveClock) Opt {
	return func(c *Cache) {
		c.clock = clk
	}
}

func WithMetrics(m *metrics.Metrics) Opt {
	return func(c *Cache) {
		c.metrics = m
	}
}

func WithLogger(logger plog.Logger) Opt {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithoutCertificateExpiryCheck makes the TTL the only reason to download the certificate again,
// even after the cached certificate's NotAfter has passed.
func WithoutCertificateExpiryCheck() Opt {
	return func(c *Cache) {
		c.checkCertExpiry = false
	}
}

// New returns a Cache that downloads the secret called name from store. A store that does not
// implement secretstore.Location, or reports an empty location, is missing configuration.
func New(store secretstore.Store, name string, opts ...Opt) (*Cache, error) {
	c := &Cache{
		store:           store,
		location:        locationOf(store),
		name:            name,
		ttl:             DefaultTTL,
		fetchTimeout:    DefaultFetchTimeout,
		checkCertExpiry: true,
		clock:           clock.RealClock{},
		logger:          plog.New().WithName("credcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func locationOf(store secretstore.Store) string {
	if store == nil {
		return ""
	}
	if l, ok := store.(secretstore.Location); ok {
		return l.Location()
	}
	return ""
}

func (c *Cache) validate() error {
	if c == nil {
		return autherr.NewConfigurationError("secretStore.url", "", "secretStore.certificateName", "")
	}
	return autherr.NewConfigurationError(
		"secretStore.url", c.location,
		"secretStore.certificateName", c.name,
	)
}

// GetCredential returns the cached credential when it is still fresh, otherwise it downloads
// and decodes the certificate, caches it, and returns it. Concurrent misses share one download.
// The download is not tied to ctx: a caller that gives up returns early while the download goes
// on, bounded by the fetch timeout, for the remaining callers and the cache.
// Failures are returned as *autherr.CredentialFetchError and leave the cache untouched.
func (c *Cache) GetCredential(ctx context.Context) (*credential.Credential, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	if cred := c.fresh(); cred != nil {
		c.metrics.ObserveCacheRequest(true)
		c.logger.Trace("using cached signing certificate", "thumbprint", cred.Thumbprint())
		return cred, nil
	}
	c.metrics.ObserveCacheRequest(false)

	if err := ctx.Err(); err != nil {
		return nil, &autherr.CredentialFetchError{Name: c.name, Err: err}
	}

	fetchCtx := context.WithoutCancel(ctx)
	results := c.flight.DoChan(c.name, func() (any, error) {
		ctx, cancel := context.WithTimeout(fetchCtx, c.fetchTimeout)
		defer cancel()
		return c.fetch(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, &autherr.CredentialFetchError{Name: c.name, Err: ctx.Err()}
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*credential.Credential), nil
	}
}

// Invalidate drops the cached credential so that the next call downloads it again,
// e.g. after the certificate was rotated in the secret store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slot = nil
	c.logger.Debug("signing certificate cache invalidated")
}

func (c *Cache) fresh() *credential.Credential {
	now := c.clock.Now()

	c.mu.Lock()
	slot := c.slot
	c.mu.Unlock()

	if slot == nil || !now.Before(slot.expiry) {
		return nil
	}
	return slot.cred
}

func (c *Cache) fetch(ctx context.Context) (*credential.Credential, error) {
	// another download may have finished between our miss and joining this flight
	if cred := c.fresh(); cred != nil {
		return cred, nil
	}

	c.logger.Debug("downloading signing certificate", "name", c.name, "location", c.location)

	secret, err := c.store.Fetch(ctx, c.name)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, c.fetchFailed(err)
	}

	now := c.clock.Now()
	cred, err := credential.Decode(secret.Value, secret.ContentType, now)
	if err != nil {
		return nil, c.fetchFailed(err)
	}
	c.metrics.ObserveCredentialFetch(nil)

	expiry := now.Add(c.ttl)
	switch {
	case cred.ExpiredAt(now):
		c.logger.Warning("signing certificate in the secret store has expired, rotate it",
			"name", c.name, "thumbprint", cred.Thumbprint(), "notAfter", cred.NotAfter())
	case c.checkCertExpiry && cred.NotAfter().Before(expiry):
		expiry = cred.NotAfter()
	}

	c.mu.Lock()
	c.slot = &entry{cred: cred, expiry: expiry}
	c.mu.Unlock()

	c.logger.Info("downloaded signing certificate",
		"name", c.name,
		"version", secret.Version,
		"subject", cred.Certificate().Subject.String(),
		"thumbprint", cred.Thumbprint(),
		"notAfter", cred.NotAfter(),
		"cacheUntil", expiry)
	return cred, nil
}

func (c *Cache) fetchFailed(err error) error {
	c.metrics.ObserveCredentialFetch(err)
	c.logger.Error("could not download signing certificate", err, "name", c.name, "location", c.location)
	return &autherr.CredentialFetchError{Name: c.name, Err: err}
}
