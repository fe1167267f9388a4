/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package client implements a caching WebFinger client that resolves an
// 'acct:nick@host' handle to the IRI of the actor's ActivityPub document.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"github.com/quillpub/quill/internal/pkg/log"
	qerrors "github.com/quillpub/quill/pkg/errors"
	"github.com/quillpub/quill/pkg/webfinger/model"
)

var logger = log.New("webfinger_client")

const (
	defaultCacheLifetime = 5 * time.Minute
	defaultCacheSize     = 100
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements a WebFinger client.
type Client struct {
	httpClient    httpClient
	cacheLifetime time.Duration
	cacheSize     int
	resourceCache gcache.Cache
}

// Option customizes the WebFinger client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used to perform WebFinger queries.
func WithHTTPClient(client httpClient) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCacheLifetime sets the lifetime of cached resolutions.
func WithCacheLifetime(lifetime time.Duration) Option {
	return func(c *Client) {
		c.cacheLifetime = lifetime
	}
}

// WithCacheSize sets the maximum number of cached resolutions.
func WithCacheSize(size int) Option {
	return func(c *Client) {
		c.cacheSize = size
	}
}

// New returns a new WebFinger client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    http.DefaultClient,
		cacheLifetime: defaultCacheLifetime,
		cacheSize:     defaultCacheSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.resourceCache = gcache.New(c.cacheSize).ARC().
		LoaderExpireFunc(func(acct interface{}) (interface{}, *time.Duration, error) {
			actorIRI, err := c.resolve(context.Background(), acct.(string))
			if err != nil {
				return nil, nil, err
			}

			logger.Debug("Caching WebFinger resolution", log.WithParameter(acct.(string)),
				log.WithActorIRI(actorIRI), log.WithExpiration(c.cacheLifetime))

			return actorIRI, &c.cacheLifetime, nil
		}).Build()

	return c
}

// ResolveActorIRI resolves the given 'acct:nick@host' (or 'nick@host') handle
// to the IRI of the actor's ActivityPub document.
func (c *Client) ResolveActorIRI(acct string) (*url.URL, error) {
	actorIRI, err := c.resourceCache.Get(normalizeAcct(acct))
	if err != nil {
		return nil, fmt.Errorf("resolve actor for [%s]: %w", acct, err)
	}

	return actorIRI.(*url.URL), nil
}

func (c *Client) resolve(ctx context.Context, acct string) (*url.URL, error) {
	_, host, err := splitAcct(acct)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s",
		host, url.QueryEscape(acct))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create WebFinger request: %w", err)
	}

	req.Header.Set("Accept", model.ContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, qerrors.NewTransient(fmt.Errorf("query WebFinger endpoint [%s]: %w", reqURL, err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, qerrors.NewKindf(qerrors.KindNotFound, "resource [%s] was not found", acct)
		}

		return nil, qerrors.NewTransient(
			fmt.Errorf("WebFinger endpoint [%s] returned status %d", reqURL, resp.StatusCode))
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, qerrors.NewTransient(fmt.Errorf("read WebFinger response: %w", err))
	}

	jrd := &model.JRD{}

	if err := json.Unmarshal(respBytes, jrd); err != nil {
		return nil, fmt.Errorf("unmarshal WebFinger response: %w", err)
	}

	link := jrd.LinkByRel(model.RelSelf, model.ActivityJSONType)
	if link == nil {
		return nil, fmt.Errorf("no ActivityPub self link for resource [%s]", acct)
	}

	actorIRI, err := url.Parse(link.Href)
	if err != nil {
		return nil, fmt.Errorf("parse actor IRI [%s]: %w", link.Href, err)
	}

	return actorIRI, nil
}

// normalizeAcct ensures that the handle carries the acct: scheme so that cache
// keys are stable.
func normalizeAcct(acct string) string {
	if strings.HasPrefix(acct, "acct:") {
		return acct
	}

	return "acct:" + acct
}

func splitAcct(acct string) (nick, host string, err error) {
	parts := strings.Split(strings.TrimPrefix(acct, "acct:"), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid acct handle [%s]", acct)
	}

	return parts[0], parts[1], nil
}
