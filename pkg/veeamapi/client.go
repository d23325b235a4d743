package veeamapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/bizflycloud/veeam-jobctl/pkg/version"
)

const (
	defaultServerURLString = "https://localhost:9419/api"
	defaultAPIVersion      = "1.2-rev1"
	defaultRetryTimeout    = 30 * time.Second

	apiVersionHeader = "x-api-version"
)

// Client is the client for interacting with the Veeam Backup & Replication REST API.
type Client struct {
	client    *http.Client
	ServerURL *url.URL

	username   string
	password   string
	apiVersion string
	userAgent  string

	insecureSkipVerify bool
	retryTimeout       time.Duration

	token *oauth2.Token

	logger *zap.Logger
}

// NewClient creates a Client with given options.
func NewClient(opts ...ClientOption) (*Client, error) {
	serverURL, _ := url.Parse(defaultServerURLString)
	c := &Client{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		ServerURL:    serverURL,
		apiVersion:   defaultAPIVersion,
		userAgent:    version.UserAgent(),
		retryTimeout: defaultRetryTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.insecureSkipVerify {
		c.client = withInsecureTransport(c.client)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	return c, nil
}

// ClientOption provides mechanism to configure Client.
type ClientOption func(c *Client) error

// WithHTTPClient sets the underlying HTTP client for Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		if client == nil {
			return errors.New("nil HTTP client")
		}
		c.client = client
		return nil
	}
}

// WithServerURL sets the API root, e.g. https://vbr:9419/api.
func WithServerURL(serverURL string) ClientOption {
	return func(c *Client) error {
		su, err := url.Parse(serverURL)
		if err != nil {
			return err
		}
		c.ServerURL = su
		return nil
	}
}

// WithCredentials sets the user used for the password grant.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithAPIVersion sets the x-api-version header value.
func WithAPIVersion(apiVersion string) ClientOption {
	return func(c *Client) error {
		if apiVersion == "" {
			return errors.New("empty API version")
		}
		c.apiVersion = apiVersion
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) error {
		c.insecureSkipVerify = skip
		return nil
	}
}

// WithRetryTimeout bounds how long idempotent requests are retried. Zero
// disables retries.
func WithRetryTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("negative retry timeout")
		}
		c.retryTimeout = d
		return nil
	}
}

// WithLogger sets the logger for Client.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

func withInsecureTransport(hc *http.Client) *http.Client {
	base, ok := hc.Transport.(*http.Transport)
	if !ok {
		if hc.Transport != nil {
			return hc
		}
		base = http.DefaultTransport.(*http.Transport)
	}
	tr := base.Clone()
	if tr.TLSClientConfig == nil {
		tr.TLSClientConfig = &tls.Config{}
	}
	tr.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec

	cp := *hc
	cp.Transport = tr
	return &cp
}

func (c *Client) urlStringFromRelPath(relPath string) (string, error) {
	rel, err := url.Parse(strings.TrimPrefix(relPath, "/"))
	if err != nil {
		return "", err
	}
	base := *c.ServerURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(rel).String(), nil
}

// NewRequest create new http request
func (c *Client) NewRequest(ctx context.Context, method, relPath string, body interface{}) (*http.Request, error) {
	buf := new(bytes.Buffer)
	if body != nil {
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
	}

	reqURL, err := c.urlStringFromRelPath(relPath)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Do makes an http request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiVersionHeader, c.apiVersion)
	if c.Authenticated() {
		c.token.SetAuthHeader(req)
	}
	return c.client.Do(req)
}

// get issues a GET request, retrying transport errors and 5xx responses
// until the retry timeout elapses. Other statuses are returned to the caller.
func (c *Client) get(ctx context.Context, relPath string, query url.Values) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		req, err := c.NewRequest(ctx, http.MethodGet, relPath, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.URL.RawQuery = query.Encode()

		r, err := c.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			err := checkResponse(r)
			r.Body.Close()
			return err
		}
		resp = r
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.retryTimeout > 0 {
		ebo := backoff.NewExponentialBackOff()
		ebo.MaxElapsedTime = c.retryTimeout
		bo = ebo
	}

	notify := func(err error, d time.Duration) {
		c.logger.Warn("request failed, retrying",
			zap.String("path", relPath),
			zap.Duration("retry_in", d),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return resp, nil
}
