package veeamapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const tokenPath = "/oauth2/token"

// Authenticate exchanges the configured credentials for an access token using
// the password grant. The token is attached as a bearer header to every
// subsequent request.
func (c *Client) Authenticate(ctx context.Context) error {
	tokenURL, err := c.urlStringFromRelPath(tokenPath)
	if err != nil {
		return err
	}

	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// the token endpoint wants the same version header as the rest of the API
	hc := &http.Client{
		Transport: &headerTransport{
			base: c.client.Transport,
			headers: map[string]string{
				"Accept":         "application/json",
				"User-Agent":     c.userAgent,
				apiVersionHeader: c.apiVersion,
			},
		},
		Timeout: c.client.Timeout,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	token, err := conf.PasswordCredentialsToken(ctx, c.username, c.password)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return fmt.Errorf("authentication failed: HTTP %d: %s", rErr.Response.StatusCode, serverMessage(rErr.Body))
		}
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = token
	c.logger.Debug("authenticated", zap.String("user", c.username), zap.String("api_version", c.apiVersion))
	return nil
}

// Authenticated reports whether a token has been obtained.
func (c *Client) Authenticated() bool {
	return c.token != nil
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
