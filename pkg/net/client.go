package net

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "expctl (+https://github.com/mchmarny/expctl)"
)

var (
	reqTransport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    false,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}
)

type agentTransport struct {
	base http.RoundTripper
}

func (t *agentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	req := r.Clone(r.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", clientAgent)
	}
	return t.base.RoundTrip(req)
}

// GetHTTPClient returns a client with sane timeouts and a cookie jar.
func GetHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("error creating cookie jar: %w", err)
	}

	return &http.Client{
		Jar:       jar,
		Timeout:   time.Duration(timeoutInSeconds) * time.Second,
		Transport: &agentTransport{base: reqTransport},
	}, nil
}

// WithBaseClient returns a context that makes oauth2 token sources and
// clients built from it use GetHTTPClient underneath.
func WithBaseClient(ctx context.Context) (context.Context, error) {
	c, err := GetHTTPClient()
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c), nil
}
