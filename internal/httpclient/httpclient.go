package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

const DefaultTimeout = 120 * time.Second

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	// MaxConnsPerHost caps concurrent upstream connections; set it to the
	// image worker count so the pool and the transport agree.
	MaxConnsPerHost int
}

func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	idlePerHost := 20
	if opts.MaxConnsPerHost > 0 && opts.MaxConnsPerHost < idlePerHost {
		idlePerHost = opts.MaxConnsPerHost
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialContext(dialer, opts.PreferIPv4),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func dialContext(dialer *net.Dialer, preferIPv4 bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if preferIPv4 {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
		return dialer.DialContext(ctx, network, addr)
	}
}
