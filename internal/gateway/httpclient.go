package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// SharedHTTPClient returns an HTTP client with connection pooling, shared by
// all gateway clients.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(timeout, nil),
	}
}

// NewHTTPClient is SharedHTTPClient routed through a SOCKS5 proxy when
// socksAddr (host:port) is set.
func NewHTTPClient(timeout time.Duration, socksAddr string) (*http.Client, error) {
	if socksAddr == "" {
		return SharedHTTPClient(timeout), nil
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", socksAddr, err)
	}
	var dial func(ctx context.Context, network, addr string) (net.Conn, error)
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		dial = cd.DialContext
	} else {
		dial = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(timeout, dial),
	}, nil
}

func newTransport(timeout time.Duration, dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Transport {
	if dial == nil {
		dial = (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	return &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		DialContext:           dial,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
