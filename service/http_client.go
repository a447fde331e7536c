package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/setting"
)

var (
	httpClientOnce sync.Once
	httpClient     *http.Client

	proxyClientMu sync.Mutex
	proxyClients  = make(map[string]*http.Client)
)

// GetHttpClient returns the shared upstream client. Timeouts come from the
// request context; connection reuse is why this is a singleton.
func GetHttpClient() *http.Client {
	httpClientOnce.Do(func() {
		httpClient = &http.Client{}
	})
	return httpClient
}

// NewProxyHttpClient 支持 http/https/socks5/socks5h 四种代理
func NewProxyHttpClient(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return GetHttpClient(), nil
	}
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	switch parsedURL.Scheme {
	case "http", "https":
		return &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(parsedURL),
			},
		}, nil
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{
				User:     parsedURL.User.Username(),
				Password: password,
			}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}
}

// ClientForAccount picks the egress client for one account: its own
// proxy_url first, then the global proxy, then the shared client.
// Clients are cached per proxy URL so transports get reused.
func ClientForAccount(account *model.Account) (*http.Client, error) {
	proxyURL := ""
	if account != nil && account.ProxyUrl != nil && *account.ProxyUrl != "" {
		proxyURL = *account.ProxyUrl
	} else if setting.GlobalProxyURL() != "" {
		proxyURL = setting.GlobalProxyURL()
	}
	if proxyURL == "" {
		return GetHttpClient(), nil
	}
	proxyClientMu.Lock()
	defer proxyClientMu.Unlock()
	if client, ok := proxyClients[proxyURL]; ok {
		return client, nil
	}
	client, err := NewProxyHttpClient(proxyURL)
	if err != nil {
		return nil, err
	}
	proxyClients[proxyURL] = client
	return client, nil
}

// NewTimeoutClient clones the given client with a hard timeout; used where
// the upstream contract fixes one (sentinel mint is 10s).
func NewTimeoutClient(base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		base = GetHttpClient()
	}
	return &http.Client{
		Transport:     base.Transport,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       timeout,
	}
}
