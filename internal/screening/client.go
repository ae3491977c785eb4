package screening

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ProxyClient checks URLs through the reputation proxy's /check-url endpoint.
type ProxyClient struct {
	endpoint string
	http     *http.Client
}

func NewProxyClient(endpoint string, client *http.Client) *ProxyClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProxyClient{endpoint: endpoint, http: client}
}

func (c *ProxyClient) Check(ctx context.Context, target string) (*Reputation, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("url", target)
	q.Set("fast", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("proxy returned %s", resp.Status)
	}
	return ParseReputation(body)
}
