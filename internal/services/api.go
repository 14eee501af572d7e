// Raw HTTP client for the YouTube Music proxy service
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ProxyClient provides raw HTTP access to the YouTube Music proxy.
// Every request carries the proxy's static client token.
type ProxyClient struct {
	baseURL     string
	clientToken string
	httpClient  *http.Client
}

// NewProxyClient creates a client for the proxy at baseURL.
func NewProxyClient(baseURL, clientToken string, client *http.Client) *ProxyClient {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &ProxyClient{
		baseURL:     baseURL,
		clientToken: clientToken,
		httpClient:  client,
	}
}

// ProxyResponse represents a raw proxy response with status and body.
type ProxyResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (p *ProxyClient) Get(ctx context.Context, path string) (*ProxyResponse, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON body and returns the raw response.
func (p *ProxyClient) Post(ctx context.Context, path string, data []byte) (*ProxyResponse, error) {
	return p.do(ctx, http.MethodPost, path, data)
}

func (p *ProxyClient) do(ctx context.Context, method, path string, data []byte) (*ProxyResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.clientToken != "" {
		req.Header.Set("X-Client-Token", p.clientToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	proxyResp := &ProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		proxyResp.IsJSON = true
		proxyResp.JSONData = jsonData
	}

	return proxyResp, nil
}
