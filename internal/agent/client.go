package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gideonlabs/gideon/internal/gideonerrors"
)

// Client talks to a Letta-style agent runtime over its raw HTTP wire protocol.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	streamClient   *http.Client
	oneShotClient  *http.Client
}

func NewClient(baseURL string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: requestTimeout,
		streamClient:   newStreamingHTTPClient(requestTimeout),
		oneShotClient:  &http.Client{Timeout: requestTimeout},
	}
}

type messagesRequest struct {
	Messages     []requestMessage `json:"messages"`
	StreamTokens bool             `json:"stream_tokens,omitempty"`
}

type requestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamMessages opens the token-streaming endpoint and hands back the raw
// event-stream body. The caller owns the body and must close it.
func (c *Client) StreamMessages(ctx context.Context, agentID, content string) (io.ReadCloser, error) {
	if agentID == "" {
		return nil, gideonerrors.AgentUnavailable("agent id not configured")
	}

	body, err := json.Marshal(messagesRequest{
		Messages:     []requestMessage{{Role: "user", Content: content}},
		StreamTokens: true,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/messages/stream", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, gideonerrors.Wrap(err, "open agent stream")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		resp.Body.Close()
		return nil, gideonerrors.UpstreamTransport(
			fmt.Sprintf("agent stream http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if resp.Body == nil {
		return nil, gideonerrors.UpstreamTransport("agent stream returned no body")
	}

	return resp.Body, nil
}

// SendMessage calls the non-streaming sibling endpoint and decodes the full
// messages response in one shot.
func (c *Client) SendMessage(ctx context.Context, agentID, content string) (*MessagesResponse, error) {
	if agentID == "" {
		return nil, gideonerrors.AgentUnavailable("agent id not configured")
	}

	body, err := json.Marshal(messagesRequest{
		Messages: []requestMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/messages", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.oneShotClient.Do(req)
	if err != nil {
		return nil, gideonerrors.Wrap(err, "send agent message")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, gideonerrors.UpstreamTransport(
			fmt.Sprintf("agent http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gideonerrors.Wrap(err, "decode agent response")
	}

	return &out, nil
}

func newStreamingHTTPClient(requestTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout(requestTimeout),
	}

	// Do not use http.Client.Timeout for SSE because it caps total stream duration.
	return &http.Client{Transport: transport}
}

func responseHeaderTimeout(requestTimeout time.Duration) time.Duration {
	const (
		defaultTimeout = 30 * time.Second
		maxTimeout     = 45 * time.Second
	)

	if requestTimeout <= 0 {
		return defaultTimeout
	}
	if requestTimeout < defaultTimeout {
		return requestTimeout
	}
	if requestTimeout > maxTimeout {
		return maxTimeout
	}
	return requestTimeout
}
