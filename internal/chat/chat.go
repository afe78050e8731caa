// Package chat answers free-form text through a hosted text-generation
// endpoint. Every failure path collapses to a fixed fallback string so
// the conversational surface never leaks transport or provider errors.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// Fallback replies. These are user-facing contract strings.
const (
	MsgEmpty       = "Sorry, I couldn't understand that."
	MsgUnavailable = "Sorry, the NLP service is currently unavailable."
	MsgError       = "Sorry, I had trouble processing your message."
)

type Config struct {
	// Endpoint is the generation API URL. Empty disables the client.
	Endpoint string
	// Token is the bearer token, optional.
	Token string
	// Timeout bounds one request. Default 30s.
	Timeout time.Duration
}

type Client struct {
	http     *resty.Client
	endpoint string
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(1).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	return &Client{http: rc, endpoint: cfg.Endpoint, log: log}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.endpoint != "" }

type generateRequest struct {
	Inputs string `json:"inputs"`
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// Reply generates a response for the user's text. It never returns an
// error to the caller; failures map to the fixed fallback strings.
func (c *Client) Reply(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return MsgEmpty
	}
	if !c.Enabled() {
		return MsgUnavailable
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{Inputs: text}).
		Post(c.endpoint)
	if err != nil {
		c.log.Warn("chat request failed", logx.Err(err))
		return MsgUnavailable
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		c.log.Warn("chat endpoint status",
			logx.Int("status", resp.StatusCode()),
			logx.String("body", truncate(resp.String(), 256)))
		return MsgUnavailable
	}

	out, err := parseGenerated(resp.Body())
	if err != nil {
		c.log.Warn("chat response parse failed", logx.Err(err))
		return MsgError
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return MsgEmpty
	}
	return out
}

// parseGenerated accepts both response shapes the provider emits: a list
// of objects or a single object with generated_text.
func parseGenerated(body []byte) (string, error) {
	var list []generated
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return "", nil
		}
		return list[0].GeneratedText, nil
	}
	var one generated
	if err := json.Unmarshal(body, &one); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	return one.GeneratedText, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
