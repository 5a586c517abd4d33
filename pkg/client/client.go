// Package client talks to the site's public lead API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Error is a classified failure returned by the server.
type Error struct {
	Status     int
	Code       string
	Message    string
	Field      string
	Detail     string
	RetryAfter int // seconds, set on 429
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	if e.Field != "" {
		msg += " (" + e.Field + " " + e.Detail + ")"
	} else if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Result is a successful submission.
type Result struct {
	Reference string
	Message   string
	Replayed  bool
}

// SubmitLead posts lead to the endpoint for its kind. idempotencyKey may be
// empty, in which case the server derives one from the payload.
func (c *Client) SubmitLead(ctx context.Context, lead domain.Lead, idempotencyKey string) (*Result, error) {
	path := "/api/consultation"
	if lead.Kind == domain.LeadQuotation {
		path = "/api/quotes"
	}

	body, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("encode lead: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var payload struct {
		Code           string `json:"code"`
		Message        string `json:"message"`
		Error          string `json:"error"`
		Field          string `json:"field"`
		Detail         string `json:"detail"`
		RetryAfter     int    `json:"retryAfter"`
		Reference      string `json:"reference"`
		QuoteReference string `json:"quoteReference"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &Error{
			Status:     resp.StatusCode,
			Code:       payload.Code,
			Message:    payload.Message,
			Field:      payload.Field,
			Detail:     payload.Detail,
			RetryAfter: payload.RetryAfter,
		}
		if e.Message == "" {
			e.Message = payload.Error
		}
		return nil, e
	}

	res := &Result{
		Reference: payload.Reference,
		Message:   payload.Message,
		Replayed:  resp.Header.Get("Idempotent-Replayed") == "true",
	}
	if payload.QuoteReference != "" {
		res.Reference = payload.QuoteReference
	}
	return res, nil
}
