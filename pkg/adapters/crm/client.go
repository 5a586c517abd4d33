// Package crm forwards validated leads to the external CRM.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

type Config struct {
	BaseURL      string
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient authenticates with OAuth2 client credentials when a token URL
// is configured, else with the API key as a static bearer token.
func NewHTTPClient(ctx context.Context, cfg Config) *HTTPClient {
	base := &http.Client{Timeout: cfg.Timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var client *http.Client
	switch {
	case cfg.TokenURL != "" && cfg.ClientID != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{"leads.write"},
		}
		client = cc.Client(ctx)
	case cfg.APIKey != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}))
	default:
		client = base
	}
	client.Timeout = cfg.Timeout

	return &HTTPClient{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client}
}

type leadPayload struct {
	Source      string            `json:"source"`
	Kind        domain.LeadKind   `json:"kind"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Message     string            `json:"message"`
	Phone       string            `json:"phone,omitempty"`
	Company     string            `json:"company,omitempty"`
	Audience    domain.Audience   `json:"audience,omitempty"`
	Consent     bool              `json:"consent"`
	Service     string            `json:"service,omitempty"`
	Budget      string            `json:"budget,omitempty"`
	Timeline    string            `json:"timeline,omitempty"`
	ClientType  string            `json:"clientType,omitempty"`
	Attachments []domain.FileMeta `json:"attachments,omitempty"`
}

type leadResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateLead(ctx context.Context, lead domain.Lead, idempotencyKey string) (string, error) {
	body, err := json.Marshal(leadPayload{
		Source:      "website",
		Kind:        lead.Kind,
		Name:        lead.Name,
		Email:       lead.Email,
		Message:     lead.Message,
		Phone:       lead.Phone,
		Company:     lead.Company,
		Audience:    lead.Audience,
		Consent:     lead.Consent,
		Service:     lead.Service,
		Budget:      lead.Budget,
		Timeline:    lead.Timeline,
		ClientType:  lead.ClientType,
		Attachments: lead.Attachments,
	})
	if err != nil {
		return "", fmt.Errorf("encode lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/leads", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post lead: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("crm returned %d", resp.StatusCode)
	}

	var out leadResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("malformed crm response (status %d)", resp.StatusCode)
	}
	return out.ID, nil
}

var _ ports.CRM = (*HTTPClient)(nil)
