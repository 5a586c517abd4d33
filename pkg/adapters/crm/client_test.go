package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
)

var lead = domain.Lead{Kind: domain.LeadQuotation, Name: "Jane Doe", Email: "jane@x.com", Message: "Need a quote for CAD work"}

func TestCreateLead_APIKey(t *testing.T) {
	var gotAuth, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leads", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"lead_42"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(context.Background(), Config{BaseURL: srv.URL + "/", APIKey: "k3y", Timeout: time.Second})
	id, err := c.CreateLead(context.Background(), lead, "sum:abc")
	require.NoError(t, err)

	assert.Equal(t, "lead_42", id)
	assert.Equal(t, "Bearer k3y", gotAuth)
	assert.Equal(t, "sum:abc", gotKey)
	assert.Equal(t, "website", gotBody["source"])
	assert.Equal(t, "quote", gotBody["kind"])
}

func TestCreateLead_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"lead_7"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(context.Background(), Config{
		BaseURL:      srv.URL,
		ClientID:     "site",
		ClientSecret: "s3cret",
		TokenURL:     srv.URL + "/oauth/token",
		Timeout:      time.Second,
	})
	id, err := c.CreateLead(context.Background(), lead, "")
	require.NoError(t, err)
	assert.Equal(t, "lead_7", id)
}

func TestCreateLead_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"server error", http.StatusBadGateway, `{"error":"upstream"}`, "crm returned 502"},
		{"rejected", http.StatusUnprocessableEntity, `{}`, "crm returned 422"},
		{"malformed", http.StatusOK, `not json`, "malformed crm response"},
		{"missing id", http.StatusOK, `{}`, "malformed crm response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(context.Background(), Config{BaseURL: srv.URL, Timeout: time.Second}).CreateLead(context.Background(), lead, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreateLead_RespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewHTTPClient(context.Background(), Config{BaseURL: srv.URL, Timeout: time.Minute}).CreateLead(ctx, lead, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDryRun(t *testing.T) {
	d := NewDryRun(logging.Discard())
	id, err := d.CreateLead(context.Background(), lead, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dry-"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.CreateLead(ctx, lead, "")
	assert.ErrorIs(t, err, context.Canceled)
}
