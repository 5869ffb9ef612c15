package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"planoflife/api/internal/insight"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(ctx context.Context) (string, error) { return s.token, nil }

func sampleStats() insight.Stats {
	return insight.Stats{
		WindowDays:         7,
		TotalCompleted:     10,
		TotalPossible:      21,
		OverallRatePercent: 47.6,
		Weakest: []insight.NormRate{
			{Name: "Holy Rosary", RatePercent: 14.3, Completed: 1, Total: 7},
			{Name: "Spiritual Reading", RatePercent: 28.6, Completed: 2, Total: 7},
		},
	}
}

func TestGenerateSendsChatRequest(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Pray the Rosary right after lunch."}}]}`)
	}))
	defer srv.Close()

	client := NewWithTokenSource(srv.Client(), srv.URL, "test-model", staticTokens{token: "tok-123"})
	got, err := client.Generate(context.Background(), sampleStats())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Pray the Rosary right after lunch." {
		t.Errorf("suggestion = %q", got)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 80 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	user := gotReq.Messages[1].Content
	for _, want := range []string{"47.6%", "Holy Rosary (14.3%)", "Spiritual Reading (28.6%)"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		status  int
		wantErr error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusPaymentRequired, ErrQuotaExhausted},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewWithTokenSource(srv.Client(), srv.URL, "m", staticTokens{token: "t"})
		_, err := client.Generate(context.Background(), sampleStats())
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.wantErr)
		}
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	client := NewWithTokenSource(srv.Client(), srv.URL, "m", staticTokens{token: "t"})
	_, err := client.Generate(context.Background(), sampleStats())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Errorf("err = %v, want *APIError with status 500", err)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client := NewWithTokenSource(srv.Client(), srv.URL, "m", staticTokens{token: "t"})
	if _, err := client.Generate(context.Background(), sampleStats()); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestClientCredentialsSourceCachesToken(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != "api/access" {
			t.Errorf("scope = %q", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		fmt.Fprint(w, `{"access_token":"fresh-token","expires_in":3600}`)
	}))
	defer srv.Close()

	src := NewClientCredentialsSource(srv.Client(), srv.URL, "client-id", "client-secret")
	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "fresh-token" {
			t.Errorf("token = %q", tok)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("token endpoint called %d times, want 1", got)
	}
}

func TestClientCredentialsSourceRefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":30}`, n)
	}))
	defer srv.Close()

	src := NewClientCredentialsSource(srv.Client(), srv.URL, "id", "secret")
	first, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	// 30s expiry is inside the one-minute refresh margin, so the next
	// call must fetch again.
	second, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first == second {
		t.Errorf("expected refreshed token, got %q twice", first)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("token endpoint called %d times, want 2", got)
	}
}

func TestIsConfigured(t *testing.T) {
	if c := New(Config{APIURL: "https://example.com"}); c.IsConfigured() {
		t.Error("client without credentials should not be configured")
	}
	c := New(Config{
		APIURL:       "https://example.com",
		TokenURL:     "https://example.com/token",
		ClientID:     "id",
		ClientSecret: "secret",
		Model:        "m",
	})
	if !c.IsConfigured() {
		t.Error("client with credentials should be configured")
	}
}
