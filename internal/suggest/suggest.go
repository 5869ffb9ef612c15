// Package suggest calls an OAuth2-protected chat-completion API to turn
// completion statistics into a short coaching suggestion.
package suggest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"planoflife/api/internal/insight"
)

var (
	// ErrRateLimited maps the upstream 429; callers surface "try again
	// shortly" and must not retry automatically.
	ErrRateLimited = errors.New("suggestion api rate limited")
	// ErrQuotaExhausted maps the upstream 402.
	ErrQuotaExhausted = errors.New("suggestion api quota exhausted")
)

// APIError is any other non-2xx response from the generator.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("suggestion api error: status %d", e.Status)
}

const systemPrompt = `You are a compassionate spiritual advisor helping someone maintain their daily spiritual practices.
Provide ONE specific, actionable suggestion in 1-2 sentences.
Be concrete and practical, not general or vague.`

// TokenSource supplies a bearer token for the generator API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientCredentialsSource fetches OAuth2 client-credentials tokens and
// caches one until shortly before its expiry. The cache lives in the
// value, so tests and callers can hold independent instances.
type ClientCredentialsSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClientCredentialsSource(httpClient *http.Client, tokenURL, clientID, clientSecret string) *ClientCredentialsSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ClientCredentialsSource{
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Token returns the cached token while it has more than a minute of
// life left, otherwise fetches a fresh one.
func (s *ClientCredentialsSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.expiresAt) > time.Minute {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "api/access")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	s.token = payload.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return s.token, nil
}

// Client generates suggestions from insight statistics.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	tokens     TokenSource
}

// Config wires a Client. Empty ClientID/ClientSecret leave the client
// unconfigured; callers should gate on IsConfigured.
type Config struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Model        string
}

func New(cfg Config) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	var tokens TokenSource
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		tokens = NewClientCredentialsSource(httpClient, cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		model:      cfg.Model,
		tokens:     tokens,
	}
}

// NewWithTokenSource builds a Client around an injected token source,
// used by tests and by callers with their own credential handling.
func NewWithTokenSource(httpClient *http.Client, baseURL, model string, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		tokens:     tokens,
	}
}

// IsConfigured reports whether the client can reach the generator.
func (c *Client) IsConfigured() bool {
	return c != nil && c.tokens != nil && c.baseURL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for one actionable tip based on the window's
// completion statistics. The returned text is passed through verbatim.
func (c *Client) Generate(ctx context.Context, stats insight.Stats) (string, error) {
	if !c.IsConfigured() {
		return "", errors.New("suggestion client not configured")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	userPrompt := fmt.Sprintf(
		"Over the past %d days, this person has completed %s%% of their spiritual norms.\nTheir least consistent practices are: %s.\nGive one specific actionable tip to improve.",
		stats.WindowDays,
		stats.OverallRateString(),
		stats.WeakestSummary(),
	)

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: 80,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call suggestion api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", ErrQuotaExhausted
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return payload.Choices[0].Message.Content, nil
}
